package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "integration-engine",
			Issuer:    "https://auth.example.org",
			Audience:  jwt.ClaimStrings{"hl7-decoder"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: []string{ScopeDecode},
	}
}

func runJWT(t *testing.T, cfg JWTConfig, header string, handler echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7v2/decode", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if handler == nil {
		handler = func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	}
	return JWTMiddleware(cfg)(handler)(c)
}

func expectUnauthorized(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	expectUnauthorized(t, runJWT(t, JWTConfig{SigningKey: testSigningKey}, "", nil))
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectUnauthorized(t, runJWT(t, JWTConfig{SigningKey: testSigningKey}, tt.header, nil))
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, validClaims(), testSigningKey)
	cfg := JWTConfig{
		SigningKey: testSigningKey,
		Issuer:     "https://auth.example.org",
		Audience:   "hl7-decoder",
	}

	called := false
	err := runJWT(t, cfg, "Bearer "+token, func(c echo.Context) error {
		called = true
		if sub := c.Get("auth_subject"); sub != "integration-engine" {
			t.Errorf("expected auth_subject 'integration-engine', got %v", sub)
		}
		ctx := c.Request().Context()
		if UserIDFromContext(ctx) != "integration-engine" {
			t.Errorf("expected user id in request context, got %q", UserIDFromContext(ctx))
		}
		scopes := ScopesFromContext(ctx)
		if len(scopes) != 1 || scopes[0] != ScopeDecode {
			t.Errorf("expected scopes [%s], got %v", ScopeDecode, scopes)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestJWTMiddleware_LowercaseBearer(t *testing.T) {
	token := createTestToken(t, validClaims(), testSigningKey)
	if err := runJWT(t, JWTConfig{SigningKey: testSigningKey}, "bearer "+token, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token := createTestToken(t, claims, testSigningKey)

	expectUnauthorized(t, runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+token, nil))
}

func TestJWTMiddleware_MissingExpiry(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = nil
	token := createTestToken(t, claims, testSigningKey)

	expectUnauthorized(t, runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+token, nil))
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	token := createTestToken(t, validClaims(), []byte("another-key"))
	expectUnauthorized(t, runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+token, nil))
}

func TestJWTMiddleware_WrongIssuerOrAudience(t *testing.T) {
	token := createTestToken(t, validClaims(), testSigningKey)

	expectUnauthorized(t, runJWT(t, JWTConfig{SigningKey: testSigningKey, Issuer: "https://other"}, "Bearer "+token, nil))
	expectUnauthorized(t, runJWT(t, JWTConfig{SigningKey: testSigningKey, Audience: "other"}, "Bearer "+token, nil))
}

func TestJWTMiddleware_RejectsNoneAlg(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims())
	tokenStr, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	expectUnauthorized(t, runJWT(t, JWTConfig{SigningKey: testSigningKey}, "Bearer "+tokenStr, nil))
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	cfg := JWTConfig{
		SigningKey: testSigningKey,
		Skipper:    func(echo.Context) bool { return true },
	}
	if err := runJWT(t, cfg, "", nil); err != nil {
		t.Fatalf("expected skipped request to pass, got %v", err)
	}
}
