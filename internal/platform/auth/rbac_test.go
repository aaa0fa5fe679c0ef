package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestMatchScope(t *testing.T) {
	tests := []struct {
		granted  string
		required string
		want     bool
	}{
		{ScopeDecode, ScopeDecode, true},
		{ScopeDecode, ScopeArchiveRead, false},
		{"*", ScopeArchiveRead, true},
		{"hl7v2.*", ScopeDecode, true},
		{"hl7v2.*", "fhir.read", false},
		{"hl7.*", ScopeDecode, false},
		{"", ScopeDecode, false},
	}

	for _, tt := range tests {
		if got := matchScope(tt.granted, tt.required); got != tt.want {
			t.Errorf("matchScope(%q, %q) = %v, want %v", tt.granted, tt.required, got, tt.want)
		}
	}
}

func scopedContext(subject string, scopes []string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/hl7v2/messages", nil)
	if scopes != nil {
		req = req.WithContext(context.WithValue(req.Context(), UserScopesKey, scopes))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if subject != "" {
		c.Set("auth_subject", subject)
	}
	return c, rec
}

func TestRequireScope_Allowed(t *testing.T) {
	c, _ := scopedContext("client", []string{ScopeArchiveRead})

	called := false
	err := RequireScope(ScopeArchiveRead)(func(c echo.Context) error {
		called = true
		return nil
	})(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequireScope_Forbidden(t *testing.T) {
	c, _ := scopedContext("client", []string{ScopeDecode})

	err := RequireScope(ScopeArchiveRead)(func(c echo.Context) error {
		t.Error("handler should not be called")
		return nil
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireScope_AuthDisabled(t *testing.T) {
	c, _ := scopedContext("", nil)

	called := false
	RequireScope(ScopeArchiveRead)(func(c echo.Context) error {
		called = true
		return nil
	})(c)
	if !called {
		t.Error("expected unauthenticated deployments to pass scope checks")
	}
}
