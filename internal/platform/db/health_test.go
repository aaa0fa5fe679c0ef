package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func callHealth(t *testing.T, h echo.HandlerFunc) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse JSON response: %v", err)
	}
	return rec, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	stats := func() *PoolStats { return &PoolStats{TotalConns: 3, MaxConns: 10} }
	rec, body := callHealth(t, HealthHandler(&fakePinger{}, stats))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected status 'healthy', got %v", body["status"])
	}
	pool, ok := body["pool"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected pool stats, got %v", body["pool"])
	}
	if pool["total_conns"] != float64(3) {
		t.Errorf("expected total_conns 3, got %v", pool["total_conns"])
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	rec, body := callHealth(t, HealthHandler(&fakePinger{err: errors.New("connection refused")}, nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got %v", body["status"])
	}
	if body["error"] != "connection refused" {
		t.Errorf("expected error message, got %v", body["error"])
	}
	if _, ok := body["pool"]; ok {
		t.Error("expected no pool stats without a stats func")
	}
}

func TestHealthHandler_Disabled(t *testing.T) {
	rec, body := callHealth(t, HealthHandler(nil, nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "disabled" {
		t.Errorf("expected status 'disabled', got %v", body["status"])
	}
}
