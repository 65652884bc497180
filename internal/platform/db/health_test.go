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

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func runHealth(t *testing.T, p Pinger) (int, HealthReport) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)

	h := healthHandler(p, func() *PoolStats {
		return &PoolStats{TotalConns: 3, IdleConns: 2, AcquiredConns: 1, MaxConns: 20}
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var report HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	return rec.Code, report
}

func TestHealthHandler_Healthy(t *testing.T) {
	code, report := runHealth(t, fakePinger{})
	if code != http.StatusOK || report.Status != "healthy" {
		t.Fatalf("got %d %q", code, report.Status)
	}
	if report.Error != "" {
		t.Errorf("unexpected error field %q", report.Error)
	}
	if report.Pool == nil || report.Pool.MaxConns != 20 {
		t.Errorf("pool stats missing: %+v", report.Pool)
	}
}

func TestHealthHandler_PingFailure(t *testing.T) {
	code, report := runHealth(t, fakePinger{err: errors.New("connection refused")})
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if report.Status != "unhealthy" || report.Error != "connection refused" {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Pool == nil {
		t.Error("pool stats should still be reported")
	}
}
