package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// hit runs one request through h as userID (empty means anonymous).
func hit(e *echo.Echo, h echo.HandlerFunc, userID string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodPost, "/api/submit-health-questionnaire", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set("user_id", userID)
	}
	return rec, h(c)
}

func limited(cfg RateLimitConfig) (*echo.Echo, echo.HandlerFunc) {
	return echo.New(), RateLimit(cfg)(func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	e, h := limited(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 3})

	for i := 0; i < 3; i++ {
		rec, err := hit(e, h, "")
		if err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "1" {
			t.Errorf("X-RateLimit-Limit = %q", got)
		}
	}

	rec, err := hit(e, h, "")
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Error("expected X-RateLimit-Remaining 0")
	}
	n, convErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if convErr != nil || n < 1 {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimit_UsersHaveSeparateBuckets(t *testing.T) {
	e, h := limited(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	if _, err := hit(e, h, "doctor-a"); err != nil {
		t.Fatalf("doctor-a first: %v", err)
	}
	if _, err := hit(e, h, "doctor-a"); err == nil {
		t.Fatal("doctor-a second: expected 429")
	}
	if _, err := hit(e, h, "doctor-b"); err != nil {
		t.Fatalf("doctor-b first: %v", err)
	}
	if _, err := hit(e, h, ""); err != nil {
		t.Fatalf("anonymous kiosk should use its own IP bucket: %v", err)
	}
}

func TestRetryAfter_ZeroRate(t *testing.T) {
	l := rate.NewLimiter(0, 1)
	now := time.Now()
	l.AllowN(now, 1)
	if got := retryAfter(l, now); got != 1 {
		t.Errorf("retryAfter = %d, want 1", got)
	}
}

func TestLimiterStore_ReusesAndSweeps(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	clock := time.Now()
	store.now = func() time.Time { return clock }

	a := store.limiter("kiosk-1")
	if store.limiter("kiosk-1") != a {
		t.Error("expected the same limiter for the same key")
	}

	clock = clock.Add(2 * limiterIdleTTL)
	store.limiter("kiosk-2")
	if store.size() != 1 {
		t.Errorf("expected idle limiter to be swept, have %d", store.size())
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	if cfg := DefaultRateLimitConfig(); cfg.RequestsPerSecond != 50 || cfg.BurstSize != 100 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
