package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func serveWithTimeout(path string, mw echo.MiddlewareFunc, h echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), rec)
	return rec, mw(h)(c)
}

func TestRequestTimeout_HandlerSeesDeadline(t *testing.T) {
	rec, err := serveWithTimeout("/api/questions", RequestTimeout(30*time.Second), func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected context to have a deadline")
		}
		return c.String(http.StatusOK, "ok")
	})
	if err != nil || rec.Code != http.StatusOK {
		t.Fatalf("got %d, %v", rec.Code, err)
	}
}

func TestRequestTimeout_SlowHandlerGets504(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	rec, err := serveWithTimeout("/api/reported-patients", RequestTimeout(50*time.Millisecond), func(c echo.Context) error {
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["message"] == "" {
		t.Errorf("expected JSON message body, got %s", rec.Body.String())
	}
}

func TestRequestTimeout_ExportIsNotLimited(t *testing.T) {
	called := false
	_, err := serveWithTimeout("/api/reports/submissions.xlsx",
		RequestTimeout(50*time.Millisecond, "/api/reports/submissions"),
		func(c echo.Context) error {
			called = true
			if _, ok := c.Request().Context().Deadline(); ok {
				t.Error("export request should carry no deadline")
			}
			return c.NoContent(http.StatusOK)
		})
	if err != nil || !called {
		t.Fatalf("handler not run cleanly: called=%v err=%v", called, err)
	}
}

func TestRequestTimeout_PropagatesHandlerError(t *testing.T) {
	_, err := serveWithTimeout("/api/questions/99", RequestTimeout(5*time.Second), func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "question not found")
	})
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404 HTTPError, got %v", err)
	}
}
