package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type routesFunc func(e *echo.Echo)

func (f routesFunc) RegisterRoutes(e *echo.Echo) { f(e) }

func TestMetricsEndpointCountsRequests(t *testing.T) {
	s := NewServer(routesFunc(func(e *echo.Echo) {
		e.GET("/api/ping", func(c echo.Context) error {
			return c.String(http.StatusOK, "pong")
		})
	}))

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ping status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "http_requests_total") {
		t.Fatalf("scrape output missing http_requests_total")
	}
	if !strings.Contains(body, `route="/api/ping"`) {
		t.Fatalf("scrape output missing the templated route label")
	}
}

func TestMetricsDisabledRemovesEndpoint(t *testing.T) {
	s := NewServer(nil, WithMetrics(false, ""))

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("metrics status = %d, want 404 when disabled", rec.Code)
	}
}

func TestMetricsCustomPath(t *testing.T) {
	s := NewServer(nil, WithMetrics(true, "/internal/metrics"))

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/internal/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("custom path status = %d, want 200", rec.Code)
	}
}
