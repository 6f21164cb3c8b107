package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `stockledger_http_requests_total{code="418",route="/test"} 1`)
	require.Contains(t, body, `stockledger_http_request_duration_seconds_bucket{route="/test"`)
}

func TestTrackerRecordsOutcome(t *testing.T) {
	metrics := NewMetrics()
	ops := metrics.Operations()

	require.NoError(t, ops.Track("period_close").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, ops.Track("period_close").End(boom), boom)

	body := scrape(t, metrics)
	require.Contains(t, body, `stockledger_operations_total{operation="period_close",status="success"} 1`)
	require.Contains(t, body, `stockledger_operations_total{operation="period_close",status="failure"} 1`)
	require.Contains(t, body, `stockledger_operation_failures_total{operation="period_close"} 1`)
}

func TestNilTrackerIsNoop(t *testing.T) {
	var ops *Tracker
	boom := errors.New("boom")
	require.ErrorIs(t, ops.Track("x").End(boom), boom)

	var m *Metrics
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
