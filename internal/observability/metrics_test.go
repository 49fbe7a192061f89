package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
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
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/drafts/{id}")
	req := httptest.NewRequest(http.MethodGet, "/api/drafts/abc", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `habitar_http_requests_total{code="418",route="/api/drafts/{id}"} 1`)
	assert.Contains(t, body, `habitar_http_request_duration_seconds_bucket{route="/api/drafts/{id}"`)
}

func TestDomainCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.NegotiationCreated()
	metrics.NegotiationTransition("Suspendida")
	metrics.SubmitRejected()
	metrics.InstallmentRegistered("PSE", "Cuota Inicial", 1_000_000)

	body := scrape(t, metrics)
	assert.Contains(t, body, "habitar_negotiations_created_total 1")
	assert.Contains(t, body, `habitar_negotiation_transitions_total{state="Suspendida"} 1`)
	assert.Contains(t, body, "habitar_draft_submit_rejected_total 1")
	assert.Contains(t, body, `habitar_installments_registered_total{method="PSE"} 1`)
	assert.Contains(t, body, `habitar_installments_amount_total{source_kind="Cuota Inicial"} 1e+06`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.NegotiationCreated()
	m.InstallmentRegistered("PSE", "Cuota Inicial", 1)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
