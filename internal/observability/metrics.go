package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the HTTP surface and the sales domain.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	negotiationsCreated   prometheus.Counter
	negotiationTransition *prometheus.CounterVec
	installmentsTotal     *prometheus.CounterVec
	installmentAmount     *prometheus.CounterVec
	submitRejected        prometheus.Counter
}

// NewMetrics initialises the registry with HTTP and domain collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "habitar_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "habitar_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "habitar_negotiations_created_total",
		Help: "Negotiations persisted from submitted drafts.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "habitar_negotiation_transitions_total",
		Help: "Negotiation state transitions by target state.",
	}, []string{"state"})
	installments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "habitar_installments_registered_total",
		Help: "Installments registered by payment method.",
	}, []string{"method"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "habitar_installments_amount_total",
		Help: "Sum of registered installment amounts by payment-source kind.",
	}, []string{"source_kind"})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "habitar_draft_submit_rejected_total",
		Help: "Draft submissions blocked by the final sum check.",
	})
	registry.MustRegister(requests, duration, created, transitions, installments, amount, rejected)
	return &Metrics{
		registry:              registry,
		handler:               promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:         requests,
		requestDuration:       duration,
		negotiationsCreated:   created,
		negotiationTransition: transitions,
		installmentsTotal:     installments,
		installmentAmount:     amount,
		submitRejected:        rejected,
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// NegotiationCreated counts a persisted negotiation.
func (m *Metrics) NegotiationCreated() {
	if m == nil {
		return
	}
	m.negotiationsCreated.Inc()
}

// NegotiationTransition counts a state change into state.
func (m *Metrics) NegotiationTransition(state string) {
	if m == nil {
		return
	}
	m.negotiationTransition.WithLabelValues(state).Inc()
}

// SubmitRejected counts a draft submission blocked by reconciliation.
func (m *Metrics) SubmitRejected() {
	if m == nil {
		return
	}
	m.submitRejected.Inc()
}

// InstallmentRegistered counts an installment and adds its amount.
func (m *Metrics) InstallmentRegistered(method, sourceKind string, amount float64) {
	if m == nil {
		return
	}
	m.installmentsTotal.WithLabelValues(method).Inc()
	m.installmentAmount.WithLabelValues(sourceKind).Add(amount)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
