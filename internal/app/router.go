package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/habitar-ventas/habitar/internal/observability"
	"github.com/habitar-ventas/habitar/internal/sales/clients"
	"github.com/habitar-ventas/habitar/internal/sales/housing"
	"github.com/habitar-ventas/habitar/internal/sales/installments"
	"github.com/habitar-ventas/habitar/internal/sales/negotiations"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
	"github.com/habitar-ventas/habitar/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	HousingHandler        *housing.Handler
	ClientsHandler        *clients.Handler
	NegotiationsHandler   *negotiations.Handler
	PaymentSourcesHandler *paymentsources.Handler
	InstallmentsHandler   *installments.Handler
	JobHandler            *jobs.Handler
}

// NewRouter constructs the chi.Router with Habitar defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		if params.HousingHandler != nil {
			params.HousingHandler.MountRoutes(r)
		}
		if params.ClientsHandler != nil {
			params.ClientsHandler.MountRoutes(r)
		}
		if params.NegotiationsHandler != nil {
			params.NegotiationsHandler.MountRoutes(r)
		}
		if params.PaymentSourcesHandler != nil {
			params.PaymentSourcesHandler.MountRoutes(r)
		}
		if params.InstallmentsHandler != nil {
			params.InstallmentsHandler.MountRoutes(r)
		}
	})

	return r
}
