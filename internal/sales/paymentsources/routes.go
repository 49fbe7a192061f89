package paymentsources

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/negotiations/{id}/sources", h.ListByNegotiation)
	r.Put("/negotiations/{id}/sources", h.Reconfigure)
	r.Patch("/sources/{id}", h.Update)
	r.Delete("/sources/{id}", h.Delete)
	r.Get("/sources/{id}/documents", h.Documents)
}
