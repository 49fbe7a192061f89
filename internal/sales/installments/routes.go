package installments

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/installments", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/stats", h.Stats)
		r.Get("/export", h.Export)
		r.Post("/{id}/annul", h.Annul)
	})
	r.Get("/negotiations/{id}/installments", h.ListForNegotiation)
	r.Post("/negotiations/{id}/installments", h.Register)
}
