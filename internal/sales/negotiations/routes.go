package negotiations

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/drafts", func(r chi.Router) {
		r.Post("/", h.OpenDraft)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.ShowDraft)
			r.Delete("/", h.CancelDraft)
			r.Put("/basics", h.UpdateBasics)
			r.Put("/sources/{kind}", h.ToggleSource)
			r.Patch("/sources/{kind}", h.PatchSource)
			r.Post("/next", h.Next)
			r.Post("/back", h.Back)
			r.Post("/goto/{step}", h.GoTo)
			r.Post("/submit", h.Submit)
		})
	})

	r.Get("/negotiations/stats", h.Stats)
	r.Get("/negotiations/{id}", h.Show)
	r.Post("/negotiations/{id}/suspend", h.Suspend())
	r.Post("/negotiations/{id}/reactivate", h.Reactivate())
	r.Post("/negotiations/{id}/complete", h.Complete())
	r.Post("/negotiations/{id}/withdraw", h.Withdraw())
	r.Patch("/negotiations/{id}/process-steps/{stepId}", h.CompleteProcessStep)
	r.Get("/clients/{id}/negotiations", h.ListByClient)
}
