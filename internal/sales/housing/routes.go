package housing

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/projects", h.ListProjects)
	r.Get("/projects/{id}/units", h.ListUnits)
	r.Get("/units/{id}", h.ShowUnit)
}
