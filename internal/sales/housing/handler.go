package housing

import (
	"log/slog"
	"net/http"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.ListProjects(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, "list projects failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": projects})
}

func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	available := r.URL.Query().Get("available") == "true"
	units, err := h.service.Units(r.Context(), projectID, available)
	if err != nil {
		httpx.Fail(w, r, h.logger, "list units failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": units})
}

func (h *Handler) ShowUnit(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	unit, err := h.service.Unit(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "get unit failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, unit)
}
