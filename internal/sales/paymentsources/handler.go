package paymentsources

import (
	"log/slog"
	"net/http"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
)

// Handler exposes payment sources over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) ListByNegotiation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.List(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "list sources failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) Reconfigure(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ReconfigureRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	for i, a := range req.Sources {
		kind, err := ParseKind(string(a.Kind))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		req.Sources[i].Kind = kind
	}
	view, err := h.service.Reconfigure(r.Context(), id, req)
	if err != nil {
		httpx.Fail(w, r, h.logger, "reconfigure sources failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req UpdateSourceRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	src, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.Fail(w, r, h.logger, "update source failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, newSourceView(*src))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.Fail(w, r, h.logger, "delete source failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Documents(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	docs, err := h.service.Documents(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "source documents failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, docs)
}
