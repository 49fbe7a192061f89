package clients

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	clients, pagination, err := h.service.List(r.Context(), ListClientsRequest{
		Search:  q.Get("q"),
		State:   q.Get("estado"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		httpx.Fail(w, r, h.logger, "list clients failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": clients, "pagination": pagination})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	client, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.Fail(w, r, h.logger, "create client failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, client)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	client, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "get client failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, client)
}
