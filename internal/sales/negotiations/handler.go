package negotiations

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) respondDraft(w http.ResponseWriter, r *http.Request, status int, d *Draft, err error) {
	if err != nil {
		httpx.Fail(w, r, h.logger, "draft operation failed", err)
		return
	}
	httpx.JSON(w, status, NewDraftView(d))
}

func (h *Handler) OpenDraft(w http.ResponseWriter, r *http.Request) {
	var req OpenDraftRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.OpenDraft(r.Context(), req.ClientID)
	h.respondDraft(w, r, http.StatusCreated, d, err)
}

func (h *Handler) ShowDraft(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Draft(r.Context(), id)
	h.respondDraft(w, r, http.StatusOK, d, err)
}

func (h *Handler) UpdateBasics(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req BasicsRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.UpdateBasics(r.Context(), id, req)
	h.respondDraft(w, r, http.StatusOK, d, err)
}

func draftAndKind(r *http.Request) (uuid.UUID, paymentsources.Kind, error) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		return uuid.Nil, "", err
	}
	kind, err := paymentsources.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, kind, nil
}

func (h *Handler) ToggleSource(w http.ResponseWriter, r *http.Request) {
	id, kind, err := draftAndKind(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ToggleSourceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.ToggleSource(r.Context(), id, kind, req.Enabled)
	h.respondDraft(w, r, http.StatusOK, d, err)
}

func (h *Handler) PatchSource(w http.ResponseWriter, r *http.Request) {
	id, kind, err := draftAndKind(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var patch SourcePatch
	if err := httpx.DecodeAndValidate(r, &patch); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.PatchSource(r.Context(), id, kind, patch)
	h.respondDraft(w, r, http.StatusOK, d, err)
}

func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Next(r.Context(), id)
	h.respondDraft(w, r, http.StatusOK, d, err)
}

func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Back(r.Context(), id)
	h.respondDraft(w, r, http.StatusOK, d, err)
}

func (h *Handler) GoTo(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	step, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: paso inválido", httpx.ErrValidation))
		return
	}
	d, err := h.service.GoTo(r.Context(), id, Step(step))
	h.respondDraft(w, r, http.StatusOK, d, err)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Submit(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "submit draft failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) CancelDraft(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.CancelDraft(r.Context(), id); err != nil {
		httpx.Fail(w, r, h.logger, "cancel draft failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "get negotiation failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) CompleteProcessStep(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stepID, err := httpx.URLUUID(r, "stepId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.CompleteProcessStep(r.Context(), id, stepID)
	if err != nil {
		httpx.Fail(w, r, h.logger, "complete process step failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) ListByClient(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListByClient(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "list client negotiations failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": list})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.Fail(w, r, h.logger, "negotiation stats failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

// transitionHandler adapts a state transition to an HTTP handler.
func (h *Handler) transitionHandler(needsReason bool, fn func(r *http.Request, id uuid.UUID, reason string) (*Negotiation, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.URLUUID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var req TransitionRequest
		if needsReason {
			if err := httpx.DecodeAndValidate(r, &req); err != nil {
				httpx.RespondError(w, err)
				return
			}
		}
		n, err := fn(r, id, req.Reason)
		if err != nil {
			httpx.Fail(w, r, h.logger, "negotiation transition failed", err)
			return
		}
		httpx.JSON(w, http.StatusOK, n)
	}
}

func (h *Handler) Suspend() http.HandlerFunc {
	return h.transitionHandler(true, func(r *http.Request, id uuid.UUID, reason string) (*Negotiation, error) {
		return h.service.Suspend(r.Context(), id, reason)
	})
}

func (h *Handler) Reactivate() http.HandlerFunc {
	return h.transitionHandler(false, func(r *http.Request, id uuid.UUID, _ string) (*Negotiation, error) {
		return h.service.Reactivate(r.Context(), id)
	})
}

func (h *Handler) Complete() http.HandlerFunc {
	return h.transitionHandler(false, func(r *http.Request, id uuid.UUID, _ string) (*Negotiation, error) {
		return h.service.Complete(r.Context(), id)
	})
}

func (h *Handler) Withdraw() http.HandlerFunc {
	return h.transitionHandler(true, func(r *http.Request, id uuid.UUID, reason string) (*Negotiation, error) {
		return h.service.Withdraw(r.Context(), id, reason)
	})
}
