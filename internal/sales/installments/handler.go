package installments

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
	"github.com/habitar-ventas/habitar/internal/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.service.Ledger(r.Context(), FilterFromQuery(r))
	if err != nil {
		httpx.Fail(w, r, h.logger, "load ledger failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), FilterFromQuery(r))
	if err != nil {
		httpx.Fail(w, r, h.logger, "ledger stats failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), FilterFromQuery(r), &buf); err != nil {
		httpx.Fail(w, r, h.logger, "export ledger failed", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=abonos_%s.xlsx", h.service.now().Format("20060102_150405")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) ListForNegotiation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.ForNegotiation(r.Context(), id)
	if err != nil {
		httpx.Fail(w, r, h.logger, "list negotiation installments failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Register honours the Idempotency-Key header. Without one, a request that
// carries a bank reference is keyed by its fingerprint.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RegisterRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" && req.Reference != nil && *req.Reference != "" {
		key = shared.Fingerprint(id.String(), req.SourceID.String(), req.Amount.String(), req.PaidOn, *req.Reference)
	}
	res, err := h.service.Register(r.Context(), id, req, key)
	if err != nil {
		httpx.Fail(w, r, h.logger, "register installment failed", err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, res)
}

func (h *Handler) Annul(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req AnnulRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inst, err := h.service.Annul(r.Context(), id, req.Reason)
	if err != nil {
		httpx.Fail(w, r, h.logger, "annul installment failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inst)
}
