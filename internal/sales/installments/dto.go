package installments

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RegisterRequest records a payment against one of the negotiation's sources.
type RegisterRequest struct {
	SourceID   uuid.UUID       `json:"source_id" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	PaidOn     string          `json:"paid_on" validate:"required,datetime=2006-01-02"`
	Method     Method          `json:"method" validate:"required"`
	Reference  *string         `json:"reference,omitempty" validate:"omitempty,max=100"`
	ReceiptURL *string         `json:"receipt_url,omitempty" validate:"omitempty,url"`
	Notes      *string         `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type AnnulRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// RegisterResult is the stored installment. Replayed is set when the
// idempotency key matched an earlier request.
type RegisterResult struct {
	Installment *Installment `json:"installment"`
	Replayed    bool         `json:"replayed"`
}

// FilterFromQuery reads q, estado, vivienda and proyecto. Unparseable ids and
// "todos" disable the corresponding filter.
func FilterFromQuery(r *http.Request) Filter {
	q := r.URL.Query()
	return Filter{
		Query:     strings.TrimSpace(q.Get("q")),
		State:     strings.ToLower(strings.TrimSpace(q.Get("estado"))),
		UnitID:    optionalID(q.Get("vivienda")),
		ProjectID: optionalID(q.Get("proyecto")),
	}
}

func optionalID(raw string) *uuid.UUID {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == StateAll {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
