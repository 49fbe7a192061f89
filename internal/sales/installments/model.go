package installments

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
)

// Method is how an installment was paid.
type Method string

const (
	MethodTransfer   Method = "Transferencia"
	MethodCash       Method = "Efectivo"
	MethodCheck      Method = "Cheque"
	MethodDeposit    Method = "Consignación"
	MethodPSE        Method = "PSE"
	MethodCreditCard Method = "Tarjeta de Crédito"
	MethodDebitCard  Method = "Tarjeta de Débito"
)

// Methods lists the accepted payment methods.
var Methods = []Method{
	MethodTransfer,
	MethodCash,
	MethodCheck,
	MethodDeposit,
	MethodPSE,
	MethodCreditCard,
	MethodDebitCard,
}

func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

var (
	ErrNotFound            = fmt.Errorf("abono no encontrado: %w", httpx.ErrNotFound)
	ErrExceedsBalance      = fmt.Errorf("%w: el monto excede el saldo pendiente de la fuente de pago", httpx.ErrValidation)
	ErrSourceMismatch      = fmt.Errorf("%w: la fuente de pago no pertenece a esta negociación", httpx.ErrValidation)
	ErrNegotiationInactive = fmt.Errorf("%w: solo se pueden registrar abonos en negociaciones activas", httpx.ErrConflict)
	ErrNegotiationClosed   = fmt.Errorf("%w: la negociación está cerrada", httpx.ErrConflict)
	ErrAlreadyAnnulled     = fmt.Errorf("%w: el abono ya fue anulado", httpx.ErrConflict)
	ErrReasonRequired      = fmt.Errorf("%w: debe indicar el motivo de la anulación", httpx.ErrValidation)
)

// Installment (abono) is one payment received against a payment source.
type Installment struct {
	ID             uuid.UUID       `json:"id"`
	NegotiationID  uuid.UUID       `json:"negotiation_id"`
	SourceID       uuid.UUID       `json:"source_id"`
	Amount         decimal.Decimal `json:"amount"`
	PaidOn         time.Time       `json:"paid_on"`
	Method         Method          `json:"method"`
	Reference      *string         `json:"reference,omitempty"`
	ReceiptURL     *string         `json:"receipt_url,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	RegisteredBy   string          `json:"registered_by"`
	IdempotencyKey *string         `json:"-"`
	AnnulledAt     *time.Time      `json:"annulled_at,omitempty"`
	AnnulReason    *string         `json:"annul_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (i Installment) Annulled() bool {
	return i.AnnulledAt != nil
}

// LedgerRow is an installment joined with its client, unit, project,
// negotiation state and source kind.
type LedgerRow struct {
	Installment
	ClientID         uuid.UUID `json:"client_id"`
	ClientNames      string    `json:"client_names"`
	ClientSurnames   string    `json:"client_surnames"`
	ClientDocument   string    `json:"client_document"`
	UnitID           uuid.UUID `json:"unit_id"`
	UnitNumber       string    `json:"unit_number"`
	Block            string    `json:"block"`
	ProjectID        uuid.UUID `json:"project_id"`
	ProjectName      string    `json:"project_name"`
	NegotiationState string    `json:"negotiation_state"`
	SourceKind       string    `json:"source_kind"`
}

func (r LedgerRow) ClientName() string {
	return r.ClientNames + " " + r.ClientSurnames
}

func (r LedgerRow) UnitLabel() string {
	return fmt.Sprintf("manzana %s casa %s", r.Block, r.UnitNumber)
}
