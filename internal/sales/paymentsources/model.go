package paymentsources

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
)

// Kind identifies one of the four fixed funding channels.
type Kind string

const (
	KindDownPayment     Kind = "Cuota Inicial"
	KindMortgage        Kind = "Crédito Hipotecario"
	KindSubsidyMiCasaYa Kind = "Subsidio Mi Casa Ya"
	KindSubsidyCaja     Kind = "Subsidio Caja Compensación"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindDownPayment, KindMortgage, KindSubsidyMiCasaYa, KindSubsidyCaja}

var kindSlugs = map[string]Kind{
	"cuota-inicial":              KindDownPayment,
	"credito-hipotecario":        KindMortgage,
	"subsidio-mi-casa-ya":        KindSubsidyMiCasaYa,
	"subsidio-caja-compensacion": KindSubsidyCaja,
}

// ParseKind accepts either the display name or its URL slug.
func ParseKind(raw string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == raw {
			return k, nil
		}
	}
	if k, ok := kindSlugs[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: tipo de fuente de pago desconocido %q", httpx.ErrValidation, raw)
}

// Slug returns the URL form of the kind.
func (k Kind) Slug() string {
	for slug, kind := range kindSlugs {
		if kind == k {
			return slug
		}
	}
	return ""
}

// AllowsMultipleInstallments reports whether the kind accepts more than one receipt.
func (k Kind) AllowsMultipleInstallments() bool {
	return k == KindDownPayment
}

// RequiresEntity reports whether an issuing entity and reference are mandatory.
func (k Kind) RequiresEntity() bool {
	return k != KindDownPayment
}

// State tracks how much of the approved amount has been received.
type State string

const (
	StatePending    State = "Pendiente"
	StateInProgress State = "En Proceso"
	StateCompleted  State = "Completada"
)

// Source is a persisted payment source of a negotiation.
type Source struct {
	ID                uuid.UUID       `json:"id"`
	NegotiationID     uuid.UUID       `json:"negotiation_id"`
	Kind              Kind            `json:"kind"`
	ApprovedAmount    decimal.Decimal `json:"approved_amount"`
	ReceivedAmount    decimal.Decimal `json:"received_amount"`
	Entity            *string         `json:"entity,omitempty"`
	Reference         *string         `json:"reference,omitempty"`
	ApprovalLetterURL *string         `json:"approval_letter_url,omitempty"`
	AllowsMultiple    bool            `json:"allows_multiple_installments"`
	State             State           `json:"state"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// PendingBalance is the approved amount not yet received.
func (s Source) PendingBalance() decimal.Decimal {
	return s.ApprovedAmount.Sub(s.ReceivedAmount)
}

// IsDisbursed reports whether a non-zero approved amount has been fully received.
func (s Source) IsDisbursed() bool {
	return s.ApprovedAmount.IsPositive() && s.ReceivedAmount.Equal(s.ApprovedAmount)
}

// NewSource prepares a source for insertion with derived defaults.
func NewSource(negotiationID uuid.UUID, a Allocation) Source {
	return Source{
		ID:                uuid.New(),
		NegotiationID:     negotiationID,
		Kind:              a.Kind,
		ApprovedAmount:    a.Amount,
		ReceivedAmount:    decimal.Zero,
		Entity:            a.Entity,
		Reference:         a.Reference,
		ApprovalLetterURL: a.ApprovalLetterURL,
		AllowsMultiple:    a.Kind.AllowsMultipleInstallments(),
		State:             StatePending,
	}
}

// Allocation is an approved amount assigned to a kind before persistence.
type Allocation struct {
	Kind              Kind            `json:"kind"`
	Amount            decimal.Decimal `json:"amount"`
	Entity            *string         `json:"entity,omitempty"`
	Reference         *string         `json:"reference,omitempty"`
	ApprovalLetterURL *string         `json:"approval_letter_url,omitempty"`
}

// ProcessStep is a step of a negotiation's closing process.
type ProcessStep struct {
	ID            uuid.UUID  `json:"id"`
	NegotiationID uuid.UUID  `json:"negotiation_id"`
	Name          string     `json:"name"`
	Order         int        `json:"order"`
	State         string     `json:"state"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

const (
	StepPending   = "Pendiente"
	StepCompleted = "Completado"
)

// Totals aggregates a negotiation's sources.
type Totals struct {
	Approved decimal.Decimal `json:"total_approved"`
	Received decimal.Decimal `json:"total_received"`
	Balance  decimal.Decimal `json:"balance"`
	Percent  decimal.Decimal `json:"percent_received"`
}
