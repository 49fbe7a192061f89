package negotiations

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
)

type State string

const (
	StateActive    State = "Activa"
	StateSuspended State = "Suspendida"
	StateCompleted State = "Completada"
	StateWithdrawn State = "Cerrada por Renuncia"
)

var (
	ErrNotFound           = fmt.Errorf("negociación no encontrada: %w", httpx.ErrNotFound)
	ErrInvalidTransition  = fmt.Errorf("transición de estado inválida: %w", httpx.ErrConflict)
	ErrActiveExists       = fmt.Errorf("%w: el cliente ya tiene una negociación activa para esta vivienda", httpx.ErrDuplicate)
	ErrOutstandingBalance = fmt.Errorf("%w: la negociación aún tiene saldo pendiente", httpx.ErrConflict)
	ErrReasonRequired     = fmt.Errorf("%w: debe indicar el motivo", httpx.ErrValidation)
	ErrPriceChanged       = fmt.Errorf("%w: el valor de la vivienda cambió. Vuelva a seleccionarla", httpx.ErrConflict)
	ErrNotActive          = fmt.Errorf("%w: la negociación no está activa", httpx.ErrConflict)
)

// Negotiation is a client's commitment to buy a unit at an agreed value.
type Negotiation struct {
	ID              uuid.UUID       `json:"id"`
	ClientID        uuid.UUID       `json:"client_id"`
	UnitID          uuid.UUID       `json:"unit_id"`
	NegotiatedValue decimal.Decimal `json:"negotiated_value"`
	Discount        decimal.Decimal `json:"discount"`
	TotalValue      decimal.Decimal `json:"total_value"`
	State           State           `json:"state"`
	Notes           *string         `json:"notes,omitempty"`
	Reason          *string         `json:"reason,omitempty"`
	TotalSources    decimal.Decimal `json:"total_sources"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	PendingBalance  decimal.Decimal `json:"pending_balance"`
	PercentPaid     decimal.Decimal `json:"percent_paid"`
	NegotiatedAt    time.Time       `json:"negotiated_at"`
	SuspendedAt     *time.Time      `json:"suspended_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	WithdrawnAt     *time.Time      `json:"withdrawn_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsOpen reports whether the negotiation still holds its unit.
func (n Negotiation) IsOpen() bool {
	return n.State == StateActive || n.State == StateSuspended
}

// Suspend pauses an active negotiation.
func (n *Negotiation) Suspend(reason string, now time.Time) error {
	if n.State != StateActive {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, n.State, StateSuspended)
	}
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	n.State = StateSuspended
	n.Reason = &reason
	n.SuspendedAt = &now
	n.UpdatedAt = now
	return nil
}

// Reactivate resumes a suspended negotiation.
func (n *Negotiation) Reactivate(now time.Time) error {
	if n.State != StateSuspended {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, n.State, StateActive)
	}
	n.State = StateActive
	n.SuspendedAt = nil
	n.Reason = nil
	n.UpdatedAt = now
	return nil
}

// Complete closes an active negotiation whose sources are fully received.
func (n *Negotiation) Complete(now time.Time) error {
	if n.State != StateActive {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, n.State, StateCompleted)
	}
	if !n.TotalSources.IsPositive() || !n.PendingBalance.IsZero() {
		return ErrOutstandingBalance
	}
	n.State = StateCompleted
	n.CompletedAt = &now
	n.UpdatedAt = now
	return nil
}

// Withdraw closes an open negotiation at the client's request.
func (n *Negotiation) Withdraw(reason string, now time.Time) error {
	if !n.IsOpen() {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, n.State, StateWithdrawn)
	}
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	n.State = StateWithdrawn
	n.Reason = &reason
	n.WithdrawnAt = &now
	n.UpdatedAt = now
	return nil
}

// ApplyTotals copies the source totals onto the negotiation.
func (n *Negotiation) ApplyTotals(t paymentsources.Totals) {
	n.TotalSources = t.Approved
	n.TotalPaid = t.Received
	n.PendingBalance = t.Balance
	n.PercentPaid = t.Percent
}

const (
	WithdrawalPendingRefund = "Pendiente Devolución"
	WithdrawalClosed        = "Cerrada"
)

// Withdrawal (renuncia) records a client's withdrawal and the refund owed.
type Withdrawal struct {
	ID             uuid.UUID       `json:"id"`
	NegotiationID  uuid.UUID       `json:"negotiation_id"`
	Reason         string          `json:"reason"`
	RefundAmount   decimal.Decimal `json:"refund_amount"`
	RequiresRefund bool            `json:"requires_refund"`
	State          string          `json:"state"`
	WithdrawnAt    time.Time       `json:"withdrawn_at"`
}

// NewWithdrawal refunds everything received so far.
func NewWithdrawal(n Negotiation, reason string, now time.Time) Withdrawal {
	w := Withdrawal{
		ID:             uuid.New(),
		NegotiationID:  n.ID,
		Reason:         reason,
		RefundAmount:   n.TotalPaid,
		RequiresRefund: n.TotalPaid.IsPositive(),
		State:          WithdrawalClosed,
		WithdrawnAt:    now,
	}
	if w.RequiresRefund {
		w.State = WithdrawalPendingRefund
	}
	return w
}

// Stats summarises negotiations by state.
type Stats struct {
	Total          int             `json:"total"`
	Active         int             `json:"activas"`
	Suspended      int             `json:"suspendidas"`
	Withdrawn      int             `json:"cerradas_renuncia"`
	Completed      int             `json:"completadas"`
	ActiveValue    decimal.Decimal `json:"valor_total_activas"`
	CompletedValue decimal.Decimal `json:"valor_total_completadas"`
}

// Detail is a negotiation with its sources.
type Detail struct {
	Negotiation
	Sources []paymentsources.Source      `json:"sources"`
	Totals  paymentsources.Totals        `json:"totals"`
	Steps   []paymentsources.ProcessStep `json:"process_steps"`
}
