package paymentsources

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
)

var (
	ErrStepNotFound  = fmt.Errorf("paso del proceso no encontrado: %w", httpx.ErrNotFound)
	ErrStepCompleted = fmt.Errorf("%w: el paso ya fue completado", httpx.ErrConflict)
)

const (
	StepPromise = "Firma de promesa de compraventa"
	StepDeed    = "Escrituración"
)

// DefaultProcessSteps builds the closing process of a negotiation funded by
// kinds: the promise signature, one disbursement request per gated kind
// present, and the deed.
func DefaultProcessSteps(negotiationID uuid.UUID, kinds []Kind) []ProcessStep {
	names := []string{StepPromise}
	for _, k := range Kinds {
		if name := DisbursementStep(k); name != "" && slices.Contains(kinds, k) {
			names = append(names, name)
		}
	}
	names = append(names, StepDeed)

	steps := make([]ProcessStep, 0, len(names))
	for i, name := range names {
		steps = append(steps, ProcessStep{
			ID:            uuid.New(),
			NegotiationID: negotiationID,
			Name:          name,
			Order:         i + 1,
			State:         StepPending,
		})
	}
	return steps
}

// CompleteStep marks st as completed at now.
func CompleteStep(st *ProcessStep, now time.Time) error {
	if st.State == StepCompleted {
		return ErrStepCompleted
	}
	t := now
	st.State = StepCompleted
	st.CompletedAt = &t
	return nil
}
