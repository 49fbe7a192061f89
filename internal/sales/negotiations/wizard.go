package negotiations

import (
	"fmt"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
)

// Step is a wizard position.
type Step int

const (
	StepNone Step = iota
	StepBasics
	StepSources
	StepReview
)

var (
	ErrStepLocked  = fmt.Errorf("%w: no puede avanzar a un paso sin completar los anteriores", httpx.ErrConflict)
	ErrNotReviewed = fmt.Errorf("%w: debe revisar la negociación antes de confirmarla", httpx.ErrConflict)
)

func (s Step) String() string {
	switch s {
	case StepBasics:
		return "Información básica"
	case StepSources:
		return "Fuentes de pago"
	case StepReview:
		return "Revisión"
	default:
		return ""
	}
}

func (d *Draft) stepErrors(s Step) []string {
	switch s {
	case StepBasics:
		return d.BasicsErrors()
	case StepSources:
		if !d.BasicsValid() {
			return d.BasicsErrors()
		}
		return d.Sources.StepErrors()
	}
	return nil
}

// Next validates the current step and advances. Validation failures leave the draft unchanged.
func (d *Draft) Next() error {
	if d.Step >= StepReview {
		return nil
	}
	if errs := d.stepErrors(d.Step); len(errs) > 0 {
		return httpx.MessageErrors(errs...)
	}
	if d.Completed < d.Step {
		d.Completed = d.Step
	}
	d.Step++
	return nil
}

// Back moves one step back without validating.
func (d *Draft) Back() {
	if d.Step > StepBasics {
		d.Step--
	}
}

// GoTo jumps to step, which may be at most one past the furthest completed step.
func (d *Draft) GoTo(step Step) error {
	if step < StepBasics || step > StepReview {
		return fmt.Errorf("%w: paso %d inválido", httpx.ErrValidation, step)
	}
	if step > d.Completed+1 {
		return ErrStepLocked
	}
	d.Step = step
	return nil
}

// settle drops completed steps whose predicate no longer holds after an edit.
func (d *Draft) settle() {
	if d.Completed >= StepBasics && !d.BasicsValid() {
		d.Completed = StepNone
	}
	if d.Completed >= StepSources && !d.SourcesValid() {
		d.Completed = StepBasics
	}
	if d.Step > d.Completed+1 {
		d.Step = d.Completed + 1
	}
}

// Touch re-checks completed steps after the sources changed.
func (d *Draft) Touch() {
	d.settle()
}

// SubmitCheck re-runs every gate and the final sum check.
func (d *Draft) SubmitCheck(policy paymentsources.SumPolicy) (paymentsources.SumCheck, error) {
	if errs := d.BasicsErrors(); len(errs) > 0 {
		return paymentsources.SumCheck{}, httpx.MessageErrors(errs...)
	}
	check := policy.Check(d.Sources.Allocations(), d.ValueToFinance())
	if err := check.Err(); err != nil {
		return check, err
	}
	if !d.SourcesValid() {
		return check, httpx.MessageErrors(d.Sources.StepErrors()...)
	}
	return check, nil
}
