package negotiations

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
)

type OpenDraftRequest struct {
	ClientID uuid.UUID `json:"client_id" validate:"required"`
}

// BasicsRequest sets the first wizard step. The negotiated value is always
// the selected unit's total value.
type BasicsRequest struct {
	UnitID   uuid.UUID        `json:"unit_id" validate:"required"`
	Discount *decimal.Decimal `json:"discount,omitempty"`
	Notes    *string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type ToggleSourceRequest struct {
	Enabled bool `json:"enabled"`
}

type TransitionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// DraftView is the draft plus everything the wizard renders from it.
type DraftView struct {
	*Draft
	ValueToFinance  decimal.Decimal                           `json:"value_to_finance"`
	TotalConfigured decimal.Decimal                           `json:"total_configured"`
	Difference      decimal.Decimal                           `json:"difference"`
	Balanced        bool                                      `json:"balanced"`
	SourceErrors    map[paymentsources.Kind]map[string]string `json:"source_errors"`
	StepErrors      []string                                  `json:"step_errors"`
	Progress        Progress                                  `json:"progress"`
}

type Progress struct {
	Basics  int `json:"basics"`
	Sources int `json:"sources"`
}

func NewDraftView(d *Draft) DraftView {
	errs := d.stepErrors(d.Step)
	if errs == nil {
		errs = []string{}
	}
	return DraftView{
		Draft:           d,
		ValueToFinance:  d.ValueToFinance(),
		TotalConfigured: d.Sources.TotalConfigured(),
		Difference:      d.Sources.Difference(),
		Balanced:        d.Sources.IsBalanced(),
		SourceErrors:    d.Sources.Errors(),
		StepErrors:      errs,
		Progress:        Progress{Basics: d.Progress(), Sources: d.Sources.Progress()},
	}
}

// SubmitResult is the created negotiation and any non-blocking warnings.
type SubmitResult struct {
	Negotiation *Detail  `json:"negotiation"`
	Warnings    []string `json:"warnings,omitempty"`
}
