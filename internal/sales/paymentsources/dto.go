package paymentsources

import "github.com/shopspring/decimal"

// UpdateSourceRequest edits one persisted source. Nil fields are left untouched.
type UpdateSourceRequest struct {
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	Entity            *string          `json:"entity,omitempty" validate:"omitempty,max=120"`
	Reference         *string          `json:"reference,omitempty" validate:"omitempty,max=80"`
	ApprovalLetterURL *string          `json:"approval_letter_url,omitempty" validate:"omitempty,url"`
}

// ReconfigureRequest replaces the whole set of sources of a negotiation.
type ReconfigureRequest struct {
	Sources []Allocation `json:"sources" validate:"required,min=1,dive"`
}

// SourceView decorates a source with its edit mode and document check.
type SourceView struct {
	Source
	PendingBalance decimal.Decimal `json:"pending_balance"`
	Edit           EditCheck       `json:"edit"`
	Documents      DocumentCheck   `json:"documents"`
}

// NegotiationSources is the sources tab of a negotiation.
type NegotiationSources struct {
	Sources  []SourceView `json:"sources"`
	Totals   Totals       `json:"totals"`
	Warnings []string     `json:"warnings,omitempty"`
}

func newSourceView(s Source) SourceView {
	return SourceView{
		Source:         s,
		PendingBalance: s.PendingBalance(),
		Edit:           CheckEdit(s),
		Documents:      RequiredDocuments(s),
	}
}
