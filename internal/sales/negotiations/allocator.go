package negotiations

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
	"github.com/habitar-ventas/habitar/internal/shared"
)

// ErrUnknownKind is returned for a payment source kind outside the fixed set.
var ErrUnknownKind = fmt.Errorf("%w: tipo de fuente de pago desconocido", httpx.ErrValidation)

// SourceConfig is the editable configuration of an enabled source.
type SourceConfig struct {
	Amount            decimal.Decimal `json:"amount"`
	Entity            *string         `json:"entity,omitempty"`
	Reference         *string         `json:"reference,omitempty"`
	ApprovalLetterURL *string         `json:"approval_letter_url,omitempty"`
	AllowsMultiple    bool            `json:"allows_multiple_installments"`
}

// SourcePatch merges into a SourceConfig. Nil fields are left untouched.
type SourcePatch struct {
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	Entity            *string          `json:"entity,omitempty"`
	Reference         *string          `json:"reference,omitempty"`
	ApprovalLetterURL *string          `json:"approval_letter_url,omitempty" validate:"omitempty,url"`
}

// SourceSlot is one of the four togglable kinds.
type SourceSlot struct {
	Kind    paymentsources.Kind `json:"kind"`
	Enabled bool                `json:"enabled"`
	Config  *SourceConfig       `json:"config,omitempty"`
}

// Allocator distributes the value to finance across payment source kinds.
type Allocator struct {
	Target decimal.Decimal `json:"target"`
	Slots  []SourceSlot    `json:"slots"`
}

// NewAllocator returns an allocator with every kind disabled.
func NewAllocator(target decimal.Decimal) *Allocator {
	slots := make([]SourceSlot, 0, len(paymentsources.Kinds))
	for _, k := range paymentsources.Kinds {
		slots = append(slots, SourceSlot{Kind: k})
	}
	return &Allocator{Target: target, Slots: slots}
}

func (a *Allocator) slot(kind paymentsources.Kind) (*SourceSlot, error) {
	for i := range a.Slots {
		if a.Slots[i].Kind == kind {
			return &a.Slots[i], nil
		}
	}
	return nil, ErrUnknownKind
}

// SetTarget changes the value the sources must cover.
func (a *Allocator) SetTarget(target decimal.Decimal) {
	a.Target = target
}

// EnableSource toggles a kind. Enabling starts from a zero amount and
// disabling discards the configuration.
func (a *Allocator) EnableSource(kind paymentsources.Kind, enabled bool) error {
	s, err := a.slot(kind)
	if err != nil {
		return err
	}
	s.Enabled = enabled
	if !enabled {
		s.Config = nil
		return nil
	}
	s.Config = &SourceConfig{
		Amount:         decimal.Zero,
		AllowsMultiple: kind.AllowsMultipleInstallments(),
	}
	return nil
}

// UpdateSourceConfig merges patch into an enabled source. Disabled sources are left as they are.
func (a *Allocator) UpdateSourceConfig(kind paymentsources.Kind, patch SourcePatch) error {
	s, err := a.slot(kind)
	if err != nil {
		return err
	}
	if !s.Enabled || s.Config == nil {
		return nil
	}
	if patch.Amount != nil {
		s.Config.Amount = *patch.Amount
	}
	if patch.Entity != nil {
		s.Config.Entity = patch.Entity
	}
	if patch.Reference != nil {
		s.Config.Reference = patch.Reference
	}
	if patch.ApprovalLetterURL != nil {
		s.Config.ApprovalLetterURL = patch.ApprovalLetterURL
	}
	return nil
}

// TotalConfigured sums the amounts of enabled sources.
func (a *Allocator) TotalConfigured() decimal.Decimal {
	total := decimal.Zero
	for _, s := range a.Slots {
		if s.Enabled && s.Config != nil {
			total = total.Add(s.Config.Amount)
		}
	}
	return total
}

// Difference is target minus total: positive when under-funded, negative when over-funded.
func (a *Allocator) Difference() decimal.Decimal {
	return a.Target.Sub(a.TotalConfigured())
}

func (a *Allocator) IsBalanced() bool {
	return a.Difference().IsZero() && a.TotalConfigured().IsPositive()
}

// ValidateSource returns field errors for one enabled source, keyed by JSON field.
func (a *Allocator) ValidateSource(kind paymentsources.Kind) map[string]string {
	s, err := a.slot(kind)
	if err != nil || !s.Enabled || s.Config == nil {
		return map[string]string{}
	}
	return paymentsources.ValidateAllocation(s.allocation(), a.Target)
}

// Errors maps each enabled kind with problems to its field errors.
func (a *Allocator) Errors() map[paymentsources.Kind]map[string]string {
	out := map[paymentsources.Kind]map[string]string{}
	for _, s := range a.Slots {
		if errs := a.ValidateSource(s.Kind); len(errs) > 0 {
			out[s.Kind] = errs
		}
	}
	return out
}

// Allocations returns the enabled sources ready to persist.
func (a *Allocator) Allocations() []paymentsources.Allocation {
	var out []paymentsources.Allocation
	for _, s := range a.Slots {
		if s.Enabled && s.Config != nil {
			out = append(out, s.allocation())
		}
	}
	return out
}

func (a *Allocator) enabledCount() int {
	n := 0
	for _, s := range a.Slots {
		if s.Enabled {
			n++
		}
	}
	return n
}

var allocationFields = []string{"amount", "entity", "reference"}

// StepErrors lists what keeps the payment sources step from being complete.
func (a *Allocator) StepErrors() []string {
	var errs []string
	if a.enabledCount() == 0 {
		errs = append(errs, "Debe configurar al menos una fuente de pago")
	}
	for _, s := range a.Slots {
		if !s.Enabled {
			continue
		}
		if s.Config == nil {
			errs = append(errs, fmt.Sprintf("%s: No está configurada", s.Kind))
			continue
		}
		fields := a.ValidateSource(s.Kind)
		for _, field := range allocationFields {
			if msg, ok := fields[field]; ok {
				errs = append(errs, fmt.Sprintf("%s: %s", s.Kind, msg))
			}
		}
	}
	if !a.IsBalanced() {
		diff := a.Difference()
		if diff.IsPositive() {
			errs = append(errs, fmt.Sprintf("Faltan %s para completar el valor total", shared.FormatCOP(diff)))
		} else if diff.IsNegative() {
			errs = append(errs, fmt.Sprintf("Hay un excedente de %s. Ajusta los montos", shared.FormatCOP(diff.Abs())))
		}
	}
	return errs
}

// Progress is 100 when balanced, otherwise the covered share capped at 99.
func (a *Allocator) Progress() int {
	if !a.Target.IsPositive() || a.enabledCount() == 0 {
		return 0
	}
	if a.IsBalanced() {
		return 100
	}
	covered := a.TotalConfigured().Div(a.Target).Mul(decimal.NewFromInt(100))
	if covered.GreaterThan(decimal.NewFromInt(99)) {
		return 99
	}
	return int(covered.IntPart())
}

func (s SourceSlot) allocation() paymentsources.Allocation {
	return paymentsources.Allocation{
		Kind:              s.Kind,
		Amount:            s.Config.Amount,
		Entity:            s.Config.Entity,
		Reference:         s.Config.Reference,
		ApprovalLetterURL: s.Config.ApprovalLetterURL,
	}
}
