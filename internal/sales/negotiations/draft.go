package negotiations

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Draft is the server-side state of the negotiation wizard for one client.
type Draft struct {
	ID              uuid.UUID       `json:"id"`
	ClientID        uuid.UUID       `json:"client_id"`
	ProjectID       *uuid.UUID      `json:"project_id,omitempty"`
	UnitID          *uuid.UUID      `json:"unit_id,omitempty"`
	UnitLabel       string          `json:"unit_label,omitempty"`
	NegotiatedValue decimal.Decimal `json:"negotiated_value"`
	Discount        decimal.Decimal `json:"discount"`
	Notes           string          `json:"notes,omitempty"`
	Step            Step            `json:"step"`
	Completed       Step            `json:"completed"`
	Sources         *Allocator      `json:"sources"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewDraft opens an empty draft on the first step.
func NewDraft(clientID uuid.UUID, now time.Time) *Draft {
	return &Draft{
		ID:              uuid.New(),
		ClientID:        clientID,
		NegotiatedValue: decimal.Zero,
		Discount:        decimal.Zero,
		Step:            StepBasics,
		Sources:         NewAllocator(decimal.Zero),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ValueToFinance is the negotiated value minus the discount, floored at zero.
func (d *Draft) ValueToFinance() decimal.Decimal {
	v := d.NegotiatedValue.Sub(d.Discount)
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// SelectUnit picks a unit and fills the negotiated value from its total value.
func (d *Draft) SelectUnit(projectID, unitID uuid.UUID, label string, totalValue decimal.Decimal) {
	d.ProjectID = &projectID
	d.UnitID = &unitID
	d.UnitLabel = label
	d.SetNegotiatedValue(totalValue)
}

func (d *Draft) SetNegotiatedValue(v decimal.Decimal) {
	d.NegotiatedValue = v
	d.retarget()
}

func (d *Draft) SetDiscount(v decimal.Decimal) {
	d.Discount = v
	d.retarget()
}

func (d *Draft) retarget() {
	d.Sources.SetTarget(d.ValueToFinance())
	d.settle()
}

// BasicsErrors lists what keeps the basic information step from being complete.
func (d *Draft) BasicsErrors() []string {
	var errs []string
	if d.ProjectID == nil {
		errs = append(errs, "Debe seleccionar un proyecto")
	}
	if d.UnitID == nil {
		errs = append(errs, "Debe seleccionar una vivienda")
	}
	if !d.NegotiatedValue.IsPositive() {
		errs = append(errs, "El valor de la vivienda debe ser mayor a 0")
	}
	if d.Discount.IsNegative() {
		errs = append(errs, "El descuento no puede ser negativo")
	}
	if d.Discount.GreaterThanOrEqual(d.NegotiatedValue) {
		errs = append(errs, "El descuento no puede ser mayor o igual al valor de la vivienda")
	}
	if !d.ValueToFinance().IsPositive() {
		errs = append(errs, "El valor total debe ser mayor a 0")
	}
	return errs
}

func (d *Draft) BasicsValid() bool {
	return len(d.BasicsErrors()) == 0
}

// SourcesValid requires balanced sources with at least one positive amount
// and no field errors on any enabled source.
func (d *Draft) SourcesValid() bool {
	if !d.Sources.IsBalanced() {
		return false
	}
	positive := false
	for _, a := range d.Sources.Allocations() {
		if a.Amount.IsPositive() {
			positive = true
		}
	}
	return positive && len(d.Sources.Errors()) == 0
}

// Progress is the share of the four basic fields filled: project, unit,
// a positive negotiated value and a valid discount.
func (d *Draft) Progress() int {
	done := 0
	if d.ProjectID != nil {
		done++
	}
	if d.UnitID != nil {
		done++
	}
	if d.NegotiatedValue.IsPositive() {
		done++
	}
	if !d.Discount.IsNegative() && d.Discount.LessThan(d.NegotiatedValue) {
		done++
	}
	return done * 100 / 4
}
