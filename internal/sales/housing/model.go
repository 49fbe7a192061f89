package housing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
)

// UnitState is the availability of a housing unit.
type UnitState string

const (
	UnitAvailable UnitState = "Disponible"
	UnitAssigned  UnitState = "Asignada"
	UnitDelivered UnitState = "Entregada"
)

var (
	ErrProjectNotFound = fmt.Errorf("proyecto no encontrado: %w", httpx.ErrNotFound)
	ErrUnitNotFound    = fmt.Errorf("vivienda no encontrada: %w", httpx.ErrNotFound)
	ErrUnitUnavailable = fmt.Errorf("%w: la vivienda no está disponible", httpx.ErrConflict)
)

type Project struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Location       *string   `json:"location,omitempty"`
	State          string    `json:"state"`
	AvailableUnits int       `json:"available_units"`
	CreatedAt      time.Time `json:"created_at"`
}

// Unit is a vivienda inside a manzana of a project.
type Unit struct {
	ID              uuid.UUID       `json:"id"`
	BlockID         uuid.UUID       `json:"block_id"`
	Block           string          `json:"block"`
	ProjectID       uuid.UUID       `json:"project_id"`
	ProjectName     string          `json:"project_name"`
	Number          string          `json:"number"`
	BaseValue       decimal.Decimal `json:"base_value"`
	NotarialCosts   decimal.Decimal `json:"notarial_costs"`
	CornerSurcharge decimal.Decimal `json:"corner_surcharge"`
	IsCorner        bool            `json:"is_corner"`
	State           UnitState       `json:"state"`
	ClientID        *uuid.UUID      `json:"client_id,omitempty"`
	NegotiationID   *uuid.UUID      `json:"negotiation_id,omitempty"`
	AssignedAt      *time.Time      `json:"assigned_at,omitempty"`
}

// TotalValue is base value plus notarial costs plus the corner surcharge.
func (u Unit) TotalValue() decimal.Decimal {
	return u.BaseValue.Add(u.NotarialCosts).Add(u.CornerSurcharge)
}

// Label renders the unit the way sales staff refer to it.
func (u Unit) Label() string {
	return fmt.Sprintf("Manzana %s Casa %s", u.Block, u.Number)
}

// IsAvailable reports whether the unit can be offered in a new negotiation.
func (u Unit) IsAvailable() bool {
	return u.State == UnitAvailable && u.NegotiationID == nil
}

// UnitView adds derived fields for API responses.
type UnitView struct {
	Unit
	TotalValue decimal.Decimal `json:"total_value"`
	Label      string          `json:"label"`
}

func NewUnitView(u Unit) UnitView {
	return UnitView{Unit: u, TotalValue: u.TotalValue(), Label: u.Label()}
}
