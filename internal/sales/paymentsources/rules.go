package paymentsources

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
	"github.com/habitar-ventas/habitar/internal/shared"
)

var (
	ErrSourceLocked     = fmt.Errorf("fuente de pago bloqueada: %w", httpx.ErrConflict)
	ErrExceedsApproved  = fmt.Errorf("%w: El monto recibido excede el monto aprobado", httpx.ErrValidation)
	ErrSingleReceipt    = fmt.Errorf("%w: Esta fuente de pago no permite múltiples abonos", httpx.ErrConflict)
	ErrHasReceivedMoney = fmt.Errorf("%w: No se puede eliminar una fuente de pago que ya ha recibido dinero", httpx.ErrConflict)
)

// EditMode describes how far a persisted source may still be changed.
type EditMode string

const (
	EditFree    EditMode = "libre"
	EditLimited EditMode = "limitado"
	EditLocked  EditMode = "bloqueado"
)

// EditCheck is the outcome of CheckEdit.
type EditCheck struct {
	Editable bool     `json:"editable"`
	Mode     EditMode `json:"mode"`
	Reason   string   `json:"reason,omitempty"`
}

// CheckEdit reports the edit mode of a source. Any source that already
// received money may not drop below that amount; single-disbursement kinds
// lock once fully disbursed.
func CheckEdit(s Source) EditCheck {
	if s.Kind != KindDownPayment && s.IsDisbursed() {
		return EditCheck{
			Editable: false,
			Mode:     EditLocked,
			Reason:   fmt.Sprintf("%s ya fue desembolsado por %s. No se puede modificar.", s.Kind, shared.FormatCOP(s.ApprovedAmount)),
		}
	}
	if s.ReceivedAmount.IsZero() {
		return EditCheck{Editable: true, Mode: EditFree}
	}
	return EditCheck{
		Editable: true,
		Mode:     EditLimited,
		Reason: fmt.Sprintf("Ya se han recibido %s. El nuevo monto debe ser mayor o igual a esta cantidad.",
			shared.FormatCOP(s.ReceivedAmount)),
	}
}

// ValidateEdit returns the messages that block changing the approved amount to newAmount.
func ValidateEdit(s Source, newAmount decimal.Decimal) []string {
	check := CheckEdit(s)
	switch check.Mode {
	case EditLocked:
		if !newAmount.Equal(s.ApprovedAmount) {
			return []string{check.Reason}
		}
		return nil
	case EditLimited:
		return validateReceivedFloor(s, newAmount)
	}
	if s.Kind == KindDownPayment && !newAmount.IsPositive() {
		return []string{"El monto de la Cuota Inicial debe ser mayor a $0"}
	}
	if newAmount.IsNegative() {
		return []string{"El monto no puede ser negativo"}
	}
	return nil
}

func validateReceivedFloor(s Source, newAmount decimal.Decimal) []string {
	var msgs []string
	if !newAmount.IsPositive() {
		if s.Kind == KindDownPayment {
			msgs = append(msgs, "El monto de la Cuota Inicial debe ser mayor a $0")
		} else {
			msgs = append(msgs, fmt.Sprintf("El monto de %s debe ser mayor a $0", s.Kind))
		}
	}
	if newAmount.LessThan(s.ReceivedAmount) {
		msgs = append(msgs, fmt.Sprintf("El nuevo monto (%s) no puede ser menor al monto ya recibido (%s)",
			shared.FormatCOP(newAmount), shared.FormatCOP(s.ReceivedAmount)))
	}
	return msgs
}

// SumCheck is the result of reconciling sources against the value to finance.
type SumCheck struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

// Err returns the blocking errors as a validation error, or nil.
func (c SumCheck) Err() error {
	if c.Valid {
		return nil
	}
	return httpx.MessageErrors(c.Errors...)
}

// SumPolicy tunes the non-blocking down-payment warning.
type SumPolicy struct {
	WarnBelowPercent decimal.Decimal
}

// DefaultSumPolicy warns when the down payment is under 5% of the total.
var DefaultSumPolicy = SumPolicy{WarnBelowPercent: decimal.NewFromInt(5)}

// Check requires the allocations to sum exactly to total and to include a down payment.
func (p SumPolicy) Check(allocs []Allocation, total decimal.Decimal) SumCheck {
	res := SumCheck{Errors: []string{}}

	sum := decimal.Zero
	var downPayment *Allocation
	for i := range allocs {
		sum = sum.Add(allocs[i].Amount)
		if allocs[i].Kind == KindDownPayment && downPayment == nil {
			downPayment = &allocs[i]
		}
	}

	if !sum.Equal(total) {
		diff := total.Sub(sum).Abs()
		if sum.LessThan(total) {
			res.Errors = append(res.Errors, fmt.Sprintf("Falta cubrir %s para completar el financiamiento", shared.FormatCOP(diff)))
		} else {
			res.Errors = append(res.Errors, fmt.Sprintf("Hay un excedente de %s en las fuentes de pago", shared.FormatCOP(diff)))
		}
	}

	if downPayment == nil {
		res.Errors = append(res.Errors, "Debe existir al menos una Cuota Inicial")
	} else if total.IsPositive() {
		pct := downPayment.Amount.Div(total).Mul(decimal.NewFromInt(100))
		if pct.LessThan(p.WarnBelowPercent) {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"La Cuota Inicial es muy baja (%s%% del total). Se recomienda al menos 10%%.", pct.StringFixed(1)))
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// ValidateConfiguration checks a proposed set of allocations against the
// persisted sources: locked sources may not change amount, a source that
// received money may not drop below it, and the sum must close.
func (p SumPolicy) ValidateConfiguration(current []Source, proposed []Allocation, total decimal.Decimal) SumCheck {
	var blocking []string
	for _, src := range current {
		next, ok := findAllocation(proposed, src.Kind)
		if !ok {
			continue
		}
		check := CheckEdit(src)
		switch {
		case !check.Editable && !next.Amount.Equal(src.ApprovedAmount):
			blocking = append(blocking, check.Reason)
		case check.Mode == EditLimited:
			blocking = append(blocking, validateReceivedFloor(src, next.Amount)...)
		}
	}

	sum := p.Check(proposed, total)
	sum.Errors = append(blocking, sum.Errors...)
	sum.Valid = len(sum.Errors) == 0
	return sum
}

func findAllocation(allocs []Allocation, kind Kind) (Allocation, bool) {
	for _, a := range allocs {
		if a.Kind == kind {
			return a, true
		}
	}
	return Allocation{}, false
}

// RegisterReceipt adds amount to the source's received total and advances its state.
func RegisterReceipt(s *Source, amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return httpx.MessageErrors("El monto debe ser mayor a cero")
	}
	if !s.AllowsMultiple && s.ReceivedAmount.IsPositive() {
		return ErrSingleReceipt
	}
	received := s.ReceivedAmount.Add(amount)
	if received.GreaterThan(s.ApprovedAmount) {
		return ErrExceedsApproved
	}
	s.ReceivedAmount = received
	s.refreshState(now)
	return nil
}

// ReverseReceipt subtracts an annulled receipt from the source.
func ReverseReceipt(s *Source, amount decimal.Decimal, now time.Time) {
	s.ReceivedAmount = s.ReceivedAmount.Sub(amount)
	if s.ReceivedAmount.IsNegative() {
		s.ReceivedAmount = decimal.Zero
	}
	s.refreshState(now)
}

func (s *Source) refreshState(now time.Time) {
	switch {
	case s.ReceivedAmount.IsZero():
		s.State = StatePending
		s.CompletedAt = nil
	case s.ReceivedAmount.Equal(s.ApprovedAmount):
		s.State = StateCompleted
		if s.CompletedAt == nil {
			t := now
			s.CompletedAt = &t
		}
	default:
		s.State = StateInProgress
		s.CompletedAt = nil
	}
	s.UpdatedAt = now
}

// CanDelete fails when the source already received money.
func CanDelete(s Source) error {
	if s.ReceivedAmount.IsPositive() {
		return ErrHasReceivedMoney
	}
	return nil
}

// Summarize totals a negotiation's sources.
func Summarize(sources []Source) Totals {
	t := Totals{Approved: decimal.Zero, Received: decimal.Zero}
	for _, s := range sources {
		t.Approved = t.Approved.Add(s.ApprovedAmount)
		t.Received = t.Received.Add(s.ReceivedAmount)
	}
	t.Balance = t.Approved.Sub(t.Received)
	t.Percent = shared.Percent(t.Received, t.Approved)
	return t
}

// DocumentCheck lists the documents a source still lacks.
type DocumentCheck struct {
	Complete bool     `json:"complete"`
	Missing  []string `json:"missing"`
}

// RequiredDocuments reports whether the kinds that need an approval letter have one.
func RequiredDocuments(s Source) DocumentCheck {
	res := DocumentCheck{Complete: true, Missing: []string{}}
	switch s.Kind {
	case KindMortgage:
		if s.ApprovalLetterURL == nil || *s.ApprovalLetterURL == "" {
			res.Missing = append(res.Missing, "Carta de aprobación del crédito")
		}
	case KindSubsidyCaja:
		if s.ApprovalLetterURL == nil || *s.ApprovalLetterURL == "" {
			res.Missing = append(res.Missing, "Carta de asignación de la caja de compensación")
		}
	}
	res.Complete = len(res.Missing) == 0
	return res
}

var disbursementSteps = map[Kind]string{
	KindMortgage:        "Solicitud desembolso de Crédito hipotecario",
	KindSubsidyCaja:     "Solicitud desembolso de subsidio de caja de compensación familiar",
	KindSubsidyMiCasaYa: "Solicitud desembolso de subsidio de vivienda Mi Casa Ya",
}

// DisbursementStep names the process step that gates a disbursement, or "" for none.
func DisbursementStep(kind Kind) string {
	return disbursementSteps[kind]
}

// ValidateDisbursement requires the gating process step of kind to be completed.
// A down payment is never gated.
func ValidateDisbursement(kind Kind, steps []ProcessStep) error {
	name := DisbursementStep(kind)
	if name == "" {
		return nil
	}
	for _, st := range steps {
		if st.Name != name {
			continue
		}
		if st.State != StepCompleted {
			return httpx.MessageErrors(fmt.Sprintf(
				"Debe completar el paso \"%s\" antes de registrar el desembolso de %s.", name, kind))
		}
		return nil
	}
	return httpx.MessageErrors(fmt.Sprintf("El paso \"%s\" no existe en el proceso de esta negociación.", name))
}

// ValidateAllocation checks one allocation's fields against the value to
// finance. The result is keyed by JSON field name and empty when valid.
func ValidateAllocation(a Allocation, target decimal.Decimal) map[string]string {
	errs := map[string]string{}
	switch {
	case !a.Amount.IsPositive():
		errs["amount"] = "El monto debe ser mayor a 0"
	case a.Amount.GreaterThan(target):
		errs["amount"] = "El monto no puede superar el valor total"
	}
	if !a.Kind.RequiresEntity() {
		return errs
	}
	if blank(a.Entity) {
		switch a.Kind {
		case KindMortgage:
			errs["entity"] = "Debes seleccionar un banco"
		case KindSubsidyCaja:
			errs["entity"] = "Debes seleccionar una caja de compensación"
		default:
			errs["entity"] = "Debes indicar la entidad"
		}
	}
	if blank(a.Reference) {
		errs["reference"] = "Debe especificar el número de referencia o radicado"
	}
	return errs
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
