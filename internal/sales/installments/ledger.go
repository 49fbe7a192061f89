package installments

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitar-ventas/habitar/internal/shared"
)

// Ledger state filters.
const (
	StateActive   = "activos"
	StateAll      = "todos"
	StateAnnulled = "anulados"
)

// Filter narrows the ledger. Zero values mean "no filter" except State,
// which defaults to StateActive.
type Filter struct {
	Query     string     `json:"q,omitempty"`
	State     string     `json:"estado,omitempty"`
	UnitID    *uuid.UUID `json:"vivienda,omitempty"`
	ProjectID *uuid.UUID `json:"proyecto,omitempty"`
}

func (f Filter) state() string {
	switch f.State {
	case StateAll, StateAnnulled:
		return f.State
	default:
		return StateActive
	}
}

// Matches reports whether row passes every criterion of the filter.
func (f Filter) Matches(row LedgerRow) bool {
	if term := shared.NormalizeSearch(f.Query); term != "" && !matchesTerm(row, term) {
		return false
	}
	switch f.state() {
	case StateActive:
		if row.NegotiationState != "Activa" || row.Annulled() {
			return false
		}
	case StateAnnulled:
		if !row.Annulled() {
			return false
		}
	}
	if f.UnitID != nil && row.UnitID != *f.UnitID {
		return false
	}
	if f.ProjectID != nil && row.ProjectID != *f.ProjectID {
		return false
	}
	return true
}

func matchesTerm(row LedgerRow, term string) bool {
	fields := []string{row.ClientName(), row.ClientDocument, row.ProjectName, row.UnitLabel()}
	if row.Reference != nil {
		fields = append(fields, *row.Reference)
	}
	for _, f := range fields {
		if strings.Contains(shared.NormalizeSearch(f), term) {
			return true
		}
	}
	return false
}

// Apply returns the rows that match f, keeping their order.
func Apply(rows []LedgerRow, f Filter) []LedgerRow {
	out := make([]LedgerRow, 0, len(rows))
	for _, r := range rows {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// Stats aggregates a set of ledger rows.
type Stats struct {
	Count      int             `json:"total_abonos"`
	Total      decimal.Decimal `json:"monto_total"`
	MonthCount int             `json:"abonos_este_mes"`
	MonthTotal decimal.Decimal `json:"monto_este_mes"`
}

// MonthStart is the first instant of now's calendar month in now's location.
func MonthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// ComputeStats counts and sums rows. A row belongs to the current month when
// its payment date is on or after the first day of now's month.
func ComputeStats(rows []LedgerRow, now time.Time) Stats {
	start := MonthStart(now)
	st := Stats{Total: decimal.Zero, MonthTotal: decimal.Zero}
	for _, r := range rows {
		st.Count++
		st.Total = st.Total.Add(r.Amount)
		if !paidDay(r.PaidOn, now.Location()).Before(start) {
			st.MonthCount++
			st.MonthTotal = st.MonthTotal.Add(r.Amount)
		}
	}
	return st
}

// paidDay reads a DATE column value as that calendar day in loc.
func paidDay(d time.Time, loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

// MethodStats is the amount and count for one payment method.
type MethodStats struct {
	Method Method          `json:"method"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Breakdown extends Stats with the average and the per-method split.
type Breakdown struct {
	Stats
	Average  decimal.Decimal `json:"promedio"`
	ByMethod []MethodStats   `json:"por_metodo"`
}

func ComputeBreakdown(rows []LedgerRow, now time.Time) Breakdown {
	b := Breakdown{Stats: ComputeStats(rows, now), Average: decimal.Zero}
	if b.Count > 0 {
		b.Average = b.Total.Div(decimal.NewFromInt(int64(b.Count))).Round(2)
	}
	idx := map[Method]int{}
	for _, r := range rows {
		i, ok := idx[r.Method]
		if !ok {
			i = len(b.ByMethod)
			idx[r.Method] = i
			b.ByMethod = append(b.ByMethod, MethodStats{Method: r.Method, Amount: decimal.Zero})
		}
		b.ByMethod[i].Count++
		b.ByMethod[i].Amount = b.ByMethod[i].Amount.Add(r.Amount)
	}
	sort.SliceStable(b.ByMethod, func(i, j int) bool {
		return b.ByMethod[i].Amount.GreaterThan(b.ByMethod[j].Amount)
	})
	if b.ByMethod == nil {
		b.ByMethod = []MethodStats{}
	}
	return b
}

// ProjectRef is a distinct project present in the ledger.
type ProjectRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// DistinctProjects lists each project once, in order of first appearance.
func DistinctProjects(rows []LedgerRow) []ProjectRef {
	seen := map[uuid.UUID]bool{}
	out := []ProjectRef{}
	for _, r := range rows {
		if seen[r.ProjectID] {
			continue
		}
		seen[r.ProjectID] = true
		out = append(out, ProjectRef{ID: r.ProjectID, Name: r.ProjectName})
	}
	return out
}

// Ledger is the filtered view returned to clients. Projects are taken from
// every row so the project filter keeps its options while filtering.
type Ledger struct {
	Rows     []LedgerRow  `json:"abonos"`
	Stats    Stats        `json:"estadisticas"`
	Projects []ProjectRef `json:"proyectos"`
	Filter   Filter       `json:"filtros"`
}

func BuildLedger(all []LedgerRow, f Filter, now time.Time) Ledger {
	rows := Apply(all, f)
	f.State = f.state()
	return Ledger{
		Rows:     rows,
		Stats:    ComputeStats(rows, now),
		Projects: DistinctProjects(all),
		Filter:   f,
	}
}
