package negotiations

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitar-ventas/habitar/internal/sales/clients"
	"github.com/habitar-ventas/habitar/internal/sales/housing"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
	"github.com/habitar-ventas/habitar/internal/shared"
)

// memDB backs every repository port with maps. Transactions are not isolated.
type memDB struct {
	negotiations map[uuid.UUID]*Negotiation
	withdrawals  []Withdrawal
	sources      map[uuid.UUID]*paymentsources.Source
	steps        map[uuid.UUID][]paymentsources.ProcessStep
	units        map[uuid.UUID]*housing.Unit
	clients      map[uuid.UUID]*clients.Client
	audits       []shared.AuditLog
	txErr        error
}

func newMemDB() *memDB {
	return &memDB{
		negotiations: map[uuid.UUID]*Negotiation{},
		sources:      map[uuid.UUID]*paymentsources.Source{},
		steps:        map[uuid.UUID][]paymentsources.ProcessStep{},
		units:        map[uuid.UUID]*housing.Unit{},
		clients:      map[uuid.UUID]*clients.Client{},
	}
}

func (m *memDB) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txErr != nil {
		return m.txErr
	}
	return fn(ctx, m)
}

func (m *memDB) Get(_ context.Context, id uuid.UUID) (*Negotiation, error) {
	n, ok := m.negotiations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *memDB) GetForUpdate(ctx context.Context, id uuid.UUID) (*Negotiation, error) {
	return m.Get(ctx, id)
}

func (m *memDB) ListByClient(_ context.Context, clientID uuid.UUID) ([]Negotiation, error) {
	var out []Negotiation
	for _, n := range m.negotiations {
		if n.ClientID == clientID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memDB) Stats(context.Context) (Stats, error) {
	st := Stats{ActiveValue: decimal.Zero, CompletedValue: decimal.Zero}
	for _, n := range m.negotiations {
		st.Total++
		switch n.State {
		case StateActive:
			st.Active++
			st.ActiveValue = st.ActiveValue.Add(n.TotalValue)
		case StateSuspended:
			st.Suspended++
		case StateWithdrawn:
			st.Withdrawn++
		case StateCompleted:
			st.Completed++
			st.CompletedValue = st.CompletedValue.Add(n.TotalValue)
		}
	}
	return st, nil
}

func (m *memDB) ListCompletable(context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, n := range m.negotiations {
		if n.State == StateActive && n.TotalSources.IsPositive() && n.PendingBalance.IsZero() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (m *memDB) ExistsActive(_ context.Context, clientID, unitID uuid.UUID) (bool, error) {
	for _, n := range m.negotiations {
		if n.ClientID == clientID && n.UnitID == unitID && n.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memDB) Insert(_ context.Context, n Negotiation) error {
	cp := n
	m.negotiations[n.ID] = &cp
	return nil
}

func (m *memDB) UpdateState(_ context.Context, n Negotiation) error {
	if _, ok := m.negotiations[n.ID]; !ok {
		return ErrNotFound
	}
	cp := n
	m.negotiations[n.ID] = &cp
	return nil
}

func (m *memDB) InsertWithdrawal(_ context.Context, w Withdrawal) error {
	m.withdrawals = append(m.withdrawals, w)
	return nil
}

func (m *memDB) RecordAudit(_ context.Context, log shared.AuditLog) error {
	m.audits = append(m.audits, log)
	return nil
}

func (m *memDB) Sources() paymentsources.Repository { return memSources{m} }
func (m *memDB) Units() housing.Repository { return memUnits{m} }
func (m *memDB) Clients() clients.Repository { return memClients{m} }

type memSources struct{ m *memDB }

func (s memSources) WithTx(ctx context.Context, fn func(context.Context, paymentsources.Repository) error) error {
	return fn(ctx, s)
}

func (s memSources) Get(_ context.Context, id uuid.UUID) (*paymentsources.Source, error) {
	src, ok := s.m.sources[id]
	if !ok {
		return nil, paymentsources.ErrNotFound
	}
	cp := *src
	return &cp, nil
}

func (s memSources) GetForUpdate(ctx context.Context, id uuid.UUID) (*paymentsources.Source, error) {
	return s.Get(ctx, id)
}

func (s memSources) ListByNegotiation(_ context.Context, negotiationID uuid.UUID) ([]paymentsources.Source, error) {
	var out []paymentsources.Source
	for _, k := range paymentsources.Kinds {
		for _, src := range s.m.sources {
			if src.NegotiationID == negotiationID && src.Kind == k {
				out = append(out, *src)
			}
		}
	}
	return out, nil
}

func (s memSources) Insert(_ context.Context, src paymentsources.Source) error {
	cp := src
	s.m.sources[src.ID] = &cp
	return nil
}

func (s memSources) Update(_ context.Context, src paymentsources.Source) error {
	cp := src
	s.m.sources[src.ID] = &cp
	return nil
}

func (s memSources) Delete(_ context.Context, id uuid.UUID) error {
	delete(s.m.sources, id)
	return nil
}

func (s memSources) LockNegotiation(_ context.Context, id uuid.UUID) (*paymentsources.NegotiationRef, error) {
	n, ok := s.m.negotiations[id]
	if !ok {
		return nil, paymentsources.ErrNegotiationNotFound
	}
	return &paymentsources.NegotiationRef{ID: n.ID, State: string(n.State), TotalValue: n.TotalValue}, nil
}

func (s memSources) SyncNegotiationTotals(ctx context.Context, id uuid.UUID) error {
	n, ok := s.m.negotiations[id]
	if !ok {
		return nil
	}
	list, _ := s.ListByNegotiation(ctx, id)
	n.ApplyTotals(paymentsources.Summarize(list))
	return nil
}

func (s memSources) ProcessSteps(_ context.Context, id uuid.UUID) ([]paymentsources.ProcessStep, error) {
	return s.m.steps[id], nil
}

func (s memSources) GetProcessStepForUpdate(_ context.Context, id uuid.UUID) (*paymentsources.ProcessStep, error) {
	for _, steps := range s.m.steps {
		for _, st := range steps {
			if st.ID == id {
				cp := st
				return &cp, nil
			}
		}
	}
	return nil, paymentsources.ErrStepNotFound
}

func (s memSources) InsertProcessStep(_ context.Context, st paymentsources.ProcessStep) error {
	s.m.steps[st.NegotiationID] = append(s.m.steps[st.NegotiationID], st)
	return nil
}

func (s memSources) UpdateProcessStep(_ context.Context, st paymentsources.ProcessStep) error {
	steps := s.m.steps[st.NegotiationID]
	for i := range steps {
		if steps[i].ID == st.ID {
			steps[i] = st
			return nil
		}
	}
	return paymentsources.ErrStepNotFound
}

func (s memSources) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return s.m.RecordAudit(ctx, log)
}

type memUnits struct{ m *memDB }

func (u memUnits) ListProjects(context.Context) ([]housing.Project, error) { return nil, nil }

func (u memUnits) GetProject(context.Context, uuid.UUID) (*housing.Project, error) {
	return nil, housing.ErrProjectNotFound
}

func (u memUnits) ListUnits(context.Context, uuid.UUID, bool) ([]housing.Unit, error) { return nil, nil }

func (u memUnits) GetUnit(_ context.Context, id uuid.UUID) (*housing.Unit, error) {
	unit, ok := u.m.units[id]
	if !ok {
		return nil, housing.ErrUnitNotFound
	}
	cp := *unit
	return &cp, nil
}

func (u memUnits) GetUnitForUpdate(ctx context.Context, id uuid.UUID) (*housing.Unit, error) {
	return u.GetUnit(ctx, id)
}

func (u memUnits) Assign(_ context.Context, unitID, clientID, negotiationID uuid.UUID, at time.Time) error {
	unit, ok := u.m.units[unitID]
	if !ok || unit.State != housing.UnitAvailable {
		return housing.ErrUnitUnavailable
	}
	unit.State = housing.UnitAssigned
	unit.ClientID, unit.NegotiationID, unit.AssignedAt = &clientID, &negotiationID, &at
	return nil
}

func (u memUnits) Release(_ context.Context, unitID uuid.UUID) error {
	if unit, ok := u.m.units[unitID]; ok {
		unit.State = housing.UnitAvailable
		unit.ClientID, unit.NegotiationID, unit.AssignedAt = nil, nil, nil
	}
	return nil
}

type memClients struct{ m *memDB }

func (c memClients) Get(_ context.Context, id uuid.UUID) (*clients.Client, error) {
	cl, ok := c.m.clients[id]
	if !ok {
		return nil, clients.ErrNotFound
	}
	cp := *cl
	return &cp, nil
}

func (c memClients) GetByDocument(context.Context, string) (*clients.Client, error) {
	return nil, clients.ErrNotFound
}

func (c memClients) List(context.Context, clients.ListClientsRequest) ([]clients.Client, int, error) {
	return nil, 0, nil
}

func (c memClients) Create(_ context.Context, cl clients.Client) error {
	c.m.clients[cl.ID] = &cl
	return nil
}

func (c memClients) SetState(_ context.Context, id uuid.UUID, state string) error {
	cl, ok := c.m.clients[id]
	if !ok {
		return clients.ErrNotFound
	}
	cl.State = state
	return nil
}
