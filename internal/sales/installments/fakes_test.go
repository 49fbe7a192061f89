package installments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
	"github.com/habitar-ventas/habitar/internal/shared"
)

type memNegotiation struct {
	id     uuid.UUID
	state  string
	totals paymentsources.Totals
}

// memRepo backs the installment and payment source ports with maps.
// A failing transaction restores the snapshot taken when it began.
type memRepo struct {
	installments map[uuid.UUID]*Installment
	keys         map[string]bool
	sources      map[uuid.UUID]*paymentsources.Source
	steps        map[uuid.UUID][]paymentsources.ProcessStep
	negotiations map[uuid.UUID]*memNegotiation
	audits       []shared.AuditLog
	ledgerLoads  int
}

func newMemRepo() *memRepo {
	return &memRepo{
		installments: map[uuid.UUID]*Installment{},
		keys:         map[string]bool{},
		sources:      map[uuid.UUID]*paymentsources.Source{},
		steps:        map[uuid.UUID][]paymentsources.ProcessStep{},
		negotiations: map[uuid.UUID]*memNegotiation{},
	}
}

func (m *memRepo) snapshot() func() {
	inst := map[uuid.UUID]Installment{}
	for id, i := range m.installments {
		inst[id] = *i
	}
	srcs := map[uuid.UUID]paymentsources.Source{}
	for id, s := range m.sources {
		srcs[id] = *s
	}
	keys := map[string]bool{}
	for k := range m.keys {
		keys[k] = true
	}
	audits := len(m.audits)
	return func() {
		m.installments = map[uuid.UUID]*Installment{}
		for id, i := range inst {
			m.installments[id] = &i
		}
		for id, s := range srcs {
			*m.sources[id] = s
		}
		m.keys = keys
		m.audits = m.audits[:audits]
	}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	restore := m.snapshot()
	if err := fn(ctx, m); err != nil {
		restore()
		return err
	}
	return nil
}

func (m *memRepo) LedgerRows(context.Context) ([]LedgerRow, error) {
	m.ledgerLoads++
	out := []LedgerRow{}
	for _, i := range m.installments {
		neg := m.negotiations[i.NegotiationID]
		out = append(out, LedgerRow{
			Installment:      *i,
			ClientNames:      "Laura",
			ClientSurnames:   "Gómez",
			ProjectName:      "Los Almendros",
			NegotiationState: neg.state,
			SourceKind:       string(m.sources[i.SourceID].Kind),
		})
	}
	return out, nil
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (*Installment, error) {
	i, ok := m.installments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *memRepo) GetByIdempotencyKey(_ context.Context, key string) (*Installment, error) {
	for _, i := range m.installments {
		if i.IdempotencyKey != nil && *i.IdempotencyKey == key {
			cp := *i
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) ClaimKey(_ context.Context, key string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Installment, error) {
	return m.Get(ctx, id)
}

func (m *memRepo) Insert(_ context.Context, i Installment) error {
	m.installments[i.ID] = &i
	return nil
}

func (m *memRepo) MarkAnnulled(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	i, ok := m.installments[id]
	if !ok || i.Annulled() {
		return ErrAlreadyAnnulled
	}
	i.AnnulledAt, i.AnnulReason = &at, &reason
	return nil
}

func (m *memRepo) ReleaseKey(_ context.Context, id uuid.UUID, key string) error {
	if i, ok := m.installments[id]; ok {
		i.IdempotencyKey = nil
	}
	delete(m.keys, key)
	return nil
}

func (m *memRepo) Sources() paymentsources.Repository { return memSources{m} }

func (m *memRepo) RecordAudit(_ context.Context, log shared.AuditLog) error {
	m.audits = append(m.audits, log)
	return nil
}

type memSources struct{ m *memRepo }

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

func (s memSources) ListByNegotiation(_ context.Context, id uuid.UUID) ([]paymentsources.Source, error) {
	var out []paymentsources.Source
	for _, src := range s.m.sources {
		if src.NegotiationID == id {
			out = append(out, *src)
		}
	}
	return out, nil
}

func (s memSources) Insert(_ context.Context, src paymentsources.Source) error {
	s.m.sources[src.ID] = &src
	return nil
}

func (s memSources) Update(_ context.Context, src paymentsources.Source) error {
	*s.m.sources[src.ID] = src
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
	return &paymentsources.NegotiationRef{ID: n.id, State: n.state, TotalValue: decimal.Zero}, nil
}

func (s memSources) SyncNegotiationTotals(ctx context.Context, id uuid.UUID) error {
	list, _ := s.ListByNegotiation(ctx, id)
	s.m.negotiations[id].totals = paymentsources.Summarize(list)
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
