package negotiations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitar-ventas/habitar/internal/platform/httpx"
	"github.com/habitar-ventas/habitar/internal/sales/clients"
	"github.com/habitar-ventas/habitar/internal/sales/housing"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
)

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(context.Context) error {
	c.bumps++
	return nil
}

type fixture struct {
	db      *memDB
	store   *DraftStore
	svc     *Service
	inv     *countingInvalidator
	client  *clients.Client
	unit    *housing.Unit
	project uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newMemDB()
	store, _ := newTestStore(t)
	inv := &countingInvalidator{}

	client := &clients.Client{ID: uuid.New(), Names: "Laura", Surnames: "Gómez", DocumentNumber: "1020304050", State: clients.StateInterested}
	project := uuid.New()
	unit := &housing.Unit{
		ID:            uuid.New(),
		ProjectID:     project,
		Block:         "A",
		Number:        "12",
		BaseValue:     millions(95),
		NotarialCosts: millions(5),
		State:         housing.UnitAvailable,
	}
	db.clients[client.ID] = client
	db.units[unit.ID] = unit

	svc := NewService(db, store, Options{Invalidator: inv, Clock: func() time.Time { return fixedNow }})
	return &fixture{db: db, store: store, svc: svc, inv: inv, client: client, unit: unit, project: project}
}

// draft fills the basics and sources of a wizard with a 90M value to finance.
func (f *fixture) draft(t *testing.T, down, mortgage int64) *Draft {
	t.Helper()
	ctx := context.Background()
	d, err := f.svc.OpenDraft(ctx, f.client.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateBasics(ctx, d.ID, BasicsRequest{UnitID: f.unit.ID, Discount: ptr(millions(10))})
	require.NoError(t, err)

	_, err = f.svc.ToggleSource(ctx, d.ID, paymentsources.KindDownPayment, true)
	require.NoError(t, err)
	_, err = f.svc.ToggleSource(ctx, d.ID, paymentsources.KindMortgage, true)
	require.NoError(t, err)
	_, err = f.svc.PatchSource(ctx, d.ID, paymentsources.KindDownPayment, SourcePatch{Amount: ptr(millions(down))})
	require.NoError(t, err)
	d, err = f.svc.PatchSource(ctx, d.ID, paymentsources.KindMortgage, SourcePatch{
		Amount:    ptr(millions(mortgage)),
		Entity:    ptr("Bancolombia"),
		Reference: ptr("REF123"),
	})
	require.NoError(t, err)
	return d
}

// reviewed walks a funded draft to the review step.
func (f *fixture) reviewed(t *testing.T, down, mortgage int64) *Draft {
	t.Helper()
	ctx := context.Background()
	d := f.draft(t, down, mortgage)
	_, err := f.svc.Next(ctx, d.ID)
	require.NoError(t, err)
	d, err = f.svc.Next(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, StepReview, d.Step)
	return d
}

func TestOpenDraftRequiresClient(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.OpenDraft(context.Background(), uuid.New())
	assert.ErrorIs(t, err, clients.ErrNotFound)
}

func TestUpdateBasicsUsesUnitTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.svc.OpenDraft(ctx, f.client.ID)
	require.NoError(t, err)

	d, err = f.svc.UpdateBasics(ctx, d.ID, BasicsRequest{UnitID: f.unit.ID, Discount: ptr(millions(10))})
	require.NoError(t, err)
	assert.True(t, millions(100).Equal(d.NegotiatedValue))
	assert.True(t, millions(90).Equal(d.ValueToFinance()))
	assert.Equal(t, "Manzana A Casa 12", d.UnitLabel)
	assert.Equal(t, f.project, *d.ProjectID)
}

func TestUpdateBasicsRejectsAssignedUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.unit.State = housing.UnitAssigned

	d, err := f.svc.OpenDraft(ctx, f.client.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateBasics(ctx, d.ID, BasicsRequest{UnitID: f.unit.ID})
	assert.ErrorIs(t, err, housing.ErrUnitUnavailable)
}

func TestWizardStepsThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.draft(t, 40, 50)

	_, err := f.svc.GoTo(ctx, d.ID, StepReview)
	assert.ErrorIs(t, err, ErrStepLocked)

	d, err = f.svc.Next(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StepSources, d.Step)
	d, err = f.svc.Next(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StepReview, d.Step)

	d, err = f.svc.Back(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StepSources, d.Step)
}

func TestNextBlockedOnShortfall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.draft(t, 40, 40)

	d, err := f.svc.Next(ctx, d.ID)
	require.NoError(t, err)
	_, err = f.svc.Next(ctx, d.ID)
	var verr *httpx.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Messages, "Faltan $10.000.000 para completar el valor total")

	stored, err := f.svc.Draft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StepSources, stored.Step)
}

func TestSubmitCreatesNegotiation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.reviewed(t, 40, 50)

	res, err := f.svc.Submit(ctx, d.ID)
	require.NoError(t, err)

	neg := res.Negotiation
	assert.Equal(t, StateActive, neg.State)
	assert.True(t, millions(90).Equal(neg.TotalValue))
	assert.True(t, millions(90).Equal(neg.TotalSources))
	assert.True(t, millions(90).Equal(neg.PendingBalance))
	assert.Len(t, neg.Sources, 2)

	stored := f.db.negotiations[neg.ID]
	require.NotNil(t, stored)
	assert.True(t, millions(90).Equal(stored.TotalSources))

	assert.Equal(t, housing.UnitAssigned, f.unit.State)
	assert.Equal(t, neg.ID, *f.unit.NegotiationID)
	assert.Equal(t, clients.StateActive, f.client.State)
	require.Len(t, f.db.audits, 1)
	assert.Equal(t, "negotiation.created", f.db.audits[0].Action)

	require.Len(t, neg.Steps, 3)
	assert.Equal(t, paymentsources.StepPromise, neg.Steps[0].Name)
	assert.Equal(t, paymentsources.DisbursementStep(paymentsources.KindMortgage), neg.Steps[1].Name)
	assert.Equal(t, paymentsources.StepDeed, neg.Steps[2].Name)
	assert.Equal(t, neg.Steps, f.db.steps[neg.ID])

	_, err = f.svc.Draft(ctx, d.ID)
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestSubmitRequiresReviewStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.draft(t, 40, 50)

	_, err := f.svc.Submit(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotReviewed)
	assert.ErrorIs(t, err, httpx.ErrConflict)
	assert.Empty(t, f.db.negotiations)
	assert.Equal(t, housing.UnitAvailable, f.unit.State)

	_, err = f.svc.Draft(ctx, d.ID)
	require.NoError(t, err)
}

func TestSubmitRejectsNegotiatedValueOffUnitPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A draft whose stored value was lowered behind the wizard's back.
	d := NewDraft(f.client.ID, fixedNow)
	d.SelectUnit(f.project, f.unit.ID, "Manzana A Casa 12", millions(60))
	d.SetDiscount(millions(10))
	fund(t, d.Sources, 10, 40)
	require.NoError(t, d.Next())
	require.NoError(t, d.Next())
	require.NoError(t, f.store.Save(ctx, d))

	_, err := f.svc.Submit(ctx, d.ID)
	assert.ErrorIs(t, err, ErrPriceChanged)
	assert.Empty(t, f.db.negotiations)
	assert.Empty(t, f.db.sources)
	assert.Empty(t, f.db.steps)
	assert.Equal(t, housing.UnitAvailable, f.unit.State)
}

func TestSubmitWithShortfallWritesNothing(t *testing.T) {
	f := newFixture(t)
	d := f.draft(t, 40, 40)

	_, err := f.svc.Submit(context.Background(), d.ID)
	var verr *httpx.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Messages, "Falta cubrir $10.000.000 para completar el financiamiento")

	assert.Empty(t, f.db.negotiations)
	assert.Empty(t, f.db.sources)
	assert.Equal(t, housing.UnitAvailable, f.unit.State)
}

func TestSubmitRejectsSecondActiveNegotiation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.reviewed(t, 40, 50)
	_, err := f.svc.Submit(ctx, first.ID)
	require.NoError(t, err)

	// A stale draft that selected the unit before it was assigned.
	second := exampleDraft()
	second.ClientID = f.client.ID
	second.SelectUnit(f.project, f.unit.ID, "Manzana A Casa 12", millions(100))
	second.SetDiscount(millions(10))
	fund(t, second.Sources, 40, 50)
	require.NoError(t, second.Next())
	require.NoError(t, second.Next())
	require.NoError(t, f.store.Save(ctx, second))

	_, err = f.svc.Submit(ctx, second.ID)
	assert.ErrorIs(t, err, ErrActiveExists)
	assert.Len(t, f.db.negotiations, 1)
}

func submitted(t *testing.T, f *fixture) *Detail {
	t.Helper()
	res, err := f.svc.Submit(context.Background(), f.reviewed(t, 40, 50).ID)
	require.NoError(t, err)
	return res.Negotiation
}

func TestTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	neg := submitted(t, f)

	_, err := f.svc.Reactivate(ctx, neg.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Suspend(ctx, neg.ID, "  ")
	assert.ErrorIs(t, err, ErrReasonRequired)

	n, err := f.svc.Suspend(ctx, neg.ID, "Cliente de viaje")
	require.NoError(t, err)
	assert.Equal(t, StateSuspended, n.State)
	require.NotNil(t, n.SuspendedAt)

	n, err = f.svc.Reactivate(ctx, neg.ID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, n.State)
	assert.Nil(t, n.SuspendedAt)

	_, err = f.svc.Complete(ctx, neg.ID)
	assert.ErrorIs(t, err, ErrOutstandingBalance)
	assert.Equal(t, 2, f.inv.bumps)
}

func TestWithdrawReleasesUnitAndRecordsRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	neg := submitted(t, f)
	f.db.negotiations[neg.ID].TotalPaid = millions(5)

	n, err := f.svc.Withdraw(ctx, neg.ID, "Cambio de ciudad")
	require.NoError(t, err)
	assert.Equal(t, StateWithdrawn, n.State)
	assert.Equal(t, housing.UnitAvailable, f.unit.State)
	assert.Nil(t, f.unit.NegotiationID)

	require.Len(t, f.db.withdrawals, 1)
	w := f.db.withdrawals[0]
	assert.True(t, millions(5).Equal(w.RefundAmount))
	assert.Equal(t, WithdrawalPendingRefund, w.State)

	_, err = f.svc.Withdraw(ctx, neg.ID, "otra vez")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteFullyPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paid := submitted(t, f)
	stored := f.db.negotiations[paid.ID]
	stored.TotalPaid = stored.TotalSources
	stored.PendingBalance = decimal.Zero

	done, err := f.svc.CompleteFullyPaid(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), done)
	assert.Equal(t, StateCompleted, f.db.negotiations[paid.ID].State)

	done, err = f.svc.CompleteFullyPaid(ctx)
	require.NoError(t, err)
	assert.Zero(t, done)
}

func TestGetLoadsSourcesAndTotals(t *testing.T) {
	f := newFixture(t)
	neg := submitted(t, f)

	detail, err := f.svc.Get(context.Background(), neg.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Sources, 2)
	assert.Equal(t, paymentsources.KindDownPayment, detail.Sources[0].Kind)
	assert.True(t, millions(90).Equal(detail.Totals.Approved))
	assert.Len(t, detail.Steps, 3)

	_, err = f.svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatsAndListByClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	submitted(t, f)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.Active)
	assert.True(t, millions(90).Equal(st.ActiveValue))

	list, err := f.svc.ListByClient(ctx, f.client.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListByClient(ctx, uuid.New())
	assert.True(t, errors.Is(err, clients.ErrNotFound))
}

func TestCompleteProcessStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	neg := submitted(t, f)
	disbursement := neg.Steps[1]

	st, err := f.svc.CompleteProcessStep(ctx, neg.ID, disbursement.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentsources.StepCompleted, st.State)
	require.NotNil(t, st.CompletedAt)
	assert.Equal(t, fixedNow, *st.CompletedAt)
	assert.Equal(t, "process_step.completed", f.db.audits[len(f.db.audits)-1].Action)

	detail, err := f.svc.Get(ctx, neg.ID)
	require.NoError(t, err)
	assert.NoError(t, paymentsources.ValidateDisbursement(paymentsources.KindMortgage, detail.Steps))

	_, err = f.svc.CompleteProcessStep(ctx, neg.ID, disbursement.ID)
	assert.ErrorIs(t, err, paymentsources.ErrStepCompleted)

	_, err = f.svc.CompleteProcessStep(ctx, uuid.New(), neg.Steps[0].ID)
	assert.ErrorIs(t, err, paymentsources.ErrNegotiationNotFound)
}

func TestCompleteProcessStepRequiresOwnActiveNegotiation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	neg := submitted(t, f)

	other := uuid.New()
	f.db.negotiations[other] = &Negotiation{ID: other, State: StateActive}
	_, err := f.svc.CompleteProcessStep(ctx, other, neg.Steps[0].ID)
	assert.ErrorIs(t, err, paymentsources.ErrStepNotFound)

	_, err = f.svc.Suspend(ctx, neg.ID, "Cliente de viaje")
	require.NoError(t, err)
	_, err = f.svc.CompleteProcessStep(ctx, neg.ID, neg.Steps[0].ID)
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Equal(t, paymentsources.StepPending, f.db.steps[neg.ID][0].State)
}
