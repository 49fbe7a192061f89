package installments

import (
	"bytes"
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/habitar-ventas/habitar/internal/platform/cache"
	"github.com/habitar-ventas/habitar/internal/platform/httpx"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
	"github.com/habitar-ventas/habitar/internal/shared"
)

func millions(n int64) decimal.Decimal {
	return decimal.NewFromInt(n * 1_000_000)
}

type fixture struct {
	repo     *memRepo
	svc      *Service
	neg      uuid.UUID
	down     *paymentsources.Source
	mortgage *paymentsources.Source
}

// newFixture seeds an active negotiation with a 40M down payment and a 50M mortgage.
func newFixture(t *testing.T, c *cache.Versioned) *fixture {
	t.Helper()
	repo := newMemRepo()
	neg := uuid.New()
	repo.negotiations[neg] = &memNegotiation{id: neg, state: "Activa"}

	down := paymentsources.NewSource(neg, paymentsources.Allocation{Kind: paymentsources.KindDownPayment, Amount: millions(40)})
	bank := "Bancolombia"
	mortgage := paymentsources.NewSource(neg, paymentsources.Allocation{Kind: paymentsources.KindMortgage, Amount: millions(50), Entity: &bank})
	repo.sources[down.ID] = &down
	repo.sources[mortgage.ID] = &mortgage

	svc := NewService(repo, Options{Cache: c, Clock: func() time.Time { return fixedNow }})
	return &fixture{repo: repo, svc: svc, neg: neg, down: repo.sources[down.ID], mortgage: repo.sources[mortgage.ID]}
}

func request(source uuid.UUID, amount decimal.Decimal) RegisterRequest {
	return RegisterRequest{SourceID: source, Amount: amount, PaidOn: "2026-10-10", Method: MethodTransfer}
}

func TestRegisterUpdatesSourceAndTotals(t *testing.T) {
	f := newFixture(t, nil)
	ctx := shared.ContextWithActor(context.Background(), "asesor1")

	res, err := f.svc.Register(ctx, f.neg, request(f.down.ID, millions(10)), "")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, "asesor1", res.Installment.RegisteredBy)

	assert.True(t, millions(10).Equal(f.down.ReceivedAmount))
	assert.Equal(t, paymentsources.StateInProgress, f.down.State)
	totals := f.repo.negotiations[f.neg].totals
	assert.True(t, millions(10).Equal(totals.Received))
	assert.True(t, millions(80).Equal(totals.Balance))
	require.Len(t, f.repo.audits, 1)
	assert.Equal(t, "installment.registered", f.repo.audits[0].Action)

	_, err = f.svc.Register(ctx, f.neg, request(f.down.ID, millions(30)), "")
	require.NoError(t, err)
	assert.Equal(t, paymentsources.StateCompleted, f.down.State)
	assert.NotNil(t, f.down.CompletedAt)
}

func TestRegisterRejectsAboveBalance(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Register(context.Background(), f.neg, request(f.down.ID, millions(41)), "")
	assert.ErrorIs(t, err, ErrExceedsBalance)
	assert.True(t, f.down.ReceivedAmount.IsZero())
	assert.Empty(t, f.repo.installments)
}

func TestRegisterValidatesRequest(t *testing.T) {
	f := newFixture(t, nil)
	req := request(f.down.ID, decimal.Zero)
	req.Method = "Bitcoin"
	req.PaidOn = "2026-12-01"

	_, err := f.svc.Register(context.Background(), f.neg, req, "")
	var verr *httpx.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "El monto debe ser mayor a cero", verr.Fields["amount"])
	assert.Contains(t, verr.Fields, "method")
	assert.Equal(t, "La fecha del abono no puede ser futura", verr.Fields["paid_on"])
}

func TestRegisterRequiresActiveNegotiation(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.negotiations[f.neg].state = "Suspendida"

	_, err := f.svc.Register(context.Background(), f.neg, request(f.down.ID, millions(1)), "")
	assert.ErrorIs(t, err, ErrNegotiationInactive)
}

func TestRegisterRejectsForeignSource(t *testing.T) {
	f := newFixture(t, nil)
	other := uuid.New()
	f.repo.negotiations[other] = &memNegotiation{id: other, state: "Activa"}

	_, err := f.svc.Register(context.Background(), other, request(f.down.ID, millions(1)), "")
	assert.ErrorIs(t, err, ErrSourceMismatch)
}

func TestRegisterGatesDisbursement(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	step := paymentsources.ProcessStep{
		ID:            uuid.New(),
		NegotiationID: f.neg,
		Name:          paymentsources.DisbursementStep(paymentsources.KindMortgage),
		State:         "Pendiente",
	}
	f.repo.steps[f.neg] = []paymentsources.ProcessStep{step}

	_, err := f.svc.Register(ctx, f.neg, request(f.mortgage.ID, millions(50)), "")
	assert.ErrorIs(t, err, httpx.ErrValidation)

	f.repo.steps[f.neg][0].State = paymentsources.StepCompleted
	_, err = f.svc.Register(ctx, f.neg, request(f.mortgage.ID, millions(50)), "")
	require.NoError(t, err)
	assert.Equal(t, paymentsources.StateCompleted, f.mortgage.State)

	// Single-disbursement sources take exactly one receipt.
	f.mortgage.ApprovedAmount = millions(60)
	_, err = f.svc.Register(ctx, f.neg, request(f.mortgage.ID, millions(1)), "")
	assert.ErrorIs(t, err, paymentsources.ErrSingleReceipt)
}

func TestRegisterIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Register(ctx, f.neg, request(f.down.ID, millions(5)), "key-1")
	require.NoError(t, err)
	again, err := f.svc.Register(ctx, f.neg, request(f.down.ID, millions(5)), "key-1")
	require.NoError(t, err)

	assert.True(t, again.Replayed)
	assert.Equal(t, first.Installment.ID, again.Installment.ID)
	assert.Len(t, f.repo.installments, 1)
	assert.True(t, millions(5).Equal(f.down.ReceivedAmount))
}

func TestFailedRegisterReleasesKey(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, f.neg, request(f.down.ID, millions(41)), "key-2")
	require.ErrorIs(t, err, ErrExceedsBalance)

	res, err := f.svc.Register(ctx, f.neg, request(f.down.ID, millions(4)), "key-2")
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}

func TestAnnulReversesReceipt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res, err := f.svc.Register(ctx, f.neg, request(f.down.ID, millions(40)), "")
	require.NoError(t, err)
	require.Equal(t, paymentsources.StateCompleted, f.down.State)

	_, err = f.svc.Annul(ctx, res.Installment.ID, " ")
	assert.ErrorIs(t, err, ErrReasonRequired)

	inst, err := f.svc.Annul(ctx, res.Installment.ID, "Consignación rechazada")
	require.NoError(t, err)
	assert.True(t, inst.Annulled())
	assert.True(t, f.down.ReceivedAmount.IsZero())
	assert.Equal(t, paymentsources.StatePending, f.down.State)
	assert.True(t, f.repo.negotiations[f.neg].totals.Received.IsZero())

	_, err = f.svc.Annul(ctx, res.Installment.ID, "otra vez")
	assert.ErrorIs(t, err, ErrAlreadyAnnulled)
}

func TestAnnulReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Register(ctx, f.neg, request(f.down.ID, millions(5)), "key-3")
	require.NoError(t, err)
	_, err = f.svc.Annul(ctx, first.Installment.ID, "Consignación rechazada")
	require.NoError(t, err)
	assert.Nil(t, f.repo.installments[first.Installment.ID].IdempotencyKey)

	again, err := f.svc.Register(ctx, f.neg, request(f.down.ID, millions(5)), "key-3")
	require.NoError(t, err)
	assert.False(t, again.Replayed)
	assert.NotEqual(t, first.Installment.ID, again.Installment.ID)
	assert.False(t, again.Installment.Annulled())
	assert.True(t, millions(5).Equal(f.down.ReceivedAmount))
	assert.True(t, millions(5).Equal(f.repo.negotiations[f.neg].totals.Received))
}

func TestReplayOfAnnulledInstallmentIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Register(ctx, f.neg, request(f.down.ID, millions(5)), "key-4")
	require.NoError(t, err)
	// Annulled without releasing its key.
	at := fixedNow
	f.repo.installments[first.Installment.ID].AnnulledAt = &at

	_, err = f.svc.Register(ctx, f.neg, request(f.down.ID, millions(5)), "key-4")
	assert.ErrorIs(t, err, ErrKeyReused)
}

func TestRegisterDisbursementAfterCompletingProcessStep(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sources := f.repo.Sources()
	for _, st := range paymentsources.DefaultProcessSteps(f.neg, []paymentsources.Kind{
		paymentsources.KindDownPayment, paymentsources.KindMortgage,
	}) {
		require.NoError(t, sources.InsertProcessStep(ctx, st))
	}

	_, err := f.svc.Register(ctx, f.neg, request(f.mortgage.ID, millions(50)), "")
	require.ErrorIs(t, err, httpx.ErrValidation)

	steps, err := sources.ProcessSteps(ctx, f.neg)
	require.NoError(t, err)
	gate := steps[1]
	require.Equal(t, paymentsources.DisbursementStep(paymentsources.KindMortgage), gate.Name)
	require.NoError(t, paymentsources.CompleteStep(&gate, fixedNow))
	require.NoError(t, sources.UpdateProcessStep(ctx, gate))

	_, err = f.svc.Register(ctx, f.neg, request(f.mortgage.ID, millions(50)), "")
	require.NoError(t, err)
	assert.Equal(t, paymentsources.StateCompleted, f.mortgage.State)
}

func TestAnnulRejectsClosedNegotiation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res, err := f.svc.Register(ctx, f.neg, request(f.down.ID, millions(1)), "")
	require.NoError(t, err)
	f.repo.negotiations[f.neg].state = "Completada"

	_, err = f.svc.Annul(ctx, res.Installment.ID, "error de digitación")
	assert.ErrorIs(t, err, ErrNegotiationClosed)
}

func TestLedgerIsCachedUntilWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f := newFixture(t, cache.NewVersioned(client, "habitar:ledger", time.Minute))
	ctx := context.Background()

	_, err := f.svc.Register(ctx, f.neg, request(f.down.ID, millions(1)), "")
	require.NoError(t, err)

	l, err := f.svc.Ledger(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, l.Rows, 1)
	_, err = f.svc.Ledger(ctx, Filter{Query: "laura"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.ledgerLoads)

	_, err = f.svc.Register(ctx, f.neg, request(f.down.ID, millions(2)), "")
	require.NoError(t, err)
	l, err = f.svc.Ledger(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, l.Rows, 2)
	assert.Equal(t, 2, f.repo.ledgerLoads)
	assert.True(t, millions(3).Equal(l.Stats.MonthTotal))
}

func TestExportWritesWorkbook(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, f.neg, request(f.down.ID, millions(2)), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(ctx, Filter{}, &buf))

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()
	rows, err := wb.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Fecha", rows[0][0])
	assert.Equal(t, "2026-10-10", rows[1][0])
	assert.Equal(t, "Laura Gómez", rows[1][1])
}
