package installments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/habitar-ventas/habitar/internal/platform/db"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
	"github.com/habitar-ventas/habitar/internal/shared"
)

const idempotencyModule = "installments"

// Repository reads the ledger and opens write transactions.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	LedgerRows(ctx context.Context) ([]LedgerRow, error)
	Get(ctx context.Context, id uuid.UUID) (*Installment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Installment, error)
}

// TxRepository writes installments together with their payment source.
type TxRepository interface {
	ClaimKey(ctx context.Context, key string) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Installment, error)
	Insert(ctx context.Context, i Installment) error
	MarkAnnulled(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	ReleaseKey(ctx context.Context, id uuid.UUID, key string) error
	Sources() paymentsources.Repository
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

type repository struct {
	pool *pgxpool.Pool
	db   db.DBTX
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool, db: pool}
}

// WithTx runs fn in a ReadCommitted transaction. Rows are serialised with
// explicit FOR UPDATE locks on the negotiation and the source.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const installmentColumns = `id, negociacion_id, fuente_pago_id, monto, fecha_abono, metodo_pago,
	numero_referencia, comprobante_url, notas, registrado_por, anulado_at, motivo_anulacion, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanInstallment(row scanner, extra ...any) (Installment, error) {
	var (
		i                         Installment
		amount                    pgtype.Numeric
		paidOn                    pgtype.Date
		method                    string
		reference, receipt, notes pgtype.Text
		annulledAt                pgtype.Timestamptz
		reason                    pgtype.Text
	)
	dest := []any{&i.ID, &i.NegotiationID, &i.SourceID, &amount, &paidOn, &method,
		&reference, &receipt, &notes, &i.RegisteredBy, &annulledAt, &reason, &i.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Installment{}, err
	}
	i.Amount = db.Decimal(amount)
	i.PaidOn = paidOn.Time
	i.Method = Method(method)
	i.Reference = db.StringPtr(reference)
	i.ReceiptURL = db.StringPtr(receipt)
	i.Notes = db.StringPtr(notes)
	i.AnnulReason = db.StringPtr(reason)
	if annulledAt.Valid {
		t := annulledAt.Time
		i.AnnulledAt = &t
	}
	return i, nil
}

func (r *repository) LedgerRows(ctx context.Context) ([]LedgerRow, error) {
	rows, err := r.db.Query(ctx, `SELECT `+installmentColumns+`,
			cliente_id, cliente_nombres, cliente_apellidos, cliente_numero_documento,
			vivienda_id, vivienda_numero, manzana_identificador, proyecto_id, proyecto_nombre,
			negociacion_estado, fuente_pago_tipo
		FROM vista_abonos_completos
		ORDER BY fecha_abono DESC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LedgerRow{}
	for rows.Next() {
		var lr LedgerRow
		inst, err := scanInstallment(rows,
			&lr.ClientID, &lr.ClientNames, &lr.ClientSurnames, &lr.ClientDocument,
			&lr.UnitID, &lr.UnitNumber, &lr.Block, &lr.ProjectID, &lr.ProjectName,
			&lr.NegotiationState, &lr.SourceKind)
		if err != nil {
			return nil, err
		}
		lr.Installment = inst
		out = append(out, lr)
	}
	return out, rows.Err()
}

func getInstallment(ctx context.Context, q db.DBTX, where string, arg any) (*Installment, error) {
	i, err := scanInstallment(q.QueryRow(ctx, `SELECT `+installmentColumns+` FROM abonos WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &i, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Installment, error) {
	return getInstallment(ctx, r.db, `id = $1`, id)
}

func (r *repository) GetByIdempotencyKey(ctx context.Context, key string) (*Installment, error) {
	return getInstallment(ctx, r.db, `idempotency_key = $1`, key)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) ClaimKey(ctx context.Context, key string) error {
	return shared.NewIdempotencyStore(r.tx).CheckAndInsert(ctx, key, idempotencyModule)
}

func (r *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Installment, error) {
	return getInstallment(ctx, r.tx, `id = $1 FOR UPDATE`, id)
}

func (r *txRepository) Insert(ctx context.Context, i Installment) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO abonos (id, negociacion_id, fuente_pago_id, monto, fecha_abono, metodo_pago,
			numero_referencia, comprobante_url, notas, registrado_por, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		i.ID, i.NegotiationID, i.SourceID, db.Numeric(i.Amount),
		pgtype.Date{Time: i.PaidOn, Valid: true}, string(i.Method),
		db.Text(i.Reference), db.Text(i.ReceiptURL), db.Text(i.Notes), i.RegisteredBy,
		db.Text(i.IdempotencyKey), i.CreatedAt)
	return err
}

func (r *txRepository) MarkAnnulled(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE abonos SET anulado_at = $2, motivo_anulacion = $3
		WHERE id = $1 AND anulado_at IS NULL`, id, at, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyAnnulled
	}
	return nil
}

// ReleaseKey detaches key from an annulled installment so a later request may reuse it.
func (r *txRepository) ReleaseKey(ctx context.Context, id uuid.UUID, key string) error {
	if _, err := r.tx.Exec(ctx, `UPDATE abonos SET idempotency_key = NULL WHERE id = $1`, id); err != nil {
		return err
	}
	return shared.NewIdempotencyStore(r.tx).Delete(ctx, key)
}

func (r *txRepository) Sources() paymentsources.Repository {
	return paymentsources.NewTxRepository(r.tx)
}

func (r *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.NewAuditLogger(r.tx).Record(ctx, log)
}
