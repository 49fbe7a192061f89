package negotiations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/habitar-ventas/habitar/internal/platform/db"
	"github.com/habitar-ventas/habitar/internal/sales/clients"
	"github.com/habitar-ventas/habitar/internal/sales/housing"
	"github.com/habitar-ventas/habitar/internal/sales/paymentsources"
	"github.com/habitar-ventas/habitar/internal/shared"
)

// Repository reads negotiations and opens transactions spanning
// negotiations, their sources, the unit and the client.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (*Negotiation, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]Negotiation, error)
	Stats(ctx context.Context) (Stats, error)
	ListCompletable(ctx context.Context) ([]uuid.UUID, error)
	Sources() paymentsources.Repository
	Units() housing.Repository
	Clients() clients.Repository
}

// TxRepository is the transactional write surface.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Negotiation, error)
	ExistsActive(ctx context.Context, clientID, unitID uuid.UUID) (bool, error)
	Insert(ctx context.Context, n Negotiation) error
	UpdateState(ctx context.Context, n Negotiation) error
	InsertWithdrawal(ctx context.Context, w Withdrawal) error
	Sources() paymentsources.Repository
	Units() housing.Repository
	Clients() clients.Repository
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

type repository struct {
	pool    *pgxpool.Pool
	db      db.DBTX
	sources paymentsources.Repository
	units   housing.Repository
	clients clients.Repository
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{
		pool:    pool,
		db:      pool,
		sources: paymentsources.NewRepository(pool),
		units:   housing.NewRepository(pool),
		clients: clients.NewRepository(pool),
	}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) Sources() paymentsources.Repository { return r.sources }
func (r *repository) Units() housing.Repository { return r.units }
func (r *repository) Clients() clients.Repository { return r.clients }

const negotiationColumns = `id, cliente_id, vivienda_id, valor_negociado, descuento_aplicado, valor_total, estado,
	notas, motivo, total_fuentes_pago, total_abonado, saldo_pendiente, porcentaje_pagado,
	fecha_negociacion, fecha_suspension, fecha_completada, fecha_renuncia, created_at, updated_at`

func scanNegotiation(row pgx.Row) (Negotiation, error) {
	var (
		n                                     Negotiation
		state                                 string
		negotiated, discount, total           pgtype.Numeric
		sources, paid, pending, percent       pgtype.Numeric
		notes, reason                         pgtype.Text
		suspendedAt, completedAt, withdrawnAt pgtype.Timestamptz
	)
	err := row.Scan(&n.ID, &n.ClientID, &n.UnitID, &negotiated, &discount, &total, &state,
		&notes, &reason, &sources, &paid, &pending, &percent,
		&n.NegotiatedAt, &suspendedAt, &completedAt, &withdrawnAt, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return Negotiation{}, err
	}
	n.State = State(state)
	n.NegotiatedValue = db.Decimal(negotiated)
	n.Discount = db.Decimal(discount)
	n.TotalValue = db.Decimal(total)
	n.TotalSources = db.Decimal(sources)
	n.TotalPaid = db.Decimal(paid)
	n.PendingBalance = db.Decimal(pending)
	n.PercentPaid = db.Decimal(percent)
	n.Notes = db.StringPtr(notes)
	n.Reason = db.StringPtr(reason)
	n.SuspendedAt = timePtr(suspendedAt)
	n.CompletedAt = timePtr(completedAt)
	n.WithdrawnAt = timePtr(withdrawnAt)
	return n, nil
}

func getNegotiation(ctx context.Context, q db.DBTX, id uuid.UUID, lock bool) (*Negotiation, error) {
	query := `SELECT ` + negotiationColumns + ` FROM negociaciones WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	n, err := scanNegotiation(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Negotiation, error) {
	return getNegotiation(ctx, r.db, id, false)
}

func (r *repository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]Negotiation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+negotiationColumns+`
		FROM negociaciones WHERE cliente_id = $1 ORDER BY fecha_negociacion DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Negotiation
	for rows.Next() {
		n, err := scanNegotiation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *repository) Stats(ctx context.Context) (Stats, error) {
	var (
		s                 Stats
		active, completed pgtype.Numeric
	)
	err := r.db.QueryRow(ctx, `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE estado = 'Activa'),
			COUNT(*) FILTER (WHERE estado = 'Suspendida'),
			COUNT(*) FILTER (WHERE estado = 'Cerrada por Renuncia'),
			COUNT(*) FILTER (WHERE estado = 'Completada'),
			COALESCE(SUM(valor_total) FILTER (WHERE estado = 'Activa'), 0),
			COALESCE(SUM(valor_total) FILTER (WHERE estado = 'Completada'), 0)
		FROM negociaciones`).
		Scan(&s.Total, &s.Active, &s.Suspended, &s.Withdrawn, &s.Completed, &active, &completed)
	if err != nil {
		return Stats{}, err
	}
	s.ActiveValue = db.Decimal(active)
	s.CompletedValue = db.Decimal(completed)
	return s, nil
}

// ListCompletable returns active negotiations whose sources are fully received.
func (r *repository) ListCompletable(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM negociaciones
		WHERE estado = 'Activa' AND total_fuentes_pago > 0 AND saldo_pendiente = 0
		ORDER BY fecha_negociacion`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Sources() paymentsources.Repository { return paymentsources.NewTxRepository(r.tx) }
func (r *txRepository) Units() housing.Repository { return housing.NewTxRepository(r.tx) }
func (r *txRepository) Clients() clients.Repository { return clients.NewTxRepository(r.tx) }

func (r *txRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Negotiation, error) {
	return getNegotiation(ctx, r.tx, id, true)
}

func (r *txRepository) ExistsActive(ctx context.Context, clientID, unitID uuid.UUID) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
			SELECT 1 FROM negociaciones
			WHERE cliente_id = $1 AND vivienda_id = $2 AND estado IN ('Activa', 'Suspendida')
		)`, clientID, unitID).Scan(&exists)
	return exists, err
}

func (r *txRepository) Insert(ctx context.Context, n Negotiation) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO negociaciones (
			id, cliente_id, vivienda_id, valor_negociado, descuento_aplicado, valor_total, estado, notas,
			fecha_negociacion, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $9)`,
		n.ID, n.ClientID, n.UnitID, db.Numeric(n.NegotiatedValue), db.Numeric(n.Discount),
		db.Numeric(n.TotalValue), string(n.State), db.Text(n.Notes), n.NegotiatedAt)
	if db.IsUniqueViolation(err, "negociaciones_cliente_vivienda_activa") {
		return ErrActiveExists
	}
	return err
}

func (r *txRepository) UpdateState(ctx context.Context, n Negotiation) error {
	tag, err := r.tx.Exec(ctx, `UPDATE negociaciones SET
			estado = $2, motivo = $3, fecha_suspension = $4, fecha_completada = $5, fecha_renuncia = $6,
			updated_at = NOW()
		WHERE id = $1`,
		n.ID, string(n.State), db.Text(n.Reason), n.SuspendedAt, n.CompletedAt, n.WithdrawnAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertWithdrawal(ctx context.Context, w Withdrawal) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO renuncias (
			id, negociacion_id, motivo, monto_a_devolver, requiere_devolucion, estado, fecha_renuncia
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.NegotiationID, w.Reason, db.Numeric(w.RefundAmount), w.RequiresRefund, w.State, w.WithdrawnAt)
	return err
}

func (r *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.NewAuditLogger(r.tx).Record(ctx, log)
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
