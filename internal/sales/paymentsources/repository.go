package paymentsources

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/habitar-ventas/habitar/internal/platform/db"
	"github.com/habitar-ventas/habitar/internal/platform/httpx"
	"github.com/habitar-ventas/habitar/internal/shared"
)

var (
	ErrNotFound            = fmt.Errorf("fuente de pago no encontrada: %w", httpx.ErrNotFound)
	ErrNegotiationNotFound = fmt.Errorf("negociación no encontrada: %w", httpx.ErrNotFound)
)

// NegotiationRef is the slice of a negotiation the source rules need.
type NegotiationRef struct {
	ID         uuid.UUID
	State      string
	TotalValue decimal.Decimal
}

// Repository persists payment sources.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id uuid.UUID) (*Source, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Source, error)
	ListByNegotiation(ctx context.Context, negotiationID uuid.UUID) ([]Source, error)
	Insert(ctx context.Context, s Source) error
	Update(ctx context.Context, s Source) error
	Delete(ctx context.Context, id uuid.UUID) error
	LockNegotiation(ctx context.Context, negotiationID uuid.UUID) (*NegotiationRef, error)
	SyncNegotiationTotals(ctx context.Context, negotiationID uuid.UUID) error
	ProcessSteps(ctx context.Context, negotiationID uuid.UUID) ([]ProcessStep, error)
	GetProcessStepForUpdate(ctx context.Context, id uuid.UUID) (*ProcessStep, error)
	InsertProcessStep(ctx context.Context, st ProcessStep) error
	UpdateProcessStep(ctx context.Context, st ProcessStep) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository returns a pool-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// NewTxRepository binds the repository to a transaction owned by the caller.
func NewTxRepository(tx pgx.Tx) Repository {
	return &repository{db: tx}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx})
	})
}

const sourceColumns = `id, negociacion_id, tipo, monto_aprobado, monto_recibido, entidad, numero_referencia,
	carta_aprobacion_url, permite_multiples_abonos, estado, fecha_completado, created_at, updated_at`

func scanSource(row pgx.Row) (Source, error) {
	var (
		s                         Source
		kind, state               string
		approved, received        pgtype.Numeric
		entity, reference, letter pgtype.Text
		completedAt               pgtype.Timestamptz
	)
	err := row.Scan(&s.ID, &s.NegotiationID, &kind, &approved, &received, &entity, &reference,
		&letter, &s.AllowsMultiple, &state, &completedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Source{}, err
	}
	s.Kind = Kind(kind)
	s.State = State(state)
	s.ApprovedAmount = db.Decimal(approved)
	s.ReceivedAmount = db.Decimal(received)
	s.Entity = db.StringPtr(entity)
	s.Reference = db.StringPtr(reference)
	s.ApprovalLetterURL = db.StringPtr(letter)
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}
	return s, nil
}

func (r *repository) get(ctx context.Context, id uuid.UUID, lock bool) (*Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM fuentes_pago WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	s, err := scanSource(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Source, error) {
	return r.get(ctx, id, false)
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Source, error) {
	return r.get(ctx, id, true)
}

func (r *repository) ListByNegotiation(ctx context.Context, negotiationID uuid.UUID) ([]Source, error) {
	rows, err := r.db.Query(ctx, `SELECT `+sourceColumns+`
		FROM fuentes_pago
		WHERE negociacion_id = $1
		ORDER BY CASE tipo
			WHEN 'Cuota Inicial' THEN 1
			WHEN 'Crédito Hipotecario' THEN 2
			WHEN 'Subsidio Mi Casa Ya' THEN 3
			ELSE 4 END`, negotiationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *repository) Insert(ctx context.Context, s Source) error {
	_, err := r.db.Exec(ctx, `INSERT INTO fuentes_pago (
			id, negociacion_id, tipo, monto_aprobado, monto_recibido, entidad, numero_referencia,
			carta_aprobacion_url, permite_multiples_abonos, estado
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.NegotiationID, string(s.Kind), db.Numeric(s.ApprovedAmount), db.Numeric(s.ReceivedAmount),
		db.Text(s.Entity), db.Text(s.Reference), db.Text(s.ApprovalLetterURL), s.AllowsMultiple, string(s.State))
	if db.IsUniqueViolation(err, "") {
		return fmt.Errorf("%s: %w", s.Kind, httpx.ErrDuplicate)
	}
	return err
}

func (r *repository) Update(ctx context.Context, s Source) error {
	tag, err := r.db.Exec(ctx, `UPDATE fuentes_pago SET
			monto_aprobado = $2, monto_recibido = $3, entidad = $4, numero_referencia = $5,
			carta_aprobacion_url = $6, estado = $7, fecha_completado = $8, updated_at = NOW()
		WHERE id = $1`,
		s.ID, db.Numeric(s.ApprovedAmount), db.Numeric(s.ReceivedAmount), db.Text(s.Entity),
		db.Text(s.Reference), db.Text(s.ApprovalLetterURL), string(s.State), s.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM fuentes_pago WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) LockNegotiation(ctx context.Context, negotiationID uuid.UUID) (*NegotiationRef, error) {
	var (
		ref   NegotiationRef
		total pgtype.Numeric
	)
	err := r.db.QueryRow(ctx, `SELECT id, estado, valor_total FROM negociaciones WHERE id = $1 FOR UPDATE`,
		negotiationID).Scan(&ref.ID, &ref.State, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNegotiationNotFound
		}
		return nil, err
	}
	ref.TotalValue = db.Decimal(total)
	return &ref, nil
}

// SyncNegotiationTotals recomputes the denormalised totals on negociaciones from its sources.
func (r *repository) SyncNegotiationTotals(ctx context.Context, negotiationID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE negociaciones n SET
			total_fuentes_pago = t.aprobado,
			total_abonado = t.recibido,
			saldo_pendiente = t.aprobado - t.recibido,
			porcentaje_pagado = CASE WHEN t.aprobado > 0 THEN ROUND(t.recibido * 100 / t.aprobado, 2) ELSE 0 END,
			updated_at = NOW()
		FROM (
			SELECT COALESCE(SUM(monto_aprobado), 0) AS aprobado, COALESCE(SUM(monto_recibido), 0) AS recibido
			FROM fuentes_pago WHERE negociacion_id = $1
		) t
		WHERE n.id = $1`, negotiationID)
	return err
}

const stepColumns = `id, negociacion_id, nombre, orden, estado, fecha_completado`

func scanProcessStep(row pgx.Row) (ProcessStep, error) {
	var (
		st          ProcessStep
		completedAt pgtype.Timestamptz
	)
	if err := row.Scan(&st.ID, &st.NegotiationID, &st.Name, &st.Order, &st.State, &completedAt); err != nil {
		return ProcessStep{}, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		st.CompletedAt = &t
	}
	return st, nil
}

func (r *repository) ProcessSteps(ctx context.Context, negotiationID uuid.UUID) ([]ProcessStep, error) {
	rows, err := r.db.Query(ctx, `SELECT `+stepColumns+`
		FROM procesos_negociacion WHERE negociacion_id = $1 ORDER BY orden`, negotiationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []ProcessStep
	for rows.Next() {
		st, err := scanProcessStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func (r *repository) GetProcessStepForUpdate(ctx context.Context, id uuid.UUID) (*ProcessStep, error) {
	st, err := scanProcessStep(r.db.QueryRow(ctx, `SELECT `+stepColumns+`
		FROM procesos_negociacion WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStepNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (r *repository) InsertProcessStep(ctx context.Context, st ProcessStep) error {
	_, err := r.db.Exec(ctx, `INSERT INTO procesos_negociacion (`+stepColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		st.ID, st.NegotiationID, st.Name, st.Order, st.State, st.CompletedAt)
	return err
}

func (r *repository) UpdateProcessStep(ctx context.Context, st ProcessStep) error {
	tag, err := r.db.Exec(ctx, `UPDATE procesos_negociacion SET estado = $2, fecha_completado = $3 WHERE id = $1`,
		st.ID, st.State, st.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStepNotFound
	}
	return nil
}

func (r *repository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.NewAuditLogger(r.db).Record(ctx, log)
}
