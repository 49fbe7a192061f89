package housing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/habitar-ventas/habitar/internal/platform/db"
)

// Repository reads projects and units and flips unit assignment.
type Repository interface {
	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	ListUnits(ctx context.Context, projectID uuid.UUID, availableOnly bool) ([]Unit, error)
	GetUnit(ctx context.Context, id uuid.UUID) (*Unit, error)
	GetUnitForUpdate(ctx context.Context, id uuid.UUID) (*Unit, error)
	Assign(ctx context.Context, unitID, clientID, negotiationID uuid.UUID, at time.Time) error
	Release(ctx context.Context, unitID uuid.UUID) error
}

type repository struct {
	db db.DBTX
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

// NewTxRepository binds the repository to a caller-owned transaction.
func NewTxRepository(tx pgx.Tx) Repository {
	return &repository{db: tx}
}

func (r *repository) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.nombre, p.ubicacion, p.estado, p.created_at,
		       COUNT(v.id) FILTER (WHERE v.estado = 'Disponible' AND v.negociacion_id IS NULL)
		FROM proyectos p
		LEFT JOIN manzanas m ON m.proyecto_id = p.id
		LEFT JOIN viviendas v ON v.manzana_id = m.id
		GROUP BY p.id
		ORDER BY p.nombre`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var (
			p        Project
			location pgtype.Text
		)
		if err := rows.Scan(&p.ID, &p.Name, &location, &p.State, &p.CreatedAt, &p.AvailableUnits); err != nil {
			return nil, err
		}
		p.Location = db.StringPtr(location)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *repository) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	var (
		p        Project
		location pgtype.Text
	)
	err := r.db.QueryRow(ctx, `SELECT id, nombre, ubicacion, estado, created_at FROM proyectos WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &location, &p.State, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	p.Location = db.StringPtr(location)
	return &p, nil
}

const unitSelect = `
	SELECT v.id, v.manzana_id, m.nombre, m.proyecto_id, p.nombre, v.numero,
	       v.valor_base, v.gastos_notariales, v.recargo_esquinera, v.es_esquinera, v.estado,
	       v.cliente_id, v.negociacion_id, v.fecha_asignacion
	FROM viviendas v
	JOIN manzanas m ON m.id = v.manzana_id
	JOIN proyectos p ON p.id = m.proyecto_id`

func scanUnit(row pgx.Row) (Unit, error) {
	var (
		u                       Unit
		state                   string
		base, notarial, corner  pgtype.Numeric
		clientID, negotiationID pgtype.UUID
		assignedAt              pgtype.Timestamptz
	)
	err := row.Scan(&u.ID, &u.BlockID, &u.Block, &u.ProjectID, &u.ProjectName, &u.Number,
		&base, &notarial, &corner, &u.IsCorner, &state, &clientID, &negotiationID, &assignedAt)
	if err != nil {
		return Unit{}, err
	}
	u.State = UnitState(state)
	u.BaseValue = db.Decimal(base)
	u.NotarialCosts = db.Decimal(notarial)
	u.CornerSurcharge = db.Decimal(corner)
	u.ClientID = db.UUIDPtr(clientID)
	u.NegotiationID = db.UUIDPtr(negotiationID)
	if assignedAt.Valid {
		t := assignedAt.Time
		u.AssignedAt = &t
	}
	return u, nil
}

func (r *repository) ListUnits(ctx context.Context, projectID uuid.UUID, availableOnly bool) ([]Unit, error) {
	query := unitSelect + ` WHERE m.proyecto_id = $1`
	if availableOnly {
		query += ` AND v.estado = 'Disponible' AND v.negociacion_id IS NULL
			AND NOT EXISTS (
				SELECT 1 FROM negociaciones n
				WHERE n.vivienda_id = v.id AND n.estado IN ('Activa', 'Suspendida')
			)`
	}
	query += ` ORDER BY m.nombre, v.numero`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (r *repository) getUnit(ctx context.Context, id uuid.UUID, lock bool) (*Unit, error) {
	query := unitSelect + ` WHERE v.id = $1`
	if lock {
		query += ` FOR UPDATE OF v`
	}
	u, err := scanUnit(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnitNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *repository) GetUnit(ctx context.Context, id uuid.UUID) (*Unit, error) {
	return r.getUnit(ctx, id, false)
}

func (r *repository) GetUnitForUpdate(ctx context.Context, id uuid.UUID) (*Unit, error) {
	return r.getUnit(ctx, id, true)
}

func (r *repository) Assign(ctx context.Context, unitID, clientID, negotiationID uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE viviendas
		SET estado = 'Asignada', cliente_id = $2, negociacion_id = $3, fecha_asignacion = $4
		WHERE id = $1 AND estado = 'Disponible'`, unitID, clientID, negotiationID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnitUnavailable
	}
	return nil
}

func (r *repository) Release(ctx context.Context, unitID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE viviendas
		SET estado = 'Disponible', cliente_id = NULL, negociacion_id = NULL, fecha_asignacion = NULL
		WHERE id = $1`, unitID)
	return err
}
