package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/habitar-ventas/habitar/internal/platform/db"
)

type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Client, error)
	GetByDocument(ctx context.Context, number string) (*Client, error)
	List(ctx context.Context, req ListClientsRequest) ([]Client, int, error)
	Create(ctx context.Context, c Client) error
	SetState(ctx context.Context, id uuid.UUID, state string) error
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

const clientColumns = `id, nombres, apellidos, tipo_documento, numero_documento, telefono, email, estado, created_at, updated_at`

func scanClient(row pgx.Row) (Client, error) {
	var (
		c            Client
		phone, email pgtype.Text
	)
	err := row.Scan(&c.ID, &c.Names, &c.Surnames, &c.DocumentType, &c.DocumentNumber,
		&phone, &email, &c.State, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Client{}, err
	}
	c.Phone = db.StringPtr(phone)
	c.Email = db.StringPtr(email)
	return c, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clientes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) GetByDocument(ctx context.Context, number string) (*Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clientes WHERE numero_documento = $1`, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) List(ctx context.Context, req ListClientsRequest) ([]Client, int, error) {
	var (
		conditions []string
		args       []any
	)
	argPos := 1
	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(nombres || ' ' || apellidos ILIKE $%d OR numero_documento ILIKE $%d OR email ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	if req.State != "" {
		conditions = append(conditions, fmt.Sprintf("estado = $%d", argPos))
		args = append(args, req.State)
		argPos++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM clientes "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM clientes %s ORDER BY apellidos, nombres LIMIT $%d OFFSET $%d`,
		clientColumns, where, argPos, argPos+1)
	args = append(args, req.PerPage, (req.Page-1)*req.PerPage)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		clients = append(clients, c)
	}
	return clients, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Client) error {
	_, err := r.db.Exec(ctx, `INSERT INTO clientes (
			id, nombres, apellidos, tipo_documento, numero_documento, telefono, email, estado, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		c.ID, c.Names, c.Surnames, c.DocumentType, c.DocumentNumber, db.Text(c.Phone), db.Text(c.Email), c.State, c.CreatedAt)
	if db.IsUniqueViolation(err, "clientes_numero_documento_key") {
		return ErrDuplicateDocument
	}
	return err
}

func (r *repository) SetState(ctx context.Context, id uuid.UUID, state string) error {
	tag, err := r.db.Exec(ctx, `UPDATE clientes SET estado = $2, updated_at = NOW() WHERE id = $1`, id, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
