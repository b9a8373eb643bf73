package customers

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/google/uuid"

	"github.com/kirim-crm/kirim-crm/internal/shared"
)

// Customer is a client account of the logistics operation.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateInput carries validated fields for a new customer.
type CreateInput struct {
	Name    string `validate:"required,min=2,max=160"`
	Email   string `validate:"required,email"`
	Phone   string `validate:"omitempty,min=6,max=32"`
	Address string `validate:"omitempty,max=500"`
}

// UpdateInput carries a partial customer change.
type UpdateInput struct {
	Name    *string `validate:"omitempty,min=2,max=160"`
	Phone   *string `validate:"omitempty,min=6,max=32"`
	Address *string `validate:"omitempty,max=500"`
}

// ErrEmailTaken is returned when the customer email already exists.
var ErrEmailTaken = errors.New("customer email already registered")

const customerColumns = `id, name, email, phone, address, created_at, updated_at`

// Repository provides customer persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns customers ordered by creation time, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Customer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindByID returns one customer or shared.ErrNotFound.
func (r *Repository) FindByID(ctx context.Context, id string) (*Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts a customer. A duplicate email maps to ErrEmailTaken.
func (r *Repository) Create(ctx context.Context, in CreateInput) (*Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (id, name, email, phone, address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+customerColumns,
		uuid.NewString(), in.Name, in.Email, in.Phone, in.Address).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return &c, nil
}

// Update applies a partial change and returns the fresh row.
func (r *Repository) Update(ctx context.Context, id string, in UpdateInput) (*Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `
		UPDATE customers
		SET name = COALESCE($2, name),
		    phone = COALESCE($3, phone),
		    address = COALESCE($4, address),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+customerColumns,
		id, in.Name, in.Phone, in.Address).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Count returns the total number of customers.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers`).Scan(&n)
	return n, err
}
