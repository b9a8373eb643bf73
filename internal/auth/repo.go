package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirim-crm/kirim-crm/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user User) (*User, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error)
	CreatePasswordReset(ctx context.Context, email string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const userColumns = `id, email, name, role, password_hash, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	u.Role = ParseRole(role)
	return &u, nil
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// FindByID fetches a user by ID.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// Create inserts a new account.
func (r *PGRepository) Create(ctx context.Context, user User) (*User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, role, password_hash, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		user.ID, user.Email, user.Name, string(user.Role), user.PasswordHash, user.IsActive, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.ErrEmailTaken
		}
		return nil, err
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return &user, nil
}

// UpdateProfile applies non-nil fields and returns the fresh record.
func (r *PGRepository) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error) {
	if update.Name != nil {
		if _, err := r.pool.Exec(ctx, `UPDATE users SET name = $1, updated_at = NOW() WHERE id = $2`, *update.Name, id); err != nil {
			return nil, err
		}
	}
	if update.Role != nil && update.Role.Valid() {
		if _, err := r.pool.Exec(ctx, `UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2`, string(*update.Role), id); err != nil {
			return nil, err
		}
	}
	return r.FindByID(ctx, id)
}

// CreatePasswordReset stores a reset token for later delivery by the worker.
func (r *PGRepository) CreatePasswordReset(ctx context.Context, email string) error {
	token := uuid.NewString()
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO password_resets (id, user_id, token, expires_at)
		SELECT $1, id, $2, NOW() + INTERVAL '1 hour' FROM users WHERE email = $3`,
		uuid.NewString(), token, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
