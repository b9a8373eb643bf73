package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirim-crm/kirim-crm/internal/platform/db"
	"github.com/kirim-crm/kirim-crm/internal/shared"
)

// Status is the lifecycle state of a delivery job.
type Status string

const (
	StatusNew        Status = "New"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// transitions encodes the forward-only lifecycle.
var transitions = map[Status]Status{
	StatusNew:        StatusInProgress,
	StatusInProgress: StatusDone,
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to Status) bool {
	return transitions[from] == to
}

// ErrBadTransition is returned for a status change the lifecycle forbids.
var ErrBadTransition = errors.New("invalid status transition")

// Job is one delivery assignment for a customer.
type Job struct {
	ID           string
	CustomerID   string
	CustomerName string
	Description  string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateInput carries validated fields for a new job.
type CreateInput struct {
	CustomerID  string `validate:"required,uuid4"`
	Description string `validate:"required,min=3,max=500"`
}

const jobColumns = `j.id, j.customer_id, c.name, j.description, j.status, j.created_at, j.updated_at`

const jobFrom = ` FROM jobs j JOIN customers c ON c.id = j.customer_id`

// Repository provides job persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.CustomerID, &j.CustomerName, &j.Description, &j.Status, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// List returns jobs ordered by creation time, newest first. An empty status
// filter returns all jobs.
func (r *Repository) List(ctx context.Context, status Status, limit, offset int) ([]Job, error) {
	query := `SELECT ` + jobColumns + jobFrom
	args := []any{limit, offset}
	if status != "" {
		query += ` WHERE j.status = $3`
		args = append(args, string(status))
	}
	query += ` ORDER BY j.created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// FindByID returns one job or shared.ErrNotFound.
func (r *Repository) FindByID(ctx context.Context, id string) (*Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+jobFrom+` WHERE j.id = $1`, id))
}

// Create inserts a job with status New.
func (r *Repository) Create(ctx context.Context, in CreateInput) (*Job, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO jobs (id, customer_id, description, status)
		VALUES ($1, $2, $3, $4)`,
		id, in.CustomerID, in.Description, string(StatusNew))
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// UpdateStatus moves a job to the next lifecycle state. The transition is
// checked inside the transaction against the current row so two concurrent
// updates cannot both succeed.
func (r *Repository) UpdateStatus(ctx context.Context, id string, to Status) (*Job, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadTransition, to)
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var current Status
		if err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrNotFound
			}
			return err
		}
		if !CanTransition(current, to) {
			return fmt.Errorf("%w: %s to %s", ErrBadTransition, current, to)
		}
		_, err := tx.Exec(ctx, `UPDATE jobs SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(to))
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// CountByStatus returns job totals grouped by status.
func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}
