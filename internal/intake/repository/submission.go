package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicpulse/receipts/internal/intake/model"
)

// ErrNotFound is returned when a submission is not found.
var ErrNotFound = errors.New("submission not found")

const submissionColumns = `id, intent, text, status, priority, language,
	latitude, longitude, created_at, updated_at, deleted_at`

// SubmissionRepository stores submissions in PostgreSQL.
type SubmissionRepository struct {
	db *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(db *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts s and fills in its generated id and timestamps.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	query := `
		INSERT INTO submissions (intent, text, status, priority, language, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return r.db.QueryRow(ctx, query,
		string(s.Intent), s.Text, string(s.Status), string(s.Priority),
		s.Language, s.Latitude, s.Longitude,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a submission, including soft-deleted ones.
func (r *SubmissionRepository) GetByID(ctx context.Context, id int64) (*model.Submission, error) {
	row := r.db.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	return scanOne(row)
}

// List returns live submissions newest first, optionally filtered by status.
func (r *SubmissionRepository) List(ctx context.Context, status model.Status, limit, offset int) ([]*model.Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + submissionColumns + ` FROM submissions
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR status = $1)
		ORDER BY id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Submission
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateStatus sets the status of a live submission.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id int64, status model.Status) (*model.Submission, error) {
	query := `
		UPDATE submissions SET status = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + submissionColumns
	return scanOne(r.db.QueryRow(ctx, query, id, string(status)))
}

// SoftDelete marks a live submission as withdrawn. Its receipt stays verifiable.
func (r *SubmissionRepository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE submissions SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Discard hard-deletes a submission that never received a receipt.
func (r *SubmissionRepository) Discard(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	return err
}

func scanOne(row pgx.Row) (*model.Submission, error) {
	s, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func scan(row pgx.Row) (*model.Submission, error) {
	var (
		s                        model.Submission
		intent, status, priority string
		deletedAt                *time.Time
	)
	err := row.Scan(
		&s.ID, &intent, &s.Text, &status, &priority, &s.Language,
		&s.Latitude, &s.Longitude, &s.CreatedAt, &s.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Intent = model.Intent(intent)
	s.Status = model.Status(status)
	s.Priority = model.Priority(priority)
	s.DeletedAt = deletedAt
	return &s, nil
}
