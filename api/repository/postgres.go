package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"contentEngine/api/database"
	"contentEngine/api/models"
)

type PostgresRepo struct {
	db *database.DB
}

func NewPostgresRepo(db *database.DB) Repository {
	return &PostgresRepo{db: db}
}

// CreateJob inserts a job in the queued state, upserting its owner first so
// the foreign key always holds.
func (r *PostgresRepo) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING
	`, job.UserID)
	if err != nil {
		return err
	}

	row := r.db.Pool.QueryRow(ctx, `
		INSERT INTO jobs (id, user_id, input_key, input_filename, status, meta_json)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, job.ID, job.UserID, job.InputKey, job.InputFilename, job.Status, job.MetaJSON)
	return row.Scan(&job.CreatedAt, &job.UpdatedAt)
}

const jobColumns = `
	id, user_id, input_key, input_filename, output_key, output_filename,
	status, meta_json, created_at, updated_at
`

func (r *PostgresRepo) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *PostgresRepo) ListJobsByUser(ctx context.Context, userID string, limit int) ([]*models.Job, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) MarkProcessing(ctx context.Context, jobID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE jobs SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`, jobID)
	return err
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, jobID, outputKey, outputFilename string, metaJSON []byte) error {
	result, err := r.db.Pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'completed', output_key = $2, output_filename = $3,
		    meta_json = $4, updated_at = now()
		WHERE id = $1
	`, jobID, outputKey, outputFilename, metaJSON)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, jobID string, metaJSON []byte) error {
	result, err := r.db.Pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'failed', output_key = NULL, output_filename = NULL,
		    meta_json = $2, updated_at = now()
		WHERE id = $1
	`, jobID, metaJSON)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.InputKey,
		&job.InputFilename,
		&job.OutputKey,
		&job.OutputFilename,
		&job.Status,
		&job.MetaJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
