package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrJobNotFound = errors.New("job not found")

// Repository is the worker's slice of the job record store: single-row status
// transitions keyed by job id.
type Repository interface {
	MarkProcessing(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID, outputKey, outputFilename string, metaJSON []byte) error
	MarkFailed(ctx context.Context, jobID string, metaJSON []byte) error
}

type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// MarkProcessing is a best-effort claim marker. Terminal rows are left alone.
func (r *PostgresRepo) MarkProcessing(ctx context.Context, jobID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`, jobID)
	return err
}

func (r *PostgresRepo) MarkCompleted(ctx context.Context, jobID, outputKey, outputFilename string, metaJSON []byte) error {
	result, err := r.db.Exec(ctx, `
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
	result, err := r.db.Exec(ctx, `
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

var _ Repository = (*PostgresRepo)(nil)
