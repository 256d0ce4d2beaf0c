package repository

import (
	"context"
	"errors"

	"contentEngine/api/models"
)

var ErrJobNotFound = errors.New("job not found")

type Repository interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobsByUser(ctx context.Context, userID string, limit int) ([]*models.Job, error)

	// Status transitions used by the inline processing mode.
	MarkProcessing(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID, outputKey, outputFilename string, metaJSON []byte) error
	MarkFailed(ctx context.Context, jobID string, metaJSON []byte) error
}
