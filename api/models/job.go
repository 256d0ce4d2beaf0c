package models

import (
	"time"
)

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job is one unit of video-processing work, tracked from upload through its
// terminal outcome. OutputKey is set if and only if the job completed.
type Job struct {
	ID             string
	UserID         string
	InputKey       string
	InputFilename  string
	OutputKey      *string
	OutputFilename *string
	Status         JobStatus
	MetaJSON       []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
