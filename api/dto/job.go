package dto

import "errors"

var ErrJobNotFound = errors.New("job not found")

type JobResponse struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id,omitempty"`
	InputFilename  string `json:"input_filename,omitempty"`
	OutputFilename string `json:"output_filename,omitempty"`
	Status         string `json:"status"`
	Meta           any    `json:"meta,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type PresignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type PresignResponse struct {
	URL   string `json:"url"`
	Key   string `json:"key"`
	JobID string `json:"job_id"`
}

type RegisterUploadRequest struct {
	JobID    string `json:"job_id"`
	Key      string `json:"key"`
	Filename string `json:"filename"`
	Preset   string `json:"preset,omitempty"`
	Priority bool   `json:"priority,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
