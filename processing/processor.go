package processing

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"contentEngine/blob"
	"contentEngine/media"
)

const exportTitle = "AI Content Engine export"

// JobRecords is the slice of the job store the pipeline writes to.
type JobRecords interface {
	MarkProcessing(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID, outputKey, outputFilename string, metaJSON []byte) error
	MarkFailed(ctx context.Context, jobID string, metaJSON []byte) error
}

// StatusCache is told about every job state transition so cached job views
// never serve a stale status.
type StatusCache interface {
	JobChanged(ctx context.Context, jobID, status string) error
}

// Request describes one unit of work, decoded from a queue message or built
// inline by the API.
type Request struct {
	JobID  string
	Key    string
	Preset string
	UserID string
}

// Result reports what a successful run produced.
type Result struct {
	OutputKey      string
	OutputFilename string
	Params         media.MutationParams
}

// Processor runs the fetch, transform, store, record-update sequence for one
// job. Both the worker loop and the API's inline mode drive it. Processing is
// idempotent: the output key and the transform parameters derive from the job
// id alone, so redelivered jobs are safe overwrites.
type Processor struct {
	records JobRecords
	store   blob.Store
	engine  media.Transformer
	cache   StatusCache
	logger  *zap.Logger
}

func NewProcessor(records JobRecords, store blob.Store, engine media.Transformer, cache StatusCache, logger *zap.Logger) *Processor {
	return &Processor{
		records: records,
		store:   store,
		engine:  engine,
		cache:   cache,
		logger:  logger,
	}
}

type completedMeta struct {
	ProcessedKey string               `json:"processedKey"`
	ThumbKey     string               `json:"thumbKey,omitempty"`
	Preset       string               `json:"preset,omitempty"`
	ProcessedAt  string               `json:"processedAt"`
	Transform    media.MutationParams `json:"transform"`
	Before       json.RawMessage      `json:"before,omitempty"`
	After        json.RawMessage      `json:"after,omitempty"`
}

// ErrorDetail is the structured failure payload written into meta_json.
type ErrorDetail struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	ExitCode *int   `json:"exitCode,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	Command  string `json:"command,omitempty"`
	Timeout  bool   `json:"timeout,omitempty"`
}

// Process runs one job to its terminal state. The returned error reports the
// job outcome to the caller; the failed status and error detail have already
// been recorded by the time it returns.
func (p *Processor) Process(ctx context.Context, req Request) (*Result, error) {
	p.logger.Info("processing job",
		zap.String("job_id", req.JobID),
		zap.String("key", req.Key),
		zap.String("preset", req.Preset),
	)

	if err := p.records.MarkProcessing(ctx, req.JobID); err != nil {
		p.logger.Warn("mark processing failed", zap.String("job_id", req.JobID), zap.Error(err))
	}
	p.setStatus(ctx, req.JobID, "processing")

	inputPath, err := p.store.Fetch(ctx, req.Key)
	if err != nil {
		return nil, p.fail(ctx, req, err)
	}
	defer os.Remove(inputPath)

	before := p.probe(ctx, inputPath)

	params := media.DeriveMutation(req.JobID)
	outputPath, err := p.engine.Rewrite(ctx, inputPath, media.RewriteOptions{
		Overrides: media.Overrides{
			Title:        exportTitle,
			Comment:      "job_id=" + req.JobID,
			CreationTime: time.Now().UTC().Format(time.RFC3339),
		},
		Mutate: true,
		Seed:   req.JobID,
	})
	if err != nil {
		return nil, p.fail(ctx, req, err)
	}
	defer os.Remove(outputPath)

	after := p.probe(ctx, outputPath)

	processedKey := blob.ProcessedKey(req.JobID, filepath.Ext(req.Key))
	if err := p.store.Store(ctx, outputPath, processedKey, blob.ContentTypeFor(processedKey)); err != nil {
		return nil, p.fail(ctx, req, err)
	}

	thumbKey := p.makeThumbnail(ctx, req.JobID, outputPath)

	meta := completedMeta{
		ProcessedKey: processedKey,
		ThumbKey:     thumbKey,
		Preset:       req.Preset,
		ProcessedAt:  time.Now().UTC().Format(time.RFC3339),
		Transform:    params,
		Before:       before,
		After:        after,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, p.fail(ctx, req, err)
	}

	outputFilename := filepath.Base(outputPath)
	// The job outcome is already determined; a failed record write is logged,
	// not propagated.
	if err := p.records.MarkCompleted(ctx, req.JobID, processedKey, outputFilename, metaJSON); err != nil {
		p.logger.Error("record update failed after completion",
			zap.String("job_id", req.JobID), zap.Error(err))
	}
	p.setStatus(ctx, req.JobID, "completed")

	p.logger.Info("job completed",
		zap.String("job_id", req.JobID),
		zap.String("output_key", processedKey),
		zap.Float64("pitch_delta", params.PitchDelta),
	)
	return &Result{OutputKey: processedKey, OutputFilename: outputFilename, Params: params}, nil
}

func (p *Processor) fail(ctx context.Context, req Request, cause error) error {
	metaJSON, err := json.Marshal(map[string]ErrorDetail{"error": Classify(cause)})
	if err != nil {
		metaJSON = []byte(`{"error":{"kind":"internal","message":"failed to encode error detail"}}`)
	}
	if err := p.records.MarkFailed(ctx, req.JobID, metaJSON); err != nil {
		p.logger.Error("record update failed after failure",
			zap.String("job_id", req.JobID), zap.Error(err))
	}
	p.setStatus(ctx, req.JobID, "failed")

	p.logger.Error("job failed", zap.String("job_id", req.JobID), zap.Error(cause))
	return cause
}

// Classify maps a pipeline error onto its audit payload, keeping exit code,
// stderr excerpt and command for transcode failures.
func Classify(err error) ErrorDetail {
	var terr *media.TranscodeError
	var serr *blob.StorageError
	switch {
	case errors.As(err, &terr):
		code := terr.ExitCode
		return ErrorDetail{
			Kind:     "transcode",
			Message:  terr.Error(),
			ExitCode: &code,
			Stderr:   truncate(terr.Stderr, 2000),
			Command:  terr.Command(),
			Timeout:  terr.Timeout,
		}
	case errors.As(err, &serr):
		return ErrorDetail{Kind: "storage", Message: serr.Error()}
	default:
		return ErrorDetail{Kind: "internal", Message: err.Error()}
	}
}

func (p *Processor) probe(ctx context.Context, path string) json.RawMessage {
	result, err := p.engine.Probe(ctx, path)
	if err != nil {
		// Best-effort: probe output is audit data only.
		p.logger.Warn("probe failed", zap.String("path", path), zap.Error(err))
		return nil
	}
	return json.RawMessage(result.RawJSON)
}

func (p *Processor) setStatus(ctx context.Context, jobID, status string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.JobChanged(ctx, jobID, status); err != nil {
		p.logger.Warn("status cache update failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
