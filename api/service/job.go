package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contentEngine/api/cache"
	"contentEngine/api/dto"
	"contentEngine/api/models"
	"contentEngine/api/queue"
	"contentEngine/api/repository"
	"contentEngine/api/validation"
	"contentEngine/blob"
	"contentEngine/processing"
)

// ErrOutputNotReady means the job has no downloadable output yet.
var ErrOutputNotReady = errors.New("job output not ready")

const listLimit = 50

type JobService struct {
	repo        repository.Repository
	cache       *cache.StatusCache
	producer    queue.Producer
	store       blob.Store
	bucket      string
	presignTTL  time.Duration
	maxFileSize int64
	logger      *zap.Logger

	// inline, when set, runs the transform pipeline synchronously instead of
	// enqueueing. Degraded-availability fallback; same idempotence and
	// overwrite guarantees as the worker path.
	inline *processing.Processor
}

func NewJobService(
	repo repository.Repository,
	statusCache *cache.StatusCache,
	producer queue.Producer,
	store blob.Store,
	bucket string,
	presignTTL time.Duration,
	maxFileSize int64,
	inline *processing.Processor,
	logger *zap.Logger,
) *JobService {
	return &JobService{
		repo:        repo,
		cache:       statusCache,
		producer:    producer,
		store:       store,
		bucket:      bucket,
		presignTTL:  presignTTL,
		maxFileSize: maxFileSize,
		inline:      inline,
		logger:      logger,
	}
}

type CreateJobInput struct {
	UserID      string
	Filename    string
	LocalPath   string // scratch file already written by the handler
	Size        int64
	ContentType string
	Preset      string
	Priority    bool
}

type uploadMeta struct {
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	Type         string `json:"type,omitempty"`
	UploadedAt   string `json:"uploadedAt"`
}

// CreateJob stores the uploaded blob, records the job as queued and hands it
// to the worker (or the inline pipeline).
func (s *JobService) CreateJob(ctx context.Context, in CreateJobInput) (*dto.JobResponse, error) {
	jobID := uuid.New().String()
	key := blob.UploadKey(in.UserID, jobID, in.Filename, time.Now())

	if err := s.store.Store(ctx, in.LocalPath, key, in.ContentType); err != nil {
		return nil, err
	}

	job, err := s.insertQueued(ctx, jobID, in.UserID, key, in.Filename, in.Size, in.ContentType)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, job, in.Preset, in.Priority)
}

// RegisterUpload records a job for a blob the client already PUT directly
// via a presigned URL. The object must exist and respect the upload size
// limit; a presigned PUT cannot carry a length bound, so it is checked here.
func (s *JobService) RegisterUpload(ctx context.Context, userID string, req *dto.RegisterUploadRequest) (*dto.JobResponse, error) {
	size, err := s.store.Stat(ctx, req.Key)
	if err != nil {
		return nil, err
	}
	if s.maxFileSize > 0 && size > s.maxFileSize {
		return nil, validation.ErrFileTooLarge
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.New().String()
	}

	job, err := s.insertQueued(ctx, jobID, userID, req.Key, req.Filename, size, blob.ContentTypeFor(req.Filename))
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, job, req.Preset, req.Priority)
}

func (s *JobService) insertQueued(ctx context.Context, jobID, userID, key, filename string, size int64, contentType string) (*models.Job, error) {
	meta, err := json.Marshal(uploadMeta{
		OriginalName: filename,
		Size:         size,
		Type:         contentType,
		UploadedAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:            jobID,
		UserID:        userID,
		InputKey:      key,
		InputFilename: filename,
		Status:        models.StatusQueued,
		MetaJSON:      meta,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobService) dispatch(ctx context.Context, job *models.Job, preset string, priority bool) (*dto.JobResponse, error) {
	if preset == "" {
		preset = "default"
	}

	if s.inline != nil {
		// The pipeline records the terminal outcome itself; re-read the row
		// so the caller sees it.
		if _, err := s.inline.Process(ctx, processing.Request{
			JobID:  job.ID,
			Key:    job.InputKey,
			Preset: preset,
			UserID: job.UserID,
		}); err != nil {
			s.logger.Warn("inline processing failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		if refreshed, err := s.repo.GetJob(ctx, job.ID); err == nil {
			job = refreshed
		}
		resp := s.toResponse(job)
		s.cacheView(ctx, resp)
		return resp, nil
	}

	if err := s.producer.Enqueue(ctx, &queue.JobMessage{
		JobID:    job.ID,
		Bucket:   s.bucket,
		Key:      job.InputKey,
		Preset:   preset,
		UserID:   job.UserID,
		Priority: priority,
	}); err != nil {
		return nil, err
	}
	resp := s.toResponse(job)
	s.cacheView(ctx, resp)
	return resp, nil
}

// GetJob answers from the view cache when possible, falling back to the
// record store. Cached entries hold the full response document, so both
// paths serve the same shape; the worker invalidates an entry on every
// state transition.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*dto.JobResponse, error) {
	if resp, err := s.cache.GetJob(ctx, jobID); err == nil {
		return resp, nil
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, dto.ErrJobNotFound
		}
		return nil, err
	}
	resp := s.toResponse(job)
	s.cacheView(ctx, resp)
	return resp, nil
}

func (s *JobService) ListJobs(ctx context.Context, userID string) (*dto.JobListResponse, error) {
	jobs, err := s.repo.ListJobsByUser(ctx, userID, listLimit)
	if err != nil {
		return nil, err
	}
	resp := &dto.JobListResponse{Jobs: make([]dto.JobResponse, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, *s.toResponse(job))
	}
	return resp, nil
}

// Presign mints a direct-PUT upload URL and the job id that will own the
// uploaded key.
func (s *JobService) Presign(ctx context.Context, userID string, req *dto.PresignRequest) (*dto.PresignResponse, error) {
	jobID := uuid.New().String()
	key := blob.UploadKey(userID, jobID, req.Filename, time.Now())

	contentType := req.ContentType
	if contentType == "" {
		contentType = blob.ContentTypeFor(req.Filename)
	}
	u, err := s.store.PresignPut(ctx, key, contentType, s.presignTTL)
	if err != nil {
		return nil, err
	}
	return &dto.PresignResponse{URL: u.String(), Key: key, JobID: jobID}, nil
}

// DownloadURL resolves a completed job's output to a time-limited URL.
func (s *JobService) DownloadURL(ctx context.Context, jobID string) (string, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return "", dto.ErrJobNotFound
		}
		return "", err
	}
	if job.Status != models.StatusCompleted || job.OutputKey == nil {
		return "", ErrOutputNotReady
	}

	u, err := s.store.PresignGet(ctx, *job.OutputKey, s.presignTTL)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *JobService) cacheView(ctx context.Context, resp *dto.JobResponse) {
	if err := s.cache.SetJob(ctx, resp); err != nil {
		s.logger.Warn("job view cache update failed", zap.String("job_id", resp.ID), zap.Error(err))
	}
}

func (s *JobService) toResponse(job *models.Job) *dto.JobResponse {
	resp := &dto.JobResponse{
		ID:            job.ID,
		UserID:        job.UserID,
		InputFilename: job.InputFilename,
		Status:        string(job.Status),
		CreatedAt:     job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     job.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if job.OutputFilename != nil {
		resp.OutputFilename = *job.OutputFilename
	}
	if len(job.MetaJSON) > 0 {
		var meta any
		if err := json.Unmarshal(job.MetaJSON, &meta); err == nil {
			resp.Meta = meta
		}
	}
	return resp
}
