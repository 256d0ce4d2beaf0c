package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"contentEngine/api/dto"
	"contentEngine/api/middleware"
	"contentEngine/api/service"
	"contentEngine/api/validation"
	"contentEngine/blob"
)

const anonymousUser = "anonymous"

// JobService is the service surface the handlers depend on.
type JobService interface {
	CreateJob(ctx context.Context, in service.CreateJobInput) (*dto.JobResponse, error)
	RegisterUpload(ctx context.Context, userID string, req *dto.RegisterUploadRequest) (*dto.JobResponse, error)
	GetJob(ctx context.Context, jobID string) (*dto.JobResponse, error)
	ListJobs(ctx context.Context, userID string) (*dto.JobListResponse, error)
	Presign(ctx context.Context, userID string, req *dto.PresignRequest) (*dto.PresignResponse, error)
	DownloadURL(ctx context.Context, jobID string) (string, error)
}

type JobHandler struct {
	service     JobService
	logger      *zap.Logger
	maxFileSize int64
	scratchDir  string
}

func NewJobHandler(service JobService, logger *zap.Logger, maxFileSize int64, scratchDir string) *JobHandler {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &JobHandler{
		service:     service,
		logger:      logger,
		maxFileSize: maxFileSize,
		scratchDir:  scratchDir,
	}
}

// Upload accepts a multipart video upload and creates its processing job.
func (h *JobHandler) Upload(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.handleError(w, "Failed to parse form", err, traceID, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.handleError(w, "File missing", err, traceID, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := h.validateUpload(header, file); err != nil {
		h.handleError(w, "Invalid file", err, traceID, http.StatusBadRequest)
		return
	}

	localPath, err := h.saveScratch(file)
	if err != nil {
		h.handleError(w, "Failed to save file", err, traceID, http.StatusInternalServerError)
		return
	}
	defer os.Remove(localPath)

	priority, _ := strconv.ParseBool(r.FormValue("priority"))
	resp, err := h.service.CreateJob(r.Context(), service.CreateJobInput{
		UserID:      userID(r),
		Filename:    header.Filename,
		LocalPath:   localPath,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		Preset:      r.FormValue("preset"),
		Priority:    priority,
	})
	if err != nil {
		h.handleError(w, "Failed to create job", err, traceID, http.StatusInternalServerError)
		return
	}

	h.logger.Info("upload accepted",
		zap.String("trace_id", traceID),
		zap.String("job_id", resp.ID),
		zap.String("filename", header.Filename),
	)
	h.respondJSON(w, http.StatusCreated, resp)
}

// Presign mints a direct-PUT upload URL.
func (h *JobHandler) Presign(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.PresignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}
	if req.Filename == "" || !validation.IsAllowedExtension(req.Filename) {
		h.handleError(w, "Invalid filename", validation.ErrUnsupportedFormat, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.Presign(r.Context(), userID(r), &req)
	if err != nil {
		h.handleError(w, "Failed to presign upload", err, traceID, http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// RegisterUpload creates a job for a blob already uploaded via a presigned
// URL.
func (h *JobHandler) RegisterUpload(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.RegisterUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}
	if req.Key == "" || req.Filename == "" {
		h.handleError(w, "Key and filename are required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.RegisterUpload(r.Context(), userID(r), &req)
	if err != nil {
		var serr *blob.StorageError
		switch {
		case errors.Is(err, validation.ErrFileTooLarge):
			h.handleError(w, "File exceeds the upload limit", err, traceID, http.StatusBadRequest)
		case errors.As(err, &serr):
			h.handleError(w, "Uploaded object not found", err, traceID, http.StatusBadRequest)
		default:
			h.handleError(w, "Failed to create job", err, traceID, http.StatusInternalServerError)
		}
		return
	}
	h.respondJSON(w, http.StatusCreated, resp)
}

// Status returns one job.
func (h *JobHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		h.handleError(w, "Job ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, dto.ErrJobNotFound) {
			h.handleError(w, "Job not found", err, traceID, http.StatusNotFound)
			return
		}
		h.handleError(w, "Failed to get job", err, traceID, http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// List returns the caller's recent jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.ListJobs(r.Context(), userID(r))
	if err != nil {
		h.handleError(w, "Failed to list jobs", err, traceID, http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// Download redirects to a time-limited URL for a completed job's output.
func (h *JobHandler) Download(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		h.handleError(w, "Job ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	url, err := h.service.DownloadURL(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, dto.ErrJobNotFound):
			h.handleError(w, "Job not found", err, traceID, http.StatusNotFound)
		case errors.Is(err, service.ErrOutputNotReady):
			h.handleError(w, "Job output not ready", err, traceID, http.StatusConflict)
		default:
			h.handleError(w, "Failed to resolve download", err, traceID, http.StatusInternalServerError)
		}
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *JobHandler) validateUpload(header *multipart.FileHeader, file multipart.File) error {
	if header.Size > h.maxFileSize {
		return validation.ErrFileTooLarge
	}
	if !validation.IsAllowedExtension(header.Filename) {
		return validation.ErrUnsupportedFormat
	}
	if _, err := validation.DetectVideoType(file); err != nil {
		return err
	}
	return nil
}

func (h *JobHandler) saveScratch(file multipart.File) (string, error) {
	dst, err := os.CreateTemp(h.scratchDir, "upload-*")
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// userID identifies the caller. Authentication lives upstream; this service
// only needs an owner reference.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return anonymousUser
}

func (h *JobHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *JobHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
