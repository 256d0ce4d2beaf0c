package blob

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// UploadKey builds the input object key:
// uploads/{userId}/{yyyy/mm/dd}/{jobId}-{filename}.
func UploadKey(userID, jobID, filename string, now time.Time) string {
	return fmt.Sprintf("uploads/%s/%s/%s-%s",
		userID, now.UTC().Format("2006/01/02"), jobID, sanitizeFilename(filename))
}

// ProcessedKey builds the deterministic output key for a job:
// processed/{jobId}{ext}. Re-processing the same job overwrites rather than
// duplicates.
func ProcessedKey(jobID, ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" {
		ext = ".mp4"
	} else if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return "processed/" + jobID + ext
}

// ThumbKey builds the dashboard preview key for a job.
func ThumbKey(jobID string) string {
	return "thumbs/" + jobID + ".jpg"
}

// ContentTypeFor maps a video filename onto its MIME type.
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

func sanitizeFilename(filename string) string {
	name := filepath.Base(filename)
	return strings.ReplaceAll(name, " ", "_")
}
