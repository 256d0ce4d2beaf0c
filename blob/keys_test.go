package blob

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUploadKey(t *testing.T) {
	now := time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC)
	key := UploadKey("u1", "job-1", "my clip.mp4", now)
	assert.Equal(t, "uploads/u1/2026/09/01/job-1-my_clip.mp4", key)
}

func TestUploadKey_StripsPathComponents(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	key := UploadKey("u1", "job-1", "../../etc/passwd.mp4", now)
	assert.Equal(t, "uploads/u1/2026/09/01/job-1-passwd.mp4", key)
}

func TestProcessedKey(t *testing.T) {
	assert.Equal(t, "processed/job-1.mp4", ProcessedKey("job-1", ".mp4"))
	assert.Equal(t, "processed/job-1.mov", ProcessedKey("job-1", "mov"))
	assert.Equal(t, "processed/job-1.webm", ProcessedKey("job-1", ".WEBM"))
	assert.Equal(t, "processed/job-1.mp4", ProcessedKey("job-1", ""))
}

func TestThumbKey(t *testing.T) {
	assert.Equal(t, "thumbs/job-1.jpg", ThumbKey("job-1"))
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"clip.mp4":           "video/mp4",
		"clip.MOV":           "video/quicktime",
		"clip.webm":          "video/webm",
		"thumbs/job-1.jpg":   "image/jpeg",
		"processed/job.mkv":  "application/octet-stream",
		"no-extension":       "application/octet-stream",
		"processed/j-1.webm": "video/webm",
	}
	for name, want := range cases {
		assert.Equal(t, want, ContentTypeFor(name), name)
	}
}
