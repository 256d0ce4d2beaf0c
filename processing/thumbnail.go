package processing

import (
	"context"
	"os"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"contentEngine/blob"
)

const thumbnailWidth = 320

// makeThumbnail extracts a poster frame from the processed output, downsizes
// it and stores it as a dashboard preview. Best-effort: a thumbnail failure
// never fails the job. Returns the stored key, or "" when skipped.
func (p *Processor) makeThumbnail(ctx context.Context, jobID, videoPath string) string {
	framePath := videoPath + "_frame.jpg"
	if err := p.engine.ExtractFrame(ctx, videoPath, framePath); err != nil {
		p.logger.Warn("thumbnail frame extraction failed", zap.String("job_id", jobID), zap.Error(err))
		return ""
	}
	defer os.Remove(framePath)

	frame, err := imaging.Open(framePath)
	if err != nil {
		p.logger.Warn("thumbnail decode failed", zap.String("job_id", jobID), zap.Error(err))
		return ""
	}

	thumbPath := videoPath + "_thumb.jpg"
	thumb := imaging.Resize(frame, thumbnailWidth, 0, imaging.Lanczos)
	if err := imaging.Save(thumb, thumbPath, imaging.JPEGQuality(85)); err != nil {
		p.logger.Warn("thumbnail encode failed", zap.String("job_id", jobID), zap.Error(err))
		return ""
	}
	defer os.Remove(thumbPath)

	key := blob.ThumbKey(jobID)
	if err := p.store.Store(ctx, thumbPath, key, "image/jpeg"); err != nil {
		p.logger.Warn("thumbnail upload failed", zap.String("job_id", jobID), zap.Error(err))
		return ""
	}
	return key
}
