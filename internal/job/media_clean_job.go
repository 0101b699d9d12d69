package job

import (
	"Murmur/internal/pkg/logger"
	"Murmur/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const mediaCleanupTimeout = 5 * time.Minute

// MediaCleanupJob 清理上传后一直没有被消息引用的聊天媒体
type MediaCleanupJob struct {
	mediaService service.MediaService
}

func NewMediaCleanupJob(mediaService service.MediaService) *MediaCleanupJob {
	return &MediaCleanupJob{mediaService: mediaService}
}

func (s *MediaCleanupJob) Run() {
	ctx, cancel := context.WithTimeout(logger.WithTraceID(context.Background(), "job-"+uuid.NewString()), mediaCleanupTimeout)
	defer cancel()

	log.InfoContext(ctx, "start media cleanup job")
	count, err := s.mediaService.CleanupOrphans(ctx)
	if err != nil {
		log.ErrorContext(ctx, "media cleanup job failed", "err", err)
		return
	}
	if count > 0 {
		log.InfoContext(ctx, "media cleanup job finished", "cleaned_count", count)
	}
}
