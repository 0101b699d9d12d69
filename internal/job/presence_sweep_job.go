package job

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/pkg/bus"
	"Murmur/internal/pkg/consts"
	"Murmur/internal/pkg/logger"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const presenceSweepTimeout = 10 * time.Second

type presenceSweeper interface {
	Sweep(ctx context.Context, interval time.Duration) ([]uint64, error)
}

type broadcaster interface {
	Broadcast(ctx context.Context, event string, data interface{})
}

// PresenceSweepJob 为心跳超时而下线的用户补发 userOffline
type PresenceSweepJob struct {
	presence presenceSweeper
	hub      broadcaster
	interval time.Duration
}

func NewPresenceSweepJob(presence presenceSweeper, hub broadcaster, interval time.Duration) *PresenceSweepJob {
	return &PresenceSweepJob{presence: presence, hub: hub, interval: interval}
}

func (s *PresenceSweepJob) Run() {
	ctx, cancel := context.WithTimeout(logger.WithTraceID(context.Background(), "job-"+uuid.NewString()), presenceSweepTimeout)
	defer cancel()

	expired, err := s.presence.Sweep(ctx, s.interval)
	if err != nil {
		if bus.IsUnavailable(err) {
			log.WarnContext(ctx, "presence sweep skipped, store unavailable", "err", err)
			return
		}
		log.ErrorContext(ctx, "presence sweep failed", "err", err)
		return
	}
	for _, uid := range expired {
		s.hub.Broadcast(ctx, consts.EventUserOffline, &dto.PresenceEvent{UserID: uid})
	}
	if len(expired) > 0 {
		log.InfoContext(ctx, "presence sweep finished", "expired_count", len(expired))
	}
}
