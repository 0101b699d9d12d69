package cron

import (
	"context"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine           *cron.Cron
	mediaCleanupJob  cron.Job
	presenceSweepJob cron.Job
}

func NewCronManager(mediaCleanupJob, presenceSweepJob cron.Job) *Manager {
	return &Manager{
		engine: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		mediaCleanupJob:  mediaCleanupJob,
		presenceSweepJob: presenceSweepJob,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(MediaCleanupSpec, s.mediaCleanupJob); err != nil {
		return err
	}
	if _, err := s.engine.AddJob(PresenceSweepSpec, s.presenceSweepJob); err != nil {
		return err
	}
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动", "jobs", len(s.engine.Entries()))
	s.engine.Start()
}

// Stop 等待正在执行的任务结束或 ctx 超时
func (s *Manager) Stop(ctx context.Context) {
	log.Info("Cron 定时任务引擎停止")
	select {
	case <-s.engine.Stop().Done():
	case <-ctx.Done():
		log.Warn("cron jobs still running at shutdown")
	}
}
