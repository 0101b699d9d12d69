package cron

import (
	"fmt"
	"time"
)

const (
	// MediaCleanupSpec 每小时第 17 分钟执行，秒级表达式
	MediaCleanupSpec = "0 17 * * * *"
	// PresenceSweepSpec 与 PresenceSweepInterval 保持一致，间隔需小于在线状态 TTL
	PresenceSweepSpec     = "@every 15s"
	PresenceSweepInterval = 15 * time.Second
)

// InitCron 注册全部任务后启动引擎
func InitCron(mgr *Manager) error {
	if err := mgr.RegisterJobs(); err != nil {
		return fmt.Errorf("register cron jobs: %w", err)
	}
	mgr.Start()
	return nil
}
