package main

import (
	"Murmur/internal/api/config"
	"Murmur/internal/pkg/logger"
	"Murmur/internal/pkg/supervisor"
	"context"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	if err := config.LoadConfig(); err != nil {
		log.Error("Fatal error: failed to load configuration", "err", err)
		panic(err)
	}
	cfg := config.Cfg

	logger.InitLogger(cfg.Log, "supervisor")

	// worker 之间共享端口
	env := []string{config.EnvPrefix + "_SERVER_REUSE_PORT=true"}
	launcher := supervisor.ExecLauncher{Binary: cfg.Supervisor.Binary, Env: env}

	sup := supervisor.New(launcher, supervisor.Options{
		Workers:    cfg.Supervisor.Workers,
		MaxBackoff: time.Duration(cfg.Supervisor.MaxBackoffSeconds) * time.Second,
		Grace:      time.Duration(cfg.Supervisor.ShutdownGraceSeconds) * time.Second,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(ctx); err != nil {
		log.Error("Supervisor exited with error", "err", err)
		os.Exit(1)
	}
	log.Info("Supervisor exited successfully.")
}
