package main

import (
	"Murmur/internal/api/config"
	"Murmur/internal/pkg/bus"
	"Murmur/internal/pkg/cron"
	"Murmur/internal/pkg/database"
	"Murmur/internal/pkg/logger"
	"Murmur/internal/pkg/minio"
	"Murmur/internal/pkg/mongo"
	"Murmur/internal/pkg/redis"
	"Murmur/internal/pkg/security"
	"Murmur/internal/pkg/server"
	"Murmur/internal/wire"
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

func main() {
	// 加载配置
	if err := config.LoadConfig(); err != nil {
		log.Error("Fatal error: failed to load configuration", "err", err)
		panic(err)
	}
	cfg := config.Cfg

	// supervisor 通过环境变量下发 worker 编号
	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		workerID = cfg.Server.WorkerID
	}

	// 初始化日志
	logger.InitLogger(cfg.Log, workerID)
	if workerID == "" {
		workerID = "0"
	}

	if cfg.Security.JWTSecret == "" || cfg.Security.EncryptionSecret == "" {
		err := errors.New("security.jwt_secret and security.encryption_secret are required")
		log.Error("Fatal error: invalid configuration", "err", err)
		panic(err)
	}
	security.SetSecret(cfg.Security.JWTSecret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 数据库连接
	dbCfg := cfg.DB
	db, err := database.NewGormDB(&dbCfg)
	if err != nil {
		log.Error("Fatal error: failed to create database connection", "err", err)
		panic(err)
	}
	if err = database.Migrate(db); err != nil {
		log.Error("Fatal error: failed to migrate database", "err", err)
		panic(err)
	}

	// Redis 连接，未配置时单进程运行
	var store bus.Store
	if cfg.Redis.Addr != "" {
		rdb, err := redis.InitRedis(cfg.Redis)
		if err != nil {
			log.Error("Fatal error: failed to create redis connection", "err", err)
			panic(err)
		}
		store = bus.NewRedisStore(rdb, cfg.Redis.OpTimeout())
	} else {
		log.Warn("redis not configured, presence and fan-out are process local")
		store = bus.NewMemoryStore(time.Now)
	}

	// Mongo 连接
	mongoConn, err := mongo.InitMongo(cfg.Mongo)
	if err != nil {
		log.Error("Fatal error: failed to create mongo connection", "err", err)
		panic(err)
	}

	// MinIO 连接
	objects, err := minio.Init(ctx, cfg.MinIO)
	if err != nil {
		log.Error("Fatal error: failed to initialize MinIO", "err", err)
		panic(err)
	}

	// 依赖注入
	app, err := wire.BuildApplication(ctx, wire.Infra{
		DB:      db,
		Mongo:   mongoConn,
		Store:   store,
		Objects: objects,
	}, cfg, workerID)
	if err != nil {
		log.Error("Fatal error: failed to create application", "err", err)
		panic(err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// 定时任务
	if err = cron.InitCron(app.CronMgr); err != nil {
		log.Error("Fatal error: failed to start cron jobs", "err", err)
		panic(err)
	}
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Cron Jobs stopping...")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		app.CronMgr.Stop(stopCtx)
		return nil
	})

	// Kafka 消费者
	if app.KafkaManager != nil {
		g.Go(func() error {
			log.Info("Kafka Consumers starting...")
			return app.KafkaManager.Start(ctx)
		})
	}

	// HTTP 服务器
	ln, err := server.Listen(ctx, cfg.Server.Port, cfg.Server.ReusePort)
	if err != nil {
		log.Error("Fatal error: failed to listen", "port", cfg.Server.Port, "err", err)
		panic(err)
	}
	srv := &http.Server{
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Info("HTTP Server starting...", "addr", ln.Addr().String(), "reuse_port", cfg.Server.ReusePort)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 优雅退出
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-ctx.Done():
		case sig := <-quit:
			log.Info("Received signal, shutting down...", "signal", sig)
			cancel()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP Server shutdown failed", "err", err)
		}
		// 已升级的 websocket 不受 Shutdown 管理，逐个关闭并广播离线后再断开总线
		if err := app.Gateway.Drain(shutdownCtx); err != nil {
			log.Warn("WebSocket drain incomplete", "err", err)
		}
		if err := app.Hub.Close(); err != nil {
			log.Warn("Hub close failed", "err", err)
		}
		if app.Producer != nil {
			if err := app.Producer.Close(); err != nil {
				log.Warn("Offline push producer close failed", "err", err)
			}
		}
		return nil
	})

	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("App exited with error", "err", err)
	}
	log.Info("App exited successfully.")
}
