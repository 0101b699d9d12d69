package wire

import (
	"Murmur/internal/api"
	"Murmur/internal/api/config"
	"Murmur/internal/api/handler"
	"Murmur/internal/api/middleware"
	"Murmur/internal/job"
	"Murmur/internal/pkg/bus"
	"Murmur/internal/pkg/codec"
	"Murmur/internal/pkg/content"
	"Murmur/internal/pkg/cron"
	"Murmur/internal/pkg/kafka"
	"Murmur/internal/pkg/minio"
	"Murmur/internal/pkg/mongo"
	"Murmur/internal/realtime"
	"Murmur/internal/repository"
	"Murmur/internal/service"
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/gin-gonic/gin"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	Hub          *realtime.Hub
	Gateway      *realtime.Gateway
	CronMgr      *cron.Manager
	KafkaManager *kafka.ConsumerManager // 未配置 brokers 时为 nil
	Producer     *kafka.OfflinePushProducer
}

// Infra 已建立好的外部连接
type Infra struct {
	DB      *gorm.DB
	Mongo   *mongodriver.Database
	Store   bus.Store
	Objects *minio.Store
}

func BuildApplication(ctx context.Context, infra Infra, cfg *config.Config, workerID string) (*ApplicationContainer, error) {
	// 实时层
	hub := realtime.NewHub(infra.Store, workerID)
	if err := hub.Start(ctx); err != nil {
		// 总线不可用时仍可服务本进程连接
		log.Warn("hub started in local mode", "err", err)
	}
	presence := realtime.NewPresence(infra.Store, workerID, time.Duration(cfg.Presence.TTLSeconds)*time.Second)

	cipher, err := codec.New(cfg.Security.EncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("init codec: %w", err)
	}

	// 仓储
	threadRepo := mongo.NewThreadRepo(infra.Mongo)
	messageRepo := mongo.NewMessageRepo(infra.Mongo)
	if err = mongo.EnsureSchema(ctx, threadRepo, messageRepo); err != nil {
		return nil, fmt.Errorf("ensure mongo indexes: %w", err)
	}
	userRepo := repository.NewUserRepo(infra.DB)
	callRepo := repository.NewCallRepo(infra.DB)
	mediaRepo := repository.NewMediaTempRepo(infra.Store)

	// 服务
	imOpts := []service.IMOption{service.WithMediaRepo(mediaRepo)}
	var producer *kafka.OfflinePushProducer
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.OfflinePushTopic != "" {
		producer, err = kafka.NewOfflinePushProducer(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("init offline push producer: %w", err)
		}
		imOpts = append(imOpts, service.WithOfflineNotifier(producer))
	}
	imService := service.NewIMService(
		threadRepo, messageRepo, userRepo,
		cipher, content.NewResolver(cfg.Content),
		hub, presence,
		imOpts...,
	)
	callService := service.NewCallService(callRepo, userRepo, imService, infra.Store, hub, presence, codec.GenerateSessionKey)
	mediaService := service.NewMediaService(
		infra.Objects, mediaRepo, cipher,
		cfg.Security.MediaTokenTTL(),
		time.Duration(cfg.MinIO.PresignMinutes)*time.Minute,
	)

	dispatcher := realtime.NewDispatcher(hub, presence, imService, callService)
	gateway := realtime.NewGateway(hub, presence, dispatcher, cfg.Presence.InboundRPS, cfg.Presence.InboundBurst)
	gateway.SetKeepalive(
		time.Duration(cfg.Presence.PingPeriodSeconds)*time.Second,
		time.Duration(cfg.Presence.PongWaitSeconds)*time.Second,
	)
	auth := middleware.NewAuthenticator(infra.Store)

	handlers := &api.HandlersGroup{
		Auth:          auth,
		IMHandler:     handler.NewIMHandler(imService),
		CallHandler:   handler.NewCallHandler(callService),
		MediaHandler:  handler.NewMediaHandler(mediaService),
		OnlineHandler: handler.NewOnlineHandler(presence),
		WsHandler:     handler.NewWsHandler(auth, gateway),
	}
	router := api.SetupRouter(handlers, cfg.Server.AllowedOrigins...)

	cronMgr := cron.NewCronManager(
		job.NewMediaCleanupJob(mediaService),
		job.NewPresenceSweepJob(presence, hub, cron.PresenceSweepInterval),
	)

	app := &ApplicationContainer{
		Router:   router,
		DB:       infra.DB,
		Hub:      hub,
		Gateway:  gateway,
		CronMgr:  cronMgr,
		Producer: producer,
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.KafkaBlockConsumer.Topic != "" {
		app.KafkaManager, err = kafka.NewConsumerManager(cfg, imService)
		if err != nil {
			return nil, fmt.Errorf("init kafka consumers: %w", err)
		}
	}

	return app, nil
}
