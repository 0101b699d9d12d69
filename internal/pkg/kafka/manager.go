package kafka

import (
	"Murmur/internal/api/config"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
)

// ConsumerManager 管理所有 Kafka 消费者
type ConsumerManager struct {
	blockTopic    string
	blockConsumer sarama.ConsumerGroup
	blockHandler  sarama.ConsumerGroupHandler
}

// NewConsumerManager 构造函数
func NewConsumerManager(cfg *config.Config, applier BlockApplier) (*ConsumerManager, error) {
	saramaCfg := newSaramaConfig(cfg.Kafka)

	blockConsumer, err := sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.KafkaBlockConsumer.GroupID, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &ConsumerManager{
		blockTopic:    cfg.KafkaBlockConsumer.Topic,
		blockConsumer: blockConsumer,
		blockHandler:  NewBlockHandler(applier),
	}, nil
}

// Start 启动所有消费者，阻塞到 ctx 结束
func (m *ConsumerManager) Start(ctx context.Context) error {
	go func() {
		for err := range m.blockConsumer.Errors() {
			log.Error("user blocks consumer error", "err", err)
		}
	}()

	go func() {
		log.Info("user blocks consumer started", "topic", m.blockTopic)
		for {
			if err := m.blockConsumer.Consume(ctx, []string{m.blockTopic}, m.blockHandler); err != nil {
				log.Error("Error from consumer", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	log.Info("Kafka Manager shutting down...")

	if err := m.blockConsumer.Close(); err != nil {
		log.Error("Failed to close user blocks consumer", "err", err)
		return err
	}
	return nil
}
