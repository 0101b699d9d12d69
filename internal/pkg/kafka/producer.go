package kafka

import (
	"Murmur/internal/api/config"
	"Murmur/internal/api/dto"
	"context"
	log "log/slog"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// OfflinePushProducer 把离线推送写入 Kafka，由下游推送服务消费
type OfflinePushProducer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewOfflinePushProducer 连接 broker 并创建同步生产者
func NewOfflinePushProducer(cfg config.KafkaConfig) (*OfflinePushProducer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "create offline push producer")
	}
	return NewOfflinePushProducerWith(producer, cfg.OfflinePushTopic), nil
}

// NewOfflinePushProducerWith 使用外部传入的生产者
func NewOfflinePushProducerWith(producer sarama.SyncProducer, topic string) *OfflinePushProducer {
	return &OfflinePushProducer{producer: producer, topic: topic}
}

// NotifyOffline 以接收方 ID 作为 key 投递
func (s *OfflinePushProducer) NotifyOffline(ctx context.Context, push *dto.OfflinePush) error {
	value, err := json.Marshal(push)
	if err != nil {
		return errors.Wrap(err, "marshal offline push")
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(push.ReceiverID, 10)),
		Value: sarama.ByteEncoder(value),
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrap(err, "send offline push")
	}

	log.DebugContext(ctx, "offline push produced", "receiver_id", push.ReceiverID, "partition", partition, "offset", offset)
	return nil
}

func (s *OfflinePushProducer) Close() error {
	return s.producer.Close()
}
