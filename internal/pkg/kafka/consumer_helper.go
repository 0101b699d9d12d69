package kafka

import (
	"Murmur/internal/pkg/logger"
	"context"
	"errors"
	log "log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

const (
	batchSize    = 32
	batchTimeout = 1 * time.Second

	retryInterval    = 100 * time.Millisecond
	maxRetryInterval = 5 * time.Second
	maxAttempts      = 8
)

// ErrSkip 表示消息与当前消费者无关，不需要重试
var ErrSkip = errors.New("kafka: skip message")

type LogicFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

// pullMessageBatch 攒批拉取消息并执行业务逻辑，批满或超时触发一次处理
func pullMessageBatch(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim, logic LogicFunc) error {
	batch := make([]*sarama.ConsumerMessage, 0, batchSize)
	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				if len(batch) > 0 {
					processBatch(session, batch, logic)
				}
				return nil
			}
			batch = append(batch, msg)
			if len(batch) >= batchSize {
				processBatch(session, batch, logic)
				batch = make([]*sarama.ConsumerMessage, 0, batchSize)
				ticker.Reset(batchTimeout)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				processBatch(session, batch, logic)
				batch = make([]*sarama.ConsumerMessage, 0, batchSize)
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// processBatch 并发处理一批消息，全部结束后提交最后一条的 offset
func processBatch(session sarama.ConsumerGroupSession, messages []*sarama.ConsumerMessage, logic LogicFunc) {
	var wg sync.WaitGroup

	for _, msg := range messages {
		wg.Add(1)
		go func(m *sarama.ConsumerMessage) {
			defer wg.Done()
			runWithRetry(session.Context(), m, logic)
		}(msg)
	}

	wg.Wait()

	if session.Context().Err() != nil {
		return
	}
	if len(messages) > 0 {
		session.MarkMessage(messages[len(messages)-1], "")
	}
}

// runWithRetry 指数退避重试，超过 maxAttempts 后丢弃并记录
func runWithRetry(ctx context.Context, m *sarama.ConsumerMessage, logic LogicFunc) {
	ctx = logger.WithTraceID(ctx, m.Topic+"-"+strconv.Itoa(int(m.Partition))+"-"+strconv.FormatInt(m.Offset, 10))
	interval := retryInterval

	for attempt := 1; ; attempt++ {
		err := logic(ctx, m)
		if err == nil || errors.Is(err, ErrSkip) {
			return
		}
		if attempt >= maxAttempts {
			log.ErrorContext(ctx, "drop message after retries", "attempts", attempt, "err", err)
			return
		}
		log.WarnContext(ctx, "process message error", "attempt", attempt, "err", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		interval *= 2
		if interval > maxRetryInterval {
			interval = maxRetryInterval
		}
	}
}

// ToCanalMessage 将 kafka 消息转换为 canal 消息，表名不符或没有数据时返回 ErrSkip
func ToCanalMessage(msg *sarama.ConsumerMessage, tableName string) (*CanalMessage, error) {
	var canalMsg CanalMessage
	if err := json.Unmarshal(msg.Value, &canalMsg); err != nil {
		log.Error("unmarshal canal message error", "err", err)
		return nil, ErrSkip
	}

	if canalMsg.IsDDL || canalMsg.Table != tableName {
		return nil, ErrSkip
	}

	if len(canalMsg.Data) == 0 {
		return nil, ErrSkip
	}

	return &canalMsg, nil
}
