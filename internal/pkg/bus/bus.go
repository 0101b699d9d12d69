// Package bus 跨进程共享存储与发布订阅，在线状态和房间广播都经由这里
package bus

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable 后端不可达或超时，调用方应降级为本进程状态
var ErrUnavailable = errors.New("bus: shared store unavailable")

// Message 订阅收到的一条消息
type Message struct {
	Channel string
	Payload []byte
}

// Store 所有 worker 共享的 KV + pub/sub
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX 仅当 key 不存在时写入
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get key 不存在时 found 为 false，err 为 nil
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Delete(ctx context.Context, keys ...string) error
	// Scan 返回所有以 prefix 开头的 key
	Scan(ctx context.Context, prefix string) ([]string, error)
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}

// Subscription 可动态增减频道的订阅
type Subscription interface {
	Messages() <-chan Message
	Add(ctx context.Context, channels ...string) error
	Remove(ctx context.Context, channels ...string) error
	Close() error
}

// IsUnavailable 是否应进入降级模式
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
