package service

import (
	"Murmur/internal/api/dto"
	"context"
	"time"
)

// Emitter 实时事件出口，投递尽力而为，失败由实现方记录日志
type Emitter interface {
	ToUser(ctx context.Context, userID uint64, event string, data interface{})
	ToThread(ctx context.Context, threadID string, event string, data interface{})
	Broadcast(ctx context.Context, event string, data interface{})
}

// PresenceChecker 是否至少有一条存活连接
type PresenceChecker interface {
	IsOnline(ctx context.Context, userID uint64) bool
}

// OfflineNotifier 接收方不在线时投递离线推送
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, push *dto.OfflinePush) error
}

// Cipher 消息正文加解密与媒体令牌
type Cipher interface {
	Encrypt(text string) (string, error)
	Decrypt(ciphertext string) (string, error)
	MintMediaToken(url string) (string, error)
}

// Clock 可注入的时钟
type Clock func() time.Time

type noopNotifier struct{}

// NewNoopNotifier 未配置 Kafka 时使用
func NewNoopNotifier() OfflineNotifier {
	return noopNotifier{}
}

func (noopNotifier) NotifyOffline(context.Context, *dto.OfflinePush) error {
	return nil
}
