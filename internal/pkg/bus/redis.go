package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 500

type redisStore struct {
	rdb       redis.UniversalClient
	opTimeout time.Duration
}

// NewRedisStore opTimeout 为每次操作的超时，<=0 时不额外限制
func NewRedisStore(rdb redis.UniversalClient, opTimeout time.Duration) Store {
	return &redisStore{rdb: rdb, opTimeout: opTimeout}
}

func (s *redisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return unavailable("set", s.rdb.Set(ctx, key, value, ttl).Err())
}

func (s *redisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	return ok, unavailable("setnx", err)
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", err)
	}
	return v, true, nil
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return unavailable("del", s.rdb.Del(ctx, keys...).Err())
}

func (s *redisStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, unavailable("scan", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (s *redisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return unavailable("publish", s.rdb.Publish(ctx, channel, payload).Err())
}

func (s *redisStore) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := s.rdb.Subscribe(ctx, channels...)
	if len(channels) > 0 {
		// 等待订阅确认，确保之后的 Publish 不会丢
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, unavailable("subscribe", err)
		}
	}
	sub := &redisSubscription{ps: ps, out: make(chan Message, 256)}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan Message
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		s.out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}
	}
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.out
}

func (s *redisSubscription) Add(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	return unavailable("subscribe", s.ps.Subscribe(ctx, channels...))
}

func (s *redisSubscription) Remove(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	return unavailable("unsubscribe", s.ps.Unsubscribe(ctx, channels...))
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
