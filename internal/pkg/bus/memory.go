package bus

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value    string
	expireAt time.Time
}

// MemoryStore 单进程部署与测试用的实现
type MemoryStore struct {
	mu      sync.Mutex
	data    map[string]memoryEntry
	subs    map[*memorySubscription]struct{}
	now     func() time.Time
	offline bool
}

// NewMemoryStore now 为 nil 时使用 time.Now
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		data: make(map[string]memoryEntry),
		subs: make(map[*memorySubscription]struct{}),
		now:  now,
	}
}

// SetOffline 模拟后端故障，之后所有操作返回 ErrUnavailable
func (s *MemoryStore) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

func (s *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return unavailable("ctx", err)
	}
	if s.offline {
		return unavailable("memory", errOffline)
	}
	return nil
}

var errOffline = errors.New("store offline")

// live 调用方需持有锁
func (s *MemoryStore) live(key string) (memoryEntry, bool) {
	e, ok := s.data[key]
	if !ok {
		return e, false
	}
	if !e.expireAt.IsZero() && !s.now().Before(e.expireAt) {
		delete(s.data, key)
		return e, false
	}
	return e, true
}

func (s *MemoryStore) put(key, value string, ttl time.Duration) {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expireAt = s.now().Add(ttl)
	}
	s.data[key] = e
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.put(key, value, ttl)
	return nil
}

func (s *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return false, err
	}
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.put(key, value, ttl)
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return "", false, err
	}
	e, ok := s.live(key)
	return e.value, ok, nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *MemoryStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var keys []string
	for k := range s.data {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if _, ok := s.live(k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Publish(ctx context.Context, channel string, payload []byte) error {
	s.mu.Lock()
	if err := s.check(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	var targets []*memorySubscription
	for sub := range s.subs {
		if sub.has(channel) {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	body := append([]byte(nil), payload...)
	for _, sub := range targets {
		sub.deliver(Message{Channel: channel, Payload: body})
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	sub := &memorySubscription{
		store:    s,
		channels: make(map[string]struct{}),
		out:      make(chan Message, 1024),
	}
	for _, ch := range channels {
		sub.channels[ch] = struct{}{}
	}
	s.subs[sub] = struct{}{}
	return sub, nil
}

type memorySubscription struct {
	store    *MemoryStore
	mu       sync.Mutex
	channels map[string]struct{}
	out      chan Message
	closed   bool
}

func (s *memorySubscription) has(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channel]
	return ok && !s.closed
}

func (s *memorySubscription) deliver(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- msg:
	default:
	}
}

func (s *memorySubscription) Messages() <-chan Message {
	return s.out
}

func (s *memorySubscription) Add(ctx context.Context, channels ...string) error {
	s.store.mu.Lock()
	err := s.store.check(ctx)
	s.store.mu.Unlock()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		s.channels[ch] = struct{}{}
	}
	return nil
}

func (s *memorySubscription) Remove(_ context.Context, channels ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range channels {
		delete(s.channels, ch)
	}
	return nil
}

func (s *memorySubscription) Close() error {
	s.store.mu.Lock()
	delete(s.store.subs, s)
	s.store.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
	return nil
}
