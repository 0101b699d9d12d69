package realtime

import (
	"Murmur/internal/pkg/bus"
	"Murmur/internal/pkg/consts"
	"Murmur/internal/pkg/metrics"
	"context"
	log "log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Presence 在线状态。共享存储里每条连接一个 key：presence:<uid>:<connID> -> workerID，
// 带 TTL 并随心跳续期；用户只要还有一条连接存活就算在线
type Presence struct {
	store    bus.Store
	workerID string
	ttl      time.Duration

	mu    sync.Mutex
	local map[uint64]map[string]struct{}
}

func NewPresence(store bus.Store, workerID string, ttl time.Duration) *Presence {
	return &Presence{
		store:    store,
		workerID: workerID,
		ttl:      ttl,
		local:    make(map[uint64]map[string]struct{}),
	}
}

func userPrefix(userID uint64) string {
	return consts.PresenceKey + strconv.FormatUint(userID, 10) + ":"
}

func goneKey(userID uint64) string {
	return consts.PresenceGoneKey + strconv.FormatUint(userID, 10)
}

func connKey(userID uint64, connID string) string {
	return userPrefix(userID) + connID
}

// parseUserID presence:<uid>:<connID>
func parseUserID(key string) (uint64, bool) {
	rest := strings.TrimPrefix(key, consts.PresenceKey)
	idx := strings.IndexByte(rest, ':')
	if idx <= 0 {
		return 0, false
	}
	uid, err := strconv.ParseUint(rest[:idx], 10, 64)
	return uid, err == nil
}

// Connect 登记连接，返回该用户是否由离线变为在线。
// 先写入自己的 key 再扫描；connID 按时间有序，只有不存在更早连接的那一条负责上报，
// 并发上线时不会漏报，时钟偏差下至多多报一次
func (p *Presence) Connect(ctx context.Context, userID uint64, connID string) bool {
	p.mu.Lock()
	conns, ok := p.local[userID]
	if !ok {
		conns = make(map[string]struct{})
		p.local[userID] = conns
	}
	localBefore := len(conns)
	conns[connID] = struct{}{}
	p.mu.Unlock()

	self := connKey(userID, connID)
	err := p.store.Set(ctx, self, p.workerID, p.ttl)
	var keys []string
	if err == nil {
		keys, err = p.store.Scan(ctx, userPrefix(userID))
	}
	if err != nil {
		p.degraded(ctx, "connect", err)
		return localBefore == 0
	}
	for _, k := range keys {
		if k < self {
			return false
		}
	}
	if err = p.store.Delete(ctx, goneKey(userID)); err != nil {
		p.degraded(ctx, "connect", err)
	}
	return true
}

// Disconnect 注销连接，返回该用户是否已无任何连接
func (p *Presence) Disconnect(ctx context.Context, userID uint64, connID string) bool {
	p.mu.Lock()
	localLeft := 0
	if conns, ok := p.local[userID]; ok {
		delete(conns, connID)
		localLeft = len(conns)
		if localLeft == 0 {
			delete(p.local, userID)
		}
	}
	p.mu.Unlock()

	err := p.store.Delete(ctx, connKey(userID, connID))
	var rest []string
	if err == nil {
		rest, err = p.store.Scan(ctx, userPrefix(userID))
	}
	if err != nil {
		p.degraded(ctx, "disconnect", err)
		return localLeft == 0
	}
	if len(rest) > 0 {
		return false
	}
	// 已经广播过离线，Sweep 不再重复
	if err = p.store.Set(ctx, goneKey(userID), p.workerID, p.ttl); err != nil {
		p.degraded(ctx, "disconnect", err)
	}
	return true
}

// Refresh 心跳续期
func (p *Presence) Refresh(ctx context.Context, userID uint64, connID string) {
	if err := p.store.Set(ctx, connKey(userID, connID), p.workerID, p.ttl); err != nil {
		p.degraded(ctx, "refresh", err)
	}
}

func (p *Presence) IsOnline(ctx context.Context, userID uint64) bool {
	keys, err := p.store.Scan(ctx, userPrefix(userID))
	if err != nil {
		p.degraded(ctx, "is_online", err)
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.local[userID]) > 0
	}
	return len(keys) > 0
}

// ListOnline 升序
func (p *Presence) ListOnline(ctx context.Context) []uint64 {
	keys, err := p.store.Scan(ctx, consts.PresenceKey)
	if err != nil {
		p.degraded(ctx, "list_online", err)
		return p.localUsers()
	}
	return usersOf(keys)
}

func usersOf(keys []string) []uint64 {
	seen := make(map[uint64]struct{}, len(keys))
	out := make([]uint64, 0, len(keys))
	for _, k := range keys {
		uid, ok := parseUserID(k)
		if !ok {
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sweep 返回自上一轮以来因心跳超时而下线的用户。
// 同一时刻只有抢到锁的进程执行，上一轮在线快照保存在共享存储中；
// 已经由 Disconnect 广播过离线的用户会被跳过
func (p *Presence) Sweep(ctx context.Context, interval time.Duration) ([]uint64, error) {
	won, err := p.store.SetNX(ctx, consts.PresenceSweepLockKey, p.workerID, interval/2)
	if err != nil || !won {
		return nil, err
	}

	keys, err := p.store.Scan(ctx, consts.PresenceKey)
	if err != nil {
		return nil, err
	}
	current := usersOf(keys)

	raw, found, err := p.store.Get(ctx, consts.PresenceSnapshotKey)
	if err != nil {
		return nil, err
	}
	var previous []uint64
	if found {
		if err = json.Unmarshal([]byte(raw), &previous); err != nil {
			log.WarnContext(ctx, "presence snapshot corrupt, resetting", "err", err)
			previous = nil
		}
	}

	snapshot, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	if err = p.store.Set(ctx, consts.PresenceSnapshotKey, string(snapshot), 0); err != nil {
		return nil, err
	}

	online := make(map[uint64]struct{}, len(current))
	for _, uid := range current {
		online[uid] = struct{}{}
	}
	var expired []uint64
	for _, uid := range previous {
		if _, ok := online[uid]; ok {
			continue
		}
		_, announced, err := p.store.Get(ctx, goneKey(uid))
		if err != nil {
			return nil, err
		}
		if !announced {
			expired = append(expired, uid)
		}
	}
	return expired, nil
}

func (p *Presence) OnlineCount(ctx context.Context) int {
	return len(p.ListOnline(ctx))
}

func (p *Presence) ConnectionCount(ctx context.Context) int {
	keys, err := p.store.Scan(ctx, consts.PresenceKey)
	if err != nil {
		p.degraded(ctx, "connection_count", err)
		p.mu.Lock()
		defer p.mu.Unlock()
		n := 0
		for _, conns := range p.local {
			n += len(conns)
		}
		return n
	}
	return len(keys)
}

func (p *Presence) localUsers() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint64, 0, len(p.local))
	for uid := range p.local {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Presence) degraded(ctx context.Context, op string, err error) {
	metrics.Degraded.WithLabelValues(op).Inc()
	log.WarnContext(ctx, "presence store unavailable, using local state", "op", op, "worker_id", p.workerID, "err", err)
}
