// Package realtime websocket 连接注册表、跨进程房间广播与在线状态
package realtime

import (
	"Murmur/internal/pkg/bus"
	"Murmur/internal/pkg/consts"
	"Murmur/internal/pkg/metrics"
	"context"
	"errors"
	log "log/slog"
	"strconv"
	"sync"

	"github.com/goccy/go-json"
)

// PersonalRoom 用户所有连接都会加入的房间
func PersonalRoom(userID uint64) string {
	return consts.PersonalRoomPrefix + strconv.FormatUint(userID, 10)
}

// ThreadRoom 会话房间
func ThreadRoom(threadID string) string {
	return consts.ThreadRoomPrefix + threadID
}

func roomChannel(room string) string {
	if room == "" {
		return consts.BroadcastChannel
	}
	return consts.RoomChannelKey + room
}

// envelope 总线上传输的结构，Room 为空表示全体广播
type envelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Hub 本进程的连接注册表。所有投递先发布到共享总线，再由各进程的订阅转发给本地成员；
// 总线不可用时退化为只投递本进程
type Hub struct {
	store    bus.Store
	workerID string

	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[string]*Client

	// subMu 串行化订阅变更，subscribed 记录已在总线上订阅的房间
	subMu      sync.Mutex
	sub        bus.Subscription
	subscribed map[string]bool
}

func NewHub(store bus.Store, workerID string) *Hub {
	return &Hub{
		store:      store,
		workerID:   workerID,
		rooms:      make(map[string]map[*Client]struct{}),
		clients:    make(map[string]*Client),
		subscribed: make(map[string]bool),
	}
}

// Start 订阅全体广播频道并开始转发；订阅失败时 Hub 以本地模式工作
func (h *Hub) Start(ctx context.Context) error {
	sub, err := h.store.Subscribe(ctx, consts.BroadcastChannel)
	if err != nil {
		metrics.Degraded.WithLabelValues("subscribe").Inc()
		log.WarnContext(ctx, "hub subscribe failed, local delivery only", "worker_id", h.workerID, "err", err)
		return err
	}

	h.subMu.Lock()
	h.sub = sub
	h.mu.RLock()
	var rooms []string
	for room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.mu.RUnlock()
	h.subMu.Unlock()

	for _, room := range rooms {
		h.syncRoom(ctx, room)
	}
	go h.pump(sub)
	return nil
}

// Close 停止转发
func (h *Hub) Close() error {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	if h.sub == nil {
		return nil
	}
	err := h.sub.Close()
	h.sub = nil
	h.subscribed = make(map[string]bool)
	return err
}

// CloseAll 关闭本进程的全部连接，返回关闭的数量；各连接随后走正常的断开流程
func (h *Hub) CloseAll() int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
	return len(clients)
}

func (h *Hub) pump(sub bus.Subscription) {
	for msg := range sub.Messages() {
		var env envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			log.Warn("hub drop malformed envelope", "channel", msg.Channel, "err", err)
			continue
		}
		h.deliverLocal(env.Room, env.Payload)
	}
}

// Register 加入个人房间
func (h *Hub) Register(ctx context.Context, c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	metrics.Connections.Inc()
	h.Join(ctx, c, PersonalRoom(c.userID))
}

// Unregister 离开所有房间
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
		h.removeLocked(c, room)
	}
	h.mu.Unlock()
	metrics.Connections.Dec()

	for _, room := range rooms {
		h.syncRoom(ctx, room)
	}
}

func (h *Hub) Join(ctx context.Context, c *Client, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	h.mu.Unlock()

	h.syncRoom(ctx, room)
}

func (h *Hub) Leave(ctx context.Context, c *Client, room string) {
	h.mu.Lock()
	h.removeLocked(c, room)
	h.mu.Unlock()

	h.syncRoom(ctx, room)
}

func (h *Hub) removeLocked(c *Client, room string) {
	delete(c.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// syncRoom 使总线订阅与本地成员保持一致，可重复调用
func (h *Hub) syncRoom(ctx context.Context, room string) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	if h.sub == nil {
		return
	}

	h.mu.RLock()
	want := len(h.rooms[room]) > 0
	h.mu.RUnlock()

	have := h.subscribed[room]
	switch {
	case want && !have:
		if err := h.sub.Add(ctx, roomChannel(room)); err != nil {
			log.WarnContext(ctx, "hub subscribe room failed", "room", room, "err", err)
			return
		}
		h.subscribed[room] = true
	case !want && have:
		if err := h.sub.Remove(ctx, roomChannel(room)); err != nil {
			log.WarnContext(ctx, "hub unsubscribe room failed", "room", room, "err", err)
		}
		delete(h.subscribed, room)
	}
}

// InRoom 本进程房间内的连接数
func (h *Hub) InRoom(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) ToUser(ctx context.Context, userID uint64, event string, data interface{}) {
	h.emit(ctx, PersonalRoom(userID), event, data)
}

func (h *Hub) ToThread(ctx context.Context, threadID string, event string, data interface{}) {
	h.emit(ctx, ThreadRoom(threadID), event, data)
}

func (h *Hub) Broadcast(ctx context.Context, event string, data interface{}) {
	h.emit(ctx, "", event, data)
}

func (h *Hub) emit(ctx context.Context, room, event string, data interface{}) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		log.ErrorContext(ctx, "encode event failed", "event", event, "err", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(event).Inc()

	// 房间已在总线上订阅时，本进程成员经由订阅收到，否则直接本地投递
	h.subMu.Lock()
	relayed := h.sub != nil && (room == "" || h.subscribed[room])
	h.subMu.Unlock()

	err = h.publish(ctx, room, payload)
	if err == nil && relayed {
		return
	}
	if err != nil {
		metrics.Degraded.WithLabelValues("publish").Inc()
		log.WarnContext(ctx, "hub publish failed, local delivery only", "room", room, "event", event, "err", err)
	}
	h.deliverLocal(room, payload)
}

func (h *Hub) publish(ctx context.Context, room string, payload []byte) error {
	env, err := json.Marshal(&envelope{Origin: h.workerID, Room: room, Payload: payload})
	if err != nil {
		return err
	}
	if err = h.store.Publish(ctx, roomChannel(room), env); err != nil {
		if bus.IsUnavailable(err) {
			return err
		}
		return errors.Join(bus.ErrUnavailable, err)
	}
	return nil
}

func (h *Hub) deliverLocal(room string, payload []byte) {
	h.mu.RLock()
	var targets []*Client
	if room == "" {
		targets = make([]*Client, 0, len(h.clients))
		for _, c := range h.clients {
			targets = append(targets, c)
		}
	} else {
		targets = make([]*Client, 0, len(h.rooms[room]))
		for c := range h.rooms[room] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
}
