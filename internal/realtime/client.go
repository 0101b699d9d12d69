package realtime

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/pkg/consts"
	"Murmur/internal/pkg/metrics"
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeTimeout   = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second // 必须小于 pongWait
	sendQueueSize  = 256
	maxMessageSize = 64 << 10
)

// Client 一条 websocket 连接，写操作全部由 WritePump 串行执行
type Client struct {
	id        string // UUIDv7，字典序即创建顺序
	userID    uint64
	conn      *websocket.Conn
	send      chan []byte
	limiter   *rate.Limiter
	heartbeat func()
	ping      time.Duration
	pong      time.Duration
	done      chan struct{}
	closeOnce sync.Once

	// rooms 由 Hub.mu 保护
	rooms map[string]struct{}
}

type ClientOption func(*Client)

// WithLimiter 入站事件限流，超限的事件直接丢弃并回 error
func WithLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithHeartbeat 每次收到 pong 时回调，用于续期在线状态
func WithHeartbeat(fn func()) ClientOption {
	return func(c *Client) { c.heartbeat = fn }
}

// WithKeepalive 覆盖默认心跳间隔，ping 必须小于 pong，否则忽略
func WithKeepalive(ping, pong time.Duration) ClientOption {
	return func(c *Client) {
		if ping > 0 && pong > ping {
			c.ping, c.pong = ping, pong
		}
	}
}

func NewClient(userID uint64, conn *websocket.Conn, opts ...ClientOption) *Client {
	c := &Client{
		id:     uuid.Must(uuid.NewV7()).String(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		ping:   pingPeriod,
		pong:   pongWait,
		done:   make(chan struct{}),
		rooms:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() uint64 {
	return c.userID
}

// Done 连接关闭后关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close 可重复调用
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue 队列满时丢弃，不阻塞广播方
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		metrics.EventsDropped.Inc()
		log.Warn("client send queue full, event dropped", "user_id", c.userID, "conn_id", c.id)
		return false
	}
}

// Emit 只发给当前连接
func (c *Client) Emit(event string, data interface{}) bool {
	payload, err := encodeEvent(event, data)
	if err != nil {
		log.Error("encode event failed", "event", event, "err", err)
		return false
	}
	return c.enqueue(payload)
}

func encodeEvent(event string, data interface{}) ([]byte, error) {
	return json.Marshal(&dto.OutboundEvent{Event: event, Data: data})
}

// ReadPump 阻塞读取直到连接出错，handle 在读 goroutine 中同步执行
func (c *Client) ReadPump(ctx context.Context, handle func(context.Context, *Client, *dto.InboundEvent)) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pong))
	c.conn.SetPongHandler(func(string) error {
		if c.heartbeat != nil {
			c.heartbeat()
		}
		return c.conn.SetReadDeadline(time.Now().Add(c.pong))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}

		var in dto.InboundEvent
		if err = json.Unmarshal(data, &in); err != nil || in.Event == "" {
			metrics.InboundRejected.WithLabelValues("malformed").Inc()
			c.Emit(consts.EventError, &dto.ErrorEvent{Message: "malformed event"})
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			metrics.InboundRejected.WithLabelValues("rate_limited").Inc()
			c.Emit(consts.EventError, &dto.ErrorEvent{Event: in.Event, Message: "rate limit exceeded"})
			continue
		}
		handle(ctx, c, &in)
	}
}

// WritePump 独占写连接；退出时关闭底层连接，从而让 ReadPump 返回
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.ping)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warn("ws write failed", "user_id", c.userID, "conn_id", c.id, "err", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			return
		}
	}
}
