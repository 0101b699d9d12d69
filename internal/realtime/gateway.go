package realtime

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/pkg/consts"
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const heartbeatTimeout = 3 * time.Second

// Gateway 单条连接的完整生命周期
type Gateway struct {
	hub        *Hub
	presence   *Presence
	dispatcher *Dispatcher
	rps        rate.Limit
	burst      int
	keepalive  []ClientOption

	// active 正在 Serve 的连接
	active sync.WaitGroup
}

func NewGateway(hub *Hub, presence *Presence, dispatcher *Dispatcher, rps float64, burst int) *Gateway {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	return &Gateway{
		hub:        hub,
		presence:   presence,
		dispatcher: dispatcher,
		rps:        rate.Limit(rps),
		burst:      burst,
	}
}

// SetKeepalive 配置新连接的 ping 间隔与 pong 超时
func (g *Gateway) SetKeepalive(ping, pong time.Duration) {
	g.keepalive = []ClientOption{WithKeepalive(ping, pong)}
}

// Drain 关闭本进程所有连接并等待它们完成离线清理，调用前应已停止接受新连接
func (g *Gateway) Drain(ctx context.Context) error {
	n := g.hub.CloseAll()
	done := make(chan struct{})
	go func() {
		g.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.InfoContext(ctx, "ws connections drained", "count", n)
		return nil
	case <-ctx.Done():
		log.WarnContext(ctx, "ws drain timed out", "count", n)
		return ctx.Err()
	}
}

// Serve 阻塞直到连接断开；conn 必须已完成鉴权与升级
func (g *Gateway) Serve(ctx context.Context, userID uint64, conn *websocket.Conn) {
	g.active.Add(1)
	defer g.active.Done()

	// 连接断开后仍需要完成清理
	ctx = context.WithoutCancel(ctx)

	var c *Client
	opts := append([]ClientOption{
		WithLimiter(rate.NewLimiter(g.rps, g.burst)),
		WithHeartbeat(func() {
			hctx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
			defer cancel()
			g.presence.Refresh(hctx, userID, c.ID())
		}),
	}, g.keepalive...)
	c = NewClient(userID, conn, opts...)

	g.hub.Register(ctx, c)
	go c.WritePump()

	if g.presence.Connect(ctx, userID, c.ID()) {
		g.hub.Broadcast(ctx, consts.EventUserOnline, &dto.PresenceEvent{UserID: userID})
	}
	online := g.presence.ListOnline(ctx)
	c.Emit(consts.EventOnlineUsersList, &dto.OnlineUsersDTO{UserIDs: online, Count: len(online)})
	log.InfoContext(ctx, "ws connected", "user_id", userID, "conn_id", c.ID())

	err := c.ReadPump(ctx, g.dispatcher.Handle)

	c.Close()
	g.hub.Unregister(ctx, c)
	if g.presence.Disconnect(ctx, userID, c.ID()) {
		g.hub.Broadcast(ctx, consts.EventUserOffline, &dto.PresenceEvent{UserID: userID})
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && (closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway) {
		log.InfoContext(ctx, "ws disconnected", "user_id", userID, "conn_id", c.ID())
		return
	}
	log.InfoContext(ctx, "ws disconnected", "user_id", userID, "conn_id", c.ID(), "err", err)
}
