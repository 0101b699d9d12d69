package handler

import (
	"Murmur/internal/api/middleware"
	"Murmur/internal/pkg/response"
	"Murmur/internal/pkg/security"
	"Murmur/internal/service"
	"context"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ConnServer 接管升级后的连接，阻塞到连接结束
type ConnServer interface {
	Serve(ctx context.Context, userID uint64, conn *websocket.Conn)
}

type WsHandler struct {
	auth    *middleware.Authenticator
	gateway ConnServer
}

func NewWsHandler(auth *middleware.Authenticator, gateway ConnServer) *WsHandler {
	return &WsHandler{auth: auth, gateway: gateway}
}

// Connect 浏览器无法给 websocket 设置 header，允许用 query 传 token
func (s *WsHandler) Connect(c *gin.Context) {
	token, err := security.BearerToken(c.GetHeader("Authorization"))
	if err != nil {
		token = c.Query("token")
	}
	if token == "" {
		response.Error(c, service.UnauthorizedError)
		return
	}
	claims, err := s.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		log.WarnContext(c.Request.Context(), "WS 鉴权失败", "err", err)
		response.Error(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WarnContext(c.Request.Context(), "WS 协议升级失败", "user_id", claims.UserID, "err", err)
		return
	}

	log.InfoContext(c.Request.Context(), "用户 WS 连接已建立", "user_id", claims.UserID)
	s.gateway.Serve(c.Request.Context(), claims.UserID, conn)
	log.InfoContext(c.Request.Context(), "用户 WS 连接已断开", "user_id", claims.UserID)
}
