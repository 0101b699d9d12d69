package api

import (
	"Murmur/internal/api/handler"
	"Murmur/internal/api/middleware"
)

// HandlersGroup 路由用到的全部 handler
type HandlersGroup struct {
	Auth          *middleware.Authenticator
	IMHandler     *handler.IMHandler
	CallHandler   *handler.CallHandler
	MediaHandler  *handler.MediaHandler
	OnlineHandler *handler.OnlineHandler
	WsHandler     *handler.WsHandler
}
