package api

import (
	"Murmur/internal/api/middleware"
	"Murmur/internal/pkg/logger"
	"Murmur/internal/pkg/metrics"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter allowedOrigins 为空时不限制跨域来源
func SetupRouter(group *HandlersGroup, allowedOrigins ...string) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware(allowedOrigins...))
	r.Use(metrics.GinMiddleware())
	logger.SetupGin(r)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"code":    200,
				"message": "pong",
				"data":    nil,
			})
		})

		// websocket 自己完成鉴权，支持 query token
		apiGroup.GET("/im/ws", group.WsHandler.Connect)

		// gin 要求同一位置的通配符同名，:id 按路由分别表示接收方、会话、消息或通话 ID
		imGroup := apiGroup.Group("/im")
		imGroup.Use(group.Auth.AuthMiddleware())
		{
			imGroup.GET("/threads", group.IMHandler.ListThreads)
			imGroup.POST("/threads/:id", group.IMHandler.CreateThread)
			imGroup.DELETE("/threads/:id", group.IMHandler.DeleteThread)
			imGroup.PUT("/threads/:id/pin", group.IMHandler.PinThread)
			imGroup.PUT("/threads/:id/archive", group.IMHandler.ArchiveThread)
			imGroup.PUT("/threads/:id/block", group.IMHandler.BlockThread)
			imGroup.PUT("/threads/:id/seen", group.IMHandler.MarkSeen)
			imGroup.POST("/threads/:id/messages", group.IMHandler.SendMessage)
			imGroup.GET("/threads/:id/messages", group.IMHandler.GetMessages)

			imGroup.PUT("/messages/:id", group.IMHandler.EditMessage)
			imGroup.DELETE("/messages/:id", group.IMHandler.DeleteMessage)

			imGroup.GET("/calls", group.CallHandler.ListCalls)
			imGroup.POST("/calls/:id", group.CallHandler.RequestCall)
			imGroup.GET("/calls/:id", group.CallHandler.GetCall)
			imGroup.POST("/calls/:id/end", group.CallHandler.EndCall)

			imGroup.POST("/media", group.MediaHandler.Upload)
			imGroup.GET("/media", group.MediaHandler.Resolve)

			imGroup.GET("/online", group.OnlineHandler.List)
		}
	}

	return r
}
