package middleware

import (
	"bytes"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

const maxAuditBody = 16384

func (r *responseBodyWriter) Write(b []byte) (int, error) {
	if r.body.Len() < maxAuditBody {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

func (r *responseBodyWriter) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// skipBody 上传文件和 websocket 握手不记录 body
func skipBody(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/") ||
		strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

// 这些路由的 body 或 query 里有消息明文或媒体令牌
var sensitivePrefixes = []string{"/api/im/threads", "/api/im/messages", "/api/im/media"}

func sensitive(path string) bool {
	for _, p := range sensitivePrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// AuditMiddleware 记录请求与响应，敏感路由只记录方法、路径和状态
func AuditMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if skipBody(c) || sensitive(c.Request.URL.Path) {
			log.InfoContext(ctx, "Recv Request",
				log.String("method", c.Request.Method),
				log.String("path", c.Request.URL.Path),
			)
			startTime := time.Now()
			c.Next()
			log.InfoContext(ctx, "Send Response",
				log.Int("status", c.Writer.Status()),
				log.Duration("latency", time.Since(startTime)),
			)
			return
		}

		var reqBody []byte
		if c.Request.Body != nil {
			reqBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBody))
		}

		rawQuery := c.Request.URL.RawQuery
		decodedQuery, err := url.QueryUnescape(rawQuery)
		if err != nil {
			decodedQuery = rawQuery
		}

		log.InfoContext(ctx, "Recv Request",
			log.String("method", c.Request.Method),
			log.String("path", c.Request.URL.Path),
			log.String("query", decodedQuery),
			log.String("req_body", string(reqBody)),
		)

		w := &responseBodyWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w
		startTime := time.Now()

		c.Next()

		log.InfoContext(ctx, "Send Response",
			log.Int("status", c.Writer.Status()),
			log.Duration("latency", time.Since(startTime)),
			log.String("res_body", w.body.String()),
		)
	}
}
