package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

type accessRecord struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Msg     string `json:"msg"`
	TraceID string `json:"trace_id,omitempty"`
	Method  string `json:"method"`
	Path    string `json:"path"`
	Status  int    `json:"status"`
	Latency string `json:"latency"`
	UserID  any    `json:"user_id,omitempty"`
}

// SetupGin JSON 访问日志与 panic 恢复
func SetupGin(r *gin.Engine) {
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output:    LogWriter,
		SkipPaths: []string{"/metrics", "/api/ping"},
		Formatter: func(p gin.LogFormatterParams) string {
			rec := accessRecord{
				Time:    p.TimeStamp.Format(time.RFC3339),
				Level:   "INFO",
				Msg:     "GIN_ACCESS",
				Method:  p.Method,
				Path:    p.Path,
				Status:  p.StatusCode,
				Latency: p.Latency.String(),
			}
			if p.Keys != nil {
				if id, ok := p.Keys[TraceIDKey].(string); ok {
					rec.TraceID = id
				}
				rec.UserID = p.Keys["user_id"]
			}
			if rec.TraceID == "" && p.Request != nil {
				rec.TraceID = TraceID(p.Request.Context())
			}
			b, err := json.Marshal(rec)
			if err != nil {
				return ""
			}
			return string(b) + "\n"
		},
	}))

	r.Use(gin.Recovery())
}
