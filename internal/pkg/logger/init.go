package logger

import (
	"Murmur/internal/api/config"
	"io"
	log "log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// LogWriter gin 访问日志的输出目标
var LogWriter io.Writer = os.Stdout

// ParseLevel 把配置里的级别名称转成 slog.Level，未知值按 info 处理
func ParseLevel(name string) log.Level {
	switch strings.ToLower(name) {
	case "debug":
		return log.LevelDebug
	case "warn", "warning":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

// InitLogger stdout 始终输出；配置了远端地址时额外 Tee 一份带 trace_id 的日志
func InitLogger(cfg config.LogConfig, workerID string) {
	opts := &log.HandlerOptions{Level: ParseLevel(cfg.Level)}
	hStdout := log.NewJSONHandler(os.Stdout, opts)

	var finalHandler log.Handler = hStdout

	if cfg.RemoteAddress != "" {
		conn, err := net.DialTimeout("tcp", cfg.RemoteAddress, 3*time.Second)
		if err == nil {
			hRemote := log.NewJSONHandler(conn, opts).
				WithAttrs([]log.Attr{log.String("target_index", cfg.Index)})

			finalHandler = &TeeHandler{
				handlers: []log.Handler{hStdout, &RemoteFilterHandler{next: hRemote}},
			}
			LogWriter = io.MultiWriter(os.Stdout, conn)
		} else {
			log.Warn("Failed to connect to remote log sink, logging to stdout only", "err", err)
		}
	}

	if workerID != "" {
		finalHandler = finalHandler.WithAttrs([]log.Attr{log.String("worker_id", workerID)})
	}

	log.SetDefault(log.New(&ContextHandler{finalHandler}))
}
