package server

import (
	"context"
	"net"
	"strconv"
)

// Listen 监听 TCP 端口，reusePort 为 true 时多个进程可以绑定同一端口，由内核分发连接
func Listen(ctx context.Context, port int, reusePort bool) (net.Listener, error) {
	lc := net.ListenConfig{}
	if reusePort {
		lc.Control = reusePortControl
	}
	return lc.Listen(ctx, "tcp", ":"+strconv.Itoa(port))
}
