//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package server

import (
	"errors"
	"syscall"
)

// ErrReusePortUnsupported 当前平台没有 SO_REUSEPORT，只能单进程运行
var ErrReusePortUnsupported = errors.New("server: SO_REUSEPORT is not supported on this platform")

func reusePortControl(_, _ string, _ syscall.RawConn) error {
	return ErrReusePortUnsupported
}
