package supervisor

import (
	"Murmur/internal/pkg/metrics"
	"context"
	"errors"
	log "log/slog"
	"os"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseBackoff    = time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultGrace          = 30 * time.Second
	DefaultStatusInterval = time.Minute
)

// ErrForcedShutdown 宽限期内仍有 worker 未退出，已被强杀
var ErrForcedShutdown = errors.New("supervisor: workers killed after grace period")

// Process 一个运行中的 worker
type Process interface {
	Pid() int
	Wait() error
	Signal(sig os.Signal) error
	Kill() error
}

// Launcher 启动 worker，workerID 从 1 开始
type Launcher interface {
	Launch(workerID int) (Process, error)
}

type Options struct {
	Workers        int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	Grace          time.Duration
	StatusInterval time.Duration
}

type worker struct {
	id       int
	proc     Process
	started  time.Time
	restarts int
}

// Supervisor 维持固定数量的 worker 进程，崩溃后退避重启
type Supervisor struct {
	launcher Launcher
	opts     Options

	mu       sync.Mutex
	workers  map[int]*worker
	stopping bool
}

func New(launcher Launcher, opts Options) *Supervisor {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = DefaultBaseBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	return &Supervisor{
		launcher: launcher,
		opts:     opts,
		workers:  make(map[int]*worker),
	}
}

// Backoff min(base·2^restarts, ceiling)
func Backoff(restarts int, base, ceiling time.Duration) time.Duration {
	d := base
	for i := 0; i < restarts && d < ceiling; i++ {
		d *= 2
	}
	return min(d, ceiling)
}

// Run 阻塞到 ctx 结束且所有 worker 退出
// 宽限期内未退出的 worker 会被 SIGKILL，此时返回 ErrForcedShutdown
func (s *Supervisor) Run(ctx context.Context) error {
	log.Info("supervisor starting", "workers", s.opts.Workers, "pid", os.Getpid())

	var g errgroup.Group
	for i := 1; i <= s.opts.Workers; i++ {
		id := i
		g.Go(func() error {
			s.supervise(ctx, id)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	status := time.NewTicker(s.opts.StatusInterval)
	defer status.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-status.C:
			s.logStatus()
		case <-ctx.Done():
			return s.shutdown(done)
		}
	}
}

// supervise 单个 worker 槽位的生命周期，任何退出都会重启，包括正常退出
func (s *Supervisor) supervise(ctx context.Context, id int) {
	restarts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		proc, err := s.launcher.Launch(id)
		if err != nil {
			log.Error("worker launch failed", "worker_id", id, "err", err)
		} else {
			s.track(id, proc, restarts)
			err = proc.Wait()
			s.untrack(id)
			if ctx.Err() != nil {
				log.Info("worker stopped", "worker_id", id, "pid", proc.Pid(), "err", err)
				return
			}
			log.Warn("worker exited unexpectedly", "worker_id", id, "pid", proc.Pid(), "err", err)
		}

		delay := Backoff(restarts, s.opts.BaseBackoff, s.opts.MaxBackoff)
		restarts++
		metrics.SupervisorRestarts.WithLabelValues(strconv.Itoa(id)).Inc()
		log.Info("restarting worker", "worker_id", id, "delay", delay, "restarts", restarts)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Supervisor) track(id int, proc Process, restarts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[id] = &worker{id: id, proc: proc, started: time.Now(), restarts: restarts}
	// 停机过程中刚启动的进程也要收到信号
	if s.stopping {
		_ = proc.Signal(syscall.SIGTERM)
	}
	log.Info("worker started", "worker_id", id, "pid", proc.Pid())
}

func (s *Supervisor) untrack(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workers, id)
}

func (s *Supervisor) snapshot() []*worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	return out
}

func (s *Supervisor) shutdown(done <-chan struct{}) error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	live := s.snapshot()
	log.Info("supervisor shutting down", "workers", len(live), "grace", s.opts.Grace)
	for _, w := range live {
		if err := w.proc.Signal(syscall.SIGTERM); err != nil {
			log.Warn("signal worker failed", "worker_id", w.id, "pid", w.proc.Pid(), "err", err)
		}
	}

	grace := time.NewTimer(s.opts.Grace)
	defer grace.Stop()

	select {
	case <-done:
		log.Info("all workers exited")
		return nil
	case <-grace.C:
	}

	for _, w := range s.snapshot() {
		log.Warn("force killing worker", "worker_id", w.id, "pid", w.proc.Pid())
		if err := w.proc.Kill(); err != nil {
			log.Error("kill worker failed", "worker_id", w.id, "err", err)
		}
	}
	<-done
	return ErrForcedShutdown
}

func (s *Supervisor) logStatus() {
	for _, w := range s.snapshot() {
		log.Info("worker status",
			"worker_id", w.id,
			"pid", w.proc.Pid(),
			"uptime", time.Since(w.started).Round(time.Second),
			"restarts", w.restarts)
	}
}
