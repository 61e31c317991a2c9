package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"
)

const (
	DefaultRestartDelay       = 3 * time.Second
	DefaultMaxRestartAttempts = 5

	readHeaderTimeout = 10 * time.Second
)

// ErrAlreadyStarted is returned by Start while the listener is active.
var ErrAlreadyStarted = errors.New("server supervisor already started")

// State is the lifecycle phase of a supervised listener.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateRestarting
	StateGivenUp
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateGivenUp:
		return "given_up"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ListenFunc opens the listening socket; net.Listen by default.
type ListenFunc func(network, address string) (net.Listener, error)

// Option configures a Supervisor.
type Option func(*Supervisor)

func WithListenFunc(fn ListenFunc) Option {
	return func(s *Supervisor) {
		if fn != nil {
			s.listen = fn
		}
	}
}

func WithRestartDelay(d time.Duration) Option {
	return func(s *Supervisor) {
		if d >= 0 {
			s.restartDelay = d
		}
	}
}

func WithMaxRestartAttempts(n int) Option {
	return func(s *Supervisor) {
		if n >= 0 {
			s.maxAttempts = n
		}
	}
}

// Supervisor runs an HTTP server and restarts it after a listen or serve
// failure, up to a fixed number of consecutive attempts. An address already
// in use is never retried.
type Supervisor struct {
	logger       *slog.Logger
	addr         string
	handler      http.Handler
	listen       ListenFunc
	restartDelay time.Duration
	maxAttempts  int

	mu         sync.Mutex
	state      State
	attempts   int
	stopped    bool
	srv        *http.Server
	boundAddr  net.Addr
	timer      *time.Timer
	generation int
}

// NewSupervisor creates a stopped supervisor for addr.
func NewSupervisor(log *slog.Logger, addr string, handler http.Handler, opts ...Option) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{
		logger:       log.With(slog.String("component", "server"), slog.String("addr", addr)),
		addr:         addr,
		handler:      handler,
		listen:       net.Listen,
		restartDelay: DefaultRestartDelay,
		maxAttempts:  DefaultMaxRestartAttempts,
		state:        StateStopped,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and begins serving. It returns an error only when
// the supervisor is already active or the address is in use; other listen
// failures are retried in the background.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateStarting, StateRunning, StateRestarting:
		return ErrAlreadyStarted
	}
	s.stopped = false
	s.attempts = 0
	return s.launchLocked()
}

// Stop cancels any pending restart and shuts the server down gracefully.
// No restart is scheduled afterwards.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	srv := s.srv
	s.srv = nil
	s.state = StateStopped
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown server: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RestartAttempts returns the number of consecutive failures since the last
// successful start.
func (s *Supervisor) RestartAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Addr returns the bound address, or nil when not listening.
func (s *Supervisor) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

func (s *Supervisor) launchLocked() error {
	s.state = StateStarting
	ln, err := s.listen("tcp", s.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			s.logger.Error("address already in use, not retrying", slog.Any("error", err))
			s.state = StateGivenUp
			return fmt.Errorf("listen %s: %w", s.addr, err)
		}
		s.logger.Error("listen failed", slog.Any("error", err))
		s.failLocked()
		return nil
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.generation++
	s.srv = srv
	s.boundAddr = ln.Addr()
	s.attempts = 0
	s.state = StateRunning
	s.logger.Info("server listening", slog.String("bound", ln.Addr().String()))

	go s.serve(srv, ln, s.generation)
	return nil
}

func (s *Supervisor) serve(srv *http.Server, ln net.Listener, generation int) {
	err := srv.Serve(ln)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || generation != s.generation {
		return
	}
	s.logger.Error("server exited unexpectedly", slog.Any("error", err))
	s.srv = nil
	s.boundAddr = nil
	s.failLocked()
}

// failLocked records a failure and either schedules a restart or gives up.
func (s *Supervisor) failLocked() {
	s.attempts++
	if s.attempts > s.maxAttempts {
		s.logger.Error("giving up on server restarts", slog.Int("attempts", s.attempts-1))
		s.state = StateGivenUp
		return
	}
	s.state = StateRestarting
	s.logger.Warn("restarting server",
		slog.Int("attempt", s.attempts),
		slog.Int("max_attempts", s.maxAttempts),
		slog.Duration("delay", s.restartDelay),
	)
	s.timer = time.AfterFunc(s.restartDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.stopped || s.state != StateRestarting {
			return
		}
		s.timer = nil
		_ = s.launchLocked()
	})
}
