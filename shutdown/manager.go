package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tryon_backend/core"
	"tryon_backend/logging"

	"go.uber.org/zap"
)

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 60 * time.Second

// Manager owns the process lifetime.
//
// The first SIGINT/SIGTERM cancels Context. Shutdown then closes the
// tracker, waits for in-flight operations and runs the cleanup registry
// with whatever time remains. A second signal exits immediately.
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *Registry

	mu        sync.Mutex
	started   bool
	finished  bool
	signals   int
	received  os.Signal
	sigChan   chan os.Signal
	forceExit func()
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets the shutdown budget.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithForceExit replaces the action taken on a second signal.
func WithForceExit(fn func()) ManagerOption {
	return func(m *Manager) {
		m.forceExit = fn
	}
}

// NewManager creates a Manager whose context derives from parent.
func NewManager(parent context.Context, logger *logging.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	m := &Manager{
		logger:    logger.Named("shutdown"),
		timeout:   DefaultTimeout,
		ctx:       ctx,
		cancel:    cancel,
		tracker:   NewOperationTracker(),
		registry:  NewRegistry(),
		sigChan:   make(chan os.Signal, 2),
		forceExit: func() { os.Exit(core.ExitCodeError) },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Context is cancelled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Tracker returns the tracker that gates new operations.
func (m *Manager) Tracker() *OperationTracker {
	return m.tracker
}

// Register adds a cleanup function; see the Priority constants.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("Registered cleanup", zap.String("name", name), zap.Int("priority", priority))
}

// Start listens for SIGINT and SIGTERM. Repeated calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.handleSignal(sig)
		}
	}()
}

func (m *Manager) handleSignal(sig os.Signal) {
	m.mu.Lock()
	m.signals++
	n := m.signals
	if n == 1 {
		m.received = sig
	}
	m.mu.Unlock()

	if n == 1 {
		m.logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		m.cancel()
		return
	}
	m.logger.Warn("Received second signal, forcing exit", zap.String("signal", sig.String()))
	m.forceExit()
}

// Signal returns the signal that began shutdown, or nil.
func (m *Manager) Signal() os.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

// Trigger begins shutdown without a signal.
func (m *Manager) Trigger() {
	m.cancel()
}

// Shutdown runs the shutdown sequence once and reports cleanup failures.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return nil
	}
	m.finished = true
	started := m.started
	m.mu.Unlock()

	m.cancel()
	start := time.Now()
	m.tracker.Close()

	if n := m.tracker.ActiveCount(); n > 0 {
		m.logger.Info("Waiting for in-flight requests", zap.Int64("active", n))
	}
	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("In-flight requests did not finish",
			zap.Int64("remaining", m.tracker.ActiveCount()),
			zap.Duration("waited", time.Since(start)),
		)
	}

	remaining := m.timeout - time.Since(start)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	m.logger.Info("Running cleanup", zap.Strings("steps", m.registry.Names()))
	errs := m.registry.Run(ctx)
	for _, err := range errs {
		m.logger.Error("Cleanup failed", zap.Error(err))
	}

	if started {
		signal.Stop(m.sigChan)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown finished with %d cleanup errors", len(errs))
	}
	m.logger.Info("Shutdown complete", zap.Duration("duration", time.Since(start)))
	return nil
}

// WrapOperation runs fn as a tracked operation. It returns ErrTrackerClosed
// once shutdown has begun.
func (m *Manager) WrapOperation(ctx context.Context, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		return ErrTrackerClosed
	}
	defer m.tracker.Done()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// IsShuttingDown reports whether shutdown has begun.
func (m *Manager) IsShuttingDown() bool {
	return m.ctx.Err() != nil || m.tracker.IsClosed()
}
