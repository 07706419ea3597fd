package shutdown

import (
	"context"
	"io"

	"tryon_backend/core"
	"tryon_backend/logging"

	"go.uber.org/zap"
)

// Server is anything with an http.Server-style Shutdown.
type Server interface {
	Shutdown(ctx context.Context) error
}

// StopServer drains srv.
func StopServer(logger *logging.Logger, name string, srv Server) core.ShutdownFunc {
	return func(ctx context.Context) error {
		logger.Info("Stopping server", zap.String("server", name))
		return srv.Shutdown(ctx)
	}
}

// WaitFor waits for a background loop to report exit on done. The loop is
// expected to stop on its own once the manager context is cancelled.
func WaitFor(logger *logging.Logger, name string, done <-chan struct{}) core.ShutdownFunc {
	return func(ctx context.Context) error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			logger.Warn("Background loop did not stop in time", zap.String("loop", name))
			return ctx.Err()
		}
	}
}

// CloseResource closes c, for database handles and files.
func CloseResource(logger *logging.Logger, name string, c io.Closer) core.ShutdownFunc {
	return func(ctx context.Context) error {
		logger.Debug("Closing resource", zap.String("resource", name))
		return c.Close()
	}
}

// SyncLogger flushes buffered log entries. Sync errors on terminals are
// expected and ignored.
func SyncLogger(logger *logging.Logger) core.ShutdownFunc {
	return func(ctx context.Context) error {
		_ = logger.Sync()
		return nil
	}
}
