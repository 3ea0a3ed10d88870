package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultShutdownTimeout bounds how long Shutdown waits for closers.
const DefaultShutdownTimeout = 30 * time.Second

// Lifecycle coordinates signal handling and resource cleanup for a command.
// Closers run in reverse order of registration.
type Lifecycle struct {
	timeout time.Duration

	closers   []io.Closer
	closersMu sync.Mutex

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewLifecycle creates a lifecycle whose Shutdown gives up after timeout.
func NewLifecycle(timeout time.Duration) *Lifecycle {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	return &Lifecycle{
		timeout:    timeout,
		shutdownCh: make(chan struct{}),
	}
}

// RegisterCloser adds a closer to be called during shutdown.
func (l *Lifecycle) RegisterCloser(c io.Closer) {
	l.closersMu.Lock()
	defer l.closersMu.Unlock()
	l.closers = append(l.closers, c)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM, or when
// Shutdown begins.
func (l *Lifecycle) SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-l.shutdownCh:
			stop()
		case <-ctx.Done():
		}
	}()
	return ctx, stop
}

// Shutdown closes every registered closer once. Later calls return the first
// call's result.
func (l *Lifecycle) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() {
		close(l.shutdownCh)

		ctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()

		l.closersMu.Lock()
		closers := l.closers
		l.closersMu.Unlock()

		done := make(chan error, 1)
		go func() {
			var errs []error
			for i := len(closers) - 1; i >= 0; i-- {
				if err := closers[i].Close(); err != nil {
					errs = append(errs, err)
				}
			}
			done <- errors.Join(errs...)
		}()

		select {
		case err := <-done:
			if err != nil {
				l.shutdownErr = fmt.Errorf("close failed: %w", err)
			}
		case <-ctx.Done():
			l.shutdownErr = fmt.Errorf("shutdown timed out: %w", ctx.Err())
		}
	})
	return l.shutdownErr
}

// Done returns a channel that is closed when shutdown begins.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.shutdownCh
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}
