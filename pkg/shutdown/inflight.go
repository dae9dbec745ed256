package shutdown

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InFlightTracker tracks in-flight work so shutdown waits for it.
// Once shutdown starts no new work is admitted.
type InFlightTracker struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopping bool
	logger   *zap.Logger
	name     string
}

// NewInFlightTracker creates a new in-flight work tracker
func NewInFlightTracker(name string, logger *zap.Logger) *InFlightTracker {
	return &InFlightTracker{logger: logger, name: name}
}

// Add admits one unit of work. It returns false once shutdown has begun.
func (t *InFlightTracker) Add() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopping {
		return false
	}
	t.wg.Add(1)
	return true
}

// Done marks one unit of work complete
func (t *InFlightTracker) Done() {
	t.wg.Done()
}

// Shutdown stops admitting work and waits for the rest to finish
func (t *InFlightTracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.stopping = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.logger.Warn("Shutdown timeout - some work may be incomplete",
			zap.String("tracker", t.name),
		)
		return ctx.Err()
	}
}

// PeriodicWorker runs work on a fixed interval until shut down
type PeriodicWorker struct {
	name     string
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPeriodicWorker creates a new periodic worker
func NewPeriodicWorker(name string, interval time.Duration, logger *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{name: name, interval: interval, logger: logger}
}

// Start runs work immediately and then on every tick
func (w *PeriodicWorker) Start(work func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.logger.Info("Periodic worker started",
			zap.String("worker", w.name),
			zap.Duration("interval", w.interval),
		)
		work(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				work(ctx)
			}
		}
	}()
}

// Shutdown cancels the worker and waits for the current run to return
func (w *PeriodicWorker) Shutdown(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()

	select {
	case <-w.done:
		w.logger.Info("Periodic worker stopped", zap.String("worker", w.name))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
