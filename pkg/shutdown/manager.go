// Package shutdown coordinates graceful process shutdown.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shutdown_duration_seconds",
		Help:    "Total time taken to shutdown gracefully",
		Buckets: []float64{1, 5, 10, 15, 20, 25, 30},
	})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shutdown_errors_total",
		Help: "Total number of shutdown errors by component",
	}, []string{"component"})
)

// Func shuts down one component
type Func func(context.Context) error

type component struct {
	name string
	fn   Func
}

// Manager shuts components down in reverse registration order, so
// register the database first and the HTTP servers last.
type Manager struct {
	logger     *zap.Logger
	components []component
	mu         sync.Mutex
	timeout    time.Duration
}

// NewManager creates a new shutdown manager
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{logger: logger, timeout: timeout}
}

// Register adds a shutdown function
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component{name: name, fn: fn})
}

// RegisterCloser registers a component with a Close() method
func (m *Manager) RegisterCloser(name string, closer interface{ Close() error }) {
	m.Register(name, func(context.Context) error { return closer.Close() })
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Shutdown runs every registered function, newest first, within the
// manager's timeout. All functions run; their errors are joined.
func (m *Manager) Shutdown() error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.Lock()
	components := make([]component, len(m.components))
	copy(components, m.components)
	m.mu.Unlock()

	m.logger.Info("Starting graceful shutdown",
		zap.Int("component_count", len(components)),
		zap.Duration("timeout", m.timeout),
	)

	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		compStart := time.Now()
		if err := c.fn(ctx); err != nil {
			shutdownErrors.WithLabelValues(c.name).Inc()
			m.logger.Error("Component shutdown failed",
				zap.String("component", c.name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		m.logger.Info("Component shut down",
			zap.String("component", c.name),
			zap.Duration("elapsed", time.Since(compStart)),
		)
	}

	elapsed := time.Since(start)
	shutdownDuration.Observe(elapsed.Seconds())

	err := errors.Join(errs...)
	if err != nil {
		m.logger.Error("Graceful shutdown completed with errors", zap.Duration("elapsed", elapsed))
	} else {
		m.logger.Info("Graceful shutdown completed", zap.Duration("elapsed", elapsed))
	}
	return err
}
