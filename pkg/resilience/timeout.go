package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines the timeout hierarchy, outermost first:
//
//	HTTP handler (60s) > service (50s) > gateway call (30s)
//	cron batch run (10m)
//	post-charge persistence (15s, detached from the caller)
//
// Each layer must finish before its parent times out.
type TimeoutConfig struct {
	HTTPHandler time.Duration
	CronJob     time.Duration
	Service     time.Duration
	Gateway     time.Duration
	// Persist bounds ledger and state writes after money has moved.
	// It is not cancelled by the caller.
	Persist time.Duration
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler: 60 * time.Second,
		CronJob:     10 * time.Minute,
		Service:     50 * time.Second,
		Gateway:     30 * time.Second,
		Persist:     15 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler: 5 * time.Second,
		CronJob:     30 * time.Second,
		Service:     4 * time.Second,
		Gateway:     2 * time.Second,
		Persist:     1 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// CronContext creates a context with timeout for cron jobs
func (tc *TimeoutConfig) CronContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.CronJob)
}

// ServiceContext creates a context with timeout for service layer operations
func (tc *TimeoutConfig) ServiceContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Service)
}

// GatewayContext creates a context for a single gateway call
func (tc *TimeoutConfig) GatewayContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Gateway)
}

// PersistContext keeps parent's values but not its cancellation
func (tc *TimeoutConfig) PersistContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), tc.Persist)
}
