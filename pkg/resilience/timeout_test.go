package resilience

import (
	"context"
	"testing"
	"time"
)

func TestDefaultTimeoutConfig(t *testing.T) {
	config := DefaultTimeoutConfig()

	// Verify timeout hierarchy is correctly ordered
	if config.HTTPHandler <= config.Service {
		t.Errorf("HTTPHandler (%v) must be > Service (%v)", config.HTTPHandler, config.Service)
	}

	if config.Service <= config.Gateway {
		t.Errorf("Service (%v) must be > Gateway (%v)", config.Service, config.Gateway)
	}

	if config.CronJob <= config.HTTPHandler {
		t.Errorf("CronJob (%v) must be > HTTPHandler (%v)", config.CronJob, config.HTTPHandler)
	}

	if config.Gateway != 30*time.Second {
		t.Errorf("Expected Gateway = 30s, got %v", config.Gateway)
	}
}

func TestTestTimeoutConfig(t *testing.T) {
	config := TestTimeoutConfig()

	if config.HTTPHandler >= 10*time.Second {
		t.Errorf("Test timeouts should be < 10s, got %v", config.HTTPHandler)
	}

	if config.Service <= config.Gateway {
		t.Errorf("Service (%v) must be > Gateway (%v)", config.Service, config.Gateway)
	}
}

func TestHandlerContext(t *testing.T) {
	config := DefaultTimeoutConfig()

	ctx, cancel := config.HandlerContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("HandlerContext should have deadline")
	}

	expectedDeadline := time.Now().Add(config.HTTPHandler)
	if diff := deadline.Sub(expectedDeadline).Abs(); diff > 100*time.Millisecond {
		t.Errorf("Deadline diff too large: %v", diff)
	}
}

func TestContextCancellationPropagation(t *testing.T) {
	config := DefaultTimeoutConfig()

	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := config.GatewayContext(parent)
	defer cancel()

	cancelParent()

	select {
	case <-ctx.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Gateway context should be cancelled with its parent")
	}
}

func TestPersistContextSurvivesParentCancellation(t *testing.T) {
	config := TestTimeoutConfig()

	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := config.PersistContext(parent)
	defer cancel()

	cancelParent()

	if err := ctx.Err(); err != nil {
		t.Fatalf("Persist context should outlive its parent, got %v", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		t.Fatal("Persist context should have its own deadline")
	}
}

func TestContextTimeout(t *testing.T) {
	config := &TimeoutConfig{Gateway: 10 * time.Millisecond}

	ctx, cancel := config.GatewayContext(context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
		if ctx.Err() != context.DeadlineExceeded {
			t.Errorf("Expected DeadlineExceeded, got %v", ctx.Err())
		}
	case <-time.After(time.Second):
		t.Fatal("Context should have timed out")
	}
}
