package subscription

import (
	"context"
	"time"

	"github.com/kevin07696/billing-service/internal/domain/ports"
)

type noopNotifier struct{}

func (noopNotifier) ChargeSucceeded(context.Context, ports.ChargeNotice) error { return nil }
func (noopNotifier) TrialExpiring(context.Context, ports.TrialNotice) error    { return nil }
func (noopNotifier) ReconciliationRequired(context.Context, ports.ReconciliationNotice) error {
	return nil
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (ports.Unlock, error) {
	return func(context.Context) error { return nil }, nil
}

type noopMetrics struct{}

func (noopMetrics) RecordCharge(string, string, int64)            {}
func (noopMetrics) RecordReconciliation(string)                   {}
func (noopMetrics) RecordVaultCall(string, string, time.Duration) {}
func (noopMetrics) RecordBatch(string, int, int, time.Duration)   {}
