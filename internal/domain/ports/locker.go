package ports

import (
	"context"
	"time"
)

// Unlock releases a held lock
type Unlock func(ctx context.Context) error

// Locker serializes billing operations per subscription.
// Acquire returns domain.ErrSubscriptionBusy when the key is already held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

// BillingMetrics records billing outcomes
type BillingMetrics interface {
	RecordCharge(source, status string, amountCents int64)
	RecordReconciliation(op string)
	RecordVaultCall(op, status string, duration time.Duration)
	RecordBatch(kind string, processed, failed int, duration time.Duration)
}
