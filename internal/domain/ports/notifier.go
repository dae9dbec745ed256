package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/billing-service/internal/domain"
)

// ChargeNotice describes a successful charge for receipts
type ChargeNotice struct {
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Subscription *domain.Subscription
	Subscriber   *domain.Subscriber
	Payment      *domain.PaymentRecord
	Amount       decimal.Decimal
}

// TrialNotice describes a trial that ends soon
type TrialNotice struct {
	EndsAt       time.Time
	Subscription *domain.Subscription
	Subscriber   *domain.Subscriber
	Plan         *domain.Plan
}

// ReconciliationNotice reports money that may have moved without a local record
type ReconciliationNotice struct {
	OccurredAt     time.Time
	Amount         decimal.Decimal
	Op             string
	SubscriptionID string
	TransactionID  string
	Reason         string
}

// Notifier delivers billing side effects. Failures never roll back billing.
type Notifier interface {
	ChargeSucceeded(ctx context.Context, notice ChargeNotice) error
	TrialExpiring(ctx context.Context, notice TrialNotice) error
	ReconciliationRequired(ctx context.Context, notice ReconciliationNotice) error
}
