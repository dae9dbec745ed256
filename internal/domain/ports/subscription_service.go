package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/billing-service/internal/domain"
)

// SubscriptionService defines the business logic for subscription operations
type SubscriptionService interface {
	// Create opens a subscription on a plan
	Create(ctx context.Context, req CreateSubscriptionRequest) (*domain.Subscription, error)

	// Get retrieves a subscription by ID
	Get(ctx context.Context, subscriptionID string) (*domain.Subscription, error)

	// SwitchPlan moves a subscription to another plan after checking its user limit
	SwitchPlan(ctx context.Context, subscriptionID, planID string) (*domain.Subscription, error)

	// ChangeDiscount replaces the account discount; nil removes it
	ChangeDiscount(ctx context.Context, subscriptionID string, discountID *string) (*domain.Subscription, error)

	// OverrideAmount pins the amount until the plan or discount changes
	OverrideAmount(ctx context.Context, subscriptionID string, amount decimal.Decimal) (*domain.Subscription, error)

	// RefreshPricing recomputes the amount from the catalog unless overridden
	RefreshPricing(ctx context.Context, subscriptionID string) (*domain.Subscription, error)

	// StoreCard stores or replaces the card on file and charges when due
	StoreCard(ctx context.Context, subscriptionID string, card *domain.Card) (*BillingOutcome, error)

	// Charge runs a scheduled renewal charge
	Charge(ctx context.Context, subscriptionID string) (*BillingOutcome, error)

	// Destroy cancels a subscription and releases its stored card
	Destroy(ctx context.Context, subscriptionID string) error

	// NeedsPaymentInfo reports whether a card must be collected
	NeedsPaymentInfo(ctx context.Context, subscriptionID string) (bool, error)

	// Payments lists the ledger for a subscription
	Payments(ctx context.Context, subscriptionID string) ([]*domain.PaymentRecord, error)

	// FindExpiringTrials returns trials renewing exactly seven days from now
	FindExpiringTrials(ctx context.Context) ([]*domain.Subscription, error)

	// FindDue returns active subscriptions renewing on asOf's day
	FindDue(ctx context.Context, asOf time.Time) ([]*domain.Subscription, error)

	// ProcessDueBilling charges every subscription due on asOf's day
	ProcessDueBilling(ctx context.Context, asOf time.Time, batchSize int) (*BillingBatchResult, error)

	// NotifyExpiringTrials sends a reminder for every expiring trial
	NotifyExpiringTrials(ctx context.Context) (*NotificationBatchResult, error)
}

// CreateSubscriptionRequest represents a request to create a subscription
type CreateSubscriptionRequest struct {
	NextRenewalAt *time.Time
	DiscountID    *string
	AffiliateID   *string
	SubscriberID  string
	PlanID        string
}

// BillingOutcome is the result of store_card or charge
type BillingOutcome struct {
	Subscription *domain.Subscription
	// Payment is nil when no ledger entry was written.
	Payment *domain.PaymentRecord
	// Charged is true when a charge was due and succeeded, including zero amounts.
	Charged bool
}

// BillingBatchResult represents the result of processing a batch of subscriptions
type BillingBatchResult struct {
	AsOf                time.Time
	Errors              []BillingError
	ProcessedCount      int
	SuccessCount        int
	FailedCount         int
	SkippedCount        int
	ReconciliationCount int
}

// BillingError represents an error during billing processing
type BillingError struct {
	SubscriptionID string
	SubscriberID   string
	Error          string
	Reconciliation bool
}

// NotificationBatchResult summarizes a trial reminder run
type NotificationBatchResult struct {
	Errors      []BillingError
	Found       int
	Notified    int
	FailedCount int
}
