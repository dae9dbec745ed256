package ports

import (
	"context"
	"time"

	"github.com/kevin07696/billing-service/internal/domain"
)

// SubscriptionRepository defines persistence operations for subscriptions
type SubscriptionRepository interface {
	// Create inserts a new subscription
	Create(ctx context.Context, sub *domain.Subscription) error

	// GetByID retrieves a subscription, domain.ErrSubscriptionNotFound if absent
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)

	// GetBySubscriber retrieves the subscription owned by a subscriber
	GetBySubscriber(ctx context.Context, subscriberID string) (*domain.Subscription, error)

	// Update overwrites the mutable fields of sub
	Update(ctx context.Context, sub *domain.Subscription) error

	// Delete removes a subscription
	Delete(ctx context.Context, id string) error

	// ListByStateAndRenewalWindow returns subscriptions in state whose
	// next_renewal_at lies within [from, to], ordered by renewal date
	ListByStateAndRenewalWindow(ctx context.Context, state domain.SubscriptionState, from, to time.Time, limit int) ([]*domain.Subscription, error)
}

// PaymentRepository is the append-only ledger
type PaymentRepository interface {
	// Create appends a payment record
	Create(ctx context.Context, payment *domain.PaymentRecord) error

	// ListBySubscription returns a subscription's payments, oldest first
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*domain.PaymentRecord, error)

	// CountBySubscription returns how many payments a subscription has
	CountBySubscription(ctx context.Context, subscriptionID string) (int, error)
}

// CatalogRepository reads plans, discounts and affiliates
type CatalogRepository interface {
	GetPlan(ctx context.Context, id string) (*domain.Plan, error)
	GetDiscount(ctx context.Context, id string) (*domain.Discount, error)
	GetAffiliate(ctx context.Context, id string) (*domain.Affiliate, error)
	ListPlans(ctx context.Context) ([]*domain.Plan, error)
}

// SubscriberDirectory reads the accounts that own subscriptions
type SubscriberDirectory interface {
	// GetSubscriber returns the subscriber with its current user count
	GetSubscriber(ctx context.Context, id string) (*domain.Subscriber, error)
}
