package ports

import (
	"context"
)

// Repositories groups the repositories that must commit together
type Repositories struct {
	Subscriptions SubscriptionRepository
	Payments      PaymentRepository
}

// TransactionManager manages database transactions
type TransactionManager interface {
	// WithTransaction executes fn within a write transaction.
	// Repositories passed to fn are bound to the transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error

	// WithReadOnlyTransaction executes fn within a read-only transaction
	WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Store is the persistence boundary for subscriptions and the ledger
type Store interface {
	TransactionManager

	// Repositories returns repositories outside any transaction
	Repositories() Repositories

	Ping(ctx context.Context) error
	Close() error
}
