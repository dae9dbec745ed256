package ports

import (
	"context"

	"github.com/kevin07696/billing-service/internal/domain"
)

// VaultOptions are passed through to the vault with a card
type VaultOptions struct {
	BillingAddress *domain.BillingAddress
	Email          string
	SubscriberID   string
}

// StoreResult is the vault's answer to store or update
type StoreResult struct {
	BillingID string
	Token     string
	Message   string
}

// PurchaseRequest charges a stored card
type PurchaseRequest struct {
	// BillingID is the vault reference of the stored card.
	BillingID string
	// OrderID identifies the billing attempt at the gateway.
	OrderID     string
	Description string
	// AmountCents is the charge in minor currency units.
	AmountCents int64
}

// CardVault is the payment gateway's customer vault.
//
// Declines and vault rejections are returned as *errors.PaymentError with
// the gateway's text. Transport failures and timeouts are returned as a
// domain.DomainError with a GATEWAY_* code: for Purchase the outcome is
// then unknown and must be reconciled before any retry.
type CardVault interface {
	Store(ctx context.Context, card *domain.Card, opts VaultOptions) (*StoreResult, error)
	Update(ctx context.Context, billingID string, card *domain.Card, opts VaultOptions) (*StoreResult, error)
	Unstore(ctx context.Context, billingID string) error
	Purchase(ctx context.Context, req PurchaseRequest) (*domain.ChargeResult, error)
}
