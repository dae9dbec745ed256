package subscription

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// LedgerWriter appends payment records
type LedgerWriter struct {
	clock timeutil.Clock
}

// NewLedgerWriter creates a ledger writer stamping records with clock
func NewLedgerWriter(clock timeutil.Clock) *LedgerWriter {
	return &LedgerWriter{clock: clock}
}

// Entry describes one successful charge
type Entry struct {
	Subscription  *domain.Subscription
	Affiliate     *domain.Affiliate
	Amount        decimal.Decimal
	TransactionID string
	Setup         bool
}

// Build creates the immutable record for e. The affiliate commission is
// amount * rate and only present when an affiliate is linked.
func (w *LedgerWriter) Build(e Entry) *domain.PaymentRecord {
	record := &domain.PaymentRecord{
		ID:             uuid.New().String(),
		SubscriptionID: e.Subscription.ID,
		SubscriberID:   e.Subscription.SubscriberID,
		Amount:         e.Amount,
		Setup:          e.Setup,
		TransactionID:  e.TransactionID,
		CreatedAt:      w.clock.Now(),
	}

	if e.Affiliate != nil {
		affiliateID := e.Affiliate.ID
		commission := e.Affiliate.Commission(e.Amount)
		record.AffiliateID = &affiliateID
		record.AffiliateAmount = &commission
	}
	return record
}

// Append writes record through repos, which should be transaction-bound
func (w *LedgerWriter) Append(ctx context.Context, repos ports.Repositories, record *domain.PaymentRecord) error {
	if err := repos.Payments.Create(ctx, record); err != nil {
		return fmt.Errorf("append payment %s: %w", record.TransactionID, err)
	}
	return nil
}
