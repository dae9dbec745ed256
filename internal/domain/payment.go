package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRecord is an immutable ledger entry written once per successful charge
type PaymentRecord struct {
	CreatedAt       time.Time        `json:"created_at"`
	AffiliateID     *string          `json:"affiliate_id"`
	AffiliateAmount *decimal.Decimal `json:"affiliate_amount"`
	Amount          decimal.Decimal  `json:"amount"`
	ID              string           `json:"id"`
	SubscriptionID  string           `json:"subscription_id"`
	SubscriberID    string           `json:"subscriber_id"`
	TransactionID   string           `json:"transaction_id"`
	Setup           bool             `json:"setup"`
}

// HasAffiliate reports whether a commission was recorded
func (p *PaymentRecord) HasAffiliate() bool {
	return p.AffiliateID != nil
}

// ChargeResult is a gateway authorization for a successful purchase
type ChargeResult struct {
	Authorization    string
	AuthorizedAmount decimal.Decimal
	Message          string
	Metadata         map[string]string
}
