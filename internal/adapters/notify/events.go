package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// Routing keys
const (
	RoutingChargeSucceeded        = "billing.charge.succeeded"
	RoutingTrialExpiring          = "billing.trial.expiring"
	RoutingReconciliationRequired = "billing.reconciliation.required"
)

// chargeEvent is the payload published for a successful charge
type chargeEvent struct {
	SubscriptionID  string    `json:"subscription_id"`
	SubscriberID    string    `json:"subscriber_id"`
	PaymentID       string    `json:"payment_id,omitempty"`
	TransactionID   string    `json:"transaction_id,omitempty"`
	Amount          string    `json:"amount"`
	Setup           bool      `json:"setup"`
	AffiliateID     *string   `json:"affiliate_id,omitempty"`
	AffiliateAmount *string   `json:"affiliate_amount,omitempty"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
}

type trialEvent struct {
	SubscriptionID string    `json:"subscription_id"`
	SubscriberID   string    `json:"subscriber_id"`
	PlanID         string    `json:"plan_id"`
	CardOnFile     bool      `json:"card_on_file"`
	EndsAt         time.Time `json:"ends_at"`
}

type reconciliationEvent struct {
	Op             string    `json:"op"`
	SubscriptionID string    `json:"subscription_id"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	Amount         string    `json:"amount"`
	Reason         string    `json:"reason"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EventNotifier publishes notifications as JSON events
type EventNotifier struct {
	publisher Publisher
}

var _ ports.Notifier = (*EventNotifier)(nil)

// NewEventNotifier creates a notifier over publisher
func NewEventNotifier(publisher Publisher) *EventNotifier {
	return &EventNotifier{publisher: publisher}
}

// ChargeSucceeded implements ports.Notifier
func (n *EventNotifier) ChargeSucceeded(ctx context.Context, notice ports.ChargeNotice) error {
	ev := chargeEvent{
		Amount:      notice.Amount.StringFixed(2),
		PeriodStart: notice.PeriodStart,
		PeriodEnd:   notice.PeriodEnd,
	}
	if notice.Subscription != nil {
		ev.SubscriptionID = notice.Subscription.ID
		ev.SubscriberID = notice.Subscription.SubscriberID
	}
	if p := notice.Payment; p != nil {
		ev.PaymentID = p.ID
		ev.TransactionID = p.TransactionID
		ev.Setup = p.Setup
		ev.AffiliateID = p.AffiliateID
		if p.AffiliateAmount != nil {
			s := p.AffiliateAmount.StringFixed(2)
			ev.AffiliateAmount = &s
		}
	}
	return n.publish(ctx, RoutingChargeSucceeded, ev)
}

// TrialExpiring implements ports.Notifier
func (n *EventNotifier) TrialExpiring(ctx context.Context, notice ports.TrialNotice) error {
	ev := trialEvent{EndsAt: notice.EndsAt}
	if s := notice.Subscription; s != nil {
		ev.SubscriptionID = s.ID
		ev.SubscriberID = s.SubscriberID
		ev.PlanID = s.PlanID
		ev.CardOnFile = s.CardOnFile()
	}
	return n.publish(ctx, RoutingTrialExpiring, ev)
}

// ReconciliationRequired implements ports.Notifier
func (n *EventNotifier) ReconciliationRequired(ctx context.Context, notice ports.ReconciliationNotice) error {
	return n.publish(ctx, RoutingReconciliationRequired, reconciliationEvent{
		Op:             notice.Op,
		SubscriptionID: notice.SubscriptionID,
		TransactionID:  notice.TransactionID,
		Amount:         notice.Amount.StringFixed(2),
		Reason:         notice.Reason,
		OccurredAt:     notice.OccurredAt,
	})
}

func (n *EventNotifier) publish(ctx context.Context, routingKey string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}
	return n.publisher.Publish(ctx, routingKey, payload)
}
