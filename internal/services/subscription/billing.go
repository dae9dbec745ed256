package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/billing-service/pkg/errors"
)

const (
	sourceStoreCard = "store_card"
	sourceRenewal   = "renewal"
)

// StoreCard stores the card at the vault (or replaces the stored one) and
// charges the subscription when its renewal is due.
//
// A renewal date is scheduled if none is set. The charge is due when the
// existing renewal date has passed, or when the date was just scheduled
// on a plan without a trial. Any vault or charge failure leaves the
// subscription exactly as it was.
func (s *Service) StoreCard(ctx context.Context, subscriptionID string, card *domain.Card) (*ports.BillingOutcome, error) {
	if card == nil {
		return nil, pkgerrors.NewValidationError("card", "Card information is required.")
	}
	if card.IsExpired(s.clock.Now()) {
		return nil, pkgerrors.NewValidationError("expiration_year", "Card has expired.")
	}

	var outcome *ports.BillingOutcome
	err := s.withLock(ctx, subscriptionID, func(ctx context.Context) error {
		sub, err := s.Get(ctx, subscriptionID)
		if err != nil {
			return err
		}
		plan, err := s.catalog.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return fmt.Errorf("get plan: %w", err)
		}
		discount, err := s.loadDiscount(ctx, sub.DiscountID)
		if err != nil {
			return err
		}
		affiliate, err := s.loadAffiliate(ctx, sub.AffiliateID)
		if err != nil {
			return err
		}
		subscriber, err := s.subscribers.GetSubscriber(ctx, sub.SubscriberID)
		if err != nil {
			return fmt.Errorf("get subscriber: %w", err)
		}

		now := s.clock.Now()
		next := sub.Clone()

		scheduled := false
		if !next.HasRenewalDate() {
			renewal := domain.ComputeNextRenewal(now, plan, domain.PricePlan(plan, discount).TrialExtension())
			next.NextRenewalAt = &renewal
			scheduled = true
		}
		due := next.IsDue(now) || (scheduled && !plan.HasTrial())

		stored, err := s.storeOrUpdate(ctx, sub, card, ports.VaultOptions{
			BillingAddress: card.BillingAddress,
			Email:          subscriber.Email,
			SubscriberID:   subscriber.ID,
		})
		if err != nil {
			return err
		}
		if !sub.CardOnFile() {
			next.BillingID = stored.BillingID
		}
		next.CardNumber = card.LastFour()
		next.CardExpiration = card.Expiration()
		next.UpdatedAt = now

		if !due {
			if err := s.store.Repositories().Subscriptions.Update(ctx, next); err != nil {
				s.logger.Error("card stored at vault but subscription update failed",
					ports.String("subscription_id", sub.ID),
					ports.Err(err))
				return fmt.Errorf("update subscription: %w", err)
			}
			s.logger.Info("card stored",
				ports.String("subscription_id", sub.ID),
				ports.String("next_renewal_at", next.NextRenewalAt.Format(time.RFC3339)),
				ports.Bool("charged", false))
			outcome = &ports.BillingOutcome{Subscription: next}
			return nil
		}

		paid, err := s.store.Repositories().Payments.CountBySubscription(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("count payments: %w", err)
		}
		setup := paid == 0 && plan.HasSetupAmount()
		amount := next.Amount
		if setup {
			amount = plan.SetupAmount
		}

		if !scheduled {
			renewal := domain.AdvanceRenewal(now, next)
			next.NextRenewalAt = &renewal
		}
		next.State = domain.SubscriptionStateActive

		outcome, err = s.settle(ctx, settlement{
			before:      sub,
			after:       next,
			subscriber:  subscriber,
			affiliate:   affiliate,
			amount:      amount,
			setup:       setup,
			periodStart: now,
			orderID:     orderID(sub.ID, now, setup),
			source:      sourceStoreCard,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// Charge bills a due subscription with its stored card and advances the
// renewal date by one renewal period. Zero amounts skip the gateway and
// the ledger. A decline changes nothing.
func (s *Service) Charge(ctx context.Context, subscriptionID string) (*ports.BillingOutcome, error) {
	return s.charge(ctx, subscriptionID, nil)
}

// chargeListed charges a subscription returned by a due query. If another
// run charged it after the query, its renewal date has moved and it is
// skipped with domain.ErrSubscriptionStale before reaching the gateway.
func (s *Service) chargeListed(ctx context.Context, listed *domain.Subscription, dueBy time.Time) (*ports.BillingOutcome, error) {
	return s.charge(ctx, listed.ID, func(cur *domain.Subscription) error {
		if !cur.IsActive() || !cur.IsDue(dueBy) || !listed.HasRenewalDate() ||
			!cur.NextRenewalAt.Equal(*listed.NextRenewalAt) {
			return domain.ErrSubscriptionStale
		}
		return nil
	})
}

// charge runs the renewal charge. check, when set, vets the subscription
// as re-read under the lock.
func (s *Service) charge(ctx context.Context, subscriptionID string, check func(*domain.Subscription) error) (*ports.BillingOutcome, error) {
	var outcome *ports.BillingOutcome
	err := s.withLock(ctx, subscriptionID, func(ctx context.Context) error {
		sub, err := s.Get(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(sub); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		from := now
		if sub.HasRenewalDate() {
			from = *sub.NextRenewalAt
		}

		next := sub.Clone()
		renewal := domain.AdvanceRenewal(from, next)
		next.NextRenewalAt = &renewal
		next.State = domain.SubscriptionStateActive
		next.UpdatedAt = now

		var subscriber *domain.Subscriber
		var affiliate *domain.Affiliate
		if sub.Amount.IsPositive() {
			if subscriber, err = s.subscribers.GetSubscriber(ctx, sub.SubscriberID); err != nil {
				return fmt.Errorf("get subscriber: %w", err)
			}
			if affiliate, err = s.loadAffiliate(ctx, sub.AffiliateID); err != nil {
				return err
			}
		}

		outcome, err = s.settle(ctx, settlement{
			before:      sub,
			after:       next,
			subscriber:  subscriber,
			affiliate:   affiliate,
			amount:      sub.Amount,
			periodStart: from,
			orderID:     orderID(sub.ID, from, false),
			source:      sourceRenewal,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// settlement is a due charge ready to be taken
type settlement struct {
	periodStart time.Time
	before      *domain.Subscription
	after       *domain.Subscription
	subscriber  *domain.Subscriber
	affiliate   *domain.Affiliate
	amount      decimal.Decimal
	orderID     string
	source      string
	setup       bool
}

// settle charges st.amount, then durably writes st.after and the ledger
// entry together. A failed write after a successful charge is escalated
// as a reconciliation fault.
func (s *Service) settle(ctx context.Context, st settlement) (*ports.BillingOutcome, error) {
	if !st.amount.IsPositive() {
		if err := s.store.Repositories().Subscriptions.Update(ctx, st.after); err != nil {
			return nil, fmt.Errorf("update subscription: %w", err)
		}
		s.metrics.RecordCharge(st.source, "free", 0)
		s.logger.Info("zero amount charge settled without gateway",
			ports.String("subscription_id", st.after.ID),
			ports.String("next_renewal_at", st.after.NextRenewalAt.Format(time.RFC3339)))
		return &ports.BillingOutcome{Subscription: st.after, Charged: true}, nil
	}

	result, err := s.charges.Attempt(ctx, ChargeRequest{
		Amount:         st.amount,
		BillingID:      st.after.BillingID,
		OrderID:        st.orderID,
		SubscriptionID: st.after.ID,
		Source:         st.source,
	})
	if err != nil {
		var recErr *pkgerrors.ReconciliationError
		if errors.As(err, &recErr) {
			// The caller's context may be what cut the purchase short
			alertCtx, cancel := s.timeouts.PersistContext(ctx)
			s.escalate(alertCtx, recErr)
			cancel()
		}
		return nil, err
	}

	payment := s.ledger.Build(Entry{
		Subscription:  st.after,
		Affiliate:     st.affiliate,
		Amount:        st.amount,
		TransactionID: result.Authorization,
		Setup:         st.setup,
	})

	// Money has moved: the write must not be abandoned with the caller's context
	persistCtx, cancel := s.timeouts.PersistContext(ctx)
	defer cancel()

	err = s.store.WithTransaction(persistCtx, func(ctx context.Context, repos ports.Repositories) error {
		if err := repos.Subscriptions.Update(ctx, st.after); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		return s.ledger.Append(ctx, repos, payment)
	})
	if err != nil {
		s.metrics.RecordReconciliation("record_payment")
		recErr := &pkgerrors.ReconciliationError{
			Op:             "record payment",
			SubscriptionID: st.after.ID,
			TransactionID:  result.Authorization,
			Amount:         st.amount,
			Err:            err,
		}
		s.escalate(persistCtx, recErr)
		return nil, recErr
	}

	s.logger.Info("subscription charged",
		ports.String("subscription_id", st.after.ID),
		ports.String("transaction_id", payment.TransactionID),
		ports.String("amount", st.amount.StringFixed(2)),
		ports.Bool("setup", st.setup),
		ports.String("state_before", string(st.before.State)),
		ports.String("next_renewal_at", st.after.NextRenewalAt.Format(time.RFC3339)))

	s.notifyCharge(persistCtx, ports.ChargeNotice{
		Subscription: st.after,
		Subscriber:   st.subscriber,
		Payment:      payment,
		Amount:       st.amount,
		PeriodStart:  st.periodStart,
		PeriodEnd:    *st.after.NextRenewalAt,
	})

	return &ports.BillingOutcome{Subscription: st.after, Payment: payment, Charged: true}, nil
}

func (s *Service) storeOrUpdate(ctx context.Context, sub *domain.Subscription, card *domain.Card, opts ports.VaultOptions) (*ports.StoreResult, error) {
	op := "store"
	start := time.Now()

	var result *ports.StoreResult
	var err error
	if sub.CardOnFile() {
		op = "update"
		result, err = s.vault.Update(ctx, sub.BillingID, card, opts)
	} else {
		result, err = s.vault.Store(ctx, card, opts)
	}

	if err != nil {
		s.metrics.RecordVaultCall(op, "error", time.Since(start))
		s.logger.Warn("vault rejected card",
			ports.String("subscription_id", sub.ID),
			ports.String("operation", op),
			ports.Err(err))
		return nil, err
	}
	if op == "store" && result.BillingID == "" {
		s.metrics.RecordVaultCall(op, "error", time.Since(start))
		return nil, pkgerrors.NewPaymentError(string(domain.ErrorCodeGatewayError),
			"The payment processor did not return a card reference.", pkgerrors.CategorySystemError, false)
	}

	s.metrics.RecordVaultCall(op, "success", time.Since(start))
	return result, nil
}

func (s *Service) notifyCharge(ctx context.Context, notice ports.ChargeNotice) {
	if err := s.notifier.ChargeSucceeded(ctx, notice); err != nil {
		s.logger.Warn("charge receipt notification failed",
			ports.String("subscription_id", notice.Subscription.ID),
			ports.Err(err))
	}
}

// escalate reports a reconciliation fault to operators
func (s *Service) escalate(ctx context.Context, recErr *pkgerrors.ReconciliationError) {
	s.logger.Error("reconciliation required",
		ports.String("operation", recErr.Op),
		ports.String("subscription_id", recErr.SubscriptionID),
		ports.String("transaction_id", recErr.TransactionID),
		ports.String("amount", recErr.Amount.StringFixed(2)),
		ports.Err(recErr.Err))

	err := s.notifier.ReconciliationRequired(ctx, ports.ReconciliationNotice{
		OccurredAt:     s.clock.Now(),
		Amount:         recErr.Amount,
		Op:             recErr.Op,
		SubscriptionID: recErr.SubscriptionID,
		TransactionID:  recErr.TransactionID,
		Reason:         recErr.Err.Error(),
	})
	if err != nil {
		s.logger.Error("reconciliation notification failed",
			ports.String("subscription_id", recErr.SubscriptionID),
			ports.Err(err))
	}
}

// orderID identifies a billing attempt at the gateway
func orderID(subscriptionID string, period time.Time, setup bool) string {
	id := fmt.Sprintf("sub-%s-%s", subscriptionID, period.Format("2006-01-02"))
	if setup {
		id += "-setup"
	}
	return id
}
