package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/billing-service/pkg/errors"
	"github.com/kevin07696/billing-service/pkg/resilience"
	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// UserLimitExceededMessage is shown when a plan switch would strand users
const UserLimitExceededMessage = "User limit for new plan would be exceeded."

// Config tunes billing behavior
type Config struct {
	// ChargeTimeout bounds a single gateway purchase.
	ChargeTimeout time.Duration
	// LockTTL bounds how long a subscription stays locked if a worker dies.
	LockTTL time.Duration
	// PersistTimeout bounds the durable write that follows a successful charge.
	PersistTimeout   time.Duration
	BatchWorkers     int
	DefaultBatchSize int
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		ChargeTimeout:    30 * time.Second,
		LockTTL:          2 * time.Minute,
		PersistTimeout:   15 * time.Second,
		BatchWorkers:     4,
		DefaultBatchSize: 100,
	}
}

// Dependencies are the collaborators of Service. Notifier, Locker and
// Metrics may be nil.
type Dependencies struct {
	Store       ports.Store
	Catalog     ports.CatalogRepository
	Subscribers ports.SubscriberDirectory
	Vault       ports.CardVault
	Notifier    ports.Notifier
	Locker      ports.Locker
	Metrics     ports.BillingMetrics
	Clock       timeutil.Clock
	Logger      ports.Logger
}

// Service implements ports.SubscriptionService
type Service struct {
	store       ports.Store
	catalog     ports.CatalogRepository
	subscribers ports.SubscriberDirectory
	vault       ports.CardVault
	charges     *ChargeProcessor
	ledger      *LedgerWriter
	notifier    ports.Notifier
	locker      ports.Locker
	metrics     ports.BillingMetrics
	clock       timeutil.Clock
	logger      ports.Logger
	timeouts    *resilience.TimeoutConfig
	cfg         Config
}

var _ ports.SubscriptionService = (*Service)(nil)

// NewService creates a new subscription service
func NewService(deps Dependencies, cfg Config) *Service {
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock{}
	}
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	if deps.Locker == nil {
		deps.Locker = noopLocker{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	defaults := DefaultConfig()
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaults.LockTTL
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaults.PersistTimeout
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = defaults.BatchWorkers
	}
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = defaults.DefaultBatchSize
	}

	return &Service{
		store:       deps.Store,
		catalog:     deps.Catalog,
		subscribers: deps.Subscribers,
		vault:       deps.Vault,
		charges:     NewChargeProcessor(deps.Vault, deps.Metrics, deps.Logger, cfg.ChargeTimeout),
		ledger:      NewLedgerWriter(deps.Clock),
		notifier:    deps.Notifier,
		locker:      deps.Locker,
		metrics:     deps.Metrics,
		clock:       deps.Clock,
		logger:      deps.Logger,
		timeouts:    &resilience.TimeoutConfig{Gateway: cfg.ChargeTimeout, Persist: cfg.PersistTimeout},
		cfg:         cfg,
	}
}

// Create opens a subscription. Free plans start active, paid plans start
// in trial. The renewal date stays unset unless given explicitly.
func (s *Service) Create(ctx context.Context, req ports.CreateSubscriptionRequest) (*domain.Subscription, error) {
	if req.SubscriberID == "" {
		return nil, pkgerrors.NewValidationError("subscriber_id", "Subscriber is required.")
	}
	if req.PlanID == "" {
		return nil, pkgerrors.NewValidationError("plan_id", "Plan is required.")
	}

	if _, err := s.subscribers.GetSubscriber(ctx, req.SubscriberID); err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}

	plan, err := s.catalog.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	discount, err := s.loadDiscount(ctx, req.DiscountID)
	if err != nil {
		return nil, err
	}
	if req.AffiliateID != nil {
		if _, err := s.catalog.GetAffiliate(ctx, *req.AffiliateID); err != nil {
			return nil, fmt.Errorf("get affiliate: %w", err)
		}
	}

	now := s.clock.Now()
	sub := &domain.Subscription{
		ID:           uuid.New().String(),
		SubscriberID: req.SubscriberID,
		DiscountID:   req.DiscountID,
		AffiliateID:  req.AffiliateID,
		State:        domain.SubscriptionStateTrial,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	applyPlan(sub, plan, discount)
	if plan.IsFree() {
		sub.State = domain.SubscriptionStateActive
	}
	if req.NextRenewalAt != nil {
		renewal := timeutil.ToUTC(*req.NextRenewalAt)
		sub.NextRenewalAt = &renewal
	}

	if err := s.store.Repositories().Subscriptions.Create(ctx, sub); err != nil {
		s.logger.Error("create subscription failed",
			ports.String("subscriber_id", req.SubscriberID),
			ports.String("plan_id", req.PlanID),
			ports.Err(err))
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	s.logger.Info("subscription created",
		ports.String("subscription_id", sub.ID),
		ports.String("subscriber_id", sub.SubscriberID),
		ports.String("plan_id", sub.PlanID),
		ports.String("state", string(sub.State)),
		ports.String("amount", sub.Amount.StringFixed(2)))

	return sub, nil
}

// Get retrieves a subscription by ID
func (s *Service) Get(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	return s.store.Repositories().Subscriptions.GetByID(ctx, subscriptionID)
}

// SwitchPlan moves the subscription to planID. The new plan's user limit
// must hold the subscriber's current users; nothing changes otherwise.
func (s *Service) SwitchPlan(ctx context.Context, subscriptionID, planID string) (*domain.Subscription, error) {
	var updated *domain.Subscription
	err := s.withLock(ctx, subscriptionID, func(ctx context.Context) error {
		sub, err := s.Get(ctx, subscriptionID)
		if err != nil {
			return err
		}
		plan, err := s.catalog.GetPlan(ctx, planID)
		if err != nil {
			return fmt.Errorf("get plan: %w", err)
		}
		subscriber, err := s.subscribers.GetSubscriber(ctx, sub.SubscriberID)
		if err != nil {
			return fmt.Errorf("get subscriber: %w", err)
		}
		if !plan.AllowsUsers(subscriber.UserCount) {
			return pkgerrors.NewValidationError("plan_id", UserLimitExceededMessage)
		}
		discount, err := s.loadDiscount(ctx, sub.DiscountID)
		if err != nil {
			return err
		}

		next := sub.Clone()
		applyPlan(next, plan, discount)
		next.UpdatedAt = s.clock.Now()
		if err := s.update(ctx, next); err != nil {
			return err
		}

		s.logger.Info("subscription plan switched",
			ports.String("subscription_id", sub.ID),
			ports.String("from_plan", sub.PlanID),
			ports.String("to_plan", plan.ID),
			ports.String("amount", next.Amount.StringFixed(2)))
		updated = next
		return nil
	})
	return updated, err
}

// ChangeDiscount replaces the account discount and recomputes the amount
func (s *Service) ChangeDiscount(ctx context.Context, subscriptionID string, discountID *string) (*domain.Subscription, error) {
	var updated *domain.Subscription
	err := s.withLock(ctx, subscriptionID, func(ctx context.Context) error {
		sub, err := s.Get(ctx, subscriptionID)
		if err != nil {
			return err
		}
		plan, err := s.catalog.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return fmt.Errorf("get plan: %w", err)
		}
		discount, err := s.loadDiscount(ctx, discountID)
		if err != nil {
			return err
		}

		next := sub.Clone()
		next.DiscountID = discountID
		applyPlan(next, plan, discount)
		next.UpdatedAt = s.clock.Now()
		if err := s.update(ctx, next); err != nil {
			return err
		}

		s.logger.Info("subscription discount changed",
			ports.String("subscription_id", sub.ID),
			ports.Bool("has_discount", discountID != nil),
			ports.String("amount", next.Amount.StringFixed(2)))
		updated = next
		return nil
	})
	return updated, err
}

// OverrideAmount pins the charge amount. The pin survives RefreshPricing
// and is cleared by SwitchPlan or ChangeDiscount.
func (s *Service) OverrideAmount(ctx context.Context, subscriptionID string, amount decimal.Decimal) (*domain.Subscription, error) {
	if amount.IsNegative() {
		return nil, pkgerrors.NewValidationError("amount", "Amount must not be negative.")
	}

	var updated *domain.Subscription
	err := s.withLock(ctx, subscriptionID, func(ctx context.Context) error {
		sub, err := s.Get(ctx, subscriptionID)
		if err != nil {
			return err
		}

		next := sub.Clone()
		next.Amount = amount
		next.AmountOverridden = true
		next.UpdatedAt = s.clock.Now()
		if err := s.update(ctx, next); err != nil {
			return err
		}

		s.logger.Info("subscription amount overridden",
			ports.String("subscription_id", sub.ID),
			ports.String("amount", amount.StringFixed(2)))
		updated = next
		return nil
	})
	return updated, err
}

// RefreshPricing recomputes the amount from the current catalog. An
// overridden amount is returned untouched.
func (s *Service) RefreshPricing(ctx context.Context, subscriptionID string) (*domain.Subscription, error) {
	var updated *domain.Subscription
	err := s.withLock(ctx, subscriptionID, func(ctx context.Context) error {
		sub, err := s.Get(ctx, subscriptionID)
		if err != nil {
			return err
		}
		updated = sub
		if sub.AmountOverridden {
			return nil
		}
		plan, err := s.catalog.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return fmt.Errorf("get plan: %w", err)
		}
		discount, err := s.loadDiscount(ctx, sub.DiscountID)
		if err != nil {
			return err
		}

		amount := domain.PricePlan(plan, discount).Amount
		if amount.Equal(sub.Amount) {
			return nil
		}

		next := sub.Clone()
		next.Amount = amount
		next.UpdatedAt = s.clock.Now()
		if err := s.update(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Destroy releases the stored card at the vault, then deletes the
// subscription. Payment records are kept.
func (s *Service) Destroy(ctx context.Context, subscriptionID string) error {
	return s.withLock(ctx, subscriptionID, func(ctx context.Context) error {
		sub, err := s.Get(ctx, subscriptionID)
		if err != nil {
			return err
		}

		if sub.CardOnFile() {
			start := time.Now()
			if err := s.vault.Unstore(ctx, sub.BillingID); err != nil {
				s.metrics.RecordVaultCall("unstore", "error", time.Since(start))
				s.logger.Warn("unstore card failed",
					ports.String("subscription_id", sub.ID),
					ports.Err(err))
				return err
			}
			s.metrics.RecordVaultCall("unstore", "success", time.Since(start))
		}

		if err := s.store.Repositories().Subscriptions.Delete(ctx, sub.ID); err != nil {
			return fmt.Errorf("delete subscription: %w", err)
		}

		s.logger.Info("subscription destroyed",
			ports.String("subscription_id", sub.ID),
			ports.Bool("card_released", sub.CardOnFile()))
		return nil
	})
}

// NeedsPaymentInfo reports whether the subscription costs money and has no card
func (s *Service) NeedsPaymentInfo(ctx context.Context, subscriptionID string) (bool, error) {
	sub, err := s.Get(ctx, subscriptionID)
	if err != nil {
		return false, err
	}
	return sub.NeedsPaymentInfo(), nil
}

// Payments lists the ledger for a subscription
func (s *Service) Payments(ctx context.Context, subscriptionID string) ([]*domain.PaymentRecord, error) {
	return s.store.Repositories().Payments.ListBySubscription(ctx, subscriptionID)
}

// applyPlan copies plan terms onto sub and reprices it, clearing any override
func applyPlan(sub *domain.Subscription, plan *domain.Plan, discount *domain.Discount) {
	sub.PlanID = plan.ID
	sub.UserLimit = plan.UserLimit
	sub.RenewalPeriod, sub.RenewalInterval = plan.RenewalTerm()
	sub.Amount = domain.PricePlan(plan, discount).Amount
	sub.AmountOverridden = false
}

func (s *Service) loadDiscount(ctx context.Context, id *string) (*domain.Discount, error) {
	if id == nil || *id == "" {
		return nil, nil
	}
	discount, err := s.catalog.GetDiscount(ctx, *id)
	if err != nil {
		return nil, fmt.Errorf("get discount: %w", err)
	}
	return discount, nil
}

func (s *Service) loadAffiliate(ctx context.Context, id *string) (*domain.Affiliate, error) {
	if id == nil || *id == "" {
		return nil, nil
	}
	affiliate, err := s.catalog.GetAffiliate(ctx, *id)
	if err != nil {
		return nil, fmt.Errorf("get affiliate: %w", err)
	}
	return affiliate, nil
}

// update stores sub. A stale write keeps its sentinel so callers can retry.
func (s *Service) update(ctx context.Context, sub *domain.Subscription) error {
	if err := s.store.Repositories().Subscriptions.Update(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrSubscriptionStale) {
			s.logger.Warn("subscription changed concurrently, update rejected",
				ports.String("subscription_id", sub.ID))
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// withLock runs fn while holding the subscription's billing lock
func (s *Service) withLock(ctx context.Context, subscriptionID string, fn func(ctx context.Context) error) error {
	unlock, err := s.locker.Acquire(ctx, "subscription:"+subscriptionID, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionBusy) {
			return err
		}
		return fmt.Errorf("acquire subscription lock: %w", err)
	}
	defer func() {
		// Release with a fresh context so a cancelled request still unlocks
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := unlock(releaseCtx); err != nil {
			s.logger.Warn("release subscription lock failed",
				ports.String("subscription_id", subscriptionID),
				ports.Err(err))
		}
	}()
	return fn(ctx)
}
