package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/billing-service/pkg/errors"
)

// FindExpiringTrials returns trials whose renewal falls on the UTC day
// seven days from now
func (s *Service) FindExpiringTrials(ctx context.Context) ([]*domain.Subscription, error) {
	from, to := domain.ExpiringTrialWindow(s.clock.Now())
	subs, err := s.store.Repositories().Subscriptions.ListByStateAndRenewalWindow(ctx, domain.SubscriptionStateTrial, from, to, 0)
	if err != nil {
		return nil, fmt.Errorf("list expiring trials: %w", err)
	}
	return subs, nil
}

// FindDue returns active subscriptions whose renewal falls on asOf's UTC day
func (s *Service) FindDue(ctx context.Context, asOf time.Time) ([]*domain.Subscription, error) {
	return s.findDue(ctx, asOf, 0)
}

func (s *Service) findDue(ctx context.Context, asOf time.Time, limit int) ([]*domain.Subscription, error) {
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	from, to := domain.DueWindow(asOf)
	subs, err := s.store.Repositories().Subscriptions.ListByStateAndRenewalWindow(ctx, domain.SubscriptionStateActive, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	return subs, nil
}

// ProcessDueBilling charges up to batchSize subscriptions due on asOf's
// day. Each subscription is charged at most once per run; charges run on
// a bounded worker pool and hold the subscription's lock. A subscription
// already charged by an overlapping run is skipped.
func (s *Service) ProcessDueBilling(ctx context.Context, asOf time.Time, batchSize int) (*ports.BillingBatchResult, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.DefaultBatchSize
	}
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	start := time.Now()

	subs, err := s.findDue(ctx, asOf, batchSize)
	if err != nil {
		return nil, err
	}
	subs = lo.UniqBy(subs, func(sub *domain.Subscription) string { return sub.ID })
	_, dueBy := domain.DueWindow(asOf)

	result := &ports.BillingBatchResult{
		AsOf:   asOf,
		Errors: make([]ports.BillingError, 0),
	}

	s.logger.Info("processing billing batch",
		ports.String("as_of_date", asOf.Format(time.RFC3339)),
		ports.Int("count", len(subs)),
		ports.Int("workers", s.cfg.BatchWorkers))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchWorkers)

	for _, sub := range subs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			_, chargeErr := s.chargeListed(gctx, sub, dueBy)

			mu.Lock()
			defer mu.Unlock()
			s.recordBillingResult(result, sub, chargeErr)
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.RecordBatch("renewal", result.ProcessedCount, result.FailedCount, time.Since(start))
	s.logger.Info("billing batch completed",
		ports.Int("processed", result.ProcessedCount),
		ports.Int("success", result.SuccessCount),
		ports.Int("failed", result.FailedCount),
		ports.Int("skipped", result.SkippedCount),
		ports.Int("reconciliation", result.ReconciliationCount))

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("billing batch interrupted: %w", err)
	}
	return result, nil
}

func (s *Service) recordBillingResult(result *ports.BillingBatchResult, sub *domain.Subscription, err error) {
	switch {
	case err == nil:
		result.ProcessedCount++
		result.SuccessCount++
	case errors.Is(err, domain.ErrSubscriptionBusy),
		errors.Is(err, domain.ErrSubscriptionNotFound),
		errors.Is(err, domain.ErrSubscriptionStale):
		result.SkippedCount++
		s.logger.Info("subscription skipped",
			ports.String("subscription_id", sub.ID),
			ports.String("reason", err.Error()))
	default:
		result.ProcessedCount++
		result.FailedCount++
		reconciliation := pkgerrors.IsReconciliation(err)
		if reconciliation {
			result.ReconciliationCount++
		}
		result.Errors = append(result.Errors, ports.BillingError{
			SubscriptionID: sub.ID,
			SubscriberID:   sub.SubscriberID,
			Error:          err.Error(),
			Reconciliation: reconciliation,
		})
		s.logger.Error("billing failed for subscription",
			ports.String("subscription_id", sub.ID),
			ports.String("subscriber_id", sub.SubscriberID),
			ports.Bool("reconciliation", reconciliation),
			ports.Err(err))
	}
}

// NotifyExpiringTrials sends a trial-ending reminder for each subscription
// returned by FindExpiringTrials
func (s *Service) NotifyExpiringTrials(ctx context.Context) (*ports.NotificationBatchResult, error) {
	start := time.Now()
	subs, err := s.FindExpiringTrials(ctx)
	if err != nil {
		return nil, err
	}

	result := &ports.NotificationBatchResult{
		Found:  len(subs),
		Errors: make([]ports.BillingError, 0),
	}

	for _, sub := range subs {
		if err := s.notifyTrial(ctx, sub); err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, ports.BillingError{
				SubscriptionID: sub.ID,
				SubscriberID:   sub.SubscriberID,
				Error:          err.Error(),
			})
			s.logger.Warn("trial reminder failed",
				ports.String("subscription_id", sub.ID),
				ports.Err(err))
			continue
		}
		result.Notified++
	}

	s.metrics.RecordBatch("trial_reminder", result.Found, result.FailedCount, time.Since(start))
	s.logger.Info("trial reminders sent",
		ports.Int("found", result.Found),
		ports.Int("notified", result.Notified),
		ports.Int("failed", result.FailedCount))
	return result, nil
}

func (s *Service) notifyTrial(ctx context.Context, sub *domain.Subscription) error {
	subscriber, err := s.subscribers.GetSubscriber(ctx, sub.SubscriberID)
	if err != nil {
		return fmt.Errorf("get subscriber: %w", err)
	}
	plan, err := s.catalog.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return fmt.Errorf("get plan: %w", err)
	}
	return s.notifier.TrialExpiring(ctx, ports.TrialNotice{
		EndsAt:       *sub.NextRenewalAt,
		Subscription: sub,
		Subscriber:   subscriber,
		Plan:         plan,
	})
}
