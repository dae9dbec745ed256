package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/billing-service/internal/domain"
)

const planSelect = `SELECT p.id, p.name, p.amount, p.setup_amount, p.trial_period, p.trial_interval,
	p.renewal_period, p.renewal_interval, p.user_limit,
	d.id, d.code, d.kind, d.amount, d.trial_period_extension
	FROM plans p LEFT JOIN discounts d ON d.id = p.discount_id`

// GetPlan implements ports.CatalogRepository
func (s *Store) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.SimpleQueryTimeout)
	defer cancel()

	plan, err := scanPlan(s.pool.QueryRow(ctx, planSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

// ListPlans implements ports.CatalogRepository
func (s *Store) ListPlans(ctx context.Context) ([]*domain.Plan, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.ComplexQueryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, planSelect+` ORDER BY p.amount, p.id`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []*domain.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// GetDiscount implements ports.CatalogRepository
func (s *Store) GetDiscount(ctx context.Context, id string) (*domain.Discount, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.SimpleQueryTimeout)
	defer cancel()

	var (
		d      domain.Discount
		kind   string
		amount pgtype.Numeric
		ext    int32
	)
	err := s.pool.QueryRow(ctx, `SELECT id, code, kind, amount, trial_period_extension FROM discounts WHERE id = $1`, id).
		Scan(&d.ID, &d.Code, &kind, &amount, &ext)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDiscountNotFound
		}
		return nil, fmt.Errorf("get discount: %w", err)
	}
	if d.Amount, err = pgNumericToDecimal(amount); err != nil {
		return nil, err
	}
	d.Kind = domain.DiscountKind(kind)
	d.TrialPeriodExtension = int(ext)
	return &d, nil
}

// GetAffiliate implements ports.CatalogRepository
func (s *Store) GetAffiliate(ctx context.Context, id string) (*domain.Affiliate, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.SimpleQueryTimeout)
	defer cancel()

	var (
		a    domain.Affiliate
		rate pgtype.Numeric
	)
	err := s.pool.QueryRow(ctx, `SELECT id, name, rate FROM affiliates WHERE id = $1`, id).Scan(&a.ID, &a.Name, &rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAffiliateNotFound
		}
		return nil, fmt.Errorf("get affiliate: %w", err)
	}
	if a.Rate, err = pgNumericToDecimal(rate); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetSubscriber implements ports.SubscriberDirectory
func (s *Store) GetSubscriber(ctx context.Context, id string) (*domain.Subscriber, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.SimpleQueryTimeout)
	defer cancel()

	var (
		sub   domain.Subscriber
		count int32
	)
	err := s.pool.QueryRow(ctx, `SELECT id, name, email, user_count FROM subscribers WHERE id = $1`, id).
		Scan(&sub.ID, &sub.Name, &sub.Email, &count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	sub.UserCount = int(count)
	return &sub, nil
}

func scanPlan(row scanner) (*domain.Plan, error) {
	var (
		plan            domain.Plan
		amount          pgtype.Numeric
		setupAmount     pgtype.Numeric
		trialPeriod     pgtype.Int4
		trialInterval   string
		renewalPeriod   int32
		renewalInterval string
		userLimit       pgtype.Int4
		discountID      pgtype.Text
		discountCode    pgtype.Text
		discountKind    pgtype.Text
		discountAmount  pgtype.Numeric
		discountExt     pgtype.Int4
	)

	err := row.Scan(&plan.ID, &plan.Name, &amount, &setupAmount, &trialPeriod, &trialInterval,
		&renewalPeriod, &renewalInterval, &userLimit,
		&discountID, &discountCode, &discountKind, &discountAmount, &discountExt)
	if err != nil {
		return nil, err
	}

	if plan.Amount, err = pgNumericToDecimal(amount); err != nil {
		return nil, err
	}
	if plan.SetupAmount, err = pgNumericToDecimal(setupAmount); err != nil {
		return nil, err
	}
	plan.TrialPeriod = intPtr(trialPeriod)
	plan.TrialInterval = domain.IntervalUnit(trialInterval)
	plan.RenewalPeriod = int(renewalPeriod)
	plan.RenewalInterval = domain.IntervalUnit(renewalInterval)
	plan.UserLimit = intPtr(userLimit)

	if discountID.Valid {
		d := &domain.Discount{
			ID:                   discountID.String,
			Code:                 discountCode.String,
			Kind:                 domain.DiscountKind(discountKind.String),
			TrialPeriodExtension: int(discountExt.Int32),
		}
		if d.Amount, err = pgNumericToDecimal(discountAmount); err != nil {
			return nil, err
		}
		plan.Discount = d
	}
	return &plan, nil
}
