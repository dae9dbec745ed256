package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kevin07696/billing-service/internal/domain"
)

const planSelect = `SELECT p.id, p.name, p.amount, p.setup_amount, p.trial_period, p.trial_interval,
	p.renewal_period, p.renewal_interval, p.user_limit,
	d.id, d.code, d.kind, d.amount, d.trial_period_extension
	FROM plans p LEFT JOIN discounts d ON d.id = p.discount_id`

// GetPlan implements ports.CatalogRepository
func (s *Store) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	plan, err := scanPlan(s.db.QueryRowContext(ctx, planSelect+` WHERE p.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

// ListPlans implements ports.CatalogRepository
func (s *Store) ListPlans(ctx context.Context) ([]*domain.Plan, error) {
	rows, err := s.db.QueryContext(ctx, planSelect+` ORDER BY CAST(p.amount AS REAL), p.id`)
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
	var (
		d      domain.Discount
		kind   string
		amount string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, code, kind, amount, trial_period_extension FROM discounts WHERE id = ?`, id).
		Scan(&d.ID, &d.Code, &kind, &amount, &d.TrialPeriodExtension)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDiscountNotFound
		}
		return nil, fmt.Errorf("get discount: %w", err)
	}
	if d.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	d.Kind = domain.DiscountKind(kind)
	return &d, nil
}

// GetAffiliate implements ports.CatalogRepository
func (s *Store) GetAffiliate(ctx context.Context, id string) (*domain.Affiliate, error) {
	var (
		a    domain.Affiliate
		rate string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, rate FROM affiliates WHERE id = ?`, id).Scan(&a.ID, &a.Name, &rate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAffiliateNotFound
		}
		return nil, fmt.Errorf("get affiliate: %w", err)
	}
	if a.Rate, err = parseDecimal(rate); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetSubscriber implements ports.SubscriberDirectory
func (s *Store) GetSubscriber(ctx context.Context, id string) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email, user_count FROM subscribers WHERE id = ?`, id).
		Scan(&sub.ID, &sub.Name, &sub.Email, &sub.UserCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSubscriberNotFound
		}
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return &sub, nil
}

func scanPlan(row rowScanner) (*domain.Plan, error) {
	var (
		plan            domain.Plan
		amount          string
		setupAmount     string
		trialPeriod     sql.NullInt64
		trialInterval   string
		renewalInterval string
		userLimit       sql.NullInt64
		discountID      sql.NullString
		discountCode    sql.NullString
		discountKind    sql.NullString
		discountAmount  sql.NullString
		discountExt     sql.NullInt64
	)

	err := row.Scan(&plan.ID, &plan.Name, &amount, &setupAmount, &trialPeriod, &trialInterval,
		&plan.RenewalPeriod, &renewalInterval, &userLimit,
		&discountID, &discountCode, &discountKind, &discountAmount, &discountExt)
	if err != nil {
		return nil, err
	}

	if plan.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	if plan.SetupAmount, err = parseDecimal(setupAmount); err != nil {
		return nil, err
	}
	plan.TrialPeriod = intPtr(trialPeriod)
	plan.TrialInterval = domain.IntervalUnit(trialInterval)
	plan.RenewalInterval = domain.IntervalUnit(renewalInterval)
	plan.UserLimit = intPtr(userLimit)

	if discountID.Valid {
		d := &domain.Discount{
			ID:                   discountID.String,
			Code:                 discountCode.String,
			Kind:                 domain.DiscountKind(discountKind.String),
			TrialPeriodExtension: int(discountExt.Int64),
		}
		if d.Amount, err = parseDecimal(discountAmount.String); err != nil {
			return nil, err
		}
		plan.Discount = d
	}
	return &plan, nil
}
