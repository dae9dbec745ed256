package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/billing-service/internal/domain"
)

const subscriptionColumns = `id, subscriber_id, plan_id, discount_id, affiliate_id, state, amount,
	amount_overridden, billing_id, card_number, card_expiration, next_renewal_at,
	renewal_period, renewal_interval, user_limit, created_at, updated_at, version`

type subscriptionRepository struct {
	q       querier
	simple  time.Duration
	complex time.Duration
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	ctx, cancel := withTimeout(ctx, r.simple)
	defer cancel()

	amount, err := decimalToNumeric(sub.Amount)
	if err != nil {
		return err
	}
	if sub.Version == 0 {
		sub.Version = 1
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		sub.ID,
		sub.SubscriberID,
		sub.PlanID,
		nullTextPtr(sub.DiscountID),
		nullTextPtr(sub.AffiliateID),
		string(sub.State),
		amount,
		sub.AmountOverridden,
		sub.BillingID,
		sub.CardNumber,
		sub.CardExpiration,
		nullTimestamptz(sub.NextRenewalAt),
		int32(sub.RenewalPeriod),
		string(sub.RenewalInterval.OrDefault()),
		nullInt4(sub.UserLimit),
		sub.CreatedAt.UTC(),
		sub.UpdatedAt.UTC(),
		sub.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSubscriptionExists
		}
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	ctx, cancel := withTimeout(ctx, r.simple)
	defer cancel()

	row := r.q.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (r *subscriptionRepository) GetBySubscriber(ctx context.Context, subscriberID string) (*domain.Subscription, error) {
	ctx, cancel := withTimeout(ctx, r.simple)
	defer cancel()

	row := r.q.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscriber_id = $1`, subscriberID)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription by subscriber: %w", err)
	}
	return sub, nil
}

// Update writes sub if the stored version still matches sub.Version and
// bumps the version. A newer stored row yields domain.ErrSubscriptionStale.
func (r *subscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	ctx, cancel := withTimeout(ctx, r.simple)
	defer cancel()

	amount, err := decimalToNumeric(sub.Amount)
	if err != nil {
		return err
	}

	tag, err := r.q.Exec(ctx, `
		UPDATE subscriptions SET
			plan_id = $2,
			discount_id = $3,
			affiliate_id = $4,
			state = $5,
			amount = $6,
			amount_overridden = $7,
			billing_id = $8,
			card_number = $9,
			card_expiration = $10,
			next_renewal_at = $11,
			renewal_period = $12,
			renewal_interval = $13,
			user_limit = $14,
			updated_at = $15,
			version = version + 1
		WHERE id = $1 AND version = $16`,
		sub.ID,
		sub.PlanID,
		nullTextPtr(sub.DiscountID),
		nullTextPtr(sub.AffiliateID),
		string(sub.State),
		amount,
		sub.AmountOverridden,
		sub.BillingID,
		sub.CardNumber,
		sub.CardExpiration,
		nullTimestamptz(sub.NextRenewalAt),
		int32(sub.RenewalPeriod),
		string(sub.RenewalInterval.OrDefault()),
		nullInt4(sub.UserLimit),
		sub.UpdatedAt.UTC(),
		sub.Version,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrStale(ctx, sub.ID)
	}
	sub.Version++
	return nil
}

// missOrStale explains an update that matched no row
func (r *subscriptionRepository) missOrStale(ctx context.Context, id string) error {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check subscription: %w", err)
	}
	if exists {
		return domain.ErrSubscriptionStale
	}
	return domain.ErrSubscriptionNotFound
}

func (r *subscriptionRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, r.simple)
	defer cancel()

	tag, err := r.q.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func (r *subscriptionRepository) ListByStateAndRenewalWindow(ctx context.Context, state domain.SubscriptionState, from, to time.Time, limit int) ([]*domain.Subscription, error) {
	ctx, cancel := withTimeout(ctx, r.complex)
	defer cancel()

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE state = $1 AND next_renewal_at BETWEEN $2 AND $3
		ORDER BY next_renewal_at, id`
	args := []any{string(state), from.UTC(), to.UTC()}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions by renewal window: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

func scanSubscription(row scanner) (*domain.Subscription, error) {
	var (
		sub           domain.Subscription
		discountID    pgtype.Text
		affiliateID   pgtype.Text
		state         string
		amount        pgtype.Numeric
		nextRenewal   pgtype.Timestamptz
		renewalPeriod int32
		interval      string
		userLimit     pgtype.Int4
	)

	err := row.Scan(
		&sub.ID,
		&sub.SubscriberID,
		&sub.PlanID,
		&discountID,
		&affiliateID,
		&state,
		&amount,
		&sub.AmountOverridden,
		&sub.BillingID,
		&sub.CardNumber,
		&sub.CardExpiration,
		&nextRenewal,
		&renewalPeriod,
		&interval,
		&userLimit,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&sub.Version,
	)
	if err != nil {
		return nil, err
	}
	sub.State = domain.SubscriptionState(state)
	if !sub.State.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidState, state)
	}

	if sub.Amount, err = pgNumericToDecimal(amount); err != nil {
		return nil, err
	}
	sub.DiscountID = textPtr(discountID)
	sub.AffiliateID = textPtr(affiliateID)
	sub.NextRenewalAt = timePtr(nextRenewal)
	sub.RenewalPeriod = int(renewalPeriod)
	sub.RenewalInterval = domain.IntervalUnit(interval)
	sub.UserLimit = intPtr(userLimit)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}
