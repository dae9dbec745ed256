package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kevin07696/billing-service/internal/domain"
)

const subscriptionColumns = `id, subscriber_id, plan_id, discount_id, affiliate_id, state, amount,
	amount_overridden, billing_id, card_number, card_expiration, next_renewal_at,
	renewal_period, renewal_interval, user_limit, created_at, updated_at, version`

type subscriptionRepository struct {
	q dbtx
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	if sub.Version == 0 {
		sub.Version = 1
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.SubscriberID,
		sub.PlanID,
		nullString(sub.DiscountID),
		nullString(sub.AffiliateID),
		string(sub.State),
		sub.Amount.String(),
		sub.AmountOverridden,
		sub.BillingID,
		sub.CardNumber,
		sub.CardExpiration,
		nullTime(sub.NextRenewalAt),
		sub.RenewalPeriod,
		string(sub.RenewalInterval.OrDefault()),
		nullInt(sub.UserLimit),
		formatTime(sub.CreatedAt),
		formatTime(sub.UpdatedAt),
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
	return r.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
}

func (r *subscriptionRepository) GetBySubscriber(ctx context.Context, subscriberID string) (*domain.Subscription, error) {
	return r.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE subscriber_id = ?`, subscriberID)
}

func (r *subscriptionRepository) getOne(ctx context.Context, query string, arg string) (*domain.Subscription, error) {
	sub, err := scanSubscription(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// Update writes sub if the stored version still matches sub.Version and
// bumps the version. A newer stored row yields domain.ErrSubscriptionStale.
func (r *subscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE subscriptions SET
			plan_id = ?,
			discount_id = ?,
			affiliate_id = ?,
			state = ?,
			amount = ?,
			amount_overridden = ?,
			billing_id = ?,
			card_number = ?,
			card_expiration = ?,
			next_renewal_at = ?,
			renewal_period = ?,
			renewal_interval = ?,
			user_limit = ?,
			updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		sub.PlanID,
		nullString(sub.DiscountID),
		nullString(sub.AffiliateID),
		string(sub.State),
		sub.Amount.String(),
		sub.AmountOverridden,
		sub.BillingID,
		sub.CardNumber,
		sub.CardExpiration,
		nullTime(sub.NextRenewalAt),
		sub.RenewalPeriod,
		string(sub.RenewalInterval.OrDefault()),
		nullInt(sub.UserLimit),
		formatTime(sub.UpdatedAt),
		sub.ID,
		sub.Version,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return r.missOrStale(ctx, sub.ID)
	}
	sub.Version++
	return nil
}

// missOrStale explains an update that matched no row
func (r *subscriptionRepository) missOrStale(ctx context.Context, id string) error {
	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check subscription: %w", err)
	}
	if exists {
		return domain.ErrSubscriptionStale
	}
	return domain.ErrSubscriptionNotFound
}

func (r *subscriptionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return requireAffected(result)
}

func (r *subscriptionRepository) ListByStateAndRenewalWindow(ctx context.Context, state domain.SubscriptionState, from, to time.Time, limit int) ([]*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE state = ? AND next_renewal_at IS NOT NULL AND next_renewal_at >= ? AND next_renewal_at <= ?
		ORDER BY next_renewal_at, id`
	args := []any{string(state), formatTime(from), formatTime(to)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
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

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var (
		sub         domain.Subscription
		discountID  sql.NullString
		affiliateID sql.NullString
		state       string
		amount      string
		nextRenewal sql.NullString
		interval    string
		userLimit   sql.NullInt64
		createdAt   string
		updatedAt   string
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
		&sub.RenewalPeriod,
		&interval,
		&userLimit,
		&createdAt,
		&updatedAt,
		&sub.Version,
	)
	if err != nil {
		return nil, err
	}
	sub.State = domain.SubscriptionState(state)
	if !sub.State.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidState, state)
	}

	if sub.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	if sub.NextRenewalAt, err = timePtr(nextRenewal); err != nil {
		return nil, err
	}
	if sub.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	sub.DiscountID = stringPtr(discountID)
	sub.AffiliateID = stringPtr(affiliateID)
	sub.RenewalInterval = domain.IntervalUnit(interval)
	sub.UserLimit = intPtr(userLimit)
	return &sub, nil
}
