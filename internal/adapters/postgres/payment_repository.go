package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/billing-service/internal/domain"
)

const paymentColumns = `id, subscription_id, subscriber_id, amount, setup, transaction_id,
	affiliate_id, affiliate_amount, created_at`

type paymentRepository struct {
	q       querier
	timeout time.Duration
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.PaymentRecord) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	amount, err := decimalToNumeric(p.Amount)
	if err != nil {
		return err
	}
	affiliateAmount, err := nullNumeric(p.AffiliateAmount)
	if err != nil {
		return err
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID,
		p.SubscriptionID,
		p.SubscriberID,
		amount,
		p.Setup,
		p.TransactionID,
		nullTextPtr(p.AffiliateID),
		affiliateAmount,
		p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*domain.PaymentRecord, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.q.Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE subscription_id = $1 ORDER BY created_at, id`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.PaymentRecord
	for rows.Next() {
		var (
			p               domain.PaymentRecord
			amount          pgtype.Numeric
			affiliateID     pgtype.Text
			affiliateAmount pgtype.Numeric
		)
		if err := rows.Scan(&p.ID, &p.SubscriptionID, &p.SubscriberID, &amount, &p.Setup,
			&p.TransactionID, &affiliateID, &affiliateAmount, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		if p.Amount, err = pgNumericToDecimal(amount); err != nil {
			return nil, err
		}
		p.AffiliateID = textPtr(affiliateID)
		if affiliateAmount.Valid {
			commission, err := pgNumericToDecimal(affiliateAmount)
			if err != nil {
				return nil, err
			}
			p.AffiliateAmount = &commission
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) CountBySubscription(ctx context.Context, subscriptionID string) (int, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE subscription_id = $1`, subscriptionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return int(count), nil
}
