package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kevin07696/billing-service/internal/domain"
)

type paymentRepository struct {
	q dbtx
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.PaymentRecord) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (id, subscription_id, subscriber_id, amount, setup, transaction_id,
			affiliate_id, affiliate_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.SubscriptionID,
		p.SubscriberID,
		p.Amount.String(),
		p.Setup,
		p.TransactionID,
		nullString(p.AffiliateID),
		nullDecimal(p.AffiliateAmount),
		formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*domain.PaymentRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, subscription_id, subscriber_id, amount, setup, transaction_id,
			affiliate_id, affiliate_amount, created_at
		FROM payments WHERE subscription_id = ? ORDER BY created_at, id`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.PaymentRecord
	for rows.Next() {
		var (
			p               domain.PaymentRecord
			amount          string
			affiliateID     sql.NullString
			affiliateAmount sql.NullString
			createdAt       string
		)
		if err := rows.Scan(&p.ID, &p.SubscriptionID, &p.SubscriberID, &amount, &p.Setup,
			&p.TransactionID, &affiliateID, &affiliateAmount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		if p.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		if affiliateAmount.Valid {
			commission, err := parseDecimal(affiliateAmount.String)
			if err != nil {
				return nil, err
			}
			p.AffiliateAmount = &commission
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		p.AffiliateID = stringPtr(affiliateID)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) CountBySubscription(ctx context.Context, subscriptionID string) (int, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE subscription_id = ?`, subscriptionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return count, nil
}
