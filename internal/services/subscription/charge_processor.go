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

// ChargeRequest is a single charge attempt against a stored card
type ChargeRequest struct {
	Amount         decimal.Decimal
	BillingID      string
	OrderID        string
	SubscriptionID string
	Source         string
}

// ChargeProcessor makes one purchase attempt and classifies the outcome.
// It never retries: a purchase whose outcome is unknown becomes a
// *errors.ReconciliationError.
type ChargeProcessor struct {
	vault   ports.CardVault
	metrics ports.BillingMetrics
	logger  ports.Logger
	timeout time.Duration
}

// NewChargeProcessor creates a charge processor. A zero timeout leaves the
// caller's context deadline in charge.
func NewChargeProcessor(vault ports.CardVault, metrics ports.BillingMetrics, logger ports.Logger, timeout time.Duration) *ChargeProcessor {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &ChargeProcessor{
		vault:   vault,
		metrics: metrics,
		logger:  logger,
		timeout: timeout,
	}
}

// Attempt charges req.Amount in minor units. Zero amounts are rejected;
// callers settle free charges themselves.
func (p *ChargeProcessor) Attempt(ctx context.Context, req ChargeRequest) (*domain.ChargeResult, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: charge amount must be positive, got %s", domain.ErrValidationAmountInvalid, req.Amount)
	}
	if req.BillingID == "" {
		return nil, pkgerrors.NewPaymentError("NO_CARD", "No payment information on file.", pkgerrors.CategoryInvalidRequest, false)
	}

	cents := domain.ToMinorUnits(req.Amount)

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := p.vault.Purchase(callCtx, ports.PurchaseRequest{
		BillingID:   req.BillingID,
		OrderID:     req.OrderID,
		AmountCents: cents,
		Description: "Subscription " + req.SubscriptionID,
	})
	elapsed := time.Since(start)

	if err == nil {
		p.metrics.RecordVaultCall("purchase", "success", elapsed)
		p.metrics.RecordCharge(req.Source, "success", cents)
		p.logger.Info("charge approved",
			ports.String("subscription_id", req.SubscriptionID),
			ports.String("order_id", req.OrderID),
			ports.String("authorization", result.Authorization),
			ports.Int("amount_cents", int(cents)),
			ports.String("elapsed", elapsed.String()))
		return result, nil
	}

	var paymentErr *pkgerrors.PaymentError
	if errors.As(err, &paymentErr) {
		p.metrics.RecordVaultCall("purchase", "declined", elapsed)
		p.metrics.RecordCharge(req.Source, "declined", cents)
		p.logger.Warn("charge declined",
			ports.String("subscription_id", req.SubscriptionID),
			ports.String("order_id", req.OrderID),
			ports.Int("amount_cents", int(cents)),
			ports.String("gateway_message", paymentErr.Error()))
		return nil, err
	}

	if isRejectedBeforeSend(err) {
		p.metrics.RecordVaultCall("purchase", "unavailable", elapsed)
		p.metrics.RecordCharge(req.Source, "unavailable", cents)
		p.logger.Warn("charge not attempted, gateway unavailable",
			ports.String("subscription_id", req.SubscriptionID),
			ports.Err(err))
		return nil, pkgerrors.NewPaymentError(string(domain.ErrorCodeGatewayUnavailable),
			"The payment processor is unavailable. Please try again later.", pkgerrors.CategoryNetworkError, true)
	}

	// Timeout or transport failure after the request may have reached the gateway
	p.metrics.RecordVaultCall("purchase", "indeterminate", elapsed)
	p.metrics.RecordCharge(req.Source, "indeterminate", cents)
	p.metrics.RecordReconciliation("purchase")
	p.logger.Error("charge outcome unknown, reconciliation required",
		ports.String("subscription_id", req.SubscriptionID),
		ports.String("order_id", req.OrderID),
		ports.Int("amount_cents", int(cents)),
		ports.Err(err))

	return nil, &pkgerrors.ReconciliationError{
		Op:             "purchase",
		SubscriptionID: req.SubscriptionID,
		Amount:         req.Amount,
		Err:            err,
	}
}

// isRejectedBeforeSend reports errors that guarantee the gateway never saw the request
func isRejectedBeforeSend(err error) bool {
	return domain.IsDomainError(err, domain.ErrorCodeGatewayUnavailable)
}
