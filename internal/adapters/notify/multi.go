package notify

import (
	"context"
	"errors"

	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// Multi fans a notification out to every notifier. All are called even
// when one fails; the failures are joined.
type Multi []ports.Notifier

var _ ports.Notifier = Multi(nil)

// ChargeSucceeded implements ports.Notifier
func (m Multi) ChargeSucceeded(ctx context.Context, notice ports.ChargeNotice) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.ChargeSucceeded(ctx, notice))
	}
	return errors.Join(errs...)
}

// TrialExpiring implements ports.Notifier
func (m Multi) TrialExpiring(ctx context.Context, notice ports.TrialNotice) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.TrialExpiring(ctx, notice))
	}
	return errors.Join(errs...)
}

// ReconciliationRequired implements ports.Notifier
func (m Multi) ReconciliationRequired(ctx context.Context, notice ports.ReconciliationNotice) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.ReconciliationRequired(ctx, notice))
	}
	return errors.Join(errs...)
}
