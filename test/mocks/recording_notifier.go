package mocks

import (
	"context"
	"sync"

	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// RecordingNotifier captures notifications
type RecordingNotifier struct {
	mu              sync.Mutex
	Charges         []ports.ChargeNotice
	Trials          []ports.TrialNotice
	Reconciliations []ports.ReconciliationNotice
	// Err is returned from every call when set.
	Err error
}

var _ ports.Notifier = (*RecordingNotifier)(nil)

// NewRecordingNotifier creates a new recording notifier
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

// ChargeSucceeded implements ports.Notifier
func (n *RecordingNotifier) ChargeSucceeded(_ context.Context, notice ports.ChargeNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Charges = append(n.Charges, notice)
	return n.Err
}

// TrialExpiring implements ports.Notifier
func (n *RecordingNotifier) TrialExpiring(_ context.Context, notice ports.TrialNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Trials = append(n.Trials, notice)
	return n.Err
}

// ReconciliationRequired implements ports.Notifier
func (n *RecordingNotifier) ReconciliationRequired(_ context.Context, notice ports.ReconciliationNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Reconciliations = append(n.Reconciliations, notice)
	return n.Err
}

// ChargeCount returns how many receipts were sent
func (n *RecordingNotifier) ChargeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Charges)
}
