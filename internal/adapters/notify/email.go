// Package notify delivers billing notifications by email and as events
// on a message broker.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// EmailConfig holds SMTP settings
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromEmail    string
	// OpsEmail receives reconciliation alerts. Empty disables them.
	OpsEmail string
}

// sender is satisfied by *gomail.Dialer
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier sends receipts, trial reminders and ops alerts
type EmailNotifier struct {
	sender sender
	cfg    EmailConfig
	logger *zap.Logger
}

var _ ports.Notifier = (*EmailNotifier)(nil)

// NewEmailNotifier creates an SMTP-backed notifier
func NewEmailNotifier(cfg EmailConfig, logger *zap.Logger) *EmailNotifier {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	return newEmailNotifier(d, cfg, logger)
}

func newEmailNotifier(s sender, cfg EmailConfig, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{sender: s, cfg: cfg, logger: logger}
}

// ChargeSucceeded mails a receipt to the subscriber
func (n *EmailNotifier) ChargeSucceeded(_ context.Context, notice ports.ChargeNotice) error {
	if notice.Subscriber == nil || notice.Subscriber.Email == "" {
		n.logger.Debug("Receipt skipped, subscriber has no email")
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", notice.Subscriber.Name)
	fmt.Fprintf(&b, "We charged %s to your card on file.\n", notice.Amount.StringFixed(2))
	fmt.Fprintf(&b, "Service period: %s to %s\n",
		notice.PeriodStart.Format("January 2, 2006"), notice.PeriodEnd.Format("January 2, 2006"))
	if notice.Subscription != nil && notice.Subscription.CardNumber != "" {
		fmt.Fprintf(&b, "Card: ending in %s\n", notice.Subscription.CardNumber)
	}
	if notice.Payment != nil {
		fmt.Fprintf(&b, "Transaction: %s\n", notice.Payment.TransactionID)
	}

	return n.send(notice.Subscriber.Email, "Your subscription receipt", b.String())
}

// TrialExpiring mails a reminder that the trial ends in a week
func (n *EmailNotifier) TrialExpiring(_ context.Context, notice ports.TrialNotice) error {
	if notice.Subscriber == nil || notice.Subscriber.Email == "" {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", notice.Subscriber.Name)
	fmt.Fprintf(&b, "Your free trial ends on %s.\n", notice.EndsAt.Format("January 2, 2006"))
	if notice.Plan != nil && notice.Subscription != nil {
		period, unit := notice.Subscription.RenewalTerm()
		fmt.Fprintf(&b, "After that your %s plan renews at %s every %s.\n",
			notice.Plan.Name, notice.Subscription.Amount.StringFixed(2), unit.Describe(period))
	}
	if notice.Subscription != nil && !notice.Subscription.CardOnFile() {
		b.WriteString("Please add a payment method to keep your subscription.\n")
	}

	return n.send(notice.Subscriber.Email, "Your trial is ending soon", b.String())
}

// ReconciliationRequired alerts operations
func (n *EmailNotifier) ReconciliationRequired(_ context.Context, notice ports.ReconciliationNotice) error {
	if n.cfg.OpsEmail == "" {
		return nil
	}

	body := fmt.Sprintf("Operation: %s\nSubscription: %s\nTransaction: %s\nAmount: %s\nAt: %s\nReason: %s\n",
		notice.Op, notice.SubscriptionID, notice.TransactionID,
		notice.Amount.StringFixed(2), notice.OccurredAt.Format("2006-01-02T15:04:05Z07:00"), notice.Reason)
	return n.send(n.cfg.OpsEmail, "[billing] reconciliation required: "+notice.SubscriptionID, body)
}

func (n *EmailNotifier) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := n.sender.DialAndSend(m); err != nil {
		n.logger.Error("Failed to send email",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("Email sent", zap.String("subject", subject))
	return nil
}
