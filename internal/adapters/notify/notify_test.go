package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/test/mocks"
)

type captureSender struct {
	messages []*gomail.Message
	err      error
}

func (c *captureSender) DialAndSend(m ...*gomail.Message) error {
	c.messages = append(c.messages, m...)
	return c.err
}

type capturePublisher struct {
	keys     []string
	payloads [][]byte
}

func (c *capturePublisher) Publish(_ context.Context, key string, payload []byte) error {
	c.keys = append(c.keys, key)
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func chargeNotice() ports.ChargeNotice {
	commission := decimal.NewFromInt(2)
	affiliate := "aff-1"
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return ports.ChargeNotice{
		PeriodStart:  start,
		PeriodEnd:    start.AddDate(0, 1, 0),
		Subscription: &domain.Subscription{ID: "sub-1", SubscriberID: "acct-1", CardNumber: "1111"},
		Subscriber:   &domain.Subscriber{ID: "acct-1", Name: "Ada", Email: "ada@example.com"},
		Payment: &domain.PaymentRecord{
			ID:              "pay-1",
			TransactionID:   "txn-1",
			Amount:          decimal.NewFromInt(20),
			AffiliateID:     &affiliate,
			AffiliateAmount: &commission,
		},
		Amount: decimal.NewFromInt(20),
	}
}

func TestEmailNotifier_Receipt(t *testing.T) {
	s := &captureSender{}
	n := newEmailNotifier(s, EmailConfig{FromEmail: "billing@example.com"}, zap.NewNop())

	require.NoError(t, n.ChargeSucceeded(context.Background(), chargeNotice()))
	require.Len(t, s.messages, 1)
	assert.Equal(t, []string{"ada@example.com"}, s.messages[0].GetHeader("To"))
	assert.Equal(t, []string{"billing@example.com"}, s.messages[0].GetHeader("From"))
}

func TestEmailNotifier_SkipsWithoutAddress(t *testing.T) {
	s := &captureSender{}
	n := newEmailNotifier(s, EmailConfig{}, zap.NewNop())

	notice := chargeNotice()
	notice.Subscriber.Email = ""
	require.NoError(t, n.ChargeSucceeded(context.Background(), notice))
	require.NoError(t, n.ReconciliationRequired(context.Background(), ports.ReconciliationNotice{Op: "purchase"}))
	assert.Empty(t, s.messages)
}

func TestEmailNotifier_OpsAlert(t *testing.T) {
	s := &captureSender{}
	n := newEmailNotifier(s, EmailConfig{OpsEmail: "ops@example.com"}, zap.NewNop())

	require.NoError(t, n.ReconciliationRequired(context.Background(), ports.ReconciliationNotice{
		Op:             "record payment",
		SubscriptionID: "sub-9",
		Amount:         decimal.NewFromInt(50),
	}))
	require.Len(t, s.messages, 1)
	assert.Equal(t, []string{"ops@example.com"}, s.messages[0].GetHeader("To"))
	assert.Contains(t, s.messages[0].GetHeader("Subject")[0], "sub-9")
}

func TestEmailNotifier_TrialReminderNamesRenewalTerm(t *testing.T) {
	s := &captureSender{}
	n := newEmailNotifier(s, EmailConfig{}, zap.NewNop())

	require.NoError(t, n.TrialExpiring(context.Background(), ports.TrialNotice{
		Subscription: &domain.Subscription{
			ID:              "sub-1",
			Amount:          decimal.NewFromInt(120),
			RenewalPeriod:   3,
			RenewalInterval: domain.IntervalUnitMonth,
		},
		Subscriber: &domain.Subscriber{Name: "Ada", Email: "ada@example.com"},
		Plan:       &domain.Plan{Name: "Quarterly"},
		EndsAt:     time.Date(2024, 3, 22, 0, 0, 0, 0, time.UTC),
	}))
	require.Len(t, s.messages, 1)

	var buf bytes.Buffer
	_, err := s.messages[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "renews at 120.00 every 3 months.")
	assert.Contains(t, buf.String(), "Please add a payment method")
}

func TestEmailNotifier_SendError(t *testing.T) {
	s := &captureSender{err: errors.New("connection refused")}
	n := newEmailNotifier(s, EmailConfig{}, zap.NewNop())

	err := n.TrialExpiring(context.Background(), ports.TrialNotice{
		Subscription: &domain.Subscription{ID: "sub-1"},
		Subscriber:   &domain.Subscriber{Email: "a@example.com"},
	})
	assert.ErrorContains(t, err, "connection refused")
}

func TestEventNotifier_ChargeSucceeded(t *testing.T) {
	pub := &capturePublisher{}
	n := NewEventNotifier(pub)

	require.NoError(t, n.ChargeSucceeded(context.Background(), chargeNotice()))
	require.Equal(t, []string{RoutingChargeSucceeded}, pub.keys)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[0], &ev))
	assert.Equal(t, "sub-1", ev["subscription_id"])
	assert.Equal(t, "20.00", ev["amount"])
	assert.Equal(t, "txn-1", ev["transaction_id"])
	assert.Equal(t, "2.00", ev["affiliate_amount"])
}

func TestMulti_CallsEveryNotifier(t *testing.T) {
	failing := mocks.NewRecordingNotifier()
	failing.Err = errors.New("smtp down")
	ok := mocks.NewRecordingNotifier()

	err := Multi{failing, ok}.TrialExpiring(context.Background(), ports.TrialNotice{})
	assert.ErrorContains(t, err, "smtp down")
	assert.Len(t, failing.Trials, 1)
	assert.Len(t, ok.Trials, 1)

	assert.NoError(t, Multi{ok}.ReconciliationRequired(context.Background(), ports.ReconciliationNotice{}))
}
