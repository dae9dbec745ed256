package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/billing-service/pkg/timeutil"
)

// SubscriptionState represents the subscription lifecycle state
type SubscriptionState string

const (
	SubscriptionStateTrial  SubscriptionState = "trial"
	SubscriptionStateActive SubscriptionState = "active"
)

// IsValid reports whether s is a known state
func (s SubscriptionState) IsValid() bool {
	return s == SubscriptionStateTrial || s == SubscriptionStateActive
}

// IntervalUnit defines the time unit for trial and renewal periods
type IntervalUnit string

const (
	IntervalUnitDay   IntervalUnit = "day"
	IntervalUnitWeek  IntervalUnit = "week"
	IntervalUnitMonth IntervalUnit = "month"
	IntervalUnitYear  IntervalUnit = "year"
)

// ParseIntervalUnit accepts singular or plural unit names ("months", "day").
// An empty value means months.
func ParseIntervalUnit(s string) (IntervalUnit, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s") {
	case "", "month":
		return IntervalUnitMonth, nil
	case "day":
		return IntervalUnitDay, nil
	case "week":
		return IntervalUnitWeek, nil
	case "year":
		return IntervalUnitYear, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
}

// OrDefault returns u, or months when u is unset
func (u IntervalUnit) OrDefault() IntervalUnit {
	if u == "" {
		return IntervalUnitMonth
	}
	return u
}

// Advance moves t forward by n units. Month and year steps clamp to the
// end of shorter months.
func (u IntervalUnit) Advance(t time.Time, n int) time.Time {
	var next time.Time
	switch u.OrDefault() {
	case IntervalUnitDay:
		next = t.AddDate(0, 0, n)
	case IntervalUnitWeek:
		next = t.AddDate(0, 0, n*7)
	case IntervalUnitYear:
		next = timeutil.AddMonths(t, n*12)
	default:
		next = timeutil.AddMonths(t, n)
	}
	return timeutil.ToUTC(next)
}

// Describe returns a human-readable period such as "month" or "3 months"
func (u IntervalUnit) Describe(n int) string {
	unit := string(u.OrDefault())
	if n == 1 {
		return unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

// Subscription is an account's single recurring subscription
type Subscription struct {
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	NextRenewalAt    *time.Time        `json:"next_renewal_at"`
	UserLimit        *int              `json:"user_limit"`
	DiscountID       *string           `json:"discount_id"`
	AffiliateID      *string           `json:"affiliate_id"`
	Amount           decimal.Decimal   `json:"amount"`
	ID               string            `json:"id"`
	SubscriberID     string            `json:"subscriber_id"`
	PlanID           string            `json:"plan_id"`
	State            SubscriptionState `json:"state"`
	RenewalInterval  IntervalUnit      `json:"renewal_interval"`
	BillingID        string            `json:"billing_id,omitempty"`
	CardNumber       string            `json:"card_number,omitempty"`
	CardExpiration   string            `json:"card_expiration,omitempty"`
	RenewalPeriod    int               `json:"renewal_period"`
	// Version increases on every stored update. Writes from a stale read fail.
	Version          int64             `json:"version"`
	AmountOverridden bool              `json:"amount_overridden"`
}

// IsTrial returns true while no charge has succeeded on a paid plan
func (s *Subscription) IsTrial() bool {
	return s.State == SubscriptionStateTrial
}

// IsActive returns true once a charge succeeded or the plan is free
func (s *Subscription) IsActive() bool {
	return s.State == SubscriptionStateActive
}

// CardOnFile reports whether a vault reference is stored
func (s *Subscription) CardOnFile() bool {
	return s.BillingID != ""
}

// NeedsPaymentInfo is true when the subscription costs money and no card is stored
func (s *Subscription) NeedsPaymentInfo() bool {
	return s.Amount.IsPositive() && !s.CardOnFile()
}

// AmountInPennies returns the amount in minor currency units
func (s *Subscription) AmountInPennies() int64 {
	return ToMinorUnits(s.Amount)
}

// RenewalTerm returns the renewal period, defaulting to one month
func (s *Subscription) RenewalTerm() (int, IntervalUnit) {
	if s.RenewalPeriod <= 0 {
		return 1, s.RenewalInterval.OrDefault()
	}
	return s.RenewalPeriod, s.RenewalInterval.OrDefault()
}

// HasRenewalDate reports whether next_renewal_at is set
func (s *Subscription) HasRenewalDate() bool {
	return s.NextRenewalAt != nil && !s.NextRenewalAt.IsZero()
}

// IsDue reports whether the renewal date is set and not after now
func (s *Subscription) IsDue(now time.Time) bool {
	return s.HasRenewalDate() && !s.NextRenewalAt.After(now)
}

// Clone returns a copy safe to mutate without touching s
func (s *Subscription) Clone() *Subscription {
	c := *s
	if s.NextRenewalAt != nil {
		t := *s.NextRenewalAt
		c.NextRenewalAt = &t
	}
	if s.UserLimit != nil {
		n := *s.UserLimit
		c.UserLimit = &n
	}
	if s.DiscountID != nil {
		id := *s.DiscountID
		c.DiscountID = &id
	}
	if s.AffiliateID != nil {
		id := *s.AffiliateID
		c.AffiliateID = &id
	}
	return &c
}

// Plan is a read-only catalog entry
type Plan struct {
	Discount        *Discount       `json:"discount,omitempty"`
	UserLimit       *int            `json:"user_limit"`
	TrialPeriod     *int            `json:"trial_period"`
	Amount          decimal.Decimal `json:"amount"`
	SetupAmount     decimal.Decimal `json:"setup_amount"`
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	TrialInterval   IntervalUnit    `json:"trial_interval"`
	RenewalInterval IntervalUnit    `json:"renewal_interval"`
	RenewalPeriod   int             `json:"renewal_period"`
}

// IsFree returns true for plans with no charge
func (p *Plan) IsFree() bool {
	return !p.Amount.IsPositive()
}

// HasTrial returns true when a trial period is configured
func (p *Plan) HasTrial() bool {
	return p.TrialPeriod != nil
}

// HasSetupAmount returns true when a positive one-time setup fee is configured
func (p *Plan) HasSetupAmount() bool {
	return p.SetupAmount.IsPositive()
}

// RenewalTerm returns the renewal period, defaulting to one month
func (p *Plan) RenewalTerm() (int, IntervalUnit) {
	if p.RenewalPeriod <= 0 {
		return 1, p.RenewalInterval.OrDefault()
	}
	return p.RenewalPeriod, p.RenewalInterval.OrDefault()
}

// AllowsUsers reports whether count users fit within the plan's user limit
func (p *Plan) AllowsUsers(count int) bool {
	return p.UserLimit == nil || *p.UserLimit >= count
}

// DiscountKind selects how a discount's amount is applied
type DiscountKind string

const (
	DiscountKindFlat    DiscountKind = "flat"
	DiscountKindPercent DiscountKind = "percent"
)

// Discount is a read-only deduction, either account-level or embedded in a plan
type Discount struct {
	Amount               decimal.Decimal `json:"amount"`
	ID                   string          `json:"id"`
	Code                 string          `json:"code"`
	Kind                 DiscountKind    `json:"kind"`
	TrialPeriodExtension int             `json:"trial_period_extension"`
}

// Deduction returns how much the discount takes off base
func (d *Discount) Deduction(base decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	if d.Kind == DiscountKindPercent {
		return base.Mul(d.Amount).Div(decimal.NewFromInt(100)).Round(2)
	}
	return d.Amount
}

// Affiliate is a read-only referral source
type Affiliate struct {
	Rate decimal.Decimal `json:"rate"`
	ID   string          `json:"id"`
	Name string          `json:"name"`
}

// Commission returns amount * rate
func (a *Affiliate) Commission(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(a.Rate)
}

// Subscriber is the account that owns a subscription
type Subscriber struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	UserCount int    `json:"user_count"`
}

// ToMinorUnits converts a major-unit amount to an integer count of cents
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
