package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/billing-service/pkg/errors"
	"github.com/kevin07696/billing-service/pkg/timeutil"
	"github.com/kevin07696/billing-service/test/mocks"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	store    *mocks.MemoryStore
	vault    *mocks.ScriptedVault
	notifier *mocks.RecordingNotifier
	logger   *mocks.MockLogger
	clock    *timeutil.FixedClock
}

func intPtr(n int) *int              { return &n }
func strPtr(s string) *string        { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T, opts ...func(*Dependencies, *Config)) *fixture {
	t.Helper()

	store := mocks.NewMemoryStore()
	store.AddSubscriber(&domain.Subscriber{ID: "acct-1", Name: "Acme", Email: "owner@acme.test", UserCount: 3})
	store.AddSubscriber(&domain.Subscriber{ID: "acct-2", Name: "Globex", Email: "billing@globex.test", UserCount: 1})
	store.AddPlan(&domain.Plan{ID: "basic", Name: "Basic", Amount: dec("50")})
	store.AddPlan(&domain.Plan{ID: "trial", Name: "Trial", Amount: dec("50"), TrialPeriod: intPtr(1)})
	store.AddPlan(&domain.Plan{ID: "free", Name: "Free", Amount: decimal.Zero})
	store.AddPlan(&domain.Plan{ID: "setup", Name: "Setup", Amount: dec("50"), SetupAmount: dec("500")})
	store.AddPlan(&domain.Plan{ID: "quarterly", Name: "Quarterly", Amount: dec("120"), RenewalPeriod: 3})
	store.AddPlan(&domain.Plan{
		ID: "discounted", Name: "Discounted", Amount: dec("50"),
		Discount: &domain.Discount{ID: "plan-promo", Amount: dec("2"), TrialPeriodExtension: 2},
	})
	store.AddPlan(&domain.Plan{ID: "small", Name: "Small", Amount: dec("10"), UserLimit: intPtr(2)})
	store.AddPlan(&domain.Plan{ID: "team", Name: "Team", Amount: dec("30"), UserLimit: intPtr(5)})
	store.AddDiscount(&domain.Discount{ID: "ten", Code: "TEN", Amount: dec("10")})
	store.AddDiscount(&domain.Discount{ID: "one", Code: "ONE", Amount: dec("1")})
	store.AddDiscount(&domain.Discount{ID: "huge", Code: "HUGE", Amount: dec("80")})
	store.AddAffiliate(&domain.Affiliate{ID: "aff", Name: "Partner", Rate: dec("0.1")})

	f := &fixture{
		store:    store,
		vault:    mocks.NewScriptedVault(),
		notifier: mocks.NewRecordingNotifier(),
		logger:   mocks.NewMockLogger(),
		clock:    timeutil.NewFixedClock(testNow),
	}

	deps := Dependencies{
		Store:       store,
		Catalog:     store,
		Subscribers: store,
		Vault:       f.vault,
		Notifier:    f.notifier,
		Clock:       f.clock,
		Logger:      f.logger,
	}
	cfg := Config{ChargeTimeout: time.Second, BatchWorkers: 4, DefaultBatchSize: 50}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}
	f.svc = NewService(deps, cfg)
	return f
}

func (f *fixture) create(t *testing.T, req ports.CreateSubscriptionRequest) *domain.Subscription {
	t.Helper()
	if req.SubscriberID == "" {
		req.SubscriberID = "acct-1"
	}
	sub, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	return sub
}

// put seeds a subscription directly, bypassing Create
func (f *fixture) put(sub *domain.Subscription) *domain.Subscription {
	if sub.SubscriberID == "" {
		sub.SubscriberID = "acct-1"
	}
	if sub.State == "" {
		sub.State = domain.SubscriptionStateActive
	}
	if sub.RenewalPeriod == 0 {
		sub.RenewalPeriod = 1
		sub.RenewalInterval = domain.IntervalUnitMonth
	}
	f.store.PutSubscription(sub)
	return sub
}

func validCard() *domain.Card {
	return &domain.Card{
		Number:          "4111111111111111",
		CVV:             "123",
		FirstName:       "Jane",
		LastName:        "Doe",
		ExpirationMonth: 5,
		ExpirationYear:  2030,
		BillingAddress:  &domain.BillingAddress{Address1: "1 Main St", City: "Springfield", State: "IL", Zip: "62701", Country: "US"},
	}
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ports.Unlock, error) {
	args := m.Called(ctx, key, ttl)
	if fn := args.Get(0); fn != nil {
		return fn.(ports.Unlock), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestService_Create_PaidPlanStartsInTrial(t *testing.T) {
	f := newFixture(t)

	sub := f.create(t, ports.CreateSubscriptionRequest{PlanID: "basic"})

	assert.Equal(t, domain.SubscriptionStateTrial, sub.State)
	assert.True(t, dec("50").Equal(sub.Amount))
	assert.Nil(t, sub.NextRenewalAt)
	assert.False(t, sub.CardOnFile())
	assert.NotNil(t, f.store.Subscription(sub.ID))
}

func TestService_Create_FreePlanStartsActive(t *testing.T) {
	f := newFixture(t)

	sub := f.create(t, ports.CreateSubscriptionRequest{PlanID: "free"})

	assert.Equal(t, domain.SubscriptionStateActive, sub.State)
	assert.True(t, sub.Amount.IsZero())
	assert.False(t, sub.NeedsPaymentInfo())
}

func TestService_Create_KeepsExplicitRenewalDate(t *testing.T) {
	f := newFixture(t)
	renewal := testNow.Add(24 * time.Hour)

	sub := f.create(t, ports.CreateSubscriptionRequest{PlanID: "basic", NextRenewalAt: &renewal})

	require.NotNil(t, sub.NextRenewalAt)
	assert.Equal(t, renewal, *sub.NextRenewalAt)
}

func TestService_Create_CopiesPlanTerms(t *testing.T) {
	f := newFixture(t)

	sub := f.create(t, ports.CreateSubscriptionRequest{PlanID: "team"})
	require.NotNil(t, sub.UserLimit)
	assert.Equal(t, 5, *sub.UserLimit)
	assert.Equal(t, 1, sub.RenewalPeriod)
	assert.Equal(t, domain.IntervalUnitMonth, sub.RenewalInterval)

	quarterly := f.create(t, ports.CreateSubscriptionRequest{SubscriberID: "acct-2", PlanID: "quarterly"})
	assert.Equal(t, 3, quarterly.RenewalPeriod)
	assert.Nil(t, quarterly.UserLimit)
}

func TestService_Create_AppliesBestDiscount(t *testing.T) {
	tests := []struct {
		name       string
		planID     string
		discountID *string
		expected   string
	}{
		{"plan discount only", "discounted", nil, "48"},
		{"account discount larger than plan discount", "discounted", strPtr("ten"), "40"},
		{"plan discount larger than account discount", "discounted", strPtr("one"), "48"},
		{"account discount only", "basic", strPtr("ten"), "40"},
		{"discount larger than amount", "basic", strPtr("huge"), "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sub := f.create(t, ports.CreateSubscriptionRequest{PlanID: tt.planID, DiscountID: tt.discountID})
			assert.True(t, dec(tt.expected).Equal(sub.Amount), "got %s", sub.Amount)
		})
	}
}

func TestService_Create_UnknownPlan(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), ports.CreateSubscriptionRequest{SubscriberID: "acct-1", PlanID: "platinum"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestService_Create_MissingPlan(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), ports.CreateSubscriptionRequest{SubscriberID: "acct-1"})

	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestService_SwitchPlan_UserLimitExceeded(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, ports.CreateSubscriptionRequest{PlanID: "team"})

	_, err := f.svc.SwitchPlan(context.Background(), sub.ID, "small")

	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Equal(t, "User limit for new plan would be exceeded.", err.Error())

	stored := f.store.Subscription(sub.ID)
	assert.Equal(t, "team", stored.PlanID)
	assert.True(t, dec("30").Equal(stored.Amount))
}

func TestService_SwitchPlan_WithinUserLimit(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, ports.CreateSubscriptionRequest{SubscriberID: "acct-2", PlanID: "team", DiscountID: strPtr("one")})

	updated, err := f.svc.SwitchPlan(context.Background(), sub.ID, "small")

	require.NoError(t, err)
	assert.Equal(t, "small", updated.PlanID)
	assert.True(t, dec("9").Equal(updated.Amount))
	assert.Equal(t, 2, *updated.UserLimit)
	assert.Equal(t, "small", f.store.Subscription(sub.ID).PlanID)
}

func TestService_SwitchPlan_KeepsStateAndRenewal(t *testing.T) {
	f := newFixture(t)
	renewal := testNow.AddDate(0, 0, 10)
	sub := f.put(&domain.Subscription{ID: "sub-1", PlanID: "basic", Amount: dec("50"), NextRenewalAt: &renewal})

	updated, err := f.svc.SwitchPlan(context.Background(), sub.ID, "team")

	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStateActive, updated.State)
	assert.Equal(t, renewal, *updated.NextRenewalAt)
}

func TestService_SwitchPlan_Busy(t *testing.T) {
	locker := new(MockLocker)
	locker.On("Acquire", mock.Anything, "subscription:sub-1", mock.Anything).Return(nil, domain.ErrSubscriptionBusy)

	f := newFixture(t, func(d *Dependencies, _ *Config) { d.Locker = locker })
	f.put(&domain.Subscription{ID: "sub-1", PlanID: "basic", Amount: dec("50")})

	_, err := f.svc.SwitchPlan(context.Background(), "sub-1", "team")

	assert.ErrorIs(t, err, domain.ErrSubscriptionBusy)
	locker.AssertExpectations(t)
}

func TestService_ChangeDiscount_RecomputesAmount(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, ports.CreateSubscriptionRequest{PlanID: "basic"})

	updated, err := f.svc.ChangeDiscount(context.Background(), sub.ID, strPtr("ten"))
	require.NoError(t, err)
	assert.True(t, dec("40").Equal(updated.Amount))
	assert.Equal(t, "ten", *updated.DiscountID)

	cleared, err := f.svc.ChangeDiscount(context.Background(), sub.ID, nil)
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(cleared.Amount))
	assert.Nil(t, cleared.DiscountID)
}

func TestService_ChangeDiscount_UnknownDiscount(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, ports.CreateSubscriptionRequest{PlanID: "basic"})

	_, err := f.svc.ChangeDiscount(context.Background(), sub.ID, strPtr("nope"))

	assert.ErrorIs(t, err, domain.ErrDiscountNotFound)
	assert.True(t, dec("50").Equal(f.store.Subscription(sub.ID).Amount))
}

func TestService_OverrideAmount_PersistsUntilPlanOrDiscountChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.create(t, ports.CreateSubscriptionRequest{PlanID: "basic"})

	overridden, err := f.svc.OverrideAmount(ctx, sub.ID, dec("49"))
	require.NoError(t, err)
	assert.True(t, overridden.AmountOverridden)

	reloaded, err := f.svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, dec("49").Equal(reloaded.Amount))

	refreshed, err := f.svc.RefreshPricing(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, dec("49").Equal(refreshed.Amount))

	changed, err := f.svc.ChangeDiscount(ctx, sub.ID, strPtr("one"))
	require.NoError(t, err)
	assert.False(t, changed.AmountOverridden)
	assert.True(t, dec("49").Equal(changed.Amount))

	_, err = f.svc.OverrideAmount(ctx, sub.ID, dec("5"))
	require.NoError(t, err)
	switched, err := f.svc.SwitchPlan(ctx, sub.ID, "team")
	require.NoError(t, err)
	assert.False(t, switched.AmountOverridden)
	assert.True(t, dec("29").Equal(switched.Amount))
}

func TestService_OverrideAmount_RejectsNegative(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, ports.CreateSubscriptionRequest{PlanID: "basic"})

	_, err := f.svc.OverrideAmount(context.Background(), sub.ID, dec("-1"))

	assert.True(t, pkgerrors.IsValidation(err))
}

func TestService_RefreshPricing_FollowsCatalog(t *testing.T) {
	f := newFixture(t)
	sub := f.put(&domain.Subscription{ID: "sub-1", PlanID: "basic", Amount: dec("45")})

	refreshed, err := f.svc.RefreshPricing(context.Background(), sub.ID)

	require.NoError(t, err)
	assert.True(t, dec("50").Equal(refreshed.Amount))
}

func TestService_Destroy_WithoutBillingID(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, ports.CreateSubscriptionRequest{PlanID: "basic"})

	err := f.svc.Destroy(context.Background(), sub.ID)

	require.NoError(t, err)
	assert.Empty(t, f.vault.Calls())
	assert.Nil(t, f.store.Subscription(sub.ID))
}

func TestService_Destroy_WithBillingID(t *testing.T) {
	f := newFixture(t)
	sub := f.put(&domain.Subscription{ID: "sub-1", PlanID: "basic", Amount: dec("50"), BillingID: "vault-77"})

	err := f.svc.Destroy(context.Background(), sub.ID)

	require.NoError(t, err)
	calls := f.vault.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, mocks.OpUnstore, calls[0].Op)
	assert.Equal(t, "vault-77", calls[0].BillingID)
	assert.Nil(t, f.store.Subscription(sub.ID))
}

func TestService_Destroy_UnstoreFailureKeepsSubscription(t *testing.T) {
	f := newFixture(t)
	f.vault.Script(mocks.OpUnstore, mocks.Decline("Customer not found"))
	sub := f.put(&domain.Subscription{ID: "sub-1", PlanID: "basic", Amount: dec("50"), BillingID: "vault-77"})

	err := f.svc.Destroy(context.Background(), sub.ID)

	require.Error(t, err)
	assert.Equal(t, "Customer not found", err.Error())
	assert.NotNil(t, f.store.Subscription(sub.ID))
}

func TestService_Destroy_NotFound(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Destroy(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestService_NeedsPaymentInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.put(&domain.Subscription{ID: "paid-no-card", PlanID: "basic", Amount: dec("50")})
	f.put(&domain.Subscription{ID: "paid-card", SubscriberID: "acct-2", PlanID: "basic", Amount: dec("50"), BillingID: "v"})

	needs, err := f.svc.NeedsPaymentInfo(ctx, "paid-no-card")
	require.NoError(t, err)
	assert.True(t, needs)

	needs, err = f.svc.NeedsPaymentInfo(ctx, "paid-card")
	require.NoError(t, err)
	assert.False(t, needs)
}
