package subscription

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/billing-service/internal/adapters/lock"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/test/mocks"
)

// gatedCatalog parks the first GetDiscount call until release is closed
type gatedCatalog struct {
	ports.CatalogRepository
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedCatalog(inner ports.CatalogRepository) *gatedCatalog {
	c := &gatedCatalog{CatalogRepository: inner, entered: make(chan struct{}), release: make(chan struct{})}
	c.armed.Store(true)
	return c
}

func (c *gatedCatalog) GetDiscount(ctx context.Context, id string) (*domain.Discount, error) {
	if c.armed.CompareAndSwap(true, false) {
		close(c.entered)
		<-c.release
	}
	return c.CatalogRepository.GetDiscount(ctx, id)
}

type asyncResult[T any] struct {
	val T
	err error
}

func startChangeDiscount(f *fixture, gate *gatedCatalog, id, discountID string) <-chan asyncResult[*domain.Subscription] {
	done := make(chan asyncResult[*domain.Subscription], 1)
	go func() {
		sub, err := f.svc.ChangeDiscount(context.Background(), id, &discountID)
		done <- asyncResult[*domain.Subscription]{sub, err}
	}()
	<-gate.entered
	return done
}

func dueSubscription(f *fixture) *domain.Subscription {
	today := testNow
	return f.put(&domain.Subscription{ID: "sub-1", PlanID: "basic", Amount: dec("50"), BillingID: "vault-1", NextRenewalAt: &today})
}

func TestService_ChangeDiscount_HoldsLockAgainstCharge(t *testing.T) {
	var gate *gatedCatalog
	f := newFixture(t, func(d *Dependencies, _ *Config) {
		gate = newGatedCatalog(d.Catalog)
		d.Catalog = gate
		d.Locker = lock.NewMemoryLocker()
	})
	dueSubscription(f)

	done := startChangeDiscount(f, gate, "sub-1", "ten")

	_, err := f.svc.Charge(context.Background(), "sub-1")
	assert.ErrorIs(t, err, domain.ErrSubscriptionBusy)
	assert.Empty(t, f.vault.CallsFor(mocks.OpPurchase))

	close(gate.release)
	changed := <-done
	require.NoError(t, changed.err)
	assert.True(t, dec("40").Equal(changed.val.Amount))

	outcome, err := f.svc.Charge(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.True(t, outcome.Charged)
	purchases := f.vault.CallsFor(mocks.OpPurchase)
	require.Len(t, purchases, 1)
	assert.Equal(t, int64(4000), purchases[0].AmountCents)
}

func TestService_ChangeDiscount_StaleReadCannotUndoCharge(t *testing.T) {
	// No locker: only the version check stands between the two writers
	var gate *gatedCatalog
	f := newFixture(t, func(d *Dependencies, _ *Config) {
		gate = newGatedCatalog(d.Catalog)
		d.Catalog = gate
	})
	dueSubscription(f)

	done := startChangeDiscount(f, gate, "sub-1", "ten")

	outcome, err := f.svc.Charge(context.Background(), "sub-1")
	require.NoError(t, err)
	require.True(t, outcome.Charged)

	close(gate.release)
	changed := <-done
	assert.ErrorIs(t, changed.err, domain.ErrSubscriptionStale)

	stored := f.store.Subscription("sub-1")
	assert.Equal(t, testNow.AddDate(0, 1, 0), *stored.NextRenewalAt)
	assert.Nil(t, stored.DiscountID)
	assert.True(t, dec("50").Equal(stored.Amount))

	due, err := f.svc.FindDue(context.Background(), testNow)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestService_Update_StaleReadRejected(t *testing.T) {
	f := newFixture(t)
	dueSubscription(f)
	stale := f.store.Subscription("sub-1")

	_, err := f.svc.Charge(context.Background(), "sub-1")
	require.NoError(t, err)

	stale.Amount = dec("1")
	err = f.svc.update(context.Background(), stale)
	assert.ErrorIs(t, err, domain.ErrSubscriptionStale)
	assert.True(t, dec("50").Equal(f.store.Subscription("sub-1").Amount))
}

func TestService_ChargeListed_SkipsWhenRenewalMoved(t *testing.T) {
	f := newFixture(t)
	dueSubscription(f)
	ctx := context.Background()

	listed, err := f.svc.FindDue(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	_, dueBy := domain.DueWindow(testNow)

	_, err = f.svc.chargeListed(ctx, listed[0], dueBy)
	require.NoError(t, err)

	_, err = f.svc.chargeListed(ctx, listed[0], dueBy)
	assert.ErrorIs(t, err, domain.ErrSubscriptionStale)

	assert.Len(t, f.vault.CallsFor(mocks.OpPurchase), 1)
	assert.Len(t, f.store.AllPayments(), 1)
}

func TestService_ChargeListed_SkipsWhenNoLongerActive(t *testing.T) {
	f := newFixture(t)
	dueSubscription(f)
	ctx := context.Background()

	listed, err := f.svc.FindDue(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	trial := f.store.Subscription("sub-1")
	trial.State = domain.SubscriptionStateTrial
	f.store.PutSubscription(trial)

	_, dueBy := domain.DueWindow(testNow)
	_, err = f.svc.chargeListed(ctx, listed[0], dueBy)
	assert.ErrorIs(t, err, domain.ErrSubscriptionStale)
	assert.Empty(t, f.vault.CallsFor(mocks.OpPurchase))
}

// listBarrier holds each listing until every run in wg has listed
type listBarrier struct {
	ports.Store
	wg *sync.WaitGroup
}

func (s listBarrier) Repositories() ports.Repositories {
	repos := s.Store.Repositories()
	repos.Subscriptions = barrierSubscriptions{SubscriptionRepository: repos.Subscriptions, wg: s.wg}
	return repos
}

type barrierSubscriptions struct {
	ports.SubscriptionRepository
	wg *sync.WaitGroup
}

func (r barrierSubscriptions) ListByStateAndRenewalWindow(ctx context.Context, state domain.SubscriptionState, from, to time.Time, limit int) ([]*domain.Subscription, error) {
	subs, err := r.SubscriptionRepository.ListByStateAndRenewalWindow(ctx, state, from, to, limit)
	r.wg.Done()
	r.wg.Wait()
	return subs, err
}

func TestService_ProcessDueBilling_OverlappingRunsChargeOnce(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	f := newFixture(t, func(d *Dependencies, _ *Config) {
		d.Store = listBarrier{Store: d.Store, wg: &wg}
		d.Locker = lock.NewMemoryLocker()
	})
	dueSubscription(f)

	results := make(chan *ports.BillingBatchResult, 2)
	for i := 0; i < 2; i++ {
		go func() {
			res, err := f.svc.ProcessDueBilling(context.Background(), testNow, 10)
			assert.NoError(t, err)
			results <- res
		}()
	}

	var success, skipped, failed int
	for i := 0; i < 2; i++ {
		res := <-results
		require.NotNil(t, res)
		success += res.SuccessCount
		skipped += res.SkippedCount
		failed += res.FailedCount
	}

	assert.Equal(t, 1, success)
	assert.Equal(t, 1, skipped)
	assert.Zero(t, failed)
	assert.Len(t, f.vault.CallsFor(mocks.OpPurchase), 1)
	assert.Len(t, f.store.AllPayments(), 1)
	assert.Equal(t, testNow.AddDate(0, 1, 0), *f.store.Subscription("sub-1").NextRenewalAt)
}
