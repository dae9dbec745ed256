package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// MemoryStore is an in-memory ports.Store that also serves the catalog and
// subscriber directory. Transactions snapshot state and restore it on error.
type MemoryStore struct {
	mu            sync.Mutex
	subscriptions map[string]*domain.Subscription
	payments      []*domain.PaymentRecord
	plans         map[string]*domain.Plan
	discounts     map[string]*domain.Discount
	affiliates    map[string]*domain.Affiliate
	subscribers   map[string]*domain.Subscriber

	// UpdateErr fails every subscription update when set.
	UpdateErr error
	// PaymentErr fails every payment append when set.
	PaymentErr error
	// Updates counts successful subscription updates.
	Updates int
}

var (
	_ ports.Store               = (*MemoryStore)(nil)
	_ ports.CatalogRepository   = (*MemoryStore)(nil)
	_ ports.SubscriberDirectory = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[string]*domain.Subscription),
		plans:         make(map[string]*domain.Plan),
		discounts:     make(map[string]*domain.Discount),
		affiliates:    make(map[string]*domain.Affiliate),
		subscribers:   make(map[string]*domain.Subscriber),
	}
}

// AddPlan seeds a plan
func (m *MemoryStore) AddPlan(p *domain.Plan) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = p
	return m
}

// AddDiscount seeds a discount
func (m *MemoryStore) AddDiscount(d *domain.Discount) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discounts[d.ID] = d
	return m
}

// AddAffiliate seeds an affiliate
func (m *MemoryStore) AddAffiliate(a *domain.Affiliate) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.affiliates[a.ID] = a
	return m
}

// AddSubscriber seeds a subscriber
func (m *MemoryStore) AddSubscriber(s *domain.Subscriber) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[s.ID] = s
	return m
}

// PutSubscription seeds or replaces a subscription directly
func (m *MemoryStore) PutSubscription(s *domain.Subscription) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[s.ID] = s.Clone()
	return m
}

// Subscription returns the stored copy of a subscription, nil if absent
func (m *MemoryStore) Subscription(id string) *domain.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subscriptions[id]; ok {
		return s.Clone()
	}
	return nil
}

// AllPayments returns every ledger entry
func (m *MemoryStore) AllPayments() []*domain.PaymentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.PaymentRecord, len(m.payments))
	copy(out, m.payments)
	return out
}

// Repositories implements ports.Store
func (m *MemoryStore) Repositories() ports.Repositories {
	return ports.Repositories{
		Subscriptions: memorySubscriptions{m},
		Payments:      memoryPayments{m},
	}
}

// WithTransaction implements ports.TransactionManager
func (m *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	m.mu.Lock()
	subs := make(map[string]*domain.Subscription, len(m.subscriptions))
	for k, v := range m.subscriptions {
		subs[k] = v.Clone()
	}
	payments := append([]*domain.PaymentRecord(nil), m.payments...)
	updates := m.Updates
	m.mu.Unlock()

	if err := fn(ctx, m.Repositories()); err != nil {
		m.mu.Lock()
		m.subscriptions = subs
		m.payments = payments
		m.Updates = updates
		m.mu.Unlock()
		return err
	}
	return nil
}

// WithReadOnlyTransaction implements ports.TransactionManager
func (m *MemoryStore) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	return fn(ctx, m.Repositories())
}

// Ping implements ports.Store
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close implements ports.Store
func (m *MemoryStore) Close() error { return nil }

// GetPlan implements ports.CatalogRepository
func (m *MemoryStore) GetPlan(_ context.Context, id string) (*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.plans[id]; ok {
		return p, nil
	}
	return nil, domain.ErrPlanNotFound
}

// GetDiscount implements ports.CatalogRepository
func (m *MemoryStore) GetDiscount(_ context.Context, id string) (*domain.Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.discounts[id]; ok {
		return d, nil
	}
	return nil, domain.ErrDiscountNotFound
}

// GetAffiliate implements ports.CatalogRepository
func (m *MemoryStore) GetAffiliate(_ context.Context, id string) (*domain.Affiliate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.affiliates[id]; ok {
		return a, nil
	}
	return nil, domain.ErrAffiliateNotFound
}

// ListPlans implements ports.CatalogRepository
func (m *MemoryStore) ListPlans(context.Context) ([]*domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetSubscriber implements ports.SubscriberDirectory
func (m *MemoryStore) GetSubscriber(_ context.Context, id string) (*domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subscribers[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, domain.ErrSubscriberNotFound
}

type memorySubscriptions struct{ m *MemoryStore }

func (r memorySubscriptions) Create(_ context.Context, sub *domain.Subscription) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.subscriptions {
		if existing.SubscriberID == sub.SubscriberID {
			return domain.ErrSubscriptionExists
		}
	}
	if sub.Version == 0 {
		sub.Version = 1
	}
	r.m.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (r memorySubscriptions) GetByID(_ context.Context, id string) (*domain.Subscription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if s, ok := r.m.subscriptions[id]; ok {
		return s.Clone(), nil
	}
	return nil, domain.ErrSubscriptionNotFound
}

func (r memorySubscriptions) GetBySubscriber(_ context.Context, subscriberID string) (*domain.Subscription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.subscriptions {
		if s.SubscriberID == subscriberID {
			return s.Clone(), nil
		}
	}
	return nil, domain.ErrSubscriptionNotFound
}

func (r memorySubscriptions) Update(_ context.Context, sub *domain.Subscription) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.UpdateErr != nil {
		return r.m.UpdateErr
	}
	stored, ok := r.m.subscriptions[sub.ID]
	if !ok {
		return domain.ErrSubscriptionNotFound
	}
	if stored.Version != sub.Version {
		return domain.ErrSubscriptionStale
	}
	sub.Version++
	r.m.subscriptions[sub.ID] = sub.Clone()
	r.m.Updates++
	return nil
}

func (r memorySubscriptions) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.subscriptions[id]; !ok {
		return domain.ErrSubscriptionNotFound
	}
	delete(r.m.subscriptions, id)
	return nil
}

func (r memorySubscriptions) ListByStateAndRenewalWindow(_ context.Context, state domain.SubscriptionState, from, to time.Time, limit int) ([]*domain.Subscription, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.Subscription
	for _, s := range r.m.subscriptions {
		if s.State != state || !s.HasRenewalDate() {
			continue
		}
		at := *s.NextRenewalAt
		if at.Before(from) || at.After(to) {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextRenewalAt.Equal(*out[j].NextRenewalAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextRenewalAt.Before(*out[j].NextRenewalAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryPayments struct{ m *MemoryStore }

func (r memoryPayments) Create(_ context.Context, p *domain.PaymentRecord) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.PaymentErr != nil {
		return r.m.PaymentErr
	}
	c := *p
	r.m.payments = append(r.m.payments, &c)
	return nil
}

func (r memoryPayments) ListBySubscription(_ context.Context, subscriptionID string) ([]*domain.PaymentRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*domain.PaymentRecord
	for _, p := range r.m.payments {
		if p.SubscriptionID == subscriptionID {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r memoryPayments) CountBySubscription(ctx context.Context, subscriptionID string) (int, error) {
	list, err := r.ListBySubscription(ctx, subscriptionID)
	return len(list), err
}
