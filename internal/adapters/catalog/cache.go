// Package catalog caches the read-only plan, discount and affiliate records.
package catalog

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

const (
	defaultCacheMaxSize = 256
	defaultCacheTTL     = 5 * time.Minute

	allPlansKey = "*"
)

// CacheConfig configures the catalog cache
type CacheConfig struct {
	MaxSize int
	TTL     time.Duration
}

// CachedRepository wraps a CatalogRepository with per-kind TTL caches.
// Lookup errors are never cached.
type CachedRepository struct {
	delegate   ports.CatalogRepository
	plans      *expirable.LRU[string, *domain.Plan]
	planLists  *expirable.LRU[string, []*domain.Plan]
	discounts  *expirable.LRU[string, *domain.Discount]
	affiliates *expirable.LRU[string, *domain.Affiliate]
}

var _ ports.CatalogRepository = (*CachedRepository)(nil)

// NewCachedRepository wraps delegate. Zero config values use the defaults.
func NewCachedRepository(delegate ports.CatalogRepository, cfg CacheConfig) *CachedRepository {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultCacheMaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	return &CachedRepository{
		delegate:   delegate,
		plans:      expirable.NewLRU[string, *domain.Plan](cfg.MaxSize, nil, cfg.TTL),
		planLists:  expirable.NewLRU[string, []*domain.Plan](1, nil, cfg.TTL),
		discounts:  expirable.NewLRU[string, *domain.Discount](cfg.MaxSize, nil, cfg.TTL),
		affiliates: expirable.NewLRU[string, *domain.Affiliate](cfg.MaxSize, nil, cfg.TTL),
	}
}

// GetPlan implements ports.CatalogRepository
func (c *CachedRepository) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	return cached(ctx, c.plans, id, c.delegate.GetPlan)
}

// GetDiscount implements ports.CatalogRepository
func (c *CachedRepository) GetDiscount(ctx context.Context, id string) (*domain.Discount, error) {
	return cached(ctx, c.discounts, id, c.delegate.GetDiscount)
}

// GetAffiliate implements ports.CatalogRepository
func (c *CachedRepository) GetAffiliate(ctx context.Context, id string) (*domain.Affiliate, error) {
	return cached(ctx, c.affiliates, id, c.delegate.GetAffiliate)
}

// ListPlans implements ports.CatalogRepository
func (c *CachedRepository) ListPlans(ctx context.Context) ([]*domain.Plan, error) {
	return cached(ctx, c.planLists, allPlansKey, func(ctx context.Context, _ string) ([]*domain.Plan, error) {
		return c.delegate.ListPlans(ctx)
	})
}

// Purge drops every cached record
func (c *CachedRepository) Purge() {
	c.plans.Purge()
	c.planLists.Purge()
	c.discounts.Purge()
	c.affiliates.Purge()
}

func cached[V any](ctx context.Context, cache *expirable.LRU[string, V], key string, load func(context.Context, string) (V, error)) (V, error) {
	if v, ok := cache.Get(key); ok {
		return v, nil
	}
	v, err := load(ctx, key)
	if err != nil {
		return v, err
	}
	cache.Add(key, v)
	return v, nil
}
