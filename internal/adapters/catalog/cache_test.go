package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/billing-service/internal/domain"
)

type countingCatalog struct {
	plans map[string]*domain.Plan
	calls map[string]int
}

func newCountingCatalog() *countingCatalog {
	return &countingCatalog{
		plans: map[string]*domain.Plan{
			"basic": {ID: "basic", Amount: decimal.NewFromInt(20)},
		},
		calls: map[string]int{},
	}
}

func (c *countingCatalog) GetPlan(_ context.Context, id string) (*domain.Plan, error) {
	c.calls["plan"]++
	p, ok := c.plans[id]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}
	return p, nil
}

func (c *countingCatalog) GetDiscount(_ context.Context, id string) (*domain.Discount, error) {
	c.calls["discount"]++
	return &domain.Discount{ID: id}, nil
}

func (c *countingCatalog) GetAffiliate(_ context.Context, id string) (*domain.Affiliate, error) {
	c.calls["affiliate"]++
	return &domain.Affiliate{ID: id}, nil
}

func (c *countingCatalog) ListPlans(context.Context) ([]*domain.Plan, error) {
	c.calls["list"]++
	return []*domain.Plan{c.plans["basic"]}, nil
}

func TestCachedRepository_CachesHits(t *testing.T) {
	ctx := context.Background()
	inner := newCountingCatalog()
	repo := NewCachedRepository(inner, CacheConfig{TTL: time.Minute})

	for i := 0; i < 3; i++ {
		p, err := repo.GetPlan(ctx, "basic")
		require.NoError(t, err)
		assert.Equal(t, "basic", p.ID)

		_, err = repo.GetDiscount(ctx, "promo")
		require.NoError(t, err)
		_, err = repo.GetAffiliate(ctx, "aff")
		require.NoError(t, err)
		plans, err := repo.ListPlans(ctx)
		require.NoError(t, err)
		assert.Len(t, plans, 1)
	}

	assert.Equal(t, 1, inner.calls["plan"])
	assert.Equal(t, 1, inner.calls["discount"])
	assert.Equal(t, 1, inner.calls["affiliate"])
	assert.Equal(t, 1, inner.calls["list"])

	repo.Purge()
	_, err := repo.GetPlan(ctx, "basic")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls["plan"])
}

func TestCachedRepository_DoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	inner := newCountingCatalog()
	repo := NewCachedRepository(inner, CacheConfig{})

	_, err := repo.GetPlan(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)

	inner.plans["missing"] = &domain.Plan{ID: "missing"}
	p, err := repo.GetPlan(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "missing", p.ID)
	assert.Equal(t, 2, inner.calls["plan"])
}
