package cache

import (
	"context"
	"time"

	"mobistock/backend/internal/domain"
)

// StatsCache holds the hot read-only reporting aggregates. Entries are
// short-lived; mutations do not invalidate, they just wait out the TTL.
type StatsCache interface {
	GetStats(ctx context.Context, key string) (*domain.DashboardStats, bool, error)
	SetStats(ctx context.Context, key string, value *domain.DashboardStats, ttl time.Duration) error
	GetCategoryRevenue(ctx context.Context, key string) ([]domain.CategoryRevenue, bool, error)
	SetCategoryRevenue(ctx context.Context, key string, value []domain.CategoryRevenue, ttl time.Duration) error
}

type NoopStatsCache struct{}

func (NoopStatsCache) GetStats(_ context.Context, _ string) (*domain.DashboardStats, bool, error) {
	return nil, false, nil
}

func (NoopStatsCache) SetStats(_ context.Context, _ string, _ *domain.DashboardStats, _ time.Duration) error {
	return nil
}

func (NoopStatsCache) GetCategoryRevenue(_ context.Context, _ string) ([]domain.CategoryRevenue, bool, error) {
	return nil, false, nil
}

func (NoopStatsCache) SetCategoryRevenue(_ context.Context, _ string, _ []domain.CategoryRevenue, _ time.Duration) error {
	return nil
}
