package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicgrid/civicgrid-api/internal/models"
	"github.com/civicgrid/civicgrid-api/pkg/config"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
)

type stubAnalyticsIssueStore struct {
	byCategory    []models.CategoryCount
	byStatus      []models.StatusCount
	categoryCalls int
}

func (s *stubAnalyticsIssueStore) CountByCategory(ctx context.Context) ([]models.CategoryCount, error) {
	s.categoryCalls++
	return s.byCategory, nil
}

func (s *stubAnalyticsIssueStore) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	return s.byStatus, nil
}

type memoryCache struct {
	values map[string]interface{}
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]interface{}{}}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	v, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*models.IssueAnalytics)) = *(v.(*models.IssueAnalytics))
	return nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.values[key] = value
	return nil
}

func (c *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.values = map[string]interface{}{}
	return nil
}

func TestAnalyticsServiceAggregates(t *testing.T) {
	store := &stubAnalyticsIssueStore{
		byCategory: []models.CategoryCount{
			{Category: models.CategoryRoad, Count: 10},
			{Category: models.CategoryWater, Count: 5},
		},
		byStatus: []models.StatusCount{
			{Status: models.StatusReported, Count: 4},
			{Status: models.StatusInProgress, Count: 6},
			{Status: models.StatusResolved, Count: 5},
		},
	}
	svc := NewAnalyticsService(store, nil, NewMetricsService(), config.AnalyticsConfig{Enabled: true, CacheTTL: time.Minute}, nil)

	got, err := svc.IssueAnalytics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 15, got.TotalIssues)
	require.Equal(t, 10, got.OpenIssues)
	require.Equal(t, 5, got.ResolvedIssues)
	require.Len(t, got.ByCategory, 2)
}

func TestAnalyticsServiceUsesCache(t *testing.T) {
	store := &stubAnalyticsIssueStore{
		byStatus: []models.StatusCount{{Status: models.StatusReported, Count: 1}},
	}
	cache := newMemoryCache()
	svc := NewAnalyticsService(store, cache, NewMetricsService(), config.AnalyticsConfig{Enabled: true, CacheTTL: time.Minute}, nil)

	_, err := svc.IssueAnalytics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, store.categoryCalls)

	// Second call is served from cache.
	_, err = svc.IssueAnalytics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, store.categoryCalls)

	require.NoError(t, svc.Invalidate(context.Background()))
	_, err = svc.IssueAnalytics(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, store.categoryCalls)
}
