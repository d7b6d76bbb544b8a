package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/civicgrid/civicgrid-api/internal/models"
	"github.com/civicgrid/civicgrid-api/pkg/config"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
)

const analyticsCacheKey = "analytics:issues:v1"

type analyticsIssueStore interface {
	CountByCategory(ctx context.Context) ([]models.CategoryCount, error)
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
}

type analyticsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AnalyticsService aggregates the issue dashboard numbers. Aggregates are
// served from Redis when fresh; the database is only hit on a miss.
type AnalyticsService struct {
	issues  analyticsIssueStore
	cache   analyticsCache
	metrics *MetricsService
	cfg     config.AnalyticsConfig
	logger  *zap.Logger
}

// NewAnalyticsService constructs the analytics service. cache may be nil in
// deployments without Redis.
func NewAnalyticsService(issues analyticsIssueStore, cache analyticsCache, metrics *MetricsService, cfg config.AnalyticsConfig, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{issues: issues, cache: cache, metrics: metrics, cfg: cfg, logger: logger}
}

// IssueAnalytics returns the dashboard aggregate, cached per the configured
// TTL.
func (s *AnalyticsService) IssueAnalytics(ctx context.Context) (*models.IssueAnalytics, error) {
	if s.cache != nil && s.cfg.Enabled {
		var cached models.IssueAnalytics
		err := s.cache.Get(ctx, analyticsCacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("analytics cache read failed", zap.Error(err))
		}
	}

	byCategory, err := s.issues.CountByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate by category: %w", err)
	}
	byStatus, err := s.issues.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate by status: %w", err)
	}

	analytics := &models.IssueAnalytics{
		ByCategory:  byCategory,
		ByStatus:    byStatus,
		GeneratedAt: time.Now().UTC(),
	}
	for _, c := range byStatus {
		analytics.TotalIssues += c.Count
		if c.Status == models.StatusResolved {
			analytics.ResolvedIssues += c.Count
		} else {
			analytics.OpenIssues += c.Count
		}
	}

	if s.cache != nil && s.cfg.Enabled {
		if err := s.cache.Set(ctx, analyticsCacheKey, analytics, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("analytics cache write failed", zap.Error(err))
		}
	}
	return analytics, nil
}

// SystemMetrics returns the live instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.SystemMetrics {
	return s.metrics.Snapshot()
}

// Invalidate drops the cached aggregate, typically after bulk imports.
func (s *AnalyticsService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeleteByPattern(ctx, "analytics:*")
}
