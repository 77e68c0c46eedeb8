package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-materials-api/internal/models"
	"github.com/noah-isme/tutor-materials-api/pkg/cache"
	appErrors "github.com/noah-isme/tutor-materials-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CacheService keeps submission summaries in Redis and records cache metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// GetSummary returns a cached submission summary. Lookup errors count as misses.
func (s *CacheService) GetSummary(ctx context.Context, materialID string) (*models.SubmissionSummary, bool) {
	if !s.Enabled() {
		return nil, false
	}
	key := cache.SummaryKey(materialID)
	start := time.Now()
	var summary models.SubmissionSummary
	err := s.repo.Get(ctx, key, &summary)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return &summary, true
}

// SetSummary stores the summary until the TTL expires or a write invalidates it.
func (s *CacheService) SetSummary(ctx context.Context, summary *models.SubmissionSummary) {
	if !s.Enabled() || summary == nil {
		return
	}
	key := cache.SummaryKey(summary.MaterialID)
	start := time.Now()
	err := s.repo.Set(ctx, key, summary, s.defaultTTL)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateSummary drops the cached summary of a material.
func (s *CacheService) InvalidateSummary(ctx context.Context, materialID string) {
	if !s.Enabled() {
		return
	}
	key := cache.SummaryKey(materialID)
	if err := s.repo.Delete(ctx, key); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}
