package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-conduct-api/internal/models"
	"github.com/noah-isme/sma-conduct-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-conduct-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ConductCache keeps projected states per student and day. Failures never reach callers:
// the ledger replay is authoritative and the cache only saves work.
type ConductCache struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewConductCache constructs the projection cache.
func NewConductCache(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *ConductCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConductCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (c *ConductCache) Enabled() bool {
	return c != nil && c.enabled && c.repo != nil
}

// Get returns the cached state of a student for day, if any.
func (c *ConductCache) Get(ctx context.Context, studentID string, day time.Time) (*models.ConductState, bool) {
	if !c.Enabled() {
		return nil, false
	}
	var state models.ConductState
	err := c.repo.Get(ctx, cache.StateKey(studentID, day), &state)
	c.metrics.RecordCacheOperation(err == nil)
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("conduct cache get failed", zap.String("student_id", studentID), zap.Error(err))
		}
		return nil, false
	}
	return &state, true
}

// Put stores a projected state.
func (c *ConductCache) Put(ctx context.Context, state *models.ConductState) {
	if !c.Enabled() || state == nil {
		return
	}
	if err := c.repo.Set(ctx, cache.StateKey(state.StudentID, state.AsOf), state, c.ttl); err != nil {
		c.logger.Warn("conduct cache set failed", zap.String("student_id", state.StudentID), zap.Error(err))
	}
}

// Invalidate drops every cached state of a student.
func (c *ConductCache) Invalidate(ctx context.Context, studentID string) {
	if !c.Enabled() {
		return
	}
	if err := c.repo.DeleteByPattern(ctx, cache.StudentPattern(studentID)); err != nil {
		c.logger.Warn("conduct cache invalidate failed", zap.String("student_id", studentID), zap.Error(err))
	}
}
