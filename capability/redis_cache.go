package capability

import (
	"context"
	"time"

	"github.com/BaSui01/adregistry/internal/cache"
	"go.uber.org/zap"
)

const redisKeyPrefix = "capability:"

// RedisCache shares profiles across instances through Redis.
// Redis errors degrade to a cache miss.
type RedisCache struct {
	manager *cache.Manager
	ttl     time.Duration
	logger  *zap.Logger
}

// NewRedisCache wraps an initialized cache manager.
func NewRedisCache(manager *cache.Manager, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{
		manager: manager,
		ttl:     ttl,
		logger:  logger.With(zap.String("component", "capability_redis_cache")),
	}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, agentURL string) (*Profile, bool) {
	var p Profile
	if err := c.manager.GetJSON(ctx, redisKeyPrefix+agentURL, &p); err != nil {
		if !cache.IsCacheMiss(err) {
			c.logger.Warn("capability cache read failed", zap.String("agent_url", agentURL), zap.Error(err))
		}
		return nil, false
	}
	return &p, true
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, agentURL string, profile *Profile) {
	if err := c.manager.SetJSON(ctx, redisKeyPrefix+agentURL, profile, c.ttl); err != nil {
		c.logger.Warn("capability cache write failed", zap.String("agent_url", agentURL), zap.Error(err))
	}
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, agentURL string) {
	if err := c.manager.Delete(ctx, redisKeyPrefix+agentURL); err != nil {
		c.logger.Warn("capability cache delete failed", zap.String("agent_url", agentURL), zap.Error(err))
	}
}
