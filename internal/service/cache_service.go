package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"podcast-be/internal/domain"
	"podcast-be/pkg/redis"

	"go.uber.org/zap"
)

// UserCache is a cache-aside layer for user reads. Credentials are never
// cached: domain.User excludes them from its JSON form.
type UserCache struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewUserCache creates a user cache. A nil client disables caching.
func NewUserCache(redisClient *redis.Client, logger *zap.Logger) *UserCache {
	return &UserCache{
		redis:  redisClient,
		logger: logger,
	}
}

func (c *UserCache) enabled() bool {
	return c != nil && c.redis != nil
}

func (c *UserCache) key(userID int64) string {
	return c.redis.KeyBuilder.KeyUserProfile(userID)
}

// GetUserWithCache returns the cached user or loads it with dbFallback
func (c *UserCache) GetUserWithCache(ctx context.Context, userID int64, dbFallback func(ctx context.Context, id int64) (*domain.User, error)) (*domain.User, error) {
	if !c.enabled() {
		return dbFallback(ctx, userID)
	}

	cacheKey := c.key(userID)

	cachedData, err := c.redis.Get(ctx, cacheKey)
	if err == nil && cachedData != "" {
		var user domain.User
		if marshalErr := json.Unmarshal([]byte(cachedData), &user); marshalErr == nil {
			c.logger.Debug("User cache hit", zap.Int64("user_id", userID))
			return &user, nil
		} else {
			c.logger.Warn("User cache corrupted, falling back to database",
				zap.Int64("user_id", userID),
				zap.Error(marshalErr))
		}
	} else if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("User cache error, falling back to database",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}

	c.logger.Debug("User cache miss", zap.Int64("user_id", userID))
	user, err := dbFallback(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.CacheUser(ctx, user)
	return user, nil
}

// CacheUser stores user, logging and ignoring failures
func (c *UserCache) CacheUser(ctx context.Context, user *domain.User) {
	if !c.enabled() || user == nil {
		return
	}

	data, err := json.Marshal(user)
	if err != nil {
		c.logger.Error("Failed to marshal user for caching",
			zap.Int64("user_id", user.ID),
			zap.Error(err))
		return
	}

	if err := c.redis.Set(ctx, c.key(user.ID), string(data), redis.TTLUserProfile); err != nil {
		c.logger.Warn("Failed to cache user",
			zap.Int64("user_id", user.ID),
			zap.Error(err))
		return
	}
	c.logger.Debug("User cached", zap.Int64("user_id", user.ID))
}

// InvalidateUser removes the cached user
func (c *UserCache) InvalidateUser(ctx context.Context, userID int64) error {
	if !c.enabled() {
		return nil
	}

	if err := c.redis.Delete(ctx, c.key(userID)); err != nil {
		c.logger.Warn("Failed to invalidate user cache",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("invalidate user %d: %w", userID, err)
	}

	c.logger.Debug("User cache invalidated", zap.Int64("user_id", userID))
	return nil
}

// HealthCheck pings the cache backend
func (c *UserCache) HealthCheck(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}

	start := time.Now()
	err := c.redis.Health(ctx)
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("Cache health check failed",
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}

	c.logger.Debug("Cache health check passed", zap.Duration("duration", duration))
	return nil
}
