package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrCacheMiss is returned by Get when the key is absent or expired
var ErrCacheMiss = errors.New("cache: key not found")

// cacheKeyPrefix namespaces every key the harvester writes
const cacheKeyPrefix = "harvest:"

// CacheService stores run summaries and the run lock in Redis, with an
// in-memory fallback when Redis is not available.
type CacheService struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Entry

	memCache map[string]cacheItem
	memMutex sync.RWMutex
}

type cacheItem struct {
	value     string
	expiresAt time.Time
}

func (i cacheItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// NewCacheService creates a new cache service. client may be nil.
func NewCacheService(client *redis.Client, ttl time.Duration, logger *logrus.Entry) *CacheService {
	return &CacheService{
		client:   client,
		ttl:      ttl,
		logger:   logger,
		memCache: make(map[string]cacheItem),
	}
}

func key(k string) string {
	if strings.HasPrefix(k, cacheKeyPrefix) {
		return k
	}
	return cacheKeyPrefix + k
}

// Get retrieves a value from cache
func (c *CacheService) Get(ctx context.Context, k string) (string, error) {
	k = key(k)
	if c.client != nil {
		val, err := c.client.Get(ctx, k).Result()
		if err == nil {
			return val, nil
		}
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		c.logger.WithError(err).WithField("key", k).Warn("Redis get error, falling back to memory cache")
	}

	c.memMutex.RLock()
	item, exists := c.memCache[k]
	c.memMutex.RUnlock()

	if !exists {
		return "", ErrCacheMiss
	}
	if item.expired(time.Now()) {
		c.memMutex.Lock()
		delete(c.memCache, k)
		c.memMutex.Unlock()
		return "", ErrCacheMiss
	}
	return item.value, nil
}

// Set stores a value in cache with the default TTL
func (c *CacheService) Set(ctx context.Context, k string, value string) error {
	k = key(k)
	if c.client != nil {
		err := c.client.Set(ctx, k, value, c.ttl).Err()
		if err == nil {
			return nil
		}
		c.logger.WithError(err).WithField("key", k).Warn("Redis set error, falling back to memory cache")
	}

	c.memMutex.Lock()
	c.memCache[k] = cacheItem{value: value, expiresAt: c.expiry(c.ttl)}
	c.memMutex.Unlock()
	return nil
}

// SetIfAbsent stores value only if k is missing. It backs the run lock.
func (c *CacheService) SetIfAbsent(ctx context.Context, k, value string, ttl time.Duration) (bool, error) {
	k = key(k)
	if c.client != nil {
		ok, err := c.client.SetNX(ctx, k, value, ttl).Result()
		if err == nil {
			return ok, nil
		}
		c.logger.WithError(err).WithField("key", k).Warn("Redis setnx error, falling back to memory cache")
	}

	c.memMutex.Lock()
	defer c.memMutex.Unlock()

	if item, exists := c.memCache[k]; exists && !item.expired(time.Now()) {
		return false, nil
	}
	c.memCache[k] = cacheItem{value: value, expiresAt: c.expiry(ttl)}
	return true, nil
}

func (c *CacheService) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// Delete removes a value from cache
func (c *CacheService) Delete(ctx context.Context, k string) error {
	k = key(k)
	if c.client != nil {
		if err := c.client.Del(ctx, k).Err(); err != nil {
			c.logger.WithError(err).WithField("key", k).Warn("Redis delete error")
		}
	}

	c.memMutex.Lock()
	delete(c.memCache, k)
	c.memMutex.Unlock()
	return nil
}

// releaseScript deletes KEYS[1] only while it still holds ARGV[1]
var releaseScript = redis.NewScript(`if redis.call('get', KEYS[1]) == ARGV[1] then
	return redis.call('del', KEYS[1])
else
	return 0
end`)

// DeleteIfValue removes k only while it still holds value and reports
// whether it did. It releases the run lock without touching a lock taken
// over by a later run.
func (c *CacheService) DeleteIfValue(ctx context.Context, k, value string) (bool, error) {
	k = key(k)
	if c.client != nil {
		n, err := releaseScript.Run(ctx, c.client, []string{k}, value).Int()
		if err == nil {
			c.deleteMemIfValue(k, value)
			return n > 0, nil
		}
		c.logger.WithError(err).WithField("key", k).Warn("Redis compare-and-delete error, falling back to memory cache")
	}

	return c.deleteMemIfValue(k, value), nil
}

func (c *CacheService) deleteMemIfValue(k, value string) bool {
	c.memMutex.Lock()
	defer c.memMutex.Unlock()

	item, exists := c.memCache[k]
	if !exists || item.expired(time.Now()) || item.value != value {
		return false
	}
	delete(c.memCache, k)
	return true
}

// Clear removes every harvester key. Other keys in the Redis database are
// left alone.
func (c *CacheService) Clear(ctx context.Context) error {
	if c.client != nil {
		iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			c.logger.WithError(err).Warn("Redis scan error")
		} else if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.logger.WithError(err).Warn("Redis clear error")
			}
		}
	}

	c.memMutex.Lock()
	c.memCache = make(map[string]cacheItem)
	c.memMutex.Unlock()

	c.logger.Info("Cache cleared")
	return nil
}

// Exists checks if a key exists in cache
func (c *CacheService) Exists(ctx context.Context, k string) (bool, error) {
	_, err := c.Get(ctx, k)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	return err == nil, err
}

// GetStats returns cache statistics
func (c *CacheService) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	if c.client != nil {
		size, err := c.client.DBSize(ctx).Result()
		if err == nil {
			stats["redis"] = map[string]interface{}{
				"available": true,
				"keys":      size,
			}
		} else {
			stats["redis"] = map[string]interface{}{
				"available": false,
				"error":     err.Error(),
			}
		}
	} else {
		stats["redis"] = map[string]interface{}{
			"available": false,
		}
	}

	c.memMutex.RLock()
	memSize := len(c.memCache)
	c.memMutex.RUnlock()

	stats["memory"] = map[string]interface{}{
		"size": memSize,
		"ttl":  c.ttl.String(),
	}

	return stats, nil
}

// Health returns cache service health status
func (c *CacheService) Health() map[string]interface{} {
	health := make(map[string]interface{})

	if c.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := c.client.Ping(ctx).Err(); err != nil {
			health["redis"] = map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
			}
		} else {
			health["redis"] = map[string]interface{}{"status": "healthy"}
		}
	} else {
		health["redis"] = map[string]interface{}{"status": "disabled"}
	}

	health["memory"] = map[string]interface{}{"status": "healthy"}
	return health
}

func (c *CacheService) cleanupExpired() {
	c.memMutex.Lock()
	defer c.memMutex.Unlock()

	now := time.Now()
	for k, item := range c.memCache {
		if item.expired(now) {
			delete(c.memCache, k)
		}
	}
}

// StartCleanupRoutine periodically drops expired memory entries until ctx ends
func (c *CacheService) StartCleanupRoutine(ctx context.Context, every time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.cleanupExpired()
			}
		}
	}()
}

var _ CacheServiceInterface = (*CacheService)(nil)
