package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clipwave/clipwave/internal/persist"
	"github.com/clipwave/clipwave/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache provides snapshot persistence and lookup caching on Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Snapshot Operations

// Load returns the blob saved under name, or persist.ErrNotFound
func (c *Cache) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := c.client.Get(ctx, name).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persist.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot %s: %w", name, err)
	}
	return data, nil
}

// Save stores the blob under name without expiry
func (c *Cache) Save(ctx context.Context, name string, data []byte) error {
	if err := c.client.Set(ctx, name, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", name, err)
	}
	return nil
}

// Video Info Cache Operations

// SetVideoInfo caches looked-up video metadata
func (c *Cache) SetVideoInfo(ctx context.Context, info *models.VideoInfo, ttl time.Duration) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal video info: %w", err)
	}

	key := fmt.Sprintf("videoinfo:%s", info.VideoID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetVideoInfo retrieves video metadata from cache
func (c *Cache) GetVideoInfo(ctx context.Context, videoID string) (*models.VideoInfo, error) {
	key := fmt.Sprintf("videoinfo:%s", videoID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get video info from cache: %w", err)
	}

	var info models.VideoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal video info: %w", err)
	}

	return &info, nil
}

// Rate Limiting Operations

// CheckRateLimit counts a hit against key and reports whether it is within limit
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	rateLimitKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := c.client.Incr(ctx, rateLimitKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	// Set expiry on first request
	if count == 1 {
		if err := c.client.Expire(ctx, rateLimitKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set expiry: %w", err)
		}
	}

	return count <= limit, nil
}

// Ping is the health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
