package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNotFound is returned by Get for missing keys
var ErrNotFound = errors.New("key not found")

type Client struct {
	client *redis.Client
}

// New creates a new Redis client
func New(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis ping failed: %w", err)
	}

	return &Client{client: client}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Get retrieves a value by key
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// Set stores a value with TTL
func (c *Client) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CheckRateLimit counts a request against a fixed one-minute window.
// Returns whether the limit is exceeded and how many requests remain.
func (c *Client) CheckRateLimit(ctx context.Context, userID string, limit int) (bool, int, error) {
	key := fmt.Sprintf("ratelimit:%s", userID)

	count, err := c.incrWithTTL(ctx, key, time.Minute)
	if err != nil {
		return false, 0, err
	}

	if count > int64(limit) {
		return true, 0, nil
	}

	return false, limit - int(count), nil
}

// ConsumeDailyQuota counts one use of a named daily quota (UTC day) and
// reports whether the user is now over the limit, plus the count so far.
func (c *Client) ConsumeDailyQuota(ctx context.Context, name, userID string, limit int, now time.Time) (bool, int, error) {
	key := dailyQuotaKey(name, userID, now)

	count, err := c.incrWithTTL(ctx, key, 25*time.Hour)
	if err != nil {
		return false, 0, err
	}

	return count > int64(limit), int(count), nil
}

// RefundDailyQuota gives back one use of a named daily quota for the
// same UTC day it was consumed on.
func (c *Client) RefundDailyQuota(ctx context.Context, name, userID string, now time.Time) error {
	key := dailyQuotaKey(name, userID, now)

	count, err := c.client.Decr(ctx, key).Result()
	if err != nil {
		return err
	}
	// The counter expired between consume and refund.
	if count < 0 {
		return c.client.Del(ctx, key).Err()
	}
	return nil
}

func dailyQuotaKey(name, userID string, now time.Time) string {
	return fmt.Sprintf("quota:%s:%s:%s", name, userID, now.UTC().Format("2006-01-02"))
}

// incrWithTTL increments a counter and starts its expiry on first use
func (c *Client) incrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	if count == 1 {
		if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, err
		}
	}

	return count, nil
}
