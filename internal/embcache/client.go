// Package embcache caches embedding vectors and persists budget counters
// in Redis. Both concerns are optional; the service runs without them.
package embcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// Config holds connection parameters for the cache.
type Config struct {
	Addr      string
	Password  string
	KeyPrefix string
}

// Client wraps a rueidis connection with the small key-value surface the
// cache and budget counters need.
type Client struct {
	client rueidis.Client
	prefix string
}

// NewClient connects to Redis.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("addr is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{cfg.Addr},
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &Client{client: client, prefix: cfg.KeyPrefix}, nil
}

// NewClientForTest wraps an existing rueidis client (used with rueidis/mock).
func NewClientForTest(client rueidis.Client, prefix string) *Client {
	return &Client{client: client, prefix: prefix}
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	cmd := c.client.B().Ping().Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the connection.
func (c *Client) Close() {
	c.client.Close()
}

// Get retrieves a value by key. A missing key returns (nil, false, nil).
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	cmd := c.client.B().Get().Key(c.prefix + key).Build()
	data, err := c.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return data, true, nil
}

// SetWithTTL stores a value with an expiration.
func (c *Client) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := c.client.B().Set().Key(c.prefix + key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// IncrBy atomically increments a counter key.
func (c *Client) IncrBy(ctx context.Context, key string, val int64) error {
	cmd := c.client.B().Incrby().Key(c.prefix + key).Increment(val).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("incrby %s: %w", key, err)
	}
	return nil
}

// GetInt reads a counter key, 0 when absent.
func (c *Client) GetInt(ctx context.Context, key string) (int64, error) {
	cmd := c.client.B().Get().Key(c.prefix + key).Build()
	val, err := c.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return val, nil
}
