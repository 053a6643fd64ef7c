package embcache

import (
	"context"
	"fmt"
)

// Counters adapts the client to the budget persistence contract
// (embedding.BudgetStore). Keys carry their period in the name, so plain
// INCRBY/GET is enough.
type Counters struct {
	client *Client
}

// NewCounters creates a budget counter store.
func NewCounters(client *Client) *Counters {
	return &Counters{client: client}
}

// IncrBy atomically adds val to the counter.
func (c *Counters) IncrBy(ctx context.Context, key string, val int64) error {
	if err := c.client.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("incr budget counter: %w", err)
	}
	return nil
}

// Get reads a counter, 0 when absent.
func (c *Counters) Get(ctx context.Context, key string) (int64, error) {
	val, err := c.client.GetInt(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read budget counter: %w", err)
	}
	return val, nil
}
