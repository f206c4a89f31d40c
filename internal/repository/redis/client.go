package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Rrens/agent-handoff/internal/config"
)

// Client is the hub's Redis connection. Every key it hands out is
// namespaced by the configured prefix so several deployments can share a
// server.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return wrap(rdb, cfg.KeyPrefix), nil
}

func wrap(rdb *redis.Client, prefix string) *Client {
	return &Client{rdb: rdb, prefix: prefix}
}

// key joins parts with ':' under the client's prefix
func (c *Client) key(parts ...string) string {
	return c.prefix + strings.Join(parts, ":")
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
