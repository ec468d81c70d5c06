package redis

import (
	"context"
	"time"

	"saas-billing-core/internal/config"

	"github.com/go-redis/redis/v8"
)

// Client wraps the raw go-redis client so callers depend on the small surface
// the billing core actually uses.
type Client struct {
	cli *redis.Client
	ttl time.Duration
}

func NewClient(ctx context.Context, cfg *config.RedisConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Client{cli: c, ttl: cfg.TTL}, nil
}

func (c *Client) Ping(ctx context.Context) error { return c.cli.Ping(ctx).Err() }

func (c *Client) Close() error { return c.cli.Close() }
