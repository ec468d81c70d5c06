package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const webhookKeyPrefix = "webhook:seen:"

// WebhookCache is a best-effort fast path in front of the durable webhook log.
// A hit short-circuits a redelivery before it touches Postgres; a miss or a
// Redis outage just falls through to the log, which stays authoritative.
type WebhookCache struct {
	cli *redis.Client
	ttl time.Duration
}

func NewWebhookCache(c *Client) *WebhookCache {
	ttl := c.ttl
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &WebhookCache{cli: c.cli, ttl: ttl}
}

func (w *WebhookCache) Seen(ctx context.Context, transmissionID string) (bool, error) {
	if transmissionID == "" {
		return false, nil
	}
	n, err := w.cli.Exists(ctx, webhookKeyPrefix+transmissionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (w *WebhookCache) Mark(ctx context.Context, transmissionID string) error {
	if transmissionID == "" {
		return nil
	}
	return w.cli.Set(ctx, webhookKeyPrefix+transmissionID, "1", w.ttl).Err()
}
