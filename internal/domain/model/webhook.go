package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// WebhookPendingGrace bounds how long a pending entry shields redeliveries.
// A pending row younger than this usually means another delivery of the same
// event is in flight right now; past the grace it is treated as abandoned
// (process killed mid-routing) and the redelivery takes over.
const WebhookPendingGrace = 5 * time.Minute

// WebhookLogEntry records one gateway delivery keyed by an idempotency key.
// The key is unique: a second delivery with the same key re-runs routing only
// while the entry has not reached the processed state.
type WebhookLogEntry struct {
	ID             string // UUID
	IdempotencyKey string
	EventType      string
	Payload        []byte // raw body snapshot
	Status         WebhookStatus
	Error          string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
}

// RetryEligible reports whether a redelivery for this entry must run routing
// again. Processed entries are terminal. Failed entries retry: the provider
// redelivers exactly because the previous attempt answered 5xx, and swallowing
// the redelivery would lose the event for good. Pending entries retry only
// after the grace lapses.
func (e *WebhookLogEntry) RetryEligible(now time.Time) bool {
	switch e.Status {
	case WebhookStatusFailed:
		return true
	case WebhookStatusPending:
		return now.Sub(e.CreatedAt) >= WebhookPendingGrace
	default:
		return false
	}
}

// PayloadIdempotencyKey derives a deterministic key from the raw body, used
// when the gateway omits its transmission-id header.
func PayloadIdempotencyKey(rawBody []byte) string {
	sum := sha256.Sum256(rawBody)
	return hex.EncodeToString(sum[:])
}
