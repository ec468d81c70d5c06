package model

import (
	"time"

	"saas-billing-core/internal/domain"
)

// BillingKey is a gateway-issued token for a saved card. The gateway billing
// key itself is stored encrypted (AES-GCM) and is never returned in plaintext
// to any caller; EncryptedKey holds the ciphertext.
type BillingKey struct {
	ID           string // UUID
	UserID       string // UUID
	CustomerKey  string // gateway customer key
	EncryptedKey string // encrypted gateway billing key
	CardCompany  string
	CardNumber   string // masked, display only
	CardType     string
	IsDefault    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewBillingKey(id, userID, customerKey, encryptedKey string) (*BillingKey, error) {
	if id == "" || userID == "" || customerKey == "" || encryptedKey == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &BillingKey{
		ID:           id,
		UserID:       userID,
		CustomerKey:  customerKey,
		EncryptedKey: encryptedKey,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
