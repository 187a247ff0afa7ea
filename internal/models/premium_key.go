package models

import (
	"time"

	"github.com/pinpincloud/internal/types"
)

// PremiumKey is a single-use code that upgrades a plan
type PremiumKey struct {
	Key           string          `json:"key" db:"key"`
	Type          types.KeyType   `json:"type" db:"type"`
	Status        types.KeyStatus `json:"status" db:"status"`
	MaxEmojis     int             `json:"maxEmojis" db:"max_emojis"`
	IsActive      bool            `json:"isActive" db:"is_active"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	CreatedBy     string          `json:"createdBy" db:"created_by"`
	ExpiresAt     *time.Time      `json:"expiresAt,omitempty" db:"expires_at"`
	AssignedTo    *string         `json:"assignedTo,omitempty" db:"assigned_to"`
	AssignedEmail *string         `json:"assignedEmail,omitempty" db:"assigned_email"`
	UsedBy        *string         `json:"usedBy,omitempty" db:"used_by"`
	UsedAt        *time.Time      `json:"usedAt,omitempty" db:"used_at"`
}

// Expired reports whether the key's redemption window has closed at now
func (k *PremiumKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// KeyStats summarizes the ledger
type KeyStats struct {
	Total  int `json:"total"`
	Used   int `json:"used"`
	Unused int `json:"unused"`
}
