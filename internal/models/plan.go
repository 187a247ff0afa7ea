package models

import (
	"time"

	"github.com/pinpincloud/internal/types"
)

// FreeStorageLimit is the byte ceiling of the free plan (1 GiB)
const FreeStorageLimit int64 = 1073741824

// Plan is the storage plan of a user. A nil StorageLimit means unlimited.
type Plan struct {
	UserID       string         `json:"userId" db:"user_id"`
	Type         types.PlanType `json:"type" db:"type"`
	StorageLimit *int64         `json:"storageLimit" db:"storage_limit"`
	StorageUsed  int64          `json:"storageUsed" db:"storage_used"`
	ActivatedAt  time.Time      `json:"activatedAt" db:"activated_at"`
	ExpiresAt    *time.Time     `json:"expiresAt,omitempty" db:"expires_at"`
	KeyUsed      *string        `json:"keyUsed,omitempty" db:"key_used"`
}

// NewFreePlan returns the plan every user receives at first sign-in
func NewFreePlan(userID string, now time.Time) *Plan {
	limit := FreeStorageLimit
	return &Plan{
		UserID:       userID,
		Type:         types.PlanFree,
		StorageLimit: &limit,
		StorageUsed:  0,
		ActivatedAt:  now,
	}
}

// Unlimited reports whether the plan has no storage ceiling
func (p *Plan) Unlimited() bool {
	return p.StorageLimit == nil
}

// Fits reports whether size more bytes stay within the plan
func (p *Plan) Fits(size int64) bool {
	if p.Unlimited() {
		return true
	}
	return p.StorageUsed+size <= *p.StorageLimit
}

// Expired reports whether a time-boxed plan has lapsed at now
func (p *Plan) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}
