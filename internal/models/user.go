// Package models provides data models for the PinPinCloud backend.
package models

import (
	"time"

	"github.com/pinpincloud/internal/types"
)

// RoleRecord is the authorization tier stored for a user id
type RoleRecord struct {
	UserID    string     `json:"userId" db:"user_id"`
	Role      types.Role `json:"role" db:"role"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// DirectoryEntry is the profile the identity provider asserted at the last sign-in
type DirectoryEntry struct {
	UserID      string    `json:"userId" db:"user_id"`
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"displayName" db:"display_name"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	LastSeenAt  time.Time `json:"lastSeenAt" db:"last_seen_at"`
}

// AdminUserView joins the directory, role and plan of one user for administration
type AdminUserView struct {
	UserID      string         `json:"userId"`
	Email       string         `json:"email"`
	DisplayName string         `json:"displayName"`
	Role        types.Role     `json:"role"`
	Plan        types.PlanType `json:"plan"`
	StorageUsed int64          `json:"storageUsed"`
	CreatedAt   time.Time      `json:"createdAt"`
	LastSeenAt  time.Time      `json:"lastSeenAt"`
}
