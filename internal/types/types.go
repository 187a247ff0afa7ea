// Package types provides common type definitions for the PinPinCloud backend.
package types

import "fmt"

// Role is the authorization tier of a principal
type Role string

const (
	// RoleUser is the default tier for every signed-in account
	RoleUser Role = "user"
	// RoleAdmin may administer users and view stats
	RoleAdmin Role = "admin"
	// RoleFounder holds every capability including keys and maintenance
	RoleFounder Role = "founder"
)

// ParseRole converts a stored or submitted string into a Role
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin, RoleFounder:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// PlanType is the storage plan tier
type PlanType string

const (
	PlanFree     PlanType = "free"
	PlanPremium  PlanType = "premium"
	PlanLifetime PlanType = "lifetime"
)

// ParsePlanType converts a stored string into a PlanType
func ParsePlanType(s string) (PlanType, error) {
	switch PlanType(s) {
	case PlanFree, PlanPremium, PlanLifetime:
		return PlanType(s), nil
	default:
		return "", fmt.Errorf("unknown plan type %q", s)
	}
}

// Unlimited reports whether the tier has no storage ceiling
func (p PlanType) Unlimited() bool {
	switch p {
	case PlanPremium, PlanLifetime:
		return true
	case PlanFree:
		return false
	default:
		return false
	}
}

// ShareMode selects how a shared file is protected
type ShareMode string

const (
	// ShareModeLink makes the file readable by anyone holding the URL
	ShareModeLink ShareMode = "link"
	// ShareModePassword additionally requires a password
	ShareModePassword ShareMode = "password"
)

// ParseShareMode converts a submitted string into a ShareMode
func ParseShareMode(s string) (ShareMode, error) {
	switch ShareMode(s) {
	case ShareModeLink, ShareModePassword:
		return ShareMode(s), nil
	default:
		return "", fmt.Errorf("unknown share mode %q", s)
	}
}

// ShareState is the derived sharing state of a file
type ShareState string

const (
	ShareStatePrivate        ShareState = "private"
	ShareStateSharedPublic   ShareState = "shared_public"
	ShareStateSharedPassword ShareState = "shared_password"
)

// KeyType is the duration class of a premium key
type KeyType string

const (
	KeyMonthly  KeyType = "monthly"
	KeyYearly   KeyType = "yearly"
	KeyLifetime KeyType = "lifetime"
)

// ParseKeyType converts a submitted string into a KeyType
func ParseKeyType(s string) (KeyType, error) {
	switch KeyType(s) {
	case KeyMonthly, KeyYearly, KeyLifetime:
		return KeyType(s), nil
	default:
		return "", fmt.Errorf("unknown key type %q", s)
	}
}

// KeyStatus tracks whether a premium key has been redeemed
type KeyStatus string

const (
	KeyUnused KeyStatus = "unused"
	KeyUsed   KeyStatus = "used"
)

// MaintenanceMode selects how the client presents a maintenance notice
type MaintenanceMode string

const (
	MaintenanceModal      MaintenanceMode = "modal"
	MaintenanceFullscreen MaintenanceMode = "fullscreen"
	MaintenanceBanner     MaintenanceMode = "banner"
)

// ParseMaintenanceMode converts a submitted string into a MaintenanceMode
func ParseMaintenanceMode(s string) (MaintenanceMode, error) {
	switch MaintenanceMode(s) {
	case MaintenanceModal, MaintenanceFullscreen, MaintenanceBanner:
		return MaintenanceMode(s), nil
	default:
		return "", fmt.Errorf("unknown maintenance mode %q", s)
	}
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
