package auth

import "github.com/pinpincloud/internal/types"

// Capability is a permission derived from a role
type Capability int

const (
	CapAccessAdmin Capability = iota
	CapManageUsers
	CapViewStats
	CapPerformCriticalActions
	CapCreateKeys
	CapManageKeys
	CapToggleMaintenance
)

// AllCapabilities lists every capability in declaration order
var AllCapabilities = []Capability{
	CapAccessAdmin,
	CapManageUsers,
	CapViewStats,
	CapPerformCriticalActions,
	CapCreateKeys,
	CapManageKeys,
	CapToggleMaintenance,
}

func (c Capability) String() string {
	switch c {
	case CapAccessAdmin:
		return "canAccessAdmin"
	case CapManageUsers:
		return "canManageUsers"
	case CapViewStats:
		return "canViewStats"
	case CapPerformCriticalActions:
		return "canPerformCriticalActions"
	case CapCreateKeys:
		return "canCreateKeys"
	case CapManageKeys:
		return "canManageKeys"
	case CapToggleMaintenance:
		return "canToggleMaintenance"
	default:
		return "unknown"
	}
}

// Allows reports whether role grants capability. Unknown roles grant nothing.
func Allows(role types.Role, capability Capability) bool {
	switch capability {
	case CapAccessAdmin, CapManageUsers, CapViewStats:
		return CanAccessAdmin(role)
	case CapPerformCriticalActions, CapCreateKeys, CapManageKeys, CapToggleMaintenance:
		return CanPerformCriticalActions(role)
	default:
		return false
	}
}

// CanAccessAdmin is true for admins and founders
func CanAccessAdmin(role types.Role) bool {
	switch role {
	case types.RoleAdmin, types.RoleFounder:
		return true
	case types.RoleUser:
		return false
	default:
		return false
	}
}

// CanManageUsers is true for admins and founders
func CanManageUsers(role types.Role) bool { return CanAccessAdmin(role) }

// CanViewStats is true for admins and founders
func CanViewStats(role types.Role) bool { return CanAccessAdmin(role) }

// CanPerformCriticalActions is true only for founders
func CanPerformCriticalActions(role types.Role) bool {
	switch role {
	case types.RoleFounder:
		return true
	case types.RoleUser, types.RoleAdmin:
		return false
	default:
		return false
	}
}

// CanCreateKeys is true only for founders
func CanCreateKeys(role types.Role) bool { return CanPerformCriticalActions(role) }

// CanManageKeys is true only for founders
func CanManageKeys(role types.Role) bool { return CanPerformCriticalActions(role) }

// CanToggleMaintenance is true only for founders
func CanToggleMaintenance(role types.Role) bool { return CanPerformCriticalActions(role) }

// Capabilities returns the capability map the client renders its admin views from
func Capabilities(role types.Role) map[string]bool {
	out := make(map[string]bool, len(AllCapabilities))
	for _, c := range AllCapabilities {
		out[c.String()] = Allows(role, c)
	}
	return out
}
