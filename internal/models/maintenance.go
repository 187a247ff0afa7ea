package models

import (
	"time"

	"github.com/pinpincloud/internal/types"
)

// DefaultMaintenanceMessage is shown when no message was configured
const DefaultMaintenanceMessage = "The system is currently under maintenance. Please try again later."

// Maintenance is the site-wide maintenance record
type Maintenance struct {
	Enabled     bool                  `json:"enabled" db:"enabled"`
	Message     string                `json:"message" db:"message"`
	Mode        types.MaintenanceMode `json:"mode" db:"mode"`
	LastUpdated time.Time             `json:"lastUpdated" db:"last_updated"`
	UpdatedBy   string                `json:"updatedBy,omitempty" db:"updated_by"`
}

// DefaultMaintenance is the value used when no record has been written
func DefaultMaintenance() Maintenance {
	return Maintenance{
		Enabled: false,
		Message: DefaultMaintenanceMessage,
		Mode:    types.MaintenanceFullscreen,
	}
}
