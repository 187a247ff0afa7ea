package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/pinpincloud/internal/events"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/storage"
	"github.com/pinpincloud/internal/types"
)

// Repository interfaces for dependency injection

// RoleRepository persists role records
type RoleRepository interface {
	Get(ctx context.Context, userID string) (*models.RoleRecord, error)
	InitIfAbsent(ctx context.Context, userID string) (*models.RoleRecord, error)
	Set(ctx context.Context, userID string, role types.Role) error
	Delete(ctx context.Context, userID string) error
}

// RoleCache is an optional read-through cache in front of RoleRepository
type RoleCache interface {
	GetRole(ctx context.Context, userID string) (types.Role, bool, error)
	SetRole(ctx context.Context, userID string, role types.Role) error
	InvalidateRole(ctx context.Context, userID string) error
}

// PlanRepository persists storage plans
type PlanRepository interface {
	Get(ctx context.Context, userID string) (*models.Plan, error)
	CreateIfAbsent(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	AdjustUsage(ctx context.Context, userID string, delta int64) error
	Delete(ctx context.Context, userID string) error
	CountByType(ctx context.Context) (map[types.PlanType]int, error)
}

// FileRepository persists file metadata
type FileRepository interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error)
	UpdateShare(ctx context.Context, id string, settings models.ShareSettings) error
	Delete(ctx context.Context, id string) (*models.File, error)
	DeleteByOwner(ctx context.Context, ownerID string) ([]*models.File, error)
	Totals(ctx context.Context) (files int, shared int, bytes int64, err error)
}

// KeyRepository persists the premium key ledger
type KeyRepository interface {
	Create(ctx context.Context, key *models.PremiumKey) error
	Get(ctx context.Context, code string) (*models.PremiumKey, error)
	Redeem(ctx context.Context, code, userID, email string, at time.Time, grant func(current *models.Plan) *models.Plan) error
	List(ctx context.Context) ([]*models.PremiumKey, error)
	Delete(ctx context.Context, code string) error
	Stats(ctx context.Context) (models.KeyStats, error)
}

// MaintenanceRepository persists the maintenance record
type MaintenanceRepository interface {
	Get(ctx context.Context) (*models.Maintenance, error)
	Put(ctx context.Context, record *models.Maintenance) error
}

// DirectoryRepository persists the user directory
type DirectoryRepository interface {
	Upsert(ctx context.Context, entry *models.DirectoryEntry) error
	Get(ctx context.Context, userID string) (*models.DirectoryEntry, error)
	Delete(ctx context.Context, userID string) error
	Count(ctx context.Context) (int, error)
	ListAdminView(ctx context.Context) ([]*models.AdminUserView, error)
}

// OrphanRepository records blobs whose delete failed
type OrphanRepository interface {
	Add(ctx context.Context, orphan *models.OrphanBlob) error
}

// ActivityRecorder appends to and aggregates the activity log
type ActivityRecorder interface {
	Record(ctx context.Context, activity *models.Activity) error
	DailyCounts(ctx context.Context, kind models.ActivityKind, since time.Time) ([]models.DailyCount, error)
}

func isNotFound(err error) bool {
	return stderrors.Is(err, storage.ErrNotFound)
}

// publish sends an event when a publisher is configured. Failures are logged, never returned.
func publish(ctx context.Context, publisher events.Publisher, topic events.Topic, eventType string, payload interface{}) {
	if publisher == nil {
		return
	}
	event, err := events.NewEvent(topic, eventType, payload)
	if err == nil {
		err = publisher.Publish(ctx, event)
	}
	if err != nil {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"topic": topic,
			"type":  eventType,
		}).WithError(err).Warn("Failed to publish event")
	}
}

// recordActivity appends an activity row when a recorder is configured
func recordActivity(ctx context.Context, recorder ActivityRecorder, activity *models.Activity) {
	if recorder == nil {
		return
	}
	if err := recorder.Record(ctx, activity); err != nil {
		logging.FromContext(ctx).WithField("kind", activity.Kind).WithError(err).Warn("Failed to record activity")
	}
}
