package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pinpincloud/internal/models"
)

// ActivityRepository appends to and aggregates the ClickHouse activity log
type ActivityRepository struct {
	db *ClickHouseDB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *ClickHouseDB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Record appends one activity row
func (r *ActivityRepository) Record(ctx context.Context, activity *models.Activity) error {
	batch, err := r.db.Conn().PrepareBatch(ctx, "INSERT INTO activity")
	if err != nil {
		return fmt.Errorf("failed to prepare activity batch: %w", err)
	}

	err = batch.Append(
		string(activity.Kind),
		activity.UserID,
		activity.FileID,
		activity.Bytes,
		activity.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send activity batch: %w", err)
	}
	return nil
}

// DailyCounts returns the number of activities of kind per UTC day since since
func (r *ActivityRepository) DailyCounts(ctx context.Context, kind models.ActivityKind, since time.Time) ([]models.DailyCount, error) {
	query := `
		SELECT toStartOfDay(occurred_at) AS day, count() AS total
		FROM activity
		WHERE kind = ? AND occurred_at >= ?
		GROUP BY day
		ORDER BY day
	`

	rows, err := r.db.Conn().Query(ctx, query, string(kind), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []models.DailyCount
	for rows.Next() {
		var count models.DailyCount
		if err := rows.Scan(&count.Day, &count.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily activity: %w", err)
		}
		counts = append(counts, count)
	}
	return counts, rows.Err()
}

// NoopActivityRepository discards activity when ClickHouse is not configured
type NoopActivityRepository struct{}

// Record does nothing
func (NoopActivityRepository) Record(context.Context, *models.Activity) error { return nil }

// DailyCounts always returns no rows
func (NoopActivityRepository) DailyCounts(context.Context, models.ActivityKind, time.Time) ([]models.DailyCount, error) {
	return nil, nil
}
