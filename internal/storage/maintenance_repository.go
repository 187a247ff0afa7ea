package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/types"
)

// MaintenanceRepository persists the singleton maintenance record
type MaintenanceRepository struct {
	db *PostgresDB
}

// NewMaintenanceRepository creates a new maintenance repository
func NewMaintenanceRepository(db *PostgresDB) *MaintenanceRepository {
	return &MaintenanceRepository{db: db}
}

// Get returns the stored record or ErrNotFound when none was written yet
func (r *MaintenanceRepository) Get(ctx context.Context) (*models.Maintenance, error) {
	query := `
		SELECT enabled, message, mode, last_updated, updated_by
		FROM maintenance
		WHERE id = 1
	`

	var record models.Maintenance
	var mode string
	err := r.db.Pool().QueryRow(ctx, query).Scan(
		&record.Enabled,
		&record.Message,
		&mode,
		&record.LastUpdated,
		&record.UpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("maintenance", "record")
		}
		return nil, fmt.Errorf("failed to get maintenance record: %w", err)
	}
	if record.Mode, err = types.ParseMaintenanceMode(mode); err != nil {
		return nil, err
	}
	return &record, nil
}

// Put replaces the record
func (r *MaintenanceRepository) Put(ctx context.Context, record *models.Maintenance) error {
	query := `
		INSERT INTO maintenance (id, enabled, message, mode, last_updated, updated_by)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			message = EXCLUDED.message,
			mode = EXCLUDED.mode,
			last_updated = EXCLUDED.last_updated,
			updated_by = EXCLUDED.updated_by
	`

	_, err := r.db.Pool().Exec(ctx, query,
		record.Enabled,
		record.Message,
		string(record.Mode),
		record.LastUpdated,
		record.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to save maintenance record: %w", err)
	}
	return nil
}
