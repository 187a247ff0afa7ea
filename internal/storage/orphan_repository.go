package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pinpincloud/internal/models"
)

// OrphanRepository tracks blobs whose delete must be retried
type OrphanRepository struct {
	db *PostgresDB
}

// NewOrphanRepository creates a new orphan repository
func NewOrphanRepository(db *PostgresDB) *OrphanRepository {
	return &OrphanRepository{db: db}
}

// Add records a blob whose delete failed
func (r *OrphanRepository) Add(ctx context.Context, orphan *models.OrphanBlob) error {
	query := `
		INSERT INTO orphan_blobs (storage_path, owner_id, attempts, last_error, created_at, next_attempt)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (storage_path) DO UPDATE SET
			last_error = EXCLUDED.last_error
	`

	_, err := r.db.Pool().Exec(ctx, query,
		orphan.StoragePointer,
		orphan.OwnerID,
		orphan.Attempts,
		orphan.LastError,
		orphan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record orphan blob: %w", err)
	}
	return nil
}

// ListDue returns up to limit orphans whose next attempt is at or before now
func (r *OrphanRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.OrphanBlob, error) {
	query := `
		SELECT storage_path, owner_id, attempts, last_error, created_at
		FROM orphan_blobs
		WHERE next_attempt <= $1
		ORDER BY next_attempt
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan blobs: %w", err)
	}
	defer rows.Close()

	var orphans []*models.OrphanBlob
	for rows.Next() {
		var orphan models.OrphanBlob
		if err := rows.Scan(
			&orphan.StoragePointer,
			&orphan.OwnerID,
			&orphan.Attempts,
			&orphan.LastError,
			&orphan.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan orphan blob: %w", err)
		}
		orphans = append(orphans, &orphan)
	}
	return orphans, rows.Err()
}

// Remove drops an orphan once its blob is gone
func (r *OrphanRepository) Remove(ctx context.Context, pointer string) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM orphan_blobs WHERE storage_path = $1`, pointer); err != nil {
		return fmt.Errorf("failed to remove orphan blob: %w", err)
	}
	return nil
}

// RecordFailure bumps the attempt counter and schedules the next attempt
func (r *OrphanRepository) RecordFailure(ctx context.Context, pointer, lastError string, next time.Time) error {
	query := `
		UPDATE orphan_blobs
		SET attempts = attempts + 1, last_error = $2, next_attempt = $3
		WHERE storage_path = $1
	`

	if _, err := r.db.Pool().Exec(ctx, query, pointer, lastError, next); err != nil {
		return fmt.Errorf("failed to update orphan blob: %w", err)
	}
	return nil
}
