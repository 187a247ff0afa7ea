package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/types"
)

// DirectoryRepository persists the user directory
type DirectoryRepository struct {
	db *PostgresDB
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *PostgresDB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// Upsert records the latest profile of a user. CreatedAt is kept from the first sign-in.
func (r *DirectoryRepository) Upsert(ctx context.Context, entry *models.DirectoryEntry) error {
	query := `
		INSERT INTO user_directory (user_id, email, display_name, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			last_seen_at = EXCLUDED.last_seen_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		entry.UserID,
		entry.Email,
		entry.DisplayName,
		entry.CreatedAt,
		entry.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert directory entry: %w", err)
	}
	return nil
}

// Get returns the directory entry of userID or ErrNotFound
func (r *DirectoryRepository) Get(ctx context.Context, userID string) (*models.DirectoryEntry, error) {
	query := `
		SELECT user_id, email, display_name, created_at, last_seen_at
		FROM user_directory
		WHERE user_id = $1
	`

	var entry models.DirectoryEntry
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&entry.UserID,
		&entry.Email,
		&entry.DisplayName,
		&entry.CreatedAt,
		&entry.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("user", userID)
		}
		return nil, fmt.Errorf("failed to get directory entry: %w", err)
	}
	return &entry, nil
}

// Delete removes the directory entry of userID
func (r *DirectoryRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM user_directory WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete directory entry: %w", err)
	}
	return nil
}

// Count returns the number of known users
func (r *DirectoryRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM user_directory`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ListAdminView joins directory, role and plan data for every known user
func (r *DirectoryRepository) ListAdminView(ctx context.Context) ([]*models.AdminUserView, error) {
	query := `
		SELECT d.user_id, d.email, d.display_name,
			COALESCE(r.role, $1), COALESCE(p.type, $2), COALESCE(p.storage_used, 0),
			d.created_at, d.last_seen_at
		FROM user_directory d
		LEFT JOIN user_roles r ON r.user_id = d.user_id
		LEFT JOIN user_plans p ON p.user_id = d.user_id
		ORDER BY d.created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, string(types.RoleUser), string(types.PlanFree))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.AdminUserView, 0)
	for rows.Next() {
		var view models.AdminUserView
		var role, plan string
		if err := rows.Scan(
			&view.UserID,
			&view.Email,
			&view.DisplayName,
			&role,
			&plan,
			&view.StorageUsed,
			&view.CreatedAt,
			&view.LastSeenAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		view.Role = types.Role(role)
		view.Plan = types.PlanType(plan)
		users = append(users, &view)
	}
	return users, rows.Err()
}
