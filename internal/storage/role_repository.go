package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/types"
)

// RoleRepository persists user role records
type RoleRepository struct {
	db *PostgresDB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *PostgresDB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Get returns the role record of userID or ErrNotFound
func (r *RoleRepository) Get(ctx context.Context, userID string) (*models.RoleRecord, error) {
	query := `
		SELECT user_id, role, updated_at
		FROM user_roles
		WHERE user_id = $1
	`

	record, err := scanRole(r.db.Pool().QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("role", userID)
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return record, nil
}

// InitIfAbsent writes the default user role unless a record already exists,
// then returns the stored record
func (r *RoleRepository) InitIfAbsent(ctx context.Context, userID string) (*models.RoleRecord, error) {
	query := `
		INSERT INTO user_roles (user_id, role, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`

	if _, err := r.db.Pool().Exec(ctx, query, userID, string(types.RoleUser), time.Now()); err != nil {
		return nil, fmt.Errorf("failed to initialize role: %w", err)
	}
	return r.Get(ctx, userID)
}

// Set stores role for userID, creating the record if needed
func (r *RoleRepository) Set(ctx context.Context, userID string, role types.Role) error {
	query := `
		INSERT INTO user_roles (user_id, role, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			role = EXCLUDED.role,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.Pool().Exec(ctx, query, userID, string(role), time.Now()); err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}
	return nil
}

// Delete removes the role record of userID
func (r *RoleRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return nil
}

// List returns every role record
func (r *RoleRepository) List(ctx context.Context) ([]*models.RoleRecord, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT user_id, role, updated_at FROM user_roles ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var records []*models.RoleRecord
	for rows.Next() {
		record, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanRole(row pgx.Row) (*models.RoleRecord, error) {
	var record models.RoleRecord
	var role string
	if err := row.Scan(&record.UserID, &role, &record.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := types.ParseRole(role)
	if err != nil {
		return nil, err
	}
	record.Role = parsed
	return &record, nil
}
