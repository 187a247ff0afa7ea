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

// PlanRepository persists storage plans
type PlanRepository struct {
	db *PostgresDB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *PostgresDB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `user_id, type, storage_limit, storage_used, activated_at, expires_at, key_used`

// Get returns the plan of userID or ErrNotFound
func (r *PlanRepository) Get(ctx context.Context, userID string) (*models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM user_plans WHERE user_id = $1`

	plan, err := scanPlan(r.db.Pool().QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("plan", userID)
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// CreateIfAbsent inserts plan unless the user already has one, then returns the stored plan
func (r *PlanRepository) CreateIfAbsent(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	query := `
		INSERT INTO user_plans (user_id, type, storage_limit, storage_used, activated_at, expires_at, key_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query,
		plan.UserID,
		string(plan.Type),
		plan.StorageLimit,
		plan.StorageUsed,
		plan.ActivatedAt,
		plan.ExpiresAt,
		plan.KeyUsed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	return r.Get(ctx, plan.UserID)
}

// activatePlan switches the plan tier, keeping the recorded usage
func activatePlan(ctx context.Context, q DBTX, plan *models.Plan) error {
	query := `
		INSERT INTO user_plans (user_id, type, storage_limit, storage_used, activated_at, expires_at, key_used)
		VALUES ($1, $2, $3, 0, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			type = EXCLUDED.type,
			storage_limit = EXCLUDED.storage_limit,
			activated_at = EXCLUDED.activated_at,
			expires_at = EXCLUDED.expires_at,
			key_used = EXCLUDED.key_used
	`

	_, err := q.Exec(ctx, query,
		plan.UserID,
		string(plan.Type),
		plan.StorageLimit,
		plan.ActivatedAt,
		plan.ExpiresAt,
		plan.KeyUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to activate plan: %w", err)
	}
	return nil
}

// AdjustUsage adds delta to storage_used, clamping at zero
func (r *PlanRepository) AdjustUsage(ctx context.Context, userID string, delta int64) error {
	query := `
		UPDATE user_plans
		SET storage_used = GREATEST(storage_used + $2, 0)
		WHERE user_id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query, userID, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("plan", userID)
	}
	return nil
}

// DowngradeExpired moves every premium plan whose expiry passed before now
// back to the free tier and returns how many were changed
func (r *PlanRepository) DowngradeExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE user_plans
		SET type = $1, storage_limit = $2, expires_at = NULL, activated_at = $3
		WHERE type = $4 AND expires_at IS NOT NULL AND expires_at < $3
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		string(types.PlanFree),
		models.FreeStorageLimit,
		now,
		string(types.PlanPremium),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to downgrade expired plans: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReconcileUsage resets storage_used to the sum of each owner's file sizes
// where the two disagree
func (r *PlanRepository) ReconcileUsage(ctx context.Context) (int64, error) {
	query := `
		UPDATE user_plans p
		SET storage_used = COALESCE(f.total, 0)
		FROM (
			SELECT up.user_id, SUM(fl.size_bytes) AS total
			FROM user_plans up
			LEFT JOIN files fl ON fl.owner_id = up.user_id
			GROUP BY up.user_id
		) f
		WHERE p.user_id = f.user_id AND p.storage_used <> COALESCE(f.total, 0)
	`

	tag, err := r.db.Pool().Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile usage: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes the plan of userID
func (r *PlanRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM user_plans WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	return nil
}

// CountByType returns the number of plans per tier
func (r *PlanRepository) CountByType(ctx context.Context) (map[types.PlanType]int, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT type, COUNT(*) FROM user_plans GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count plans: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.PlanType]int)
	for rows.Next() {
		var planType string
		var count int
		if err := rows.Scan(&planType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan plan count: %w", err)
		}
		counts[types.PlanType(planType)] = count
	}
	return counts, rows.Err()
}

func scanPlan(row pgx.Row) (*models.Plan, error) {
	var plan models.Plan
	var planType string
	err := row.Scan(
		&plan.UserID,
		&planType,
		&plan.StorageLimit,
		&plan.StorageUsed,
		&plan.ActivatedAt,
		&plan.ExpiresAt,
		&plan.KeyUsed,
	)
	if err != nil {
		return nil, err
	}
	if plan.Type, err = types.ParsePlanType(planType); err != nil {
		return nil, err
	}
	return &plan, nil
}
