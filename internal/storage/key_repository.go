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

// ErrKeyNotRedeemable is returned by Redeem when the key is no longer unused
var ErrKeyNotRedeemable = errors.New("key is not redeemable")

// KeyRepository persists the premium key ledger
type KeyRepository struct {
	db *PostgresDB
}

// NewKeyRepository creates a new key repository
func NewKeyRepository(db *PostgresDB) *KeyRepository {
	return &KeyRepository{db: db}
}

const keyColumns = `key, type, status, max_emojis, is_active, created_at, created_by,
	expires_at, assigned_to, assigned_email, used_by, used_at`

// Create inserts a new key
func (r *KeyRepository) Create(ctx context.Context, key *models.PremiumKey) error {
	query := `
		INSERT INTO premium_keys (` + keyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		key.Key,
		string(key.Type),
		string(key.Status),
		key.MaxEmojis,
		key.IsActive,
		key.CreatedAt,
		key.CreatedBy,
		key.ExpiresAt,
		key.AssignedTo,
		key.AssignedEmail,
		key.UsedBy,
		key.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}
	return nil
}

// Get returns the key or ErrNotFound
func (r *KeyRepository) Get(ctx context.Context, code string) (*models.PremiumKey, error) {
	query := `SELECT ` + keyColumns + ` FROM premium_keys WHERE key = $1`

	key, err := scanKey(r.db.Pool().QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("key", code)
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return key, nil
}

// Redeem marks an unused key used by userID and stores the plan grant
// derives from the user's current plan (nil when none), in one transaction.
// It returns ErrKeyNotRedeemable when another redemption won.
func (r *KeyRepository) Redeem(ctx context.Context, code, userID, email string, at time.Time, grant func(current *models.Plan) *models.Plan) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := markKeyUsed(ctx, tx, code, userID, email, at); err != nil {
			return err
		}

		current, err := scanPlan(tx.QueryRow(ctx,
			`SELECT `+planColumns+` FROM user_plans WHERE user_id = $1 FOR UPDATE`, userID))
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("failed to lock plan: %w", err)
			}
			current = nil
		}

		return activatePlan(ctx, tx, grant(current))
	})
}

func markKeyUsed(ctx context.Context, q DBTX, code, userID, email string, at time.Time) error {
	query := `
		UPDATE premium_keys
		SET status = $2, used_by = $3, used_at = $4, assigned_to = $3, assigned_email = $5
		WHERE key = $1 AND status = $6
	`

	tag, err := q.Exec(ctx, query,
		code,
		string(types.KeyUsed),
		userID,
		at,
		email,
		string(types.KeyUnused),
	)
	if err != nil {
		return fmt.Errorf("failed to mark key used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotRedeemable
	}
	return nil
}

// List returns every key, newest first
func (r *KeyRepository) List(ctx context.Context) ([]*models.PremiumKey, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT `+keyColumns+` FROM premium_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*models.PremiumKey, 0)
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Delete removes a key
func (r *KeyRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM premium_keys WHERE key = $1`, code)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("key", code)
	}
	return nil
}

// Stats counts keys by status
func (r *KeyRepository) Stats(ctx context.Context) (models.KeyStats, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $1)
		FROM premium_keys
	`

	var stats models.KeyStats
	if err := r.db.Pool().QueryRow(ctx, query, string(types.KeyUsed)).Scan(&stats.Total, &stats.Used); err != nil {
		return models.KeyStats{}, fmt.Errorf("failed to count keys: %w", err)
	}
	stats.Unused = stats.Total - stats.Used
	return stats, nil
}

func scanKey(row pgx.Row) (*models.PremiumKey, error) {
	var key models.PremiumKey
	var keyType, status string
	err := row.Scan(
		&key.Key,
		&keyType,
		&status,
		&key.MaxEmojis,
		&key.IsActive,
		&key.CreatedAt,
		&key.CreatedBy,
		&key.ExpiresAt,
		&key.AssignedTo,
		&key.AssignedEmail,
		&key.UsedBy,
		&key.UsedAt,
	)
	if err != nil {
		return nil, err
	}
	if key.Type, err = types.ParseKeyType(keyType); err != nil {
		return nil, err
	}
	key.Status = types.KeyStatus(status)
	return &key, nil
}
