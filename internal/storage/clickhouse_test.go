package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpincloud/internal/config"
	"github.com/pinpincloud/internal/models"
)

func TestActivityRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, err := NewClickHouseDB(&config.ClickHouseConfig{
		Host:     "localhost",
		Port:     "9000",
		Database: "pinpincloud",
		User:     "default",
		Password: "clickhouse_dev_password",
	})
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := testContext(t)
	require.NoError(t, RunClickHouseMigrations(ctx, db, "../../migrations/clickhouse"))

	repo := NewActivityRepository(db)
	userID := "test-" + uuid.NewString()
	require.NoError(t, repo.Record(ctx, &models.Activity{
		Kind:       models.ActivityUpload,
		UserID:     userID,
		FileID:     uuid.NewString(),
		Bytes:      1024,
		OccurredAt: time.Now().UTC(),
	}))

	counts, err := repo.DailyCounts(ctx, models.ActivityUpload, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, counts)
}

func TestNoopActivityRepository(t *testing.T) {
	var repo NoopActivityRepository
	ctx := testContext(t)

	assert.NoError(t, repo.Record(ctx, &models.Activity{Kind: models.ActivityDelete}))
	counts, err := repo.DailyCounts(ctx, models.ActivityUpload, time.Now())
	assert.NoError(t, err)
	assert.Empty(t, counts)
}
