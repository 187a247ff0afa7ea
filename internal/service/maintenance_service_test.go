package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/types"
)

func TestMaintenanceGet_Defaults(t *testing.T) {
	env := newTestEnv(t)

	record, err := env.maintenance.Get(testContext(t))
	require.NoError(t, err)
	assert.False(t, record.Enabled)
	assert.Equal(t, types.MaintenanceFullscreen, record.Mode)
	assert.Equal(t, "The system is currently under maintenance. Please try again later.", record.Message)
}

func TestMaintenanceUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	_, err := env.maintenance.Update(ctx, principal("adm", types.RoleAdmin), &UpdateMaintenanceInput{Enabled: true})
	assert.Equal(t, 403, errors.GetHTTPStatusCode(err))
	assert.Zero(t, env.maintRepo.count())

	founder := principal("boss", types.RoleFounder)
	_, err = env.maintenance.Update(ctx, founder, &UpdateMaintenanceInput{Enabled: true, Mode: "popup"})
	assert.True(t, errors.HasCode(err, "INVALID_PARAMETER"))

	record, err := env.maintenance.Update(ctx, founder, &UpdateMaintenanceInput{Enabled: true, Mode: "banner", Message: "Back soon"})
	require.NoError(t, err)
	assert.True(t, record.Enabled)
	assert.Equal(t, types.MaintenanceBanner, record.Mode)
	assert.Equal(t, "boss", record.UpdatedBy)

	got, err := env.maintenance.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Back soon", got.Message)
}

func TestMaintenanceSubscribe(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	sub, err := env.maintenance.Subscribe(ctx)
	require.NoError(t, err)

	first := <-sub.Updates()
	assert.False(t, first.Enabled)

	founder := principal("boss", types.RoleFounder)
	_, err = env.maintenance.Update(ctx, founder, &UpdateMaintenanceInput{Enabled: true, Mode: "modal"})
	require.NoError(t, err)

	select {
	case update := <-sub.Updates():
		assert.True(t, update.Enabled)
		assert.Equal(t, types.MaintenanceModal, update.Mode)
	case <-time.After(2 * time.Second):
		t.Fatal("no maintenance update received")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	_, open := <-sub.Updates()
	assert.False(t, open)
}

func TestGate(t *testing.T) {
	on := models.Maintenance{Enabled: true, Message: "down", Mode: types.MaintenanceBanner}
	off := models.DefaultMaintenance()

	assert.NoError(t, Gate(types.RoleUser, off))
	assert.NoError(t, Gate(types.RoleAdmin, on))
	assert.NoError(t, Gate(types.RoleFounder, on))

	err := Gate(types.RoleUser, on)
	require.Error(t, err)
	cat := errors.Categorize(err)
	assert.Equal(t, 503, cat.StatusCode)
	assert.Equal(t, "down", cat.Message)
	assert.Equal(t, types.MaintenanceBanner, cat.Details["mode"])
}
