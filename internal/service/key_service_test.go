package service

import (
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/types"
)

var keyPattern = regexp.MustCompile(`^PINPIN-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

func TestGenerate_FounderOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	for _, role := range []types.Role{types.RoleUser, types.RoleAdmin} {
		_, err := env.keys.Generate(ctx, principal("x", role), &GenerateKeyInput{Type: types.KeyLifetime})
		assert.Equal(t, 403, errors.GetHTTPStatusCode(err), role)
	}
	assert.Zero(t, env.keyRepo.count())
}

func TestGenerate_KeyShapeAndExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.keys.now = func() time.Time { return now }
	founder := principal("boss", types.RoleFounder)

	tests := []struct {
		keyType types.KeyType
		expiry  *time.Duration
	}{
		{types.KeyMonthly, durationPtr(30 * 24 * time.Hour)},
		{types.KeyYearly, durationPtr(365 * 24 * time.Hour)},
		{types.KeyLifetime, nil},
	}

	for _, tt := range tests {
		key, err := env.keys.Generate(ctx, founder, &GenerateKeyInput{Type: tt.keyType, MaxEmojis: 3})
		require.NoError(t, err)
		assert.Regexp(t, keyPattern, key.Key)
		assert.Equal(t, types.KeyUnused, key.Status)
		assert.True(t, key.IsActive)
		assert.Equal(t, "boss", key.CreatedBy)
		assert.Equal(t, 3, key.MaxEmojis)
		if tt.expiry == nil {
			assert.Nil(t, key.ExpiresAt)
		} else {
			require.NotNil(t, key.ExpiresAt)
			assert.Equal(t, now.Add(*tt.expiry), *key.ExpiresAt)
		}
	}
}

func TestGenerate_RejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.keys.Generate(testContext(t), principal("boss", types.RoleFounder), &GenerateKeyInput{Type: "weekly"})
	assert.True(t, errors.HasCode(err, "INVALID_PARAMETER"))
}

func seedKey(env *testEnv, code string, mutate func(*models.PremiumKey)) {
	key := &models.PremiumKey{
		Key:       code,
		Type:      types.KeyLifetime,
		Status:    types.KeyUnused,
		IsActive:  true,
		CreatedAt: time.Now(),
		CreatedBy: "boss",
	}
	if mutate != nil {
		mutate(key)
	}
	env.keyRepo.keys[code] = key
}

func TestRedeem_Classification(t *testing.T) {
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name   string
		code   string
		mutate func(*models.PremiumKey)
		want   string
	}{
		{"unknown key", "PINPIN-NOPE-NOPE-NOPE", nil, "KEY_INVALID"},
		{"used key", "PINPIN-USED-0000-0000", func(k *models.PremiumKey) { k.Status = types.KeyUsed }, "KEY_ALREADY_USED"},
		{"inactive key", "PINPIN-OFF0-0000-0000", func(k *models.PremiumKey) { k.IsActive = false }, "KEY_INACTIVE"},
		{"expired key", "PINPIN-OLD0-0000-0000", func(k *models.PremiumKey) { k.ExpiresAt = &past }, "KEY_EXPIRED"},
		{"used wins over expired", "PINPIN-BOTH-0000-0000", func(k *models.PremiumKey) {
			k.Status = types.KeyUsed
			k.ExpiresAt = &past
		}, "KEY_ALREADY_USED"},
		{"inactive wins over expired", "PINPIN-BOTH-1111-1111", func(k *models.PremiumKey) {
			k.IsActive = false
			k.ExpiresAt = &past
		}, "KEY_INACTIVE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := testContext(t)
			user := env.signIn(t, ctx, "alice", types.RoleUser)
			if tt.code != "PINPIN-NOPE-NOPE-NOPE" {
				seedKey(env, tt.code, tt.mutate)
			}

			_, err := env.keys.Redeem(ctx, user, tt.code)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.want), "got %v", err)
			assert.Equal(t, types.PlanFree, env.planRepo.plans["alice"].Type)
		})
	}
}

func TestRedeem_LifetimeKeyGivesUnlimitedPlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)
	user := env.signIn(t, ctx, "alice", types.RoleUser)
	key, err := env.keys.Generate(ctx, principal("boss", types.RoleFounder), &GenerateKeyInput{Type: types.KeyLifetime})
	require.NoError(t, err)

	plan, err := env.keys.Redeem(ctx, user, " "+key.Key+" ")
	require.NoError(t, err)
	assert.Equal(t, types.PlanLifetime, plan.Type)
	assert.Nil(t, plan.StorageLimit)
	assert.Nil(t, plan.ExpiresAt)
	require.NotNil(t, plan.KeyUsed)
	assert.Equal(t, key.Key, *plan.KeyUsed)

	stored := env.keyRepo.keys[key.Key]
	assert.Equal(t, types.KeyUsed, stored.Status)
	assert.Equal(t, "alice", *stored.UsedBy)

	_, err = env.keys.Redeem(ctx, user, key.Key)
	assert.True(t, errors.HasCode(err, "KEY_ALREADY_USED"))
}

func TestRedeem_MonthlyKeyExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	env.plans.now = func() time.Time { return now }
	env.keys.now = func() time.Time { return now }
	user := env.signIn(t, ctx, "alice", types.RoleUser)
	seedKey(env, "PINPIN-MNTH-0000-0000", func(k *models.PremiumKey) { k.Type = types.KeyMonthly })

	plan, err := env.keys.Redeem(ctx, user, "PINPIN-MNTH-0000-0000")
	require.NoError(t, err)
	assert.Equal(t, types.PlanPremium, plan.Type)
	assert.Nil(t, plan.StorageLimit)
	require.NotNil(t, plan.ExpiresAt)
	assert.Equal(t, now.Add(30*24*time.Hour), *plan.ExpiresAt)
}

func TestRedeem_MonthlyAfterLifetimeKeepsLifetime(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)
	user := env.signIn(t, ctx, "alice", types.RoleUser)
	seedKey(env, "PINPIN-LIFE-0000-0000", nil)
	seedKey(env, "PINPIN-MNTH-0000-0000", func(k *models.PremiumKey) { k.Type = types.KeyMonthly })

	_, err := env.keys.Redeem(ctx, user, "PINPIN-LIFE-0000-0000")
	require.NoError(t, err)

	plan, err := env.keys.Redeem(ctx, user, "PINPIN-MNTH-0000-0000")
	require.NoError(t, err)
	assert.Equal(t, types.PlanLifetime, plan.Type)
	assert.Nil(t, plan.ExpiresAt)
	assert.Nil(t, plan.StorageLimit)
	assert.Equal(t, types.KeyUsed, env.keyRepo.keys["PINPIN-MNTH-0000-0000"].Status)
}

func TestRedeem_SecondMonthlyKeyExtendsExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	env.keys.now = func() time.Time { return now }
	user := env.signIn(t, ctx, "alice", types.RoleUser)
	seedKey(env, "PINPIN-MNTH-0000-0001", func(k *models.PremiumKey) { k.Type = types.KeyMonthly })
	seedKey(env, "PINPIN-MNTH-0000-0002", func(k *models.PremiumKey) { k.Type = types.KeyMonthly })

	_, err := env.keys.Redeem(ctx, user, "PINPIN-MNTH-0000-0001")
	require.NoError(t, err)

	now = now.Add(5 * 24 * time.Hour)
	plan, err := env.keys.Redeem(ctx, user, "PINPIN-MNTH-0000-0002")
	require.NoError(t, err)
	assert.Equal(t, types.PlanPremium, plan.Type)
	require.NotNil(t, plan.ExpiresAt)
	assert.Equal(t, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC), *plan.ExpiresAt)
}

func TestRedeem_FailedPlanWriteKeepsKeyUnused(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)
	user := env.signIn(t, ctx, "alice", types.RoleUser)
	seedKey(env, "PINPIN-FAIL-0000-0000", nil)
	env.keyRepo.planErr = fmt.Errorf("connection reset")

	_, err := env.keys.Redeem(ctx, user, "PINPIN-FAIL-0000-0000")
	require.Error(t, err)
	assert.Equal(t, 500, errors.GetHTTPStatusCode(err))
	assert.Equal(t, types.KeyUnused, env.keyRepo.keys["PINPIN-FAIL-0000-0000"].Status)
	assert.Equal(t, types.PlanFree, env.planRepo.plans["alice"].Type)

	env.keyRepo.planErr = nil
	plan, err := env.keys.Redeem(ctx, user, "PINPIN-FAIL-0000-0000")
	require.NoError(t, err)
	assert.Equal(t, types.PlanLifetime, plan.Type)
}

func TestRedeem_ConcurrentRedemptionsSucceedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)
	seedKey(env, "PINPIN-RACE-0000-0000", nil)

	const racers = 8
	users := make([]string, racers)
	for i := range users {
		users[i] = string(rune('a' + i))
		env.planRepo.plans[users[i]] = models.NewFreePlan(users[i], time.Now())
	}

	var wg sync.WaitGroup
	results := make(chan error, racers)
	for _, id := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.keys.Redeem(ctx, principal(id, types.RoleUser), "PINPIN-RACE-0000-0000")
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	var ok, used int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.HasCode(err, "KEY_ALREADY_USED"):
			used++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, racers-1, used)
}

func TestKeyLedgerAdministration(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)
	founder := principal("boss", types.RoleFounder)
	admin := principal("adm", types.RoleAdmin)
	seedKey(env, "PINPIN-AAAA-0000-0000", nil)
	seedKey(env, "PINPIN-BBBB-0000-0000", func(k *models.PremiumKey) { k.Status = types.KeyUsed })

	_, err := env.keys.List(ctx, admin)
	assert.Equal(t, 403, errors.GetHTTPStatusCode(err))

	keys, err := env.keys.List(ctx, founder)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	stats, err := env.keys.Stats(ctx, founder)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStats{Total: 2, Used: 1, Unused: 1}, stats)

	require.NoError(t, env.keys.Delete(ctx, founder, "PINPIN-AAAA-0000-0000"))
	assert.Equal(t, 404, errors.GetHTTPStatusCode(env.keys.Delete(ctx, founder, "PINPIN-AAAA-0000-0000")))
}

func durationPtr(d time.Duration) *time.Duration { return &d }
