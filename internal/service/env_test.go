package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/pinpincloud/internal/auth"
	"github.com/pinpincloud/internal/events"
	"github.com/pinpincloud/internal/metrics"
	"github.com/pinpincloud/internal/retry"
	"github.com/pinpincloud/internal/types"
)

const testOrigin = "https://pinpin.example"

// testEnv wires every service onto fakes
type testEnv struct {
	roleRepo      *fakeRoleRepo
	planRepo      *fakePlanRepo
	fileRepo      *fakeFileRepo
	keyRepo       *fakeKeyRepo
	maintRepo     *fakeMaintenanceRepo
	directoryRepo *fakeDirectoryRepo
	orphans       *fakeOrphanRepo
	activity      *fakeActivity
	blobs         *fakeBlobStore
	broker        *events.MemoryBroker
	slept         []time.Duration

	roles       *RoleService
	plans       *PlanService
	downloads   *DownloadService
	files       *FileService
	shares      *ShareService
	keys        *KeyService
	maintenance *MaintenanceService
	accounts    *AccountService
	stats       *StatsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	planRepo := newFakePlanRepo()
	env := &testEnv{
		roleRepo:      newFakeRoleRepo(),
		planRepo:      planRepo,
		fileRepo:      newFakeFileRepo(),
		keyRepo:       newFakeKeyRepo(planRepo),
		maintRepo:     &fakeMaintenanceRepo{},
		directoryRepo: newFakeDirectoryRepo(),
		orphans:       &fakeOrphanRepo{},
		activity:      &fakeActivity{},
		blobs:         newFakeBlobStore(),
		broker:        events.NewMemoryBroker(),
	}
	t.Cleanup(func() { _ = env.broker.Close() })

	m := metrics.New(prometheus.NewRegistry())

	policy := retry.DownloadRetryConfig()
	policy.Sleep = func(_ context.Context, d time.Duration) error {
		env.slept = append(env.slept, d)
		return nil
	}

	env.roles = NewRoleService(env.roleRepo, nil)
	env.plans = NewPlanService(env.planRepo)
	env.downloads = NewDownloadService(env.blobs, policy, 0, m)
	env.files = NewFileService(FileServiceConfig{
		Files:     env.fileRepo,
		Plans:     env.plans,
		Blobs:     env.blobs,
		Downloads: env.downloads,
		Orphans:   env.orphans,
		Activity:  env.activity,
		Publisher: env.broker,
		Metrics:   m,
	})
	env.shares = NewShareService(env.fileRepo, env.downloads, env.activity, env.broker, m, testOrigin)
	env.shares.hashCost = bcrypt.MinCost
	env.keys = NewKeyService(env.keyRepo, env.plans, env.activity, m)
	env.maintenance = NewMaintenanceService(env.maintRepo, env.broker)
	env.accounts = NewAccountService(env.roles, env.plans, env.files, env.directoryRepo)
	env.stats = NewStatsService(env.fileRepo, env.planRepo, env.directoryRepo, env.keyRepo, env.activity, nil)
	return env
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func principal(id string, role types.Role) auth.Principal {
	return auth.Principal{UserID: id, Email: id + "@example.com", DisplayName: id, Role: role}
}

// signIn authenticates and bootstraps a user the way the session endpoint does
func (e *testEnv) signIn(t *testing.T, ctx context.Context, id string, role types.Role) auth.Principal {
	t.Helper()
	if role != types.RoleUser {
		e.roleRepo.roles[id] = role
	}
	p, err := e.accounts.Authenticate(ctx, &auth.Identity{UserID: id, Email: id + "@example.com", DisplayName: id})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if _, err := e.accounts.Bootstrap(ctx, p); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	return p
}
