package api

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pinpincloud/internal/auth"
	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/service"
	"github.com/pinpincloud/internal/storage"
	"github.com/pinpincloud/internal/types"
)

// Mock services for testing

type mockAccountService struct {
	mu    sync.Mutex
	roles map[string]types.Role

	updateRoleFunc func(ctx context.Context, actor auth.Principal, targetUserID string, newRole types.Role) error
	deleteUserFunc func(ctx context.Context, actor auth.Principal, targetUserID string) error
}

func (m *mockAccountService) Authenticate(ctx context.Context, identity *auth.Identity) (auth.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[identity.UserID]
	if !ok {
		role = types.RoleUser
	}
	return auth.Principal{
		UserID:      identity.UserID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Role:        role,
	}, nil
}

func (m *mockAccountService) Bootstrap(ctx context.Context, principal auth.Principal) (*service.Session, error) {
	return &service.Session{
		Principal:    principal,
		UserID:       principal.UserID,
		Email:        principal.Email,
		DisplayName:  principal.DisplayName,
		Role:         principal.Role,
		Capabilities: auth.Capabilities(principal.Role),
		Plan:         models.NewFreePlan(principal.UserID, time.Now()),
	}, nil
}

func (m *mockAccountService) ListUsers(ctx context.Context, actor auth.Principal) ([]*models.AdminUserView, error) {
	if !actor.Can(auth.CapManageUsers) {
		return nil, errors.NewForbiddenError("user management requires admin access")
	}
	return []*models.AdminUserView{{UserID: "alice", Role: types.RoleUser, Plan: types.PlanFree}}, nil
}

func (m *mockAccountService) UpdateRole(ctx context.Context, actor auth.Principal, targetUserID string, newRole types.Role) error {
	if m.updateRoleFunc != nil {
		return m.updateRoleFunc(ctx, actor, targetUserID, newRole)
	}
	return nil
}

func (m *mockAccountService) DeleteUser(ctx context.Context, actor auth.Principal, targetUserID string) error {
	if m.deleteUserFunc != nil {
		return m.deleteUserFunc(ctx, actor, targetUserID)
	}
	return nil
}

type mockFileService struct {
	mu       sync.Mutex
	uploaded []*service.UploadInput
	bodies   []string

	listFunc     func(ctx context.Context, ownerID string) ([]*models.File, error)
	downloadFunc func(ctx context.Context, ownerID, id string) (*models.File, *service.DownloadResult, error)
	deleteFunc   func(ctx context.Context, ownerID, id string) error
}

func (m *mockFileService) Upload(ctx context.Context, input *service.UploadInput) (*models.File, error) {
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.uploaded = append(m.uploaded, input)
	m.bodies = append(m.bodies, string(body))
	m.mu.Unlock()

	return &models.File{
		ID:        "file-1",
		OwnerID:   input.OwnerID,
		Name:      input.Name,
		SizeBytes: input.Size,
		SizeLabel: models.FormatSize(input.Size),
	}, nil
}

func (m *mockFileService) List(ctx context.Context, ownerID string) ([]*models.File, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, ownerID)
	}
	return []*models.File{}, nil
}

func (m *mockFileService) Download(ctx context.Context, ownerID, id string) (*models.File, *service.DownloadResult, error) {
	if m.downloadFunc != nil {
		return m.downloadFunc(ctx, ownerID, id)
	}
	return nil, nil, errors.NewNotFoundError("file", id)
}

func (m *mockFileService) Delete(ctx context.Context, ownerID, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, ownerID, id)
	}
	return nil
}

type mockShareService struct {
	files     map[string]*models.File
	passwords map[string]string
}

func (m *mockShareService) CreateShare(ctx context.Context, ownerID, fileID string, mode types.ShareMode, password string) (string, error) {
	if mode == types.ShareModePassword && len(password) < service.MinSharePasswordLength {
		return "", errors.NewSharePasswordTooShortError(service.MinSharePasswordLength)
	}
	return "https://pinpin.example/share/" + fileID, nil
}

func (m *mockShareService) RemoveShare(ctx context.Context, ownerID, fileID string) error {
	return nil
}

func (m *mockShareService) ResolveShare(ctx context.Context, fileID string, password *string) (*models.File, error) {
	file, ok := m.files[fileID]
	if !ok {
		return nil, errors.NewNotFoundError("share", fileID)
	}
	if want, ok := m.passwords[fileID]; ok {
		if password == nil {
			return nil, errors.NewSharePasswordRequiredError()
		}
		if *password != want {
			return nil, errors.NewSharePasswordInvalidError()
		}
	}
	return file, nil
}

func (m *mockShareService) DownloadShared(ctx context.Context, fileID string, password *string) (*models.File, *service.DownloadResult, error) {
	file, err := m.ResolveShare(ctx, fileID, password)
	if err != nil {
		return nil, nil, err
	}
	return file, &service.DownloadResult{Data: []byte("shared contents"), Attempts: 1}, nil
}

type mockPlanService struct {
	plans map[string]*models.Plan
}

func (m *mockPlanService) GetPlan(ctx context.Context, userID string) (*models.Plan, error) {
	if plan, ok := m.plans[userID]; ok {
		return plan, nil
	}
	return nil, errors.NewNotFoundError("plan", userID)
}

type mockKeyService struct {
	redeemed []string
}

func (m *mockKeyService) Generate(ctx context.Context, actor auth.Principal, input *service.GenerateKeyInput) (*models.PremiumKey, error) {
	if !actor.Can(auth.CapCreateKeys) {
		return nil, errors.NewForbiddenError("only the founder can generate keys")
	}
	return &models.PremiumKey{Key: "PINPIN-ABCD-EFGH-JKLM", Type: input.Type, Status: types.KeyUnused, IsActive: true}, nil
}

func (m *mockKeyService) Redeem(ctx context.Context, actor auth.Principal, code string) (*models.Plan, error) {
	if code != "PINPIN-ABCD-EFGH-JKLM" {
		return nil, errors.NewKeyInvalidError()
	}
	m.redeemed = append(m.redeemed, actor.UserID)
	return &models.Plan{UserID: actor.UserID, Type: types.PlanLifetime}, nil
}

func (m *mockKeyService) List(ctx context.Context, actor auth.Principal) ([]*models.PremiumKey, error) {
	if !actor.Can(auth.CapManageKeys) {
		return nil, errors.NewForbiddenError("only the founder can manage keys")
	}
	return []*models.PremiumKey{}, nil
}

func (m *mockKeyService) Delete(ctx context.Context, actor auth.Principal, code string) error {
	if !actor.Can(auth.CapManageKeys) {
		return errors.NewForbiddenError("only the founder can manage keys")
	}
	return nil
}

func (m *mockKeyService) Stats(ctx context.Context, actor auth.Principal) (models.KeyStats, error) {
	return models.KeyStats{Total: 2, Used: 1, Unused: 1}, nil
}

type mockStatsService struct{}

func (mockStatsService) UserStats(ctx context.Context, ownerID string) (*models.UserStats, error) {
	return &models.UserStats{Plan: types.PlanFree, FileTypes: map[string]int{}}, nil
}

func (mockStatsService) AdminStats(ctx context.Context, actor auth.Principal) (*models.AdminStats, error) {
	if !actor.Can(auth.CapViewStats) {
		return nil, errors.NewForbiddenError("stats require admin access")
	}
	return &models.AdminStats{TotalUsers: 3}, nil
}

// memoryMaintenanceRepo backs a real MaintenanceService
type memoryMaintenanceRepo struct {
	mu     sync.Mutex
	record *models.Maintenance
}

func (m *memoryMaintenanceRepo) Get(ctx context.Context) (*models.Maintenance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return nil, fmt.Errorf("maintenance: %w", storage.ErrNotFound)
	}
	cp := *m.record
	return &cp, nil
}

func (m *memoryMaintenanceRepo) Put(ctx context.Context, record *models.Maintenance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.record = &cp
	return nil
}

type mockShareLimiter struct {
	allow bool
	wait  time.Duration
	err   error
	seen  []string
}

func (m *mockShareLimiter) Allow(ctx context.Context, subject string) (bool, time.Duration, error) {
	m.seen = append(m.seen, subject)
	return m.allow, m.wait, m.err
}
