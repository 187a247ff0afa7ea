package service

import (
	"context"
	"time"

	"github.com/pinpincloud/internal/auth"
	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/types"
)

// AccountService bootstraps sessions and administers users
type AccountService struct {
	roles     *RoleService
	plans     *PlanService
	files     *FileService
	directory DirectoryRepository
	now       func() time.Time
}

// NewAccountService creates a new account service
func NewAccountService(roles *RoleService, plans *PlanService, files *FileService, directory DirectoryRepository) *AccountService {
	return &AccountService{
		roles:     roles,
		plans:     plans,
		files:     files,
		directory: directory,
		now:       time.Now,
	}
}

// Session is what a signed-in client needs to render itself
type Session struct {
	Principal    auth.Principal  `json:"-"`
	UserID       string          `json:"userId"`
	Email        string          `json:"email"`
	DisplayName  string          `json:"displayName"`
	Role         types.Role      `json:"role"`
	Capabilities map[string]bool `json:"capabilities"`
	Plan         *models.Plan    `json:"plan"`
}

// Authenticate resolves the principal of a verified identity
func (s *AccountService) Authenticate(ctx context.Context, identity *auth.Identity) (auth.Principal, error) {
	role, err := s.roles.ResolveRole(ctx, identity.UserID)
	if err != nil {
		return auth.Principal{}, err
	}
	return auth.Principal{
		UserID:      identity.UserID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Role:        role,
	}, nil
}

// Bootstrap ensures the role, plan and directory entry of principal exist
func (s *AccountService) Bootstrap(ctx context.Context, principal auth.Principal) (*Session, error) {
	plan, err := s.plans.EnsurePlan(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entry := &models.DirectoryEntry{
		UserID:      principal.UserID,
		Email:       principal.Email,
		DisplayName: principal.DisplayName,
		CreatedAt:   now,
		LastSeenAt:  now,
	}
	if err := s.directory.Upsert(ctx, entry); err != nil {
		logging.FromContext(ctx).WithField("userId", principal.UserID).WithError(err).Warn("Failed to update user directory")
	}

	return &Session{
		Principal:    principal,
		UserID:       principal.UserID,
		Email:        principal.Email,
		DisplayName:  principal.DisplayName,
		Role:         principal.Role,
		Capabilities: auth.Capabilities(principal.Role),
		Plan:         plan,
	}, nil
}

// ListUsers returns every known user with role and plan
func (s *AccountService) ListUsers(ctx context.Context, actor auth.Principal) ([]*models.AdminUserView, error) {
	if !actor.Can(auth.CapManageUsers) {
		return nil, errors.NewForbiddenError("user management requires admin access")
	}
	users, err := s.directory.ListAdminView(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("list users", err)
	}
	return users, nil
}

// UpdateRole changes the role of target. Changing one's own role is always refused.
func (s *AccountService) UpdateRole(ctx context.Context, actor auth.Principal, targetUserID string, newRole types.Role) error {
	if targetUserID == actor.UserID {
		return errors.NewSelfRoleChangeError()
	}
	if !actor.Can(auth.CapManageUsers) {
		return errors.NewForbiddenError("user management requires admin access")
	}
	if _, err := types.ParseRole(string(newRole)); err != nil {
		return errors.NewInvalidParameterError("role", "must be user, admin or founder")
	}

	current, err := s.roles.ResolveRole(ctx, targetUserID)
	if err != nil {
		return err
	}
	if (newRole == types.RoleFounder || current == types.RoleFounder) && actor.Role != types.RoleFounder {
		return errors.NewForbiddenError("only the founder can grant or revoke the founder role")
	}

	if err := s.roles.setRole(ctx, targetUserID, newRole); err != nil {
		return err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"actor":  actor.UserID,
		"target": targetUserID,
		"from":   current,
		"to":     newRole,
	}).Info("Role updated")
	return nil
}

// DeleteUser removes a user's files, plan, directory entry and role.
// Deleting one's own account is always refused.
func (s *AccountService) DeleteUser(ctx context.Context, actor auth.Principal, targetUserID string) error {
	if targetUserID == actor.UserID {
		return errors.NewSelfDeleteError()
	}
	if !actor.Can(auth.CapPerformCriticalActions) {
		return errors.NewForbiddenError("deleting users requires founder access")
	}

	removed, err := s.files.deleteAllForOwner(ctx, targetUserID)
	if err != nil {
		return err
	}
	if err := s.plans.deletePlan(ctx, targetUserID); err != nil {
		return err
	}
	if err := s.directory.Delete(ctx, targetUserID); err != nil {
		return errors.NewDatabaseError("delete directory entry", err)
	}
	if err := s.roles.deleteRole(ctx, targetUserID); err != nil {
		return err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"actor":        actor.UserID,
		"target":       targetUserID,
		"filesRemoved": removed,
	}).Warn("User deleted")
	return nil
}
