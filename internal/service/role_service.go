package service

import (
	"context"

	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/types"
)

// RoleService resolves and updates authorization tiers
type RoleService struct {
	repo  RoleRepository
	cache RoleCache
}

// NewRoleService creates a new role service. cache may be nil.
func NewRoleService(repo RoleRepository, cache RoleCache) *RoleService {
	return &RoleService{repo: repo, cache: cache}
}

// ResolveRole returns the role of userID, creating a user record on first sight
func (s *RoleService) ResolveRole(ctx context.Context, userID string) (types.Role, error) {
	logger := logging.FromContext(ctx).WithField("userId", userID)

	if s.cache != nil {
		role, found, err := s.cache.GetRole(ctx, userID)
		if err != nil {
			logger.WithError(err).Warn("Role cache read failed")
		} else if found {
			return role, nil
		}
	}

	record, err := s.repo.InitIfAbsent(ctx, userID)
	if err != nil {
		return "", errors.NewDatabaseError("resolve role", err)
	}

	if s.cache != nil {
		if err := s.cache.SetRole(ctx, userID, record.Role); err != nil {
			logger.WithError(err).Warn("Role cache write failed")
		}
	}
	return record.Role, nil
}

// setRole writes role and drops any cached value
func (s *RoleService) setRole(ctx context.Context, userID string, role types.Role) error {
	if err := s.repo.Set(ctx, userID, role); err != nil {
		return errors.NewDatabaseError("update role", err)
	}
	s.invalidate(ctx, userID)
	return nil
}

// deleteRole removes the role record of userID
func (s *RoleService) deleteRole(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return errors.NewDatabaseError("delete role", err)
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *RoleService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRole(ctx, userID); err != nil {
		logging.FromContext(ctx).WithField("userId", userID).WithError(err).Warn("Role cache invalidation failed")
	}
}
