package service

import (
	"context"
	"time"

	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/types"
)

const (
	monthlyPlanDuration = 30 * 24 * time.Hour
	yearlyPlanDuration  = 365 * 24 * time.Hour
)

// PlanService manages storage plans and quota
type PlanService struct {
	repo PlanRepository
	now  func() time.Time
}

// NewPlanService creates a new plan service
func NewPlanService(repo PlanRepository) *PlanService {
	return &PlanService{repo: repo, now: time.Now}
}

// EnsurePlan returns the plan of userID, creating the free plan on first sign-in
func (s *PlanService) EnsurePlan(ctx context.Context, userID string) (*models.Plan, error) {
	plan, err := s.repo.CreateIfAbsent(ctx, models.NewFreePlan(userID, s.now()))
	if err != nil {
		return nil, errors.NewDatabaseError("ensure plan", err)
	}
	return plan, nil
}

// GetPlan returns the plan of userID
func (s *PlanService) GetPlan(ctx context.Context, userID string) (*models.Plan, error) {
	plan, err := s.repo.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NewNotFoundError("plan", userID)
		}
		return nil, errors.NewDatabaseError("get plan", err)
	}
	return plan, nil
}

// PlanForKey returns the plan a key of keyType grants when redeemed at now
// on top of current, which is nil when the user has no plan yet. A lifetime
// plan is never downgraded, and premium time is added after any unexpired
// premium time already held.
func PlanForKey(userID string, keyType types.KeyType, keyCode string, now time.Time, current *models.Plan) *models.Plan {
	plan := &models.Plan{
		UserID:      userID,
		ActivatedAt: now,
		KeyUsed:     &keyCode,
	}

	if current != nil && current.Type == types.PlanLifetime {
		plan.Type = types.PlanLifetime
		plan.ActivatedAt = current.ActivatedAt
		return plan
	}

	start := now
	if current != nil && current.Type == types.PlanPremium && current.ExpiresAt != nil && current.ExpiresAt.After(now) {
		start = *current.ExpiresAt
	}

	switch keyType {
	case types.KeyLifetime:
		plan.Type = types.PlanLifetime
	case types.KeyMonthly:
		plan.Type = types.PlanPremium
		expires := start.Add(monthlyPlanDuration)
		plan.ExpiresAt = &expires
	case types.KeyYearly:
		plan.Type = types.PlanPremium
		expires := start.Add(yearlyPlanDuration)
		plan.ExpiresAt = &expires
	}
	return plan
}

// CheckQuota rejects an upload of size bytes that would overflow a finite plan
func (s *PlanService) CheckQuota(ctx context.Context, userID string, size int64) error {
	plan, err := s.EnsurePlan(ctx, userID)
	if err != nil {
		return err
	}
	if !plan.Fits(size) {
		return errors.NewQuotaExceededError(plan.StorageUsed, size, *plan.StorageLimit)
	}
	return nil
}

// AdjustUsage adds delta bytes to the recorded usage of userID
func (s *PlanService) AdjustUsage(ctx context.Context, userID string, delta int64) error {
	if err := s.repo.AdjustUsage(ctx, userID, delta); err != nil {
		if isNotFound(err) {
			return errors.NewNotFoundError("plan", userID)
		}
		return errors.NewDatabaseError("adjust usage", err)
	}
	return nil
}

// deletePlan removes the plan of userID
func (s *PlanService) deletePlan(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return errors.NewDatabaseError("delete plan", err)
	}
	return nil
}
