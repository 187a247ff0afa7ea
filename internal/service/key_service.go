package service

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/pinpincloud/internal/auth"
	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/metrics"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/storage"
	"github.com/pinpincloud/internal/types"
)

const (
	keyPrefix   = "PINPIN"
	keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyGroups   = 3
	keyGroupLen = 4

	monthlyKeyValidity = 30 * 24 * time.Hour
	yearlyKeyValidity  = 365 * 24 * time.Hour
)

// KeyService manages the premium key ledger
type KeyService struct {
	keys     KeyRepository
	plans    *PlanService
	activity ActivityRecorder
	metrics  *metrics.Metrics
	random   io.Reader
	now      func() time.Time
}

// NewKeyService creates a new key service
func NewKeyService(keys KeyRepository, plans *PlanService, activity ActivityRecorder, m *metrics.Metrics) *KeyService {
	return &KeyService{
		keys:     keys,
		plans:    plans,
		activity: activity,
		metrics:  m,
		random:   rand.Reader,
		now:      time.Now,
	}
}

// GenerateKeyInput describes a key to mint
type GenerateKeyInput struct {
	Type      types.KeyType `json:"type"`
	MaxEmojis int           `json:"maxEmojis"`
}

// Generate mints and stores a new unused key
func (s *KeyService) Generate(ctx context.Context, actor auth.Principal, input *GenerateKeyInput) (*models.PremiumKey, error) {
	if !actor.Can(auth.CapCreateKeys) {
		return nil, errors.NewForbiddenError("only the founder can create premium keys")
	}
	if _, err := types.ParseKeyType(string(input.Type)); err != nil {
		return nil, errors.NewInvalidParameterError("type", "must be monthly, yearly or lifetime")
	}
	if input.MaxEmojis < 0 {
		return nil, errors.NewInvalidParameterError("maxEmojis", "must not be negative")
	}

	code, err := s.newCode()
	if err != nil {
		return nil, errors.NewInternalError("failed to generate key", err)
	}

	now := s.now()
	key := &models.PremiumKey{
		Key:       code,
		Type:      input.Type,
		Status:    types.KeyUnused,
		MaxEmojis: input.MaxEmojis,
		IsActive:  true,
		CreatedAt: now,
		CreatedBy: actor.UserID,
		ExpiresAt: keyExpiry(input.Type, now),
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, errors.NewDatabaseError("create key", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"type":      key.Type,
		"createdBy": actor.UserID,
	}).Info("Premium key generated")
	return key, nil
}

// keyExpiry returns the end of the redemption window of a key created at now
func keyExpiry(keyType types.KeyType, now time.Time) *time.Time {
	var expires time.Time
	switch keyType {
	case types.KeyMonthly:
		expires = now.Add(monthlyKeyValidity)
	case types.KeyYearly:
		expires = now.Add(yearlyKeyValidity)
	case types.KeyLifetime:
		return nil
	default:
		return nil
	}
	return &expires
}

// newCode draws PINPIN-XXXX-XXXX-XXXX from the key alphabet
func (s *KeyService) newCode() (string, error) {
	var b strings.Builder
	b.WriteString(keyPrefix)
	alphabetSize := big.NewInt(int64(len(keyAlphabet)))
	for g := 0; g < keyGroups; g++ {
		b.WriteByte('-')
		for i := 0; i < keyGroupLen; i++ {
			n, err := rand.Int(s.random, alphabetSize)
			if err != nil {
				return "", fmt.Errorf("failed to read random: %w", err)
			}
			b.WriteByte(keyAlphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

// Redeem marks a key used by actor and upgrades their plan.
// Failures are classified in order: invalid, already used, inactive, expired.
func (s *KeyService) Redeem(ctx context.Context, actor auth.Principal, code string) (*models.Plan, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	logger := logging.FromContext(ctx).WithField("userId", actor.UserID)

	plan, err := s.redeem(ctx, actor, code)
	if err != nil {
		outcome := "error"
		if catErr := errors.Categorize(err); catErr != nil {
			outcome = catErr.Code
		}
		s.metrics.Redemption(outcome)
		logger.WithField("outcome", outcome).Warn("Key redemption rejected")
		return nil, err
	}

	s.metrics.Redemption("ok")
	recordActivity(ctx, s.activity, &models.Activity{
		Kind:       models.ActivityRedeem,
		UserID:     actor.UserID,
		OccurredAt: s.now().UTC(),
	})
	logger.WithField("plan", plan.Type).Info("Premium key redeemed")
	return plan, nil
}

func (s *KeyService) redeem(ctx context.Context, actor auth.Principal, code string) (*models.Plan, error) {
	if code == "" {
		return nil, errors.NewKeyInvalidError()
	}

	key, err := s.keys.Get(ctx, code)
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NewKeyInvalidError()
		}
		return nil, errors.NewDatabaseError("get key", err)
	}

	now := s.now()
	switch {
	case key.Status == types.KeyUsed:
		return nil, errors.NewKeyAlreadyUsedError()
	case !key.IsActive:
		return nil, errors.NewKeyInactiveError()
	case key.Expired(now):
		return nil, errors.NewKeyExpiredError()
	}

	grant := func(current *models.Plan) *models.Plan {
		return PlanForKey(actor.UserID, key.Type, key.Key, now, current)
	}
	if err := s.keys.Redeem(ctx, key.Key, actor.UserID, actor.Email, now, grant); err != nil {
		if stderrors.Is(err, storage.ErrKeyNotRedeemable) {
			return nil, errors.NewKeyAlreadyUsedError()
		}
		return nil, errors.NewDatabaseError("redeem key", err)
	}

	return s.plans.GetPlan(ctx, actor.UserID)
}

// List returns every key
func (s *KeyService) List(ctx context.Context, actor auth.Principal) ([]*models.PremiumKey, error) {
	if !actor.Can(auth.CapManageKeys) {
		return nil, errors.NewForbiddenError("only the founder can manage premium keys")
	}
	keys, err := s.keys.List(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("list keys", err)
	}
	return keys, nil
}

// Delete removes a key from the ledger
func (s *KeyService) Delete(ctx context.Context, actor auth.Principal, code string) error {
	if !actor.Can(auth.CapManageKeys) {
		return errors.NewForbiddenError("only the founder can manage premium keys")
	}
	if err := s.keys.Delete(ctx, code); err != nil {
		if isNotFound(err) {
			return errors.NewNotFoundError("key", code)
		}
		return errors.NewDatabaseError("delete key", err)
	}
	return nil
}

// Stats counts keys by status
func (s *KeyService) Stats(ctx context.Context, actor auth.Principal) (models.KeyStats, error) {
	if !actor.Can(auth.CapManageKeys) {
		return models.KeyStats{}, errors.NewForbiddenError("only the founder can manage premium keys")
	}
	stats, err := s.keys.Stats(ctx)
	if err != nil {
		return models.KeyStats{}, errors.NewDatabaseError("key stats", err)
	}
	return stats, nil
}
