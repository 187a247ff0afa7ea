package api

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pinpincloud/internal/auth"
	"github.com/pinpincloud/internal/errors"
)

const (
	// tierRefresh bounds how long a resolved plan tier is trusted
	tierRefresh = time.Minute
	// idleTimeout is how long an unused limiter is kept
	idleTimeout = 10 * time.Minute
)

// RateLimiter manages per-user rate limiting for authenticated API requests
type RateLimiter struct {
	limiters  map[string]*limiterEntry
	mu        sync.Mutex
	now       func() time.Time
	lastPrune time.Time

	// Rate limits per plan tier (requests per second)
	freeTierLimit    rate.Limit
	premiumTierLimit rate.Limit

	// Burst size (number of requests that can be made in a burst)
	burstSize int
}

type limiterEntry struct {
	limiter    *rate.Limiter
	resolvedAt time.Time
	lastSeen   time.Time
}

// TierFunc reports whether userID is on a paid plan
type TierFunc func(ctx context.Context, userID string) bool

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(freeTierRPS, premiumTierRPS int) *RateLimiter {
	return &RateLimiter{
		limiters:         make(map[string]*limiterEntry),
		now:              time.Now,
		freeTierLimit:    rate.Limit(freeTierRPS),
		premiumTierLimit: rate.Limit(premiumTierRPS),
		burstSize:        10,
	}
}

func (rl *RateLimiter) tierLimit(ctx context.Context, userID string, paid TierFunc) rate.Limit {
	if paid != nil && paid(ctx, userID) {
		return rl.premiumTierLimit
	}
	return rl.freeTierLimit
}

// getLimiter returns the limiter of userID. The tier is resolved on first
// use and again once tierRefresh has passed, so plan changes take effect
// without losing the tokens already spent.
func (rl *RateLimiter) getLimiter(ctx context.Context, userID string, paid TierFunc) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	rl.pruneLocked(now)
	entry, exists := rl.limiters[userID]
	if exists {
		entry.lastSeen = now
		if now.Sub(entry.resolvedAt) < tierRefresh {
			rl.mu.Unlock()
			return entry.limiter
		}
	}
	rl.mu.Unlock()

	limit := rl.tierLimit(ctx, userID, paid)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Another goroutine may have created or refreshed it meanwhile
	entry, exists = rl.limiters[userID]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(limit, rl.burstSize)}
		rl.limiters[userID] = entry
	} else if entry.limiter.Limit() != limit {
		entry.limiter.SetLimitAt(now, limit)
	}
	entry.resolvedAt = now
	entry.lastSeen = now

	return entry.limiter
}

// pruneLocked drops limiters idle for longer than idleTimeout.
// It sweeps at most once per idleTimeout.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	if now.Sub(rl.lastPrune) < idleTimeout {
		return
	}
	rl.lastPrune = now
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) >= idleTimeout {
			delete(rl.limiters, key)
		}
	}
}

// Reset forgets the limiter of userID so its tier is resolved again
func (rl *RateLimiter) Reset(userID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, userID)
}

// RateLimitMiddleware creates a middleware that enforces rate limiting.
// It must run after AuthMiddleware.
func RateLimitMiddleware(rl *RateLimiter, paid TierFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
				key = principal.UserID
			}

			limiter := rl.getLimiter(r.Context(), key, paid)

			if !limiter.Allow() {
				retryAfter := 1
				if limit := float64(limiter.Limit()); limit > 0 && limit < 1 {
					retryAfter = int(math.Ceil(1 / limit))
				}
				respondServiceError(w, r, errors.NewRateLimitError(retryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
