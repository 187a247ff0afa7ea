package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/pinpincloud/internal/circuitbreaker"
)

// GuardedStore routes every call through a circuit breaker. Missing objects
// and permission failures do not count against the store.
type GuardedStore struct {
	next    Store
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedStore wraps next with a breaker built from cfg
func NewGuardedStore(next Store, cfg *circuitbreaker.Config) *GuardedStore {
	cfg.IsFailure = func(err error) bool {
		switch Classify(err) {
		case KindNotFound, KindPermission, KindNone:
			return false
		case KindNetwork, KindTimeout, KindRetryLimit, KindOther:
			return true
		default:
			return true
		}
	}
	return &GuardedStore{next: next, breaker: circuitbreaker.NewCircuitBreaker(cfg)}
}

// Breaker exposes the breaker for health reporting
func (g *GuardedStore) Breaker() *circuitbreaker.CircuitBreaker {
	return g.breaker
}

func (g *GuardedStore) Upload(ctx context.Context, pointer string, body io.Reader, size int64, contentType string) error {
	return g.guard(ctx, func(ctx context.Context) error {
		return g.next.Upload(ctx, pointer, body, size, contentType)
	})
}

func (g *GuardedStore) Download(ctx context.Context, pointer string, maxBytes int64) ([]byte, error) {
	var data []byte
	err := g.guard(ctx, func(ctx context.Context) error {
		var err error
		data, err = g.next.Download(ctx, pointer, maxBytes)
		return err
	})
	return data, err
}

func (g *GuardedStore) Delete(ctx context.Context, pointer string) error {
	return g.guard(ctx, func(ctx context.Context) error {
		return g.next.Delete(ctx, pointer)
	})
}

func (g *GuardedStore) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	err := g.breaker.Execute(ctx, fn)
	if err == circuitbreaker.ErrCircuitOpen || err == circuitbreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return err
}
