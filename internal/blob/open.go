package blob

import (
	"context"
	"fmt"

	"github.com/pinpincloud/internal/circuitbreaker"
	"github.com/pinpincloud/internal/config"
)

// Open builds the configured backend behind a circuit breaker
func Open(ctx context.Context, cfg *config.BlobConfig) (*GuardedStore, error) {
	var store Store
	switch cfg.Backend {
	case "s3":
		s3Store, err := NewS3Store(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		store = s3Store
	case "local":
		local, err := NewLocalStore(cfg.LocalRoot)
		if err != nil {
			return nil, err
		}
		store = local
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}

	breaker := circuitbreaker.DefaultConfig("blob-" + cfg.Backend)
	if cfg.BreakerFailures > 0 {
		breaker.MaxFailures = cfg.BreakerFailures
	}
	if cfg.BreakerTimeout > 0 {
		breaker.Timeout = cfg.BreakerTimeout
	}
	return NewGuardedStore(store, breaker), nil
}
