// Package blob stores file contents behind opaque pointers.
package blob

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/pinpincloud/internal/circuitbreaker"
)

// Store is a blob store addressed by pointer strings such as files/{uid}/{ms}_{name}
type Store interface {
	Upload(ctx context.Context, pointer string, body io.Reader, size int64, contentType string) error
	// Download reads the whole blob, failing with ErrTooLarge above maxBytes
	Download(ctx context.Context, pointer string, maxBytes int64) ([]byte, error)
	Delete(ctx context.Context, pointer string) error
}

// Sentinel errors returned (wrapped) by every Store implementation
var (
	ErrObjectNotFound     = errors.New("storage/object-not-found")
	ErrPermissionDenied   = errors.New("storage/permission-denied")
	ErrNetwork            = errors.New("storage/network")
	ErrTimeout            = errors.New("storage/timeout")
	ErrRetryLimitExceeded = errors.New("storage/retry-limit-exceeded")
	ErrTooLarge           = errors.New("storage/max-bytes-exceeded")
	ErrInvalidPointer     = errors.New("storage/invalid-pointer")
)

// Kind is the transport classification of a blob store failure
type Kind int

const (
	KindNone Kind = iota
	KindOther
	KindNotFound
	KindPermission
	KindNetwork
	KindTimeout
	KindRetryLimit
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "object-not-found"
	case KindPermission:
		return "permission-denied"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRetryLimit:
		return "retry-limit-exceeded"
	case KindOther:
		return "other"
	default:
		return "other"
	}
}

// Transient reports whether a failure of this kind may succeed when repeated
func (k Kind) Transient() bool {
	switch k {
	case KindNetwork, KindTimeout, KindRetryLimit:
		return true
	case KindNone, KindOther, KindNotFound, KindPermission:
		return false
	default:
		return false
	}
}

// Classify maps an error from any Store into a Kind
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrObjectNotFound):
		return KindNotFound
	case errors.Is(err, ErrPermissionDenied):
		return KindPermission
	case errors.Is(err, ErrRetryLimitExceeded):
		return KindRetryLimit
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrNetwork),
		errors.Is(err, circuitbreaker.ErrCircuitOpen),
		errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return KindNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	// Fall back to the provider's message codes
	msg := err.Error()
	switch {
	case strings.Contains(msg, "retry-limit-exceeded"):
		return KindRetryLimit
	case strings.Contains(msg, "timeout"):
		return KindTimeout
	case strings.Contains(msg, "network"):
		return KindNetwork
	default:
		return KindOther
	}
}

// readLimited reads r fully, failing with ErrTooLarge once more than maxBytes arrive
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
