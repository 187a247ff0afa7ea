package service

import (
	"context"
	"time"

	"github.com/pinpincloud/internal/blob"
	"github.com/pinpincloud/internal/errors"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/metrics"
	"github.com/pinpincloud/internal/models"
	"github.com/pinpincloud/internal/retry"
)

// DefaultMaxDownloadBytes bounds a single blob read (500 MB)
const DefaultMaxDownloadBytes int64 = 500 * 1024 * 1024

// DownloadService reads blobs with the transient-failure retry policy
type DownloadService struct {
	blobs    blob.Store
	policy   retry.RetryConfig
	maxBytes int64
	metrics  *metrics.Metrics
}

// NewDownloadService creates a download service. A nil policy uses retry.DownloadRetryConfig.
func NewDownloadService(blobs blob.Store, policy *retry.RetryConfig, maxBytes int64, m *metrics.Metrics) *DownloadService {
	if policy == nil {
		policy = retry.DownloadRetryConfig()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDownloadBytes
	}
	p := *policy
	p.Retryable = func(err error) bool { return blob.Classify(err).Transient() }
	return &DownloadService{
		blobs:    blobs,
		policy:   p,
		maxBytes: maxBytes,
		metrics:  m,
	}
}

// DownloadResult is the outcome of a download
type DownloadResult struct {
	Data     []byte
	Attempts int
	Retries  int
	Delays   []time.Duration
}

// Download reads pointer, retrying network, timeout and retry-limit failures.
// Final failures are returned as transport errors with a user-facing message.
func (s *DownloadService) Download(ctx context.Context, pointer string) (*DownloadResult, error) {
	logger := logging.FromContext(ctx).WithField("pointer", pointer)

	var data []byte
	result := retry.WithExponentialBackoff(ctx, &s.policy, func(ctx context.Context, attempt int) error {
		var err error
		data, err = s.blobs.Download(ctx, pointer, s.maxBytes)
		return err
	})

	out := &DownloadResult{
		Attempts: result.Attempts,
		Retries:  result.Retries,
		Delays:   result.Delays,
	}
	if result.Success {
		out.Data = data
		s.metrics.Download("ok", result.Retries)
		return out, nil
	}

	kind := blob.Classify(result.LastError)
	s.metrics.Download(kind.String(), result.Retries)
	logger.WithFields(map[string]interface{}{
		"classification": kind.String(),
		"attempts":       result.Attempts,
	}).WithError(result.LastError).Warn("Download failed")

	return out, ClassifyDownloadError(result.LastError)
}

// ClassifyDownloadError converts a blob store failure into its user-facing error
func ClassifyDownloadError(err error) error {
	switch blob.Classify(err) {
	case blob.KindNone:
		return nil
	case blob.KindPermission:
		return errors.NewDownloadAccessDeniedError(err)
	case blob.KindNotFound:
		return errors.NewDownloadNotFoundError(err)
	case blob.KindRetryLimit, blob.KindTimeout:
		return errors.NewDownloadTimeoutError(err)
	case blob.KindNetwork:
		return errors.NewDownloadNetworkError(err)
	case blob.KindOther:
		return errors.NewStorageError(err)
	default:
		return errors.NewStorageError(err)
	}
}

// Fetch downloads the blob of file and records the activity
func (s *DownloadService) Fetch(ctx context.Context, file *models.File, actorID string, recorder ActivityRecorder) (*DownloadResult, error) {
	result, err := s.Download(ctx, file.StoragePointer)
	if err != nil {
		return result, err
	}
	recordActivity(ctx, recorder, &models.Activity{
		Kind:       models.ActivityDownload,
		UserID:     actorID,
		FileID:     file.ID,
		Bytes:      int64(len(result.Data)),
		OccurredAt: time.Now().UTC(),
	})
	return result, nil
}
