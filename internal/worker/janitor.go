// Package worker runs the periodic maintenance jobs of the storage backend.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pinpincloud/internal/blob"
	"github.com/pinpincloud/internal/logging"
	"github.com/pinpincloud/internal/models"
)

// OrphanStore is the ledger of blobs whose delete must be retried
type OrphanStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.OrphanBlob, error)
	Remove(ctx context.Context, pointer string) error
	RecordFailure(ctx context.Context, pointer, lastError string, next time.Time) error
}

// PlanMaintainer applies plan-wide corrections
type PlanMaintainer interface {
	DowngradeExpired(ctx context.Context, now time.Time) (int64, error)
	ReconcileUsage(ctx context.Context) (int64, error)
}

// BlobDeleter removes blobs from the blob store
type BlobDeleter interface {
	Delete(ctx context.Context, pointer string) error
}

// Janitor periodically retries orphaned blob deletes, downgrades expired
// premium plans and reconciles storage usage with the file table.
type Janitor struct {
	orphans OrphanStore
	plans   PlanMaintainer
	blobs   BlobDeleter

	interval   time.Duration
	batchSize  int
	maxAttempt int
	maxBackoff time.Duration
	now        func() time.Time

	mu       sync.RWMutex
	running  bool
	lastRun  time.Time
	lastPass PassResult
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// JanitorConfig holds configuration for a janitor
type JanitorConfig struct {
	Orphans    OrphanStore
	Plans      PlanMaintainer
	Blobs      BlobDeleter
	Interval   time.Duration // Time between passes (default: 5 minutes)
	BatchSize  int           // Orphans retried per pass (default: 100)
	MaxAttempt int           // Failed deletes before an orphan is abandoned (default: 10)
	MaxBackoff time.Duration // Cap on the delay between attempts (default: 24 hours)
}

// PassResult summarizes one janitor pass
type PassResult struct {
	OrphansDeleted   int   `json:"orphansDeleted"`
	OrphansFailed    int   `json:"orphansFailed"`
	OrphansAbandoned int   `json:"orphansAbandoned"`
	PlansDowngraded  int64 `json:"plansDowngraded"`
	UsageReconciled  int64 `json:"usageReconciled"`
}

// NewJanitor creates a new janitor
func NewJanitor(cfg *JanitorConfig) (*Janitor, error) {
	if cfg.Orphans == nil {
		return nil, fmt.Errorf("orphan store cannot be nil")
	}
	if cfg.Plans == nil {
		return nil, fmt.Errorf("plan maintainer cannot be nil")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store cannot be nil")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	maxAttempt := cfg.MaxAttempt
	if maxAttempt <= 0 {
		maxAttempt = 10
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 24 * time.Hour
	}

	return &Janitor{
		orphans:    cfg.Orphans,
		plans:      cfg.Plans,
		blobs:      cfg.Blobs,
		interval:   interval,
		batchSize:  batchSize,
		maxAttempt: maxAttempt,
		maxBackoff: maxBackoff,
		now:        time.Now,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start runs a first pass immediately and then one per interval
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return fmt.Errorf("janitor is already running")
	}
	j.running = true
	j.mu.Unlock()

	logging.WithField("interval", j.interval).Info("Starting janitor")

	go j.loop(ctx)
	return nil
}

// Stop signals the loop and waits for the current pass to finish
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return fmt.Errorf("janitor is not running")
	}
	j.mu.Unlock()

	close(j.stopCh)

	select {
	case <-j.doneCh:
		logging.Info("Janitor stopped gracefully")
	case <-ctx.Done():
		logging.Warn("Janitor stop timed out")
		return ctx.Err()
	}

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
	return nil
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.doneCh)

	j.runPass(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.runPass(ctx)
		}
	}
}

func (j *Janitor) runPass(ctx context.Context) {
	result, err := j.RunOnce(ctx)
	if err != nil {
		logging.WithError(err).Warn("Janitor pass finished with errors")
	}
	if result.OrphansDeleted+result.OrphansFailed+result.OrphansAbandoned > 0 || result.PlansDowngraded > 0 || result.UsageReconciled > 0 {
		logging.WithFields(map[string]interface{}{
			"orphansDeleted":   result.OrphansDeleted,
			"orphansFailed":    result.OrphansFailed,
			"orphansAbandoned": result.OrphansAbandoned,
			"plansDowngraded":  result.PlansDowngraded,
			"usageReconciled":  result.UsageReconciled,
		}).Info("Janitor pass completed")
	}
}

// RunOnce performs a single pass. Each step runs even when an earlier one
// failed; the first error is returned.
func (j *Janitor) RunOnce(ctx context.Context) (PassResult, error) {
	var (
		result   PassResult
		firstErr error
	)
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	now := j.now()

	keep(j.retryOrphans(ctx, now, &result))

	downgraded, err := j.plans.DowngradeExpired(ctx, now)
	keep(err)
	result.PlansDowngraded = downgraded

	reconciled, err := j.plans.ReconcileUsage(ctx)
	keep(err)
	result.UsageReconciled = reconciled

	j.mu.Lock()
	j.lastRun = now
	j.lastPass = result
	j.mu.Unlock()

	return result, firstErr
}

func (j *Janitor) retryOrphans(ctx context.Context, now time.Time, result *PassResult) error {
	due, err := j.orphans.ListDue(ctx, now, j.batchSize)
	if err != nil {
		return err
	}

	for _, orphan := range due {
		logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
			"storagePointer": orphan.StoragePointer,
			"ownerId":        orphan.OwnerID,
			"attempts":       orphan.Attempts,
		})

		err := j.blobs.Delete(ctx, orphan.StoragePointer)
		if err == nil || blob.Classify(err) == blob.KindNotFound {
			if rerr := j.orphans.Remove(ctx, orphan.StoragePointer); rerr != nil {
				return rerr
			}
			result.OrphansDeleted++
			continue
		}

		attempts := orphan.Attempts + 1
		if attempts >= j.maxAttempt {
			logger.WithError(err).Error("Abandoning orphaned blob after max delete attempts")
			if rerr := j.orphans.Remove(ctx, orphan.StoragePointer); rerr != nil {
				return rerr
			}
			result.OrphansAbandoned++
			continue
		}

		next := now.Add(j.backoff(attempts))
		if rerr := j.orphans.RecordFailure(ctx, orphan.StoragePointer, err.Error(), next); rerr != nil {
			return rerr
		}
		logger.WithError(err).WithField("nextAttempt", next).Warn("Orphaned blob delete failed")
		result.OrphansFailed++
	}
	return nil
}

// backoff doubles the interval per failed attempt, capped at maxBackoff
func (j *Janitor) backoff(attempts int) time.Duration {
	delay := j.interval
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= j.maxBackoff {
			return j.maxBackoff
		}
	}
	if delay > j.maxBackoff {
		return j.maxBackoff
	}
	return delay
}

// JanitorStatus represents the status of the janitor
type JanitorStatus struct {
	Running  bool       `json:"running"`
	Interval string     `json:"interval"`
	LastRun  time.Time  `json:"lastRun"`
	LastPass PassResult `json:"lastPass"`
}

// GetStatus returns the current status of the janitor
func (j *Janitor) GetStatus() *JanitorStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &JanitorStatus{
		Running:  j.running,
		Interval: j.interval.String(),
		LastRun:  j.lastRun,
		LastPass: j.lastPass,
	}
}
