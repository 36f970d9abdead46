package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/mechvault/mechvault/internal/bom"
)

// extractor is the part of bom.Extractor the runner drives.
type extractor interface {
	Extract(ctx context.Context, itemNumber, exportPath string) (int, error)
}

// ExtractRunner runs BOM extraction as supervised background jobs so the
// ingestion loop never blocks on extraction I/O. Jobs are retried with
// exponential backoff; an export with no recognizable children is final and
// is not retried.
type ExtractRunner struct {
	extractor   extractor
	pool        *ants.Pool
	logger      *zap.Logger
	maxAttempts int
	retryDelay  time.Duration

	wg sync.WaitGroup
}

// NewExtractRunner creates a runner with workers pooled goroutines.
func NewExtractRunner(ext extractor, logger *zap.Logger, workers, maxAttempts int, retryDelay time.Duration) (*ExtractRunner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction pool: %w", err)
	}

	return &ExtractRunner{
		extractor:   ext,
		pool:        pool,
		logger:      logger,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}, nil
}

// Submit schedules an extraction job for itemNumber's hierarchy export.
// The job's outcome is logged, never returned; errors here mean the job
// could not be scheduled at all.
func (r *ExtractRunner) Submit(ctx context.Context, itemNumber, exportPath string) error {
	jobID := uuid.NewString()
	logger := r.logger.With(
		zap.String("job", jobID),
		zap.String("item", itemNumber),
		zap.String("path", exportPath))

	// Once accepted, a job outlives the submitting context: shutdown drains
	// scheduled extractions via Release rather than aborting them mid-retry.
	jobCtx := context.WithoutCancel(ctx)

	r.wg.Add(1)
	err := r.pool.Submit(func() {
		defer r.wg.Done()

		err := retryWithBackoff(jobCtx, logger, func() error {
			_, err := r.extractor.Extract(jobCtx, itemNumber, exportPath)
			if errors.Is(err, bom.ErrNoComponents) {
				// Already warned by the extractor; retrying cannot help.
				return nil
			}
			return err
		}, r.maxAttempts, r.retryDelay)

		if err != nil {
			logger.Error("BOM extraction failed", zap.Error(err))
			return
		}
		logger.Debug("BOM extraction job finished")
	})
	if err != nil {
		r.wg.Done()
		return fmt.Errorf("failed to submit extraction job: %w", err)
	}

	logger.Info("BOM extraction scheduled")
	return nil
}

// Wait blocks until all submitted jobs have finished.
func (r *ExtractRunner) Wait() {
	r.wg.Wait()
}

// Release waits for in-flight jobs and releases the pool. The runner must
// not be used afterwards.
func (r *ExtractRunner) Release() {
	r.wg.Wait()
	r.pool.Release()
}
