package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/insightpilot/insight-engine/pkg/config"
)

// JobRunner executes background work with a bounded level of concurrency.
// Jobs for the same dataset are serialized so a dataset never has two
// profiling runs in flight at once.
type JobRunner struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewJobRunner creates a JobRunner with the configured concurrency bound.
func NewJobRunner(cfg *config.JobsConfig, logger *zap.Logger) *JobRunner {
	max := cfg.MaxConcurrent
	if max <= 0 {
		max = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobRunner{
		sem:    semaphore.NewWeighted(int64(max)),
		logger: logger.Named("jobs"),
		locks:  make(map[uuid.UUID]*sync.Mutex),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit schedules fn to run asynchronously. It returns immediately; the job
// waits for a concurrency slot and for any running job on the same dataset.
func (r *JobRunner) Submit(datasetID uuid.UUID, name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			r.logger.Warn("job dropped during shutdown",
				zap.String("job", name),
				zap.String("dataset_id", datasetID.String()))
			return
		}
		defer r.sem.Release(1)

		lock := r.datasetLock(datasetID)
		lock.Lock()
		defer lock.Unlock()

		r.logger.Debug("job started",
			zap.String("job", name),
			zap.String("dataset_id", datasetID.String()))
		fn(r.ctx)
		r.logger.Debug("job finished",
			zap.String("job", name),
			zap.String("dataset_id", datasetID.String()))
	}()
}

// Shutdown stops accepting slot acquisitions and waits for running jobs.
func (r *JobRunner) Shutdown() {
	r.cancel()
	r.wg.Wait()
}

// Wait blocks until all submitted jobs have completed.
func (r *JobRunner) Wait() {
	r.wg.Wait()
}

func (r *JobRunner) datasetLock(id uuid.UUID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}
