// Package dispatch discovers claimable render jobs and hands them to
// the pipeline executor. Discovery is polymorphic: a timer-driven poll
// sweep and a queue-triggered consumer both funnel into the same
// claim-then-run path, and both respect the lock manager contract.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/lock"
	"github.com/Brutus88Ai/brutus-x-ai/internal/pipeline"
	"github.com/Brutus88Ai/brutus-x-ai/internal/store"
	"github.com/google/uuid"
)

// Dispatcher runs one active job per process. The busy guard makes
// overlapping triggers (a poll tick firing while a queue delivery is
// mid-flight) skip instead of running concurrently.
type Dispatcher struct {
	store        store.Store
	locks        *lock.Manager
	executor     *pipeline.Executor
	workerID     string
	lockTTL      time.Duration
	pollInterval time.Duration
	claimBatch   int
	logger       *slog.Logger
	busy         sync.Mutex
}

// Config holds dispatcher dependencies and tuning.
type Config struct {
	Store        store.Store
	Locks        *lock.Manager
	Executor     *pipeline.Executor
	WorkerID     string // defaults to a fresh uuid per process
	LockTTL      time.Duration
	PollInterval time.Duration
	ClaimBatch   int
	Logger       *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg *Config) *Dispatcher {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = uuid.NewString()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	batch := cfg.ClaimBatch
	if batch <= 0 {
		batch = 10
	}
	return &Dispatcher{
		store:        cfg.Store,
		locks:        cfg.Locks,
		executor:     cfg.Executor,
		workerID:     workerID,
		lockTTL:      cfg.LockTTL,
		pollInterval: interval,
		claimBatch:   batch,
		logger:       cfg.Logger,
	}
}

// WorkerID returns the process-wide worker identity.
func (d *Dispatcher) WorkerID() string {
	return d.workerID
}

// Wait blocks until no pipeline is in flight. Used during shutdown,
// after the poll loop and consumer have stopped taking new work.
func (d *Dispatcher) Wait() {
	d.busy.Lock()
	defer d.busy.Unlock()
}

// RunPollLoop sweeps for claimable jobs on a fixed interval until the
// context is cancelled. The sweep is also the crash-recovery path:
// jobs whose lock TTL lapsed show up as claimable again.
func (d *Dispatcher) RunPollLoop(ctx context.Context) {
	d.logger.Info("Dispatcher poll loop started",
		slog.String("worker_id", d.workerID),
		slog.Duration("interval", d.pollInterval),
	)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher poll loop stopped",
				slog.String("worker_id", d.workerID),
			)
			return
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

// sweep claims and runs as many candidates as it can win, one at a
// time. A cycle already in progress is skipped, not queued.
func (d *Dispatcher) sweep(ctx context.Context) {
	if !d.busy.TryLock() {
		d.logger.Debug("Sweep skipped, previous cycle still running",
			slog.String("worker_id", d.workerID),
		)
		return
	}
	defer d.busy.Unlock()

	jobs, err := d.store.FindClaimable(ctx, d.claimBatch)
	if err != nil {
		// Backing store unreachable; abort the cycle and retry on the
		// next interval.
		d.logger.Error("Failed to find claimable jobs",
			slog.String("worker_id", d.workerID),
			slog.String("error", err.Error()),
		)
		return
	}

	for i := range jobs {
		if ctx.Err() != nil {
			return
		}
		d.claimAndRun(ctx, jobs[i].ID)
	}
}

// TryRun is the queue-triggered entry point. It reports false when the
// dispatcher is already running a job, so the caller can requeue the
// delivery for another worker.
func (d *Dispatcher) TryRun(ctx context.Context, jobID string) (bool, error) {
	if !d.busy.TryLock() {
		return false, nil
	}
	defer d.busy.Unlock()

	return true, d.claimAndRun(ctx, jobID)
}

// claimAndRun attempts the lock and, on success, runs the pipeline
// synchronously to its next resting state. A lost acquire is expected
// contention and a silent skip.
func (d *Dispatcher) claimAndRun(ctx context.Context, jobID string) error {
	claimed, err := d.locks.Acquire(ctx, jobID, d.workerID, d.lockTTL)
	if err != nil {
		d.logger.Error("Lock acquire failed",
			slog.String("job_id", jobID),
			slog.String("worker_id", d.workerID),
			slog.String("error", err.Error()),
		)
		return err
	}
	if claimed == nil {
		return nil
	}

	if err := d.executor.Run(ctx, claimed); err != nil {
		d.logger.Error("Pipeline run failed",
			slog.String("job_id", jobID),
			slog.String("worker_id", d.workerID),
			slog.String("error", err.Error()),
		)
		return err
	}

	return nil
}
