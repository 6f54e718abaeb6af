// Package pipeline drives a claimed render job through its stages:
// drafting, optimizing, rendering and the hand-off to the external
// render provider. Stages run sequentially within one claim; each
// transition persists its output so a crash mid-stage leaves a
// diagnosable record. Reclaimed jobs restart from claimed rather than
// resuming mid-stage, except that a job whose provider task was already
// started is pushed straight back to awaiting_provider.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
	"github.com/Brutus88Ai/brutus-x-ai/internal/lock"
	"github.com/Brutus88Ai/brutus-x-ai/internal/store"
)

// Executor runs one job at a time to its next resting state.
type Executor struct {
	store     store.Store
	locks     *lock.Manager
	drafter   Drafter
	optimizer Optimizer
	assets    AssetGenerator
	provider  RenderProvider
	lockTTL   time.Duration
	logger    *slog.Logger
}

// Config holds executor dependencies.
type Config struct {
	Store     store.Store
	Locks     *lock.Manager
	Drafter   Drafter
	Optimizer Optimizer
	Assets    AssetGenerator
	Provider  RenderProvider
	LockTTL   time.Duration
	Logger    *slog.Logger
}

// NewExecutor creates a pipeline executor.
func NewExecutor(cfg *Config) *Executor {
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = lock.DefaultTTL
	}
	return &Executor{
		store:     cfg.Store,
		locks:     cfg.Locks,
		drafter:   cfg.Drafter,
		optimizer: cfg.Optimizer,
		assets:    cfg.Assets,
		provider:  cfg.Provider,
		lockTTL:   ttl,
		logger:    cfg.Logger,
	}
}

// Run executes the pipeline for a freshly claimed job. The caller must
// hold the lock; job.LockHolder identifies the worker for every
// conditional update, so late writes after expiry cannot clobber a
// newer claim.
func (e *Executor) Run(ctx context.Context, job *domain.Job) error {
	workerID := job.LockHolder

	e.logger.Info("Pipeline started",
		slog.String("job_id", job.ID),
		slog.String("worker_id", workerID),
	)

	// Idempotency guard: the provider was already invoked for this job
	// in an earlier claim. Re-assert awaiting_provider and get out of
	// the way of the completion webhook.
	if job.ExternalTaskID != "" {
		return e.reassertAwaiting(ctx, job, workerID)
	}

	payload, err := domain.DecodePayload(job.Payload)
	if err != nil {
		return e.failJob(ctx, job.ID, workerID, err)
	}

	draft, err := e.drafter.Draft(ctx, payload)
	if err != nil {
		return e.failJob(ctx, job.ID, workerID, fmt.Errorf("draft generation failed: %w", err))
	}
	if err := e.advance(ctx, job.ID, workerID, domain.StatusClaimed, domain.StatusDrafting, store.Mutation{DraftText: &draft}); err != nil {
		return err
	}

	caption, err := e.optimizer.Optimize(ctx, draft)
	if err != nil {
		return e.failJob(ctx, job.ID, workerID, fmt.Errorf("caption optimization failed: %w", err))
	}
	if err := e.advance(ctx, job.ID, workerID, domain.StatusDrafting, domain.StatusOptimizing, store.Mutation{CaptionText: &caption}); err != nil {
		return err
	}

	assetURL, err := e.assets.Generate(ctx, payload.PromptText)
	if err != nil {
		return e.failJob(ctx, job.ID, workerID, fmt.Errorf("asset generation failed: %w", err))
	}
	if err := e.advance(ctx, job.ID, workerID, domain.StatusOptimizing, domain.StatusRendering, store.Mutation{AssetURL: &assetURL}); err != nil {
		return err
	}

	// The provider call is the slowest stage; extend the claim first.
	if err := e.locks.Renew(ctx, job.ID, workerID, e.lockTTL); err != nil {
		e.logger.Warn("Lock renew failed before provider dispatch",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	taskID, err := e.provider.StartRender(ctx, RenderRequest{
		PromptText:      payload.PromptText,
		PromptImage:     assetURL,
		Ratio:           payload.Ratio,
		DurationSeconds: payload.DurationSeconds,
	})
	if err != nil {
		return e.failJob(ctx, job.ID, workerID, domain.NewProviderError("render provider", err))
	}

	if err := e.advance(ctx, job.ID, workerID, domain.StatusRendering, domain.StatusAwaitingProvider, store.Mutation{ExternalTaskID: &taskID}); err != nil {
		return err
	}

	// The completion webhook owns the job from here; holding the lock
	// while waiting would only delay crash detection.
	if err := e.locks.Release(ctx, job.ID, workerID); err != nil {
		return err
	}

	e.logger.Info("Pipeline handed off to provider",
		slog.String("job_id", job.ID),
		slog.String("external_task_id", taskID),
	)

	return nil
}

func (e *Executor) reassertAwaiting(ctx context.Context, job *domain.Job, workerID string) error {
	e.logger.Info("Provider task already started, skipping dispatch",
		slog.String("job_id", job.ID),
		slog.String("external_task_id", job.ExternalTaskID),
	)

	err := e.store.Advance(ctx, job.ID, workerID, job.Status, domain.StatusAwaitingProvider, store.Mutation{})
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return err
	}
	return e.locks.Release(ctx, job.ID, workerID)
}

// advance applies a stage transition. A conflict means the job moved
// underneath us, e.g. an external cancellation; the pipeline stops
// quietly and leaves the newer state alone.
func (e *Executor) advance(ctx context.Context, jobID, workerID string, from, to domain.Status, mut store.Mutation) error {
	err := e.store.Advance(ctx, jobID, workerID, from, to, mut)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrConflict) {
		e.logger.Warn("Stage transition lost to concurrent update, stopping pipeline",
			slog.String("job_id", jobID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		return e.locks.Release(ctx, jobID, workerID)
	}
	return fmt.Errorf("failed to advance job %s: %w", jobID, err)
}

// failJob persists the failure and clears the lock. Transient stage
// errors are not retried within a claim; re-submission is an explicit
// caller action.
func (e *Executor) failJob(ctx context.Context, jobID, workerID string, cause error) error {
	e.logger.Error("Pipeline failed",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
		slog.String("error", cause.Error()),
	)

	err := e.store.Fail(ctx, jobID, workerID, cause.Error())
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Cancelled or reclaimed underneath us; nothing to record.
			return nil
		}
		return fmt.Errorf("failed to mark job %s failed: %w", jobID, err)
	}

	return nil
}
