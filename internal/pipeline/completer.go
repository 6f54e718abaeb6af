package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
	"github.com/Brutus88Ai/brutus-x-ai/internal/store"
)

// CompletionNotice is the abstract shape of a provider completion
// callback. The provider only knows its own task id, so the job is
// located by external_task_id, never by job id.
type CompletionNotice struct {
	TaskID      string
	Status      string
	ArtifactURL string
	Error       string
}

// Completer applies asynchronous provider outcomes to jobs. All
// transitions are guarded on status == awaiting_provider, which makes
// redelivered and stale notices safe no-ops.
type Completer struct {
	store    store.Store
	archiver Archiver
	notifier Notifier
	logger   *slog.Logger
}

// NewCompleter creates a completer. archiver may be nil, in which case
// the provider's artifact URL is stored as-is.
func NewCompleter(s store.Store, archiver Archiver, notifier Notifier, logger *slog.Logger) *Completer {
	return &Completer{
		store:    s,
		archiver: archiver,
		notifier: notifier,
		logger:   logger,
	}
}

// Apply processes one completion notice. It returns domain.ErrNotFound
// when no job matches the task id; duplicate terminal notices return
// nil.
func (c *Completer) Apply(ctx context.Context, notice CompletionNotice) error {
	if notice.TaskID == "" {
		return fmt.Errorf("%w: missing task id", domain.ErrValidation)
	}

	job, err := c.store.GetByExternalTaskID(ctx, notice.TaskID)
	if err != nil {
		return err
	}

	switch notice.Status {
	case TaskCompleted:
		return c.applyCompleted(ctx, job, notice)
	case TaskFailed:
		msg := notice.Error
		if msg == "" {
			msg = "render provider reported failure"
		}
		return c.applyTerminal(ctx, job, notice.TaskID, func() error {
			return c.store.FailByTask(ctx, notice.TaskID, msg)
		})
	default:
		c.logger.Debug("Ignoring completion notice with unknown status",
			slog.String("external_task_id", notice.TaskID),
			slog.String("status", notice.Status),
		)
		return nil
	}
}

func (c *Completer) applyCompleted(ctx context.Context, job *domain.Job, notice CompletionNotice) error {
	if notice.ArtifactURL == "" {
		return c.applyTerminal(ctx, job, notice.TaskID, func() error {
			return c.store.FailByTask(ctx, notice.TaskID, "no artifact URL in completion notice")
		})
	}

	resultURL := notice.ArtifactURL
	if c.archiver != nil {
		archived, err := c.archiver.Archive(ctx, job.ID, notice.ArtifactURL)
		if err != nil {
			c.logger.Error("Artifact archive failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			return c.applyTerminal(ctx, job, notice.TaskID, func() error {
				return c.store.FailByTask(ctx, notice.TaskID, fmt.Sprintf("artifact download failed: %s", err))
			})
		}
		resultURL = archived
	}

	return c.applyTerminal(ctx, job, notice.TaskID, func() error {
		return c.store.CompleteByTask(ctx, notice.TaskID, resultURL)
	})
}

// applyTerminal runs the guarded transition and, when it wins, notifies
// the downstream sink with the fresh job state.
func (c *Completer) applyTerminal(ctx context.Context, job *domain.Job, taskID string, transition func() error) error {
	if err := transition(); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Duplicate delivery or a job that moved on (cancelled,
			// already terminal). Discarding is the contract.
			c.logger.Debug("Completion notice discarded by status guard",
				slog.String("job_id", job.ID),
				slog.String("external_task_id", taskID),
				slog.String("status", string(job.Status)),
			)
			return nil
		}
		return err
	}

	fresh, err := c.store.Get(ctx, job.ID)
	if err != nil {
		return err
	}

	c.logger.Info("Provider outcome applied",
		slog.String("job_id", fresh.ID),
		slog.String("status", string(fresh.Status)),
	)

	if c.notifier != nil {
		if err := c.notifier.JobFinished(ctx, fresh); err != nil {
			c.logger.Warn("Downstream notification failed",
				slog.String("job_id", fresh.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}
