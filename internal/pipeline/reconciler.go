package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
	"github.com/Brutus88Ai/brutus-x-ai/internal/store"
)

// Reconciler is the backstop for jobs stuck in awaiting_provider when
// the completion callback never arrives. On each sweep it asks the
// provider directly for task state; tasks still running are left alone
// until GiveUpAfter, then failed with a diagnostic so the job does not
// wait forever.
type Reconciler struct {
	store        store.Store
	provider     RenderProvider
	completer    *Completer
	recheckAfter time.Duration
	giveUpAfter  time.Duration
	batchSize    int
	logger       *slog.Logger
}

// ReconcilerConfig holds reconciler tuning.
type ReconcilerConfig struct {
	Store        store.Store
	Provider     RenderProvider
	Completer    *Completer
	RecheckAfter time.Duration // how long a job may sit before a re-check
	GiveUpAfter  time.Duration // how long before an unanswered task is failed
	BatchSize    int
	Logger       *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(cfg *ReconcilerConfig) *Reconciler {
	recheck := cfg.RecheckAfter
	if recheck <= 0 {
		recheck = 10 * time.Minute
	}
	giveUp := cfg.GiveUpAfter
	if giveUp <= 0 {
		giveUp = time.Hour
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 20
	}
	return &Reconciler{
		store:        cfg.Store,
		provider:     cfg.Provider,
		completer:    cfg.Completer,
		recheckAfter: recheck,
		giveUpAfter:  giveUp,
		batchSize:    batch,
		logger:       cfg.Logger,
	}
}

// Sweep re-checks one batch of stalled jobs. Errors on individual jobs
// are logged and do not abort the batch; a storage error fetching the
// batch aborts the sweep for this cycle.
func (r *Reconciler) Sweep(ctx context.Context) error {
	now := time.Now()

	stalled, err := r.store.FindStalled(ctx, now.Add(-r.recheckAfter), r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch stalled jobs: %w", err)
	}

	for i := range stalled {
		job := &stalled[i]
		if err := r.reconcileJob(ctx, job, now); err != nil {
			r.logger.Error("Failed to reconcile stalled job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

func (r *Reconciler) reconcileJob(ctx context.Context, job *domain.Job, now time.Time) error {
	state, err := r.provider.TaskStatus(ctx, job.ExternalTaskID)
	if err != nil {
		if now.Sub(job.UpdatedAt) > r.giveUpAfter {
			return r.failSilent(ctx, job, fmt.Sprintf("provider unreachable and no completion callback: %s", err))
		}
		return fmt.Errorf("task status check failed: %w", err)
	}

	switch state.Status {
	case TaskCompleted:
		return r.completer.Apply(ctx, CompletionNotice{
			TaskID:      job.ExternalTaskID,
			Status:      TaskCompleted,
			ArtifactURL: state.ArtifactURL,
		})
	case TaskFailed:
		return r.completer.Apply(ctx, CompletionNotice{
			TaskID: job.ExternalTaskID,
			Status: TaskFailed,
			Error:  state.Error,
		})
	default:
		if now.Sub(job.UpdatedAt) > r.giveUpAfter {
			return r.failSilent(ctx, job, "no completion callback from provider within deadline")
		}
		return nil
	}
}

func (r *Reconciler) failSilent(ctx context.Context, job *domain.Job, msg string) error {
	r.logger.Warn("Giving up on stalled provider task",
		slog.String("job_id", job.ID),
		slog.String("external_task_id", job.ExternalTaskID),
	)
	return r.completer.Apply(ctx, CompletionNotice{
		TaskID: job.ExternalTaskID,
		Status: TaskFailed,
		Error:  msg,
	})
}
