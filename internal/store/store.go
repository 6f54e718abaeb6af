package store

import (
	"context"
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
)

// Mutation carries stage output persisted together with a status
// transition. Nil fields are left untouched.
type Mutation struct {
	DraftText      *string
	CaptionText    *string
	AssetURL       *string
	ExternalTaskID *string
}

// JobFilter selects jobs for listing.
type JobFilter struct {
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is an opaque pagination position (created_at DESC, job_id
// DESC ordering).
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// Store is the durable job store. Every mutation is an atomic
// conditional update; a lost predicate surfaces as domain.ErrConflict,
// which callers treat as expected contention, not a fault.
type Store interface {
	// Create inserts a new job in pending state.
	Create(ctx context.Context, job *domain.Job) error

	// Get returns the job or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// GetByExternalTaskID locates a job by its provider task id.
	GetByExternalTaskID(ctx context.Context, taskID string) (*domain.Job, error)

	// FindClaimable returns jobs that are pending, or non-terminal
	// with a lapsed lock, ordered by created_at ascending with job_id
	// as the tie-break.
	FindClaimable(ctx context.Context, limit int) ([]domain.Job, error)

	// FindStalled returns unlocked awaiting_provider jobs last touched
	// before the given instant, for the reconciler backstop.
	FindStalled(ctx context.Context, olderThan time.Time, limit int) ([]domain.Job, error)

	// Claim atomically takes the lock and moves the job to claimed.
	// It succeeds only for pending jobs, or non-terminal jobs whose
	// lock has expired. Returns domain.ErrNotFound for an unknown job
	// and domain.ErrConflict when the predicate fails.
	Claim(ctx context.Context, id, workerID string, expiry time.Time) (*domain.Job, error)

	// Renew extends the lock expiry while workerID still holds it.
	Renew(ctx context.Context, id, workerID string, expiry time.Time) error

	// Release clears the lock while workerID still holds it. Releasing
	// an already-released job is a no-op.
	Release(ctx context.Context, id, workerID string) error

	// Advance transitions from one status to the next, guarded on both
	// the current status and the lock holder, persisting any stage
	// output in the same update.
	Advance(ctx context.Context, id, workerID string, from, to domain.Status, mut Mutation) error

	// Fail marks the job failed from any non-terminal status while
	// workerID holds the lock, recording the error and clearing the
	// lock.
	Fail(ctx context.Context, id, workerID, errorMessage string) error

	// Cancel transitions any non-terminal job to cancelled, clearing
	// the lock. Terminal jobs return domain.ErrConflict.
	Cancel(ctx context.Context, id string) error

	// CompleteByTask applies a provider completion, guarded on
	// status == awaiting_provider so stale or duplicate notifications
	// are rejected with domain.ErrConflict.
	CompleteByTask(ctx context.Context, taskID, resultURL string) error

	// FailByTask applies a provider failure under the same guard.
	FailByTask(ctx context.Context, taskID, errorMessage string) error

	// List returns jobs matching the filter, newest first, fetching
	// one row beyond PageSize so callers can detect another page.
	List(ctx context.Context, filter JobFilter) ([]domain.Job, error)
}
