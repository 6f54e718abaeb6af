package domain

import (
	"time"
)

// Status is the render job lifecycle state. Transitions are monotonic
// through the pipeline; jobs never re-enter pending once claimed except
// via lock-expiry reclaim, which restarts from claimed.
type Status string

const (
	StatusPending          Status = "pending"
	StatusClaimed          Status = "claimed"
	StatusDrafting         Status = "drafting"
	StatusOptimizing       Status = "optimizing"
	StatusRendering        Status = "rendering"
	StatusAwaitingProvider Status = "awaiting_provider"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
)

// IsTerminal reports whether the status is final. This is the single
// authoritative terminal/non-terminal partition; pollers must keep
// polling on any non-terminal status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsValid reports whether s is a known status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusClaimed, StatusDrafting, StatusOptimizing,
		StatusRendering, StatusAwaitingProvider,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is a render job record. Once claimed it is mutated only by the
// worker holding the lock; the completion webhook and cancellation API
// mutate it through status-guarded conditional updates.
type Job struct {
	ID             string     `db:"job_id"`
	Payload        string     `db:"payload"` // JSON-encoded RenderPayload
	Status         Status     `db:"status"`
	LockHolder     string     `db:"lock_holder"`
	LockExpiry     *time.Time `db:"lock_expiry"`
	ExternalTaskID string     `db:"external_task_id"`
	DraftText      string     `db:"draft_text"`
	CaptionText    string     `db:"caption_text"`
	AssetURL       string     `db:"asset_url"`
	ResultURL      string     `db:"result_url"`
	ErrorMessage   string     `db:"error_message"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// LockExpired reports whether the job's lock has lapsed at the given
// instant. Jobs with no lock are not expired, they are unheld.
func (j *Job) LockExpired(now time.Time) bool {
	return j.LockHolder != "" && j.LockExpiry != nil && now.After(*j.LockExpiry)
}
