package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
)

// Memory is an in-process Store with the same conditional-update
// semantics as Postgres, used in tests and local development. All
// mutations happen under one mutex, so each read-modify-write is
// atomic.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

// SetClock overrides the store's clock, for expiry tests.
func (s *Memory) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Memory) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *Memory) Get(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *Memory) GetByExternalTaskID(_ context.Context, taskID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.byTaskLocked(taskID)
	if job == nil {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *Memory) FindClaimable(_ context.Context, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []domain.Job
	for _, job := range s.jobs {
		if s.claimableLocked(job, now) {
			out = append(out, *job)
		}
	}

	sortByCreation(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) FindStalled(_ context.Context, olderThan time.Time, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Job
	for _, job := range s.jobs {
		if job.Status == domain.StatusAwaitingProvider && job.LockHolder == "" && job.UpdatedAt.Before(olderThan) {
			out = append(out, *job)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) Claim(_ context.Context, id, workerID string, expiry time.Time) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !s.claimableLocked(job, s.now()) {
		return nil, domain.ErrConflict
	}

	job.Status = domain.StatusClaimed
	job.LockHolder = workerID
	exp := expiry
	job.LockExpiry = &exp
	job.UpdatedAt = s.now()

	cp := *job
	return &cp, nil
}

func (s *Memory) Renew(_ context.Context, id, workerID string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.LockHolder != workerID {
		return domain.ErrConflict
	}

	exp := expiry
	job.LockExpiry = &exp
	job.UpdatedAt = s.now()
	return nil
}

func (s *Memory) Release(_ context.Context, id, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.LockHolder != workerID {
		return nil // lock already gone, same no-op as the SQL path
	}

	job.LockHolder = ""
	job.LockExpiry = nil
	job.UpdatedAt = s.now()
	return nil
}

func (s *Memory) Advance(_ context.Context, id, workerID string, from, to domain.Status, mut Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != from || job.LockHolder != workerID {
		return domain.ErrConflict
	}

	job.Status = to
	if mut.DraftText != nil {
		job.DraftText = *mut.DraftText
	}
	if mut.CaptionText != nil {
		job.CaptionText = *mut.CaptionText
	}
	if mut.AssetURL != nil {
		job.AssetURL = *mut.AssetURL
	}
	if mut.ExternalTaskID != nil {
		job.ExternalTaskID = *mut.ExternalTaskID
	}
	job.UpdatedAt = s.now()
	return nil
}

func (s *Memory) Fail(_ context.Context, id, workerID, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.LockHolder != workerID || job.Status.IsTerminal() {
		return domain.ErrConflict
	}

	job.Status = domain.StatusFailed
	job.ErrorMessage = errorMessage
	job.LockHolder = ""
	job.LockExpiry = nil
	job.UpdatedAt = s.now()
	return nil
}

func (s *Memory) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return domain.ErrConflict
	}

	job.Status = domain.StatusCancelled
	job.LockHolder = ""
	job.LockExpiry = nil
	job.UpdatedAt = s.now()
	return nil
}

func (s *Memory) CompleteByTask(_ context.Context, taskID, resultURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.byTaskLocked(taskID)
	if job == nil || job.Status != domain.StatusAwaitingProvider {
		return domain.ErrConflict
	}

	job.Status = domain.StatusCompleted
	job.ResultURL = resultURL
	job.LockHolder = ""
	job.LockExpiry = nil
	job.UpdatedAt = s.now()
	return nil
}

func (s *Memory) FailByTask(_ context.Context, taskID, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.byTaskLocked(taskID)
	if job == nil || job.Status != domain.StatusAwaitingProvider {
		return domain.ErrConflict
	}

	job.Status = domain.StatusFailed
	job.ErrorMessage = errorMessage
	job.LockHolder = ""
	job.LockExpiry = nil
	job.UpdatedAt = s.now()
	return nil
}

func (s *Memory) List(_ context.Context, filter JobFilter) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Job
	for _, job := range s.jobs {
		if filter.Status != "" && string(job.Status) != filter.Status {
			continue
		}
		if filter.Cursor != nil {
			after := job.CreatedAt.After(filter.Cursor.CreatedAt) ||
				(job.CreatedAt.Equal(filter.Cursor.CreatedAt) && job.ID >= filter.Cursor.JobID)
			if after {
				continue
			}
		}
		out = append(out, *job)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out, nil
}

func (s *Memory) byTaskLocked(taskID string) *domain.Job {
	if taskID == "" {
		return nil
	}
	for _, job := range s.jobs {
		if job.ExternalTaskID == taskID {
			return job
		}
	}
	return nil
}

func (s *Memory) claimableLocked(job *domain.Job, now time.Time) bool {
	if job.Status == domain.StatusPending {
		return true
	}
	if job.Status.IsTerminal() {
		return false
	}
	return job.LockExpiry != nil && now.After(*job.LockExpiry)
}

func sortByCreation(jobs []domain.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}
