// Package lock implements exclusive, time-bounded ownership of a single
// render job. The lock lives on the job row itself and every operation
// is a conditional update, so multiple workers (and duplicate triggers
// for the same job) can race safely: exactly one wins.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
	"github.com/Brutus88Ai/brutus-x-ai/internal/store"
)

// DefaultTTL bounds the blast radius of a crashed worker to one window.
// After it elapses any worker may reclaim the job, trading a small
// duplicate-work risk for availability.
const DefaultTTL = 5 * time.Minute

// Manager acquires, renews and releases job locks on top of the store's
// conditional-update primitive.
type Manager struct {
	store  store.Store
	logger *slog.Logger
}

// NewManager creates a lock manager.
func NewManager(s store.Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:  s,
		logger: logger,
	}
}

// Acquire attempts to take the lock for workerID. It returns (nil, nil)
// when another worker holds a valid lock or the job is already
// terminal; that outcome is the idempotency guard against duplicate
// provider invocations, not an error.
func (m *Manager) Acquire(ctx context.Context, jobID, workerID string, ttl time.Duration) (*domain.Job, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	job, err := m.store.Claim(ctx, jobID, workerID, time.Now().Add(ttl))
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			m.logger.Debug("Lock acquire lost race",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	m.logger.Info("Lock acquired",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
		slog.Duration("ttl", ttl),
	)

	return job, nil
}

// Renew extends the lock expiry while workerID still holds it, for
// pipelines whose stages may individually outlast the base TTL.
func (m *Manager) Renew(ctx context.Context, jobID, workerID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if err := m.store.Renew(ctx, jobID, workerID, time.Now().Add(ttl)); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("%w: lock no longer held by %s", domain.ErrConflict, workerID)
		}
		return fmt.Errorf("failed to renew lock: %w", err)
	}

	return nil
}

// Release clears the lock while workerID holds it. Safe on terminal
// jobs; releasing an already-cleared lock is a no-op.
func (m *Manager) Release(ctx context.Context, jobID, workerID string) error {
	if err := m.store.Release(ctx, jobID, workerID); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	m.logger.Debug("Lock released",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
	)

	return nil
}
