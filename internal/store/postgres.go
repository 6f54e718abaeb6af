package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	job_id, payload, status, lock_holder, lock_expiry, external_task_id,
	draft_text, caption_text, asset_url, result_url, error_message,
	created_at, updated_at
`

// Postgres implements Store on a render_jobs table. Every mutation is a
// single conditional UPDATE so the row's own predicate acts as the
// compare-and-swap.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(db *sqlx.DB, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:     db,
		logger: logger,
	}
}

func (s *Postgres) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO render_jobs (
			job_id, payload, status, lock_holder, external_task_id,
			draft_text, caption_text, asset_url, result_url, error_message,
			created_at, updated_at
		) VALUES ($1, $2, $3, '', '', '', '', '', '', '', $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Payload,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
	)

	return nil
}

func (s *Postgres) Get(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM render_jobs WHERE job_id = $1`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

func (s *Postgres) GetByExternalTaskID(ctx context.Context, taskID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM render_jobs WHERE external_task_id = $1`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job by task id: %w", err)
	}

	return &job, nil
}

func (s *Postgres) FindClaimable(ctx context.Context, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM render_jobs
		WHERE status = $1
		   OR (status NOT IN ($2, $3, $4) AND lock_expiry IS NOT NULL AND lock_expiry < NOW())
		ORDER BY created_at ASC, job_id ASC
		LIMIT $5
	`

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, query,
		domain.StatusPending,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find claimable jobs: %w", err)
	}

	return jobs, nil
}

func (s *Postgres) FindStalled(ctx context.Context, olderThan time.Time, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM render_jobs
		WHERE status = $1 AND lock_holder = '' AND updated_at < $2
		ORDER BY updated_at ASC, job_id ASC
		LIMIT $3
	`

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, query, domain.StatusAwaitingProvider, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find stalled jobs: %w", err)
	}

	return jobs, nil
}

func (s *Postgres) Claim(ctx context.Context, id, workerID string, expiry time.Time) (*domain.Job, error) {
	query := `
		UPDATE render_jobs
		SET status = $1,
		    lock_holder = $2,
		    lock_expiry = $3,
		    updated_at = NOW()
		WHERE job_id = $4
		  AND (status = $5
		       OR (status NOT IN ($6, $7, $8) AND lock_expiry IS NOT NULL AND lock_expiry < NOW()))
		RETURNING ` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query,
		domain.StatusClaimed, workerID, expiry,
		id,
		domain.StatusPending,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No row matched: either the job does not exist or another
			// holder won the claim. Callers treat the two differently.
			var exists bool
			checkErr := s.db.GetContext(ctx, &exists,
				`SELECT EXISTS (SELECT 1 FROM render_jobs WHERE job_id = $1)`, id)
			if checkErr != nil {
				return nil, fmt.Errorf("failed to claim job: %w", checkErr)
			}
			if !exists {
				return nil, domain.ErrNotFound
			}
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", id),
		slog.String("worker_id", workerID),
	)

	return &job, nil
}

func (s *Postgres) Renew(ctx context.Context, id, workerID string, expiry time.Time) error {
	query := `
		UPDATE render_jobs
		SET lock_expiry = $1, updated_at = NOW()
		WHERE job_id = $2 AND lock_holder = $3
	`

	return s.execConditional(ctx, query, expiry, id, workerID)
}

func (s *Postgres) Release(ctx context.Context, id, workerID string) error {
	query := `
		UPDATE render_jobs
		SET lock_holder = '', lock_expiry = NULL, updated_at = NOW()
		WHERE job_id = $1 AND lock_holder = $2
	`

	result, err := s.db.ExecContext(ctx, query, id, workerID)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	// Releasing a lock we no longer hold is a no-op, not an error: a
	// terminal transition may already have cleared it.
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("Release found no matching lock",
			slog.String("job_id", id),
			slog.String("worker_id", workerID),
		)
	}

	return nil
}

func (s *Postgres) Advance(ctx context.Context, id, workerID string, from, to domain.Status, mut Mutation) error {
	query := `
		UPDATE render_jobs
		SET status = $1,
		    draft_text = COALESCE($2, draft_text),
		    caption_text = COALESCE($3, caption_text),
		    asset_url = COALESCE($4, asset_url),
		    external_task_id = COALESCE($5, external_task_id),
		    updated_at = NOW()
		WHERE job_id = $6 AND status = $7 AND lock_holder = $8
	`

	err := s.execConditional(ctx, query,
		to,
		mut.DraftText, mut.CaptionText, mut.AssetURL, mut.ExternalTaskID,
		id, from, workerID,
	)
	if err != nil {
		return err
	}

	s.logger.Info("Job advanced",
		slog.String("job_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)

	return nil
}

func (s *Postgres) Fail(ctx context.Context, id, workerID, errorMessage string) error {
	query := `
		UPDATE render_jobs
		SET status = $1,
		    error_message = $2,
		    lock_holder = '',
		    lock_expiry = NULL,
		    updated_at = NOW()
		WHERE job_id = $3
		  AND lock_holder = $4
		  AND status NOT IN ($5, $6, $7)
	`

	return s.execConditional(ctx, query,
		domain.StatusFailed, errorMessage, id, workerID,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled,
	)
}

func (s *Postgres) Cancel(ctx context.Context, id string) error {
	query := `
		UPDATE render_jobs
		SET status = $1,
		    lock_holder = '',
		    lock_expiry = NULL,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status NOT IN ($3, $4, $5)
	`

	return s.execConditional(ctx, query,
		domain.StatusCancelled, id,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled,
	)
}

func (s *Postgres) CompleteByTask(ctx context.Context, taskID, resultURL string) error {
	query := `
		UPDATE render_jobs
		SET status = $1,
		    result_url = $2,
		    lock_holder = '',
		    lock_expiry = NULL,
		    updated_at = NOW()
		WHERE external_task_id = $3 AND status = $4
	`

	return s.execConditional(ctx, query,
		domain.StatusCompleted, resultURL, taskID, domain.StatusAwaitingProvider,
	)
}

func (s *Postgres) FailByTask(ctx context.Context, taskID, errorMessage string) error {
	query := `
		UPDATE render_jobs
		SET status = $1,
		    error_message = $2,
		    lock_holder = '',
		    lock_expiry = NULL,
		    updated_at = NOW()
		WHERE external_task_id = $3 AND status = $4
	`

	return s.execConditional(ctx, query,
		domain.StatusFailed, errorMessage, taskID, domain.StatusAwaitingProvider,
	)
}

func (s *Postgres) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM render_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra row so the caller can detect another page.
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// execConditional runs a guarded UPDATE and maps zero affected rows to
// domain.ErrConflict.
func (s *Postgres) execConditional(ctx context.Context, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrConflict
	}

	return nil
}
