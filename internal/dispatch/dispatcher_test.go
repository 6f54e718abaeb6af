package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
	"github.com/Brutus88Ai/brutus-x-ai/internal/lock"
	"github.com/Brutus88Ai/brutus-x-ai/internal/pipeline"
	"github.com/Brutus88Ai/brutus-x-ai/internal/store"
)

type countingProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *countingProvider) StartRender(_ context.Context, _ pipeline.RenderRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return "task-1", nil
}

func (p *countingProvider) TaskStatus(_ context.Context, _ string) (*pipeline.TaskState, error) {
	return &pipeline.TaskState{Status: pipeline.TaskRunning}, nil
}

type staticDrafter struct{}

func (staticDrafter) Draft(_ context.Context, _ *domain.RenderPayload) (string, error) {
	return "draft", nil
}

type staticOptimizer struct{}

func (staticOptimizer) Optimize(_ context.Context, draft string) (string, error) {
	return draft + " #shorts", nil
}

type staticAssets struct{}

func (staticAssets) Generate(_ context.Context, _ string) (string, error) {
	return "https://img.example.com/a.jpg", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(workerID string, s *store.Memory, provider pipeline.RenderProvider) *Dispatcher {
	logger := testLogger()
	locks := lock.NewManager(s, logger)
	executor := pipeline.NewExecutor(&pipeline.Config{
		Store:     s,
		Locks:     locks,
		Drafter:   staticDrafter{},
		Optimizer: staticOptimizer{},
		Assets:    staticAssets{},
		Provider:  provider,
		Logger:    logger,
	})
	return NewDispatcher(&Config{
		Store:    s,
		Locks:    locks,
		Executor: executor,
		WorkerID: workerID,
		Logger:   logger,
	})
}

func seedPending(t *testing.T, s *store.Memory, id string, createdAt time.Time) {
	t.Helper()
	payload := domain.RenderPayload{Topic: "t", PromptText: "p"}
	raw, err := payload.Encode()
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), &domain.Job{
		ID:        id,
		Payload:   raw,
		Status:    domain.StatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}))
}

func TestDispatcher_TryRun(t *testing.T) {
	ctx := context.Background()

	t.Run("claims and runs the pipeline", func(t *testing.T) {
		s := store.NewMemory()
		provider := &countingProvider{}
		d := newTestDispatcher("worker-a", s, provider)
		seedPending(t, s, "job-1", time.Now())

		processed, err := d.TryRun(ctx, "job-1")
		require.NoError(t, err)
		assert.True(t, processed)

		got, err := s.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAwaitingProvider, got.Status)
		assert.Equal(t, 1, provider.calls)
	})

	t.Run("reports busy without touching the job", func(t *testing.T) {
		s := store.NewMemory()
		d := newTestDispatcher("worker-a", s, &countingProvider{})
		seedPending(t, s, "job-1", time.Now())

		d.busy.Lock()
		processed, err := d.TryRun(ctx, "job-1")
		d.busy.Unlock()

		require.NoError(t, err)
		assert.False(t, processed)

		got, err := s.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
	})

	t.Run("lost claim is a silent skip", func(t *testing.T) {
		s := store.NewMemory()
		provider := &countingProvider{}
		d := newTestDispatcher("worker-a", s, provider)
		seedPending(t, s, "job-1", time.Now())

		// Another worker already holds the job.
		_, err := s.Claim(ctx, "job-1", "worker-other", time.Now().Add(5*time.Minute))
		require.NoError(t, err)

		processed, err := d.TryRun(ctx, "job-1")
		require.NoError(t, err)
		assert.True(t, processed)
		assert.Equal(t, 0, provider.calls)
	})
}

func TestDispatcher_Sweep_ProcessesOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	provider := &countingProvider{}
	d := newTestDispatcher("worker-a", s, provider)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedPending(t, s, "job-newer", base.Add(time.Minute))
	seedPending(t, s, "job-older", base)

	d.sweep(ctx)

	assert.Equal(t, 2, provider.calls)

	for _, id := range []string{"job-older", "job-newer"} {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAwaitingProvider, got.Status, id)
	}
}

func TestDispatcher_TwoWorkersOneJob(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	provider := &countingProvider{}

	d1 := newTestDispatcher("worker-a", s, provider)
	d2 := newTestDispatcher("worker-b", s, provider)
	seedPending(t, s, "job-1", time.Now())

	var wg sync.WaitGroup
	for _, d := range []*Dispatcher{d1, d2} {
		wg.Add(1)
		go func(d *Dispatcher) {
			defer wg.Done()
			_, err := d.TryRun(ctx, "job-1")
			assert.NoError(t, err)
		}(d)
	}
	wg.Wait()

	assert.Equal(t, 1, provider.calls, "only the claim winner may dispatch")

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingProvider, got.Status)
}

func TestDispatcher_Sweep_ReclaimsExpiredLock(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	provider := &countingProvider{}
	d := newTestDispatcher("worker-b", s, provider)

	seedPending(t, s, "job-1", time.Now())

	// A previous worker claimed the job and died.
	_, err := s.Claim(ctx, "job-1", "worker-dead", time.Now().Add(time.Minute))
	require.NoError(t, err)

	s.SetClock(func() time.Time { return time.Now().Add(10 * time.Minute) })

	d.sweep(ctx)

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingProvider, got.Status)
	assert.Equal(t, 1, provider.calls)
}
