package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
	"github.com/Brutus88Ai/brutus-x-ai/internal/store"
)

type fakeNotifier struct {
	calls []domain.Job
	err   error
}

func (n *fakeNotifier) JobFinished(_ context.Context, job *domain.Job) error {
	n.calls = append(n.calls, *job)
	return n.err
}

type fakeArchiver struct {
	url   string
	err   error
	calls int
}

func (a *fakeArchiver) Archive(_ context.Context, _, _ string) (string, error) {
	a.calls++
	return a.url, a.err
}

func seedAwaitingJob(t *testing.T, s *store.Memory, id, taskID string) {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), &domain.Job{
		ID:             id,
		Payload:        `{"topic":"t","prompt_text":"p"}`,
		Status:         domain.StatusAwaitingProvider,
		ExternalTaskID: taskID,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}))
}

func TestCompleter_Apply_Completed(t *testing.T) {
	s := store.NewMemory()
	notifier := &fakeNotifier{}
	c := NewCompleter(s, nil, notifier, discardLogger())
	ctx := context.Background()

	seedAwaitingJob(t, s, "job-1", "task-1")

	err := c.Apply(ctx, CompletionNotice{
		TaskID:      "task-1",
		Status:      TaskCompleted,
		ArtifactURL: "https://provider.example.com/v.mp4",
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "https://provider.example.com/v.mp4", got.ResultURL)

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "job-1", notifier.calls[0].ID)
}

func TestCompleter_Apply_DuplicateIsNoOp(t *testing.T) {
	s := store.NewMemory()
	notifier := &fakeNotifier{}
	c := NewCompleter(s, nil, notifier, discardLogger())
	ctx := context.Background()

	seedAwaitingJob(t, s, "job-1", "task-1")

	notice := CompletionNotice{
		TaskID:      "task-1",
		Status:      TaskCompleted,
		ArtifactURL: "https://provider.example.com/v.mp4",
	}
	require.NoError(t, c.Apply(ctx, notice))

	// Redelivered notice: discarded, not an error, no second
	// notification.
	notice.ArtifactURL = "https://provider.example.com/other.mp4"
	require.NoError(t, c.Apply(ctx, notice))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "https://provider.example.com/v.mp4", got.ResultURL)
	assert.Len(t, notifier.calls, 1)
}

func TestCompleter_Apply_StaleAfterCancel(t *testing.T) {
	s := store.NewMemory()
	notifier := &fakeNotifier{}
	c := NewCompleter(s, nil, notifier, discardLogger())
	ctx := context.Background()

	seedAwaitingJob(t, s, "job-1", "task-1")
	require.NoError(t, s.Cancel(ctx, "job-1"))

	err := c.Apply(ctx, CompletionNotice{
		TaskID:      "task-1",
		Status:      TaskCompleted,
		ArtifactURL: "https://provider.example.com/v.mp4",
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Empty(t, got.ResultURL)
	assert.Empty(t, notifier.calls)
}

func TestCompleter_Apply_Failed(t *testing.T) {
	t.Run("with provider message", func(t *testing.T) {
		s := store.NewMemory()
		c := NewCompleter(s, nil, &fakeNotifier{}, discardLogger())
		ctx := context.Background()

		seedAwaitingJob(t, s, "job-1", "task-1")

		err := c.Apply(ctx, CompletionNotice{
			TaskID: "task-1",
			Status: TaskFailed,
			Error:  "content policy rejection",
		})
		require.NoError(t, err)

		got, err := s.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, got.Status)
		assert.Equal(t, "content policy rejection", got.ErrorMessage)
	})

	t.Run("without provider message", func(t *testing.T) {
		s := store.NewMemory()
		c := NewCompleter(s, nil, &fakeNotifier{}, discardLogger())
		ctx := context.Background()

		seedAwaitingJob(t, s, "job-1", "task-1")

		require.NoError(t, c.Apply(ctx, CompletionNotice{TaskID: "task-1", Status: TaskFailed}))

		got, err := s.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "render provider reported failure", got.ErrorMessage)
	})
}

func TestCompleter_Apply_Validation(t *testing.T) {
	s := store.NewMemory()
	c := NewCompleter(s, nil, &fakeNotifier{}, discardLogger())
	ctx := context.Background()

	t.Run("missing task id", func(t *testing.T) {
		err := c.Apply(ctx, CompletionNotice{Status: TaskCompleted})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("unknown task id", func(t *testing.T) {
		err := c.Apply(ctx, CompletionNotice{TaskID: "task-missing", Status: TaskCompleted})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unknown status is ignored", func(t *testing.T) {
		seedAwaitingJob(t, s, "job-1", "task-1")

		require.NoError(t, c.Apply(ctx, CompletionNotice{TaskID: "task-1", Status: "processing"}))

		got, err := s.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAwaitingProvider, got.Status)
	})

	t.Run("completed without artifact URL fails the job", func(t *testing.T) {
		seedAwaitingJob(t, s, "job-2", "task-2")

		require.NoError(t, c.Apply(ctx, CompletionNotice{TaskID: "task-2", Status: TaskCompleted}))

		got, err := s.Get(ctx, "job-2")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, got.Status)
		assert.Contains(t, got.ErrorMessage, "no artifact URL")
	})
}

func TestCompleter_Apply_Archiver(t *testing.T) {
	t.Run("archived URL becomes the result", func(t *testing.T) {
		s := store.NewMemory()
		archiver := &fakeArchiver{url: "http://localhost:8080/artifacts/job-1/1.mp4"}
		c := NewCompleter(s, archiver, &fakeNotifier{}, discardLogger())
		ctx := context.Background()

		seedAwaitingJob(t, s, "job-1", "task-1")

		err := c.Apply(ctx, CompletionNotice{
			TaskID:      "task-1",
			Status:      TaskCompleted,
			ArtifactURL: "https://provider.example.com/v.mp4",
		})
		require.NoError(t, err)

		got, err := s.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, archiver.url, got.ResultURL)
		assert.Equal(t, 1, archiver.calls)
	})

	t.Run("archive failure fails the job", func(t *testing.T) {
		s := store.NewMemory()
		archiver := &fakeArchiver{err: errors.New("download timed out")}
		c := NewCompleter(s, archiver, &fakeNotifier{}, discardLogger())
		ctx := context.Background()

		seedAwaitingJob(t, s, "job-1", "task-1")

		err := c.Apply(ctx, CompletionNotice{
			TaskID:      "task-1",
			Status:      TaskCompleted,
			ArtifactURL: "https://provider.example.com/v.mp4",
		})
		require.NoError(t, err)

		got, err := s.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, got.Status)
		assert.Contains(t, got.ErrorMessage, "artifact download failed")
	})
}

func TestCompleter_NotifierFailureDoesNotFailTheJob(t *testing.T) {
	s := store.NewMemory()
	notifier := &fakeNotifier{err: errors.New("webhook 503")}
	c := NewCompleter(s, nil, notifier, discardLogger())
	ctx := context.Background()

	seedAwaitingJob(t, s, "job-1", "task-1")

	err := c.Apply(ctx, CompletionNotice{
		TaskID:      "task-1",
		Status:      TaskCompleted,
		ArtifactURL: "https://provider.example.com/v.mp4",
	})
	require.NoError(t, err)

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}
