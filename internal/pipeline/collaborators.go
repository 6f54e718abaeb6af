package pipeline

import (
	"context"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
)

// Drafter produces the spoken/text script for a job from its payload.
type Drafter interface {
	Draft(ctx context.Context, payload *domain.RenderPayload) (string, error)
}

// Optimizer rewrites a draft into the caption actually published.
type Optimizer interface {
	Optimize(ctx context.Context, draft string) (string, error)
}

// AssetGenerator produces a preview asset reference for a visual prompt.
type AssetGenerator interface {
	Generate(ctx context.Context, visualPrompt string) (string, error)
}

// RenderRequest is the abstract dispatch contract to the external
// render provider.
type RenderRequest struct {
	PromptText      string
	PromptImage     string
	Ratio           string
	DurationSeconds int
}

// Task state values reported by the render provider.
const (
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// TaskState is the provider's view of a previously started render.
type TaskState struct {
	Status      string
	ArtifactURL string
	Error       string
}

// RenderProvider starts asynchronous renders and reports their state.
type RenderProvider interface {
	// StartRender submits the render and returns the provider's task
	// id synchronously, or an error.
	StartRender(ctx context.Context, req RenderRequest) (string, error)

	// TaskStatus fetches the current state of a started render; used
	// by the reconciler when no completion callback ever arrives.
	TaskStatus(ctx context.Context, taskID string) (*TaskState, error)
}

// Notifier is the downstream sink told about terminal jobs, e.g. the
// distribution webhook that fans completed videos out to platforms.
// Notification failures are logged, never fail the job.
type Notifier interface {
	JobFinished(ctx context.Context, job *domain.Job) error
}

// Archiver copies a completed artifact out of the provider into owned
// storage and returns the rewritten public URL.
type Archiver interface {
	Archive(ctx context.Context, jobID, sourceURL string) (string, error)
}
