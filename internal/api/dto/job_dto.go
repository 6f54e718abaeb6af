package dto

import (
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
)

// CreateRenderRequest is the job creation payload.
type CreateRenderRequest struct {
	Topic           string `json:"topic" binding:"required"`
	PromptText      string `json:"prompt_text" binding:"required"`
	ScriptID        string `json:"script_id"`
	Ratio           string `json:"ratio"`
	DurationSeconds int    `json:"duration_seconds"`
}

// RenderJobDTO is the external projection of a job. Terminal payload
// fields are present only when applicable; Terminal tells pollers
// whether to keep polling.
type RenderJobDTO struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	Terminal     bool   `json:"terminal"`
	CaptionText  string `json:"caption_text,omitempty"`
	AssetURL     string `json:"asset_url,omitempty"`
	ResultURL    string `json:"result_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// FromJob projects a job into its external shape. Result URL and error
// message are exposed only in their owning terminal state.
func FromJob(job *domain.Job) RenderJobDTO {
	out := RenderJobDTO{
		JobID:       job.ID,
		Status:      string(job.Status),
		Terminal:    job.Status.IsTerminal(),
		CaptionText: job.CaptionText,
		AssetURL:    job.AssetURL,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
	}

	switch job.Status {
	case domain.StatusCompleted:
		out.ResultURL = job.ResultURL
	case domain.StatusFailed:
		out.ErrorMessage = job.ErrorMessage
	}

	return out
}

// ListRendersRequest filters the render listing.
type ListRendersRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListRendersResponse is a cursor-paginated page of renders.
type ListRendersResponse struct {
	Renders    []RenderJobDTO `json:"renders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ProviderWebhookRequest is the completion callback body. Providers
// differ on the id field name, so both spellings are accepted.
type ProviderWebhookRequest struct {
	TaskID      string `json:"task_id"`
	ID          string `json:"id"`
	Status      string `json:"status" binding:"required"`
	ArtifactURL string `json:"artifact_url"`
	Error       string `json:"error"`
}

// ExternalTaskID returns whichever task id spelling was supplied.
func (r *ProviderWebhookRequest) ExternalTaskID() string {
	if r.TaskID != "" {
		return r.TaskID
	}
	return r.ID
}
