// Package provider implements the external collaborators of the render
// pipeline: the render provider client, the drafting model client, the
// preview asset generator, the distribution notifier and the artifact
// archiver. All HTTP contracts here are shaped like the upstream
// vendors but owned by this repo, not vendor-verbatim.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
	"github.com/Brutus88Ai/brutus-x-ai/internal/pipeline"
)

// RenderConfig configures the render provider client.
type RenderConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	DefaultRatio   string
	DefaultSeconds int
	Timeout        time.Duration
}

// RenderClient talks to the asynchronous render provider over HTTP.
type RenderClient struct {
	cfg    *RenderConfig
	client *http.Client
	logger *slog.Logger
}

// NewRenderClient creates a render provider client.
func NewRenderClient(cfg *RenderConfig, logger *slog.Logger) *RenderClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RenderClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type startRenderRequest struct {
	PromptText  string `json:"promptText"`
	PromptImage string `json:"promptImage,omitempty"`
	Ratio       string `json:"ratio"`
	Duration    int    `json:"duration"`
	Model       string `json:"model"`
}

type startRenderResponse struct {
	ID     string `json:"id"`
	TaskID string `json:"taskId"`
}

// StartRender submits the render and returns the provider task id. The
// provider acknowledges synchronously; the artifact arrives later via
// webhook.
func (c *RenderClient) StartRender(ctx context.Context, req pipeline.RenderRequest) (string, error) {
	ratio := req.Ratio
	if ratio == "" {
		ratio = c.cfg.DefaultRatio
	}
	seconds := req.DurationSeconds
	if seconds <= 0 {
		seconds = c.cfg.DefaultSeconds
	}

	body, err := json.Marshal(startRenderRequest{
		PromptText:  req.PromptText,
		PromptImage: req.PromptImage,
		Ratio:       ratio,
		Duration:    seconds,
		Model:       c.cfg.Model,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/renders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build render request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", domain.NewProviderError("render", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", domain.NewProviderError("render",
			fmt.Errorf("start render returned %d: %s", resp.StatusCode, string(detail)))
	}

	var out startRenderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.NewProviderError("render", fmt.Errorf("malformed start response: %w", err))
	}

	taskID := out.ID
	if taskID == "" {
		taskID = out.TaskID
	}
	if taskID == "" {
		return "", domain.NewProviderError("render", fmt.Errorf("provider did not return a task id"))
	}

	c.logger.Info("Render task started",
		slog.String("external_task_id", taskID),
	)

	return taskID, nil
}

type taskStatusResponse struct {
	Status      string `json:"status"`
	ArtifactURL string `json:"artifactUrl"`
	Error       string `json:"error"`
}

// TaskStatus fetches the current state of a started render.
func (c *RenderClient) TaskStatus(ctx context.Context, taskID string) (*pipeline.TaskState, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/renders/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, domain.NewProviderError("render", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.NewProviderError("render",
			fmt.Errorf("task status returned %d: %s", resp.StatusCode, string(detail)))
	}

	var out taskStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.NewProviderError("render", fmt.Errorf("malformed status response: %w", err))
	}

	return &pipeline.TaskState{
		Status:      out.Status,
		ArtifactURL: out.ArtifactURL,
		Error:       out.Error,
	}, nil
}
