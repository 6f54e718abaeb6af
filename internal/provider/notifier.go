package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
)

// WebhookNotifier posts terminal job outcomes to the distribution
// webhook that fans completed videos out to the social platforms.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookNotifier creates a notifier for the given webhook URL.
func NewWebhookNotifier(url string, timeout time.Duration, logger *slog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type distributionPayload struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Error    string `json:"error,omitempty"`
}

// JobFinished posts the outcome. Failures are the caller's to log;
// distribution is fire-and-forget with respect to job state.
func (n *WebhookNotifier) JobFinished(ctx context.Context, job *domain.Job) error {
	body, err := json.Marshal(distributionPayload{
		JobID:    job.ID,
		Status:   string(job.Status),
		VideoURL: job.ResultURL,
		Caption:  job.CaptionText,
		Error:    job.ErrorMessage,
	})
	if err != nil {
		return fmt.Errorf("failed to encode distribution payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build distribution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return domain.NewProviderError("distribution", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.NewProviderError("distribution",
			fmt.Errorf("webhook returned %d", resp.StatusCode))
	}

	n.logger.Info("Distribution notified",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
	)

	return nil
}

// LogNotifier is the sink used when no distribution webhook is
// configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// JobFinished logs the terminal outcome.
func (n *LogNotifier) JobFinished(_ context.Context, job *domain.Job) error {
	n.Logger.Info("Job finished",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
		slog.String("result_url", job.ResultURL),
	)
	return nil
}
