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
)

const drafterSystemPrompt = "You are a viral content strategist. Write a short spoken script " +
	"with a hook, a body and a call to action for a vertical video under 60 seconds. " +
	"Return only the script text."

// LLMConfig configures the drafting model client.
type LLMConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// LLMDrafter generates scripts through a chat-completions style API.
type LLMDrafter struct {
	cfg    *LLMConfig
	client *http.Client
	logger *slog.Logger
}

// NewLLMDrafter creates a drafting client.
func NewLLMDrafter(cfg *LLMConfig, logger *slog.Logger) *LLMDrafter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMDrafter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Draft asks the model for a script built from the job payload.
func (d *LLMDrafter) Draft(ctx context.Context, payload *domain.RenderPayload) (string, error) {
	userPrompt := fmt.Sprintf("Topic: %s\n%s", payload.Topic, payload.PromptText)

	body, err := json.Marshal(chatRequest{
		Model: d.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: drafterSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens: d.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode draft request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build draft request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return "", domain.NewProviderError("llm", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", domain.NewProviderError("llm",
			fmt.Errorf("draft request returned %d: %s", resp.StatusCode, string(detail)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.NewProviderError("llm", fmt.Errorf("malformed draft response: %w", err))
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", domain.NewProviderError("llm", fmt.Errorf("empty draft response"))
	}

	d.logger.Debug("Draft generated",
		slog.Int("length", len(out.Choices[0].Message.Content)),
	)

	return out.Choices[0].Message.Content, nil
}

// MockDrafter is the development fallback when no model API key is
// configured. It produces a deterministic hook/body/cta script.
type MockDrafter struct{}

// Draft returns a canned script built from the payload.
func (MockDrafter) Draft(_ context.Context, payload *domain.RenderPayload) (string, error) {
	return fmt.Sprintf(
		"Hook: What if %s changed everything?\nBody: Here is how %s works, step by step.\nCTA: Follow for more.",
		payload.Topic, payload.Topic,
	), nil
}
