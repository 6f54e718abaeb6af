package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
	"github.com/Brutus88Ai/brutus-x-ai/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRenderClient_StartRender(t *testing.T) {
	ctx := context.Background()

	t.Run("submits the render and returns the task id", func(t *testing.T) {
		var captured startRenderRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/renders", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			json.NewEncoder(w).Encode(map[string]string{"id": "task-99"})
		}))
		defer srv.Close()

		c := NewRenderClient(&RenderConfig{
			BaseURL:        srv.URL,
			APIKey:         "test-key",
			Model:          "video-01",
			DefaultRatio:   "720:1280",
			DefaultSeconds: 5,
		}, discardLogger())

		taskID, err := c.StartRender(ctx, pipeline.RenderRequest{
			PromptText:  "a red fox",
			PromptImage: "https://img.example.com/a.jpg",
		})
		require.NoError(t, err)
		assert.Equal(t, "task-99", taskID)

		// Defaults fill the fields the payload left empty.
		assert.Equal(t, "720:1280", captured.Ratio)
		assert.Equal(t, 5, captured.Duration)
		assert.Equal(t, "video-01", captured.Model)
	})

	t.Run("accepts the taskId spelling", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"taskId": "task-7"})
		}))
		defer srv.Close()

		c := NewRenderClient(&RenderConfig{BaseURL: srv.URL}, discardLogger())

		taskID, err := c.StartRender(ctx, pipeline.RenderRequest{PromptText: "p"})
		require.NoError(t, err)
		assert.Equal(t, "task-7", taskID)
	})

	t.Run("non-2xx is a provider error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "quota exceeded", http.StatusPaymentRequired)
		}))
		defer srv.Close()

		c := NewRenderClient(&RenderConfig{BaseURL: srv.URL}, discardLogger())

		_, err := c.StartRender(ctx, pipeline.RenderRequest{PromptText: "p"})
		require.Error(t, err)

		var provErr *domain.ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Contains(t, err.Error(), "402")
	})

	t.Run("missing task id is a provider error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{})
		}))
		defer srv.Close()

		c := NewRenderClient(&RenderConfig{BaseURL: srv.URL}, discardLogger())

		_, err := c.StartRender(ctx, pipeline.RenderRequest{PromptText: "p"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "task id")
	})
}

func TestRenderClient_TaskStatus(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/renders/task-99", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"status":      "completed",
			"artifactUrl": "https://cdn.example.com/v.mp4",
		})
	}))
	defer srv.Close()

	c := NewRenderClient(&RenderConfig{BaseURL: srv.URL}, discardLogger())

	state, err := c.TaskStatus(ctx, "task-99")
	require.NoError(t, err)
	assert.Equal(t, "completed", state.Status)
	assert.Equal(t, "https://cdn.example.com/v.mp4", state.ArtifactURL)
}

func TestMockDrafter(t *testing.T) {
	draft, err := MockDrafter{}.Draft(context.Background(), &domain.RenderPayload{
		Topic:      "go generics",
		PromptText: "p",
	})
	require.NoError(t, err)
	assert.Contains(t, draft, "Hook:")
	assert.Contains(t, draft, "go generics")
	assert.Contains(t, draft, "CTA:")
}
