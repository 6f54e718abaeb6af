package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brutus88Ai/brutus-x-ai/internal/api/dto"
	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
)

func seedAwaiting(t *testing.T, f *apiFixture, jobID, taskID string) {
	t.Helper()
	require.NoError(t, f.store.Create(context.Background(), &domain.Job{
		ID:             jobID,
		Payload:        `{"topic":"t","prompt_text":"p"}`,
		Status:         domain.StatusAwaitingProvider,
		ExternalTaskID: taskID,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}))
}

func TestProviderWebhook(t *testing.T) {
	const jobID = "5c1f9e9e-7a10-4b86-9e6c-444444444444"

	t.Run("completion moves the job to completed", func(t *testing.T) {
		f := newAPIFixture()
		seedAwaiting(t, f, jobID, "task-1")

		rec := f.do(t, http.MethodPost, "/webhooks/render", dto.ProviderWebhookRequest{
			TaskID:      "task-1",
			Status:      "completed",
			ArtifactURL: "https://provider.example.com/v.mp4",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		got, err := f.store.Get(context.Background(), jobID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, got.Status)
		assert.Equal(t, "https://provider.example.com/v.mp4", got.ResultURL)
	})

	t.Run("accepts the provider's id spelling", func(t *testing.T) {
		f := newAPIFixture()
		seedAwaiting(t, f, jobID, "task-1")

		rec := f.do(t, http.MethodPost, "/webhooks/render", dto.ProviderWebhookRequest{
			ID:          "task-1",
			Status:      "completed",
			ArtifactURL: "https://provider.example.com/v.mp4",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("duplicate delivery is still 200", func(t *testing.T) {
		f := newAPIFixture()
		seedAwaiting(t, f, jobID, "task-1")

		body := dto.ProviderWebhookRequest{
			TaskID:      "task-1",
			Status:      "completed",
			ArtifactURL: "https://provider.example.com/v.mp4",
		}
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/webhooks/render", body).Code)

		body.ArtifactURL = "https://provider.example.com/other.mp4"
		rec := f.do(t, http.MethodPost, "/webhooks/render", body)
		require.Equal(t, http.StatusOK, rec.Code)

		got, err := f.store.Get(context.Background(), jobID)
		require.NoError(t, err)
		assert.Equal(t, "https://provider.example.com/v.mp4", got.ResultURL, "first delivery wins")
	})

	t.Run("failure callback records the message", func(t *testing.T) {
		f := newAPIFixture()
		seedAwaiting(t, f, jobID, "task-1")

		rec := f.do(t, http.MethodPost, "/webhooks/render", dto.ProviderWebhookRequest{
			TaskID: "task-1",
			Status: "failed",
			Error:  "render worker crashed",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		got, err := f.store.Get(context.Background(), jobID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, got.Status)
		assert.Equal(t, "render worker crashed", got.ErrorMessage)
	})

	t.Run("unknown task id is 404", func(t *testing.T) {
		f := newAPIFixture()

		rec := f.do(t, http.MethodPost, "/webhooks/render", dto.ProviderWebhookRequest{
			TaskID: "task-unknown",
			Status: "completed",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing task id is 400", func(t *testing.T) {
		f := newAPIFixture()

		rec := f.do(t, http.MethodPost, "/webhooks/render", dto.ProviderWebhookRequest{
			Status: "completed",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing status is 400", func(t *testing.T) {
		f := newAPIFixture()

		rec := f.do(t, http.MethodPost, "/webhooks/render", map[string]string{
			"task_id": "task-1",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
