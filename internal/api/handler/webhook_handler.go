package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Brutus88Ai/brutus-x-ai/internal/api/dto"
	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
	"github.com/Brutus88Ai/brutus-x-ai/internal/pipeline"
	"github.com/gin-gonic/gin"
)

// ProviderWebhook handles POST /webhooks/render, the completion
// callback from the external render provider. The completer's status
// guard makes redelivered notices no-ops, so this endpoint always
// answers 200 for duplicates.
func (h *RenderHandler) ProviderWebhook(c *gin.Context) {
	var req dto.ProviderWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid webhook body",
		})
		return
	}

	taskID := req.ExternalTaskID()
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing task id",
		})
		return
	}

	err := h.completer.Apply(c.Request.Context(), pipeline.CompletionNotice{
		TaskID:      taskID,
		Status:      req.Status,
		ArtifactURL: req.ArtifactURL,
		Error:       req.Error,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No render job for task id",
			})
			return
		}
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		h.logger.Error("Failed to apply provider webhook",
			slog.String("external_task_id", taskID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to apply webhook",
		})
		return
	}

	h.broadcast()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
