package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/api/dto"
	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
	"github.com/Brutus88Ai/brutus-x-ai/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateRender handles POST /api/v1/renders.
// Inserts the job in pending state and notifies the worker queue; the
// poll sweep picks the job up even if the publish fails.
func (h *RenderHandler) CreateRender(c *gin.Context) {
	var req dto.CreateRenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	payload := domain.RenderPayload{
		Topic:           req.Topic,
		PromptText:      req.PromptText,
		ScriptID:        req.ScriptID,
		Ratio:           req.Ratio,
		DurationSeconds: req.DurationSeconds,
	}
	if err := payload.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	encoded, err := payload.Encode()
	if err != nil {
		h.logger.Error("Failed to encode payload", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create render job",
		})
		return
	}

	now := time.Now().UTC()
	job := domain.Job{
		ID:        uuid.NewString(),
		Payload:   encoded,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.Create(c.Request.Context(), &job); err != nil {
		h.logger.Error("Failed to create render job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create render job",
		})
		return
	}

	h.publishCreated(c, job.ID)
	h.broadcast()

	c.JSON(http.StatusCreated, dto.FromJob(&job))
}

// GetRender handles GET /api/v1/renders/:job_id.
func (h *RenderHandler) GetRender(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Render job not found",
			})
			return
		}
		h.logger.Error("Failed to get render job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get render job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// ListRenders handles GET /api/v1/renders with cursor pagination.
func (h *RenderHandler) ListRenders(c *gin.Context) {
	var req dto.ListRendersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Status != "" && !domain.Status(req.Status).IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown status filter",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.store.List(c.Request.Context(), store.JobFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list render jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list render jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	out := make([]dto.RenderJobDTO, len(jobs))
	for i := range jobs {
		out[i] = dto.FromJob(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&store.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListRendersResponse{
		Renders:    out,
		NextCursor: nextCursor,
	})
}

// CancelRender handles POST /api/v1/renders/:job_id/cancel.
// The cancel only wins against non-terminal jobs; anything else is a
// conflict surfaced as 409.
func (h *RenderHandler) CancelRender(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	if _, err := h.store.Get(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Render job not found",
			})
			return
		}
		h.logger.Error("Failed to get render job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel render job",
		})
		return
	}

	if err := h.store.Cancel(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Render job already finished",
			})
			return
		}
		h.logger.Error("Failed to cancel render job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel render job",
		})
		return
	}

	h.logger.Info("Render job cancelled", slog.String("job_id", jobID))
	h.broadcast()

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": string(domain.StatusCancelled)})
		return
	}
	c.JSON(http.StatusOK, dto.FromJob(job))
}

// publishCreated notifies the worker queue about the new job. Publish
// failures are logged only; the timer-driven sweep is the fallback.
func (h *RenderHandler) publishCreated(c *gin.Context, jobID string) {
	if h.publisher == nil {
		return
	}

	body, err := json.Marshal(map[string]string{"job_id": jobID})
	if err != nil {
		h.logger.Error("Failed to encode job message", slog.String("error", err.Error()))
		return
	}

	if err := h.publisher.PublishWithRetry(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Warn("Failed to publish job message, poller will pick it up",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

func (h *RenderHandler) broadcast() {
	if h.hub != nil {
		h.hub.Broadcast()
	}
}
