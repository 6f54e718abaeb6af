package handler

import (
	"context"
	"log/slog"

	"github.com/Brutus88Ai/brutus-x-ai/internal/api/ws"
	"github.com/Brutus88Ai/brutus-x-ai/internal/pipeline"
	"github.com/Brutus88Ai/brutus-x-ai/internal/store"
)

// Publisher is the slice of the queue client the handlers need; the
// RabbitMQ client satisfies it.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Logger    *slog.Logger
	Store     store.Store
	Publisher Publisher // optional; the poll sweep covers jobs that miss the queue
	Completer *pipeline.Completer
	Hub       *ws.Hub // optional live status stream
}

// RenderHandler serves the render job API.
type RenderHandler struct {
	logger    *slog.Logger
	store     store.Store
	publisher Publisher
	completer *pipeline.Completer
	hub       *ws.Hub
}

// NewRenderHandler creates a RenderHandler.
func NewRenderHandler(deps *Dependencies) *RenderHandler {
	return &RenderHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		publisher: deps.Publisher,
		completer: deps.Completer,
		hub:       deps.Hub,
	}
}
