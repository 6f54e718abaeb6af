// Package ws streams job state to dashboards over WebSocket, as an
// alternative to HTTP polling.
package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/api/dto"
	"github.com/Brutus88Ai/brutus-x-ai/internal/store"
	"github.com/gorilla/websocket"
)

// client wraps a connection with a write mutex. gorilla/websocket allows
// at most one concurrent writer per connection, and broadcasts from
// handlers, the refresh loop, and the connect-time snapshot can overlap.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub tracks connected clients and pushes the current job listing on
// every broadcast. Broadcasts are triggered by API-side events and by a
// periodic refresh, so worker-side transitions surface without a
// dedicated event bus.
type Hub struct {
	store     store.Store
	logger    *slog.Logger
	pageSize  int
	clients   map[*client]bool
	clientsMu sync.Mutex
}

// NewHub creates a hub over the job store.
func NewHub(s store.Store, logger *slog.Logger) *Hub {
	return &Hub{
		store:    s,
		logger:   logger,
		pageSize: 50,
		clients:  make(map[*client]bool),
	}
}

// AddClient registers a connection, sends it the current state, and
// reaps it on disconnect.
func (h *Hub) AddClient(conn *websocket.Conn) {
	cl := &client{conn: conn}

	h.clientsMu.Lock()
	h.clients[cl] = true
	count := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Info("Status stream client connected",
		slog.Int("clients", count),
	)

	h.sendSnapshot(cl)

	go func() {
		defer func() {
			h.clientsMu.Lock()
			delete(h.clients, cl)
			h.clientsMu.Unlock()
			conn.Close()
			h.logger.Info("Status stream client disconnected")
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast pushes the current listing to every client.
func (h *Hub) Broadcast() {
	h.clientsMu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.clientsMu.Unlock()

	for _, cl := range clients {
		go h.sendSnapshot(cl)
	}
}

// RunRefreshLoop broadcasts on a fixed interval until the context is
// cancelled, covering transitions made by worker processes.
func (h *Hub) RunRefreshLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.ClientCount() > 0 {
				h.Broadcast()
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

func (h *Hub) sendSnapshot(cl *client) {
	jobs, err := h.store.List(context.Background(), store.JobFilter{PageSize: h.pageSize})
	if err != nil {
		h.logger.Error("Failed to load jobs for status stream",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(jobs) > h.pageSize {
		jobs = jobs[:h.pageSize]
	}

	out := make([]dto.RenderJobDTO, len(jobs))
	for i := range jobs {
		out[i] = dto.FromJob(&jobs[i])
	}

	if err := cl.writeJSON(map[string]interface{}{"renders": out}); err != nil {
		h.logger.Warn("Failed to push status stream update",
			slog.String("error", err.Error()),
		)
	}
}
