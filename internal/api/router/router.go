package router

import (
	"log/slog"
	"net/http"

	"github.com/Brutus88Ai/brutus-x-ai/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// SetupRouter configures the Gin router with all routes.
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "render-api-service",
		})
	})

	renderHandler := handler.NewRenderHandler(deps)

	v1 := r.Group("/api/v1")
	{
		renders := v1.Group("/renders")
		{
			renders.POST("", renderHandler.CreateRender)
			renders.GET("", renderHandler.ListRenders)
			renders.GET("/:job_id", renderHandler.GetRender)
			renders.POST("/:job_id/cancel", renderHandler.CancelRender)
		}
	}

	// Provider completion callback, outside the versioned API surface.
	r.POST("/webhooks/render", renderHandler.ProviderWebhook)

	if deps.Hub != nil {
		upgrader := websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		}
		r.GET("/api/v1/renders/stream", func(c *gin.Context) {
			conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
			if err != nil {
				deps.Logger.Error("WebSocket upgrade failed",
					slog.String("error", err.Error()),
				)
				return
			}
			deps.Hub.AddClient(conn)
		})
	}

	return r
}
