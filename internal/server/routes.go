package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxgate/internal/config"
	"github.com/xpanvictor/voxgate/internal/handlers"
	wshandler "github.com/xpanvictor/voxgate/internal/handlers/websocket"
	"github.com/xpanvictor/voxgate/pkg/Logger"
	"github.com/xpanvictor/voxgate/pkg/io/registry"
)

type Dependencies struct {
	Registry         registry.Registry
	WebSocketHandler *wshandler.WebSocketHandler
	CallHandler      *handlers.CallHandler
	SessionHandler   *handlers.SessionHandler
	// MetricsHandler serves /metrics; nil disables the route.
	MetricsHandler http.Handler
	Logger         *Logger.Logger
	Configs        *config.Settings
}

func NewServerDependencies(
	reg registry.Registry,
	ws *wshandler.WebSocketHandler,
	call *handlers.CallHandler,
	sessions *handlers.SessionHandler,
	metrics http.Handler,
	logger *Logger.Logger,
	cfg *config.Settings,
) Dependencies {
	return Dependencies{
		Registry:         reg,
		WebSocketHandler: ws,
		CallHandler:      call,
		SessionHandler:   sessions,
		MetricsHandler:   metrics,
		Logger:           logger,
		Configs:          cfg,
	}
}

func InitializeRoutes(r *gin.Engine, dep Dependencies) {
	r.GET("/", func(ctx *gin.Context) { ctx.JSON(200, gin.H{"message": "Server healthy"}) })
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok", "sessions": dep.Registry.Len()})
	})

	if dep.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(dep.MetricsHandler))
	}

	dep.WebSocketHandler.RegisterRoutes(r)
	dep.CallHandler.RegisterRoutes(r)
	dep.SessionHandler.RegisterRoutes(r)
}
