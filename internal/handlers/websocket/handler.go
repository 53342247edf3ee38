package websocket

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/voxgate/internal/domains/segmentation"
	"github.com/xpanvictor/voxgate/pkg/Logger"
	wsdevice "github.com/xpanvictor/voxgate/pkg/io/device/websocket"
)

// WebSocketHandler accepts call audio on /socket. Each connection gets its
// own segmentation engine driven by the connection's read loop.
type WebSocketHandler struct {
	logger            *Logger.Logger
	engineConfig      segmentation.EngineConfig
	engineDeps        segmentation.Deps
	connectionManager *ConnectionManager
	upgrader          websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	logger *Logger.Logger,
	engineConfig segmentation.EngineConfig,
	engineDeps segmentation.Deps,
	connectionManager *ConnectionManager,
) *WebSocketHandler {
	return &WebSocketHandler{
		logger:            logger,
		engineConfig:      engineConfig,
		engineDeps:        engineDeps,
		connectionManager: connectionManager,
		upgrader: websocket.Upgrader{
			// telephony providers connect from their own origins
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/socket", h.HandleSocket)
	router.GET("/socket/stats", h.HandleStats)
}

// HandleSocket upgrades the request and serves the connection until it closes.
func (h *WebSocketHandler) HandleSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	endpoint := wsdevice.New(conn)
	h.connectionManager.RegisterConnection(endpoint)
	defer h.connectionManager.UnregisterConnection(endpoint.ID())

	engine := segmentation.NewEngine(endpoint, h.engineConfig, h.engineDeps)
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorf("panic in connection %s: %v", endpoint.ID(), r)
		}
		if err := engine.Close(ctx); err != nil {
			h.logger.Errorf("close session %s: %v", engine.ID(), err)
		}
		_ = endpoint.Close()
	}()

	h.logger.Infof("client connected %s from %s", endpoint.ID(), c.ClientIP())
	h.handleConnection(ctx, conn, endpoint, engine)
}

// HandleStats provides connection statistics
func (h *WebSocketHandler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"data":   h.connectionManager.GetStats(),
	})
}

func (h *WebSocketHandler) handleConnection(ctx context.Context, conn *websocket.Conn, endpoint *wsdevice.WSEndpoint, engine *segmentation.Engine) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Errorf("WebSocket read error on %s: %v", endpoint.ID(), err)
			} else {
				h.logger.Infof("client disconnected %s", endpoint.ID())
			}
			return
		}

		endpoint.Touch()

		switch messageType {
		case websocket.TextMessage:
			if !h.handleTextMessage(ctx, endpoint, engine, data) {
				return
			}
		case websocket.BinaryMessage:
			if !h.handleBinaryMessage(ctx, endpoint, engine, data) {
				return
			}
		}
	}
}

// handleTextMessage reports whether the connection should stay open.
func (h *WebSocketHandler) handleTextMessage(ctx context.Context, endpoint *wsdevice.WSEndpoint, engine *segmentation.Engine, data []byte) bool {
	err := engine.HandleControl(ctx, data)
	switch {
	case err == nil:
		return true
	case errors.Is(err, segmentation.ErrHandshake):
		h.logger.Warnf("rejecting connection %s: %v", endpoint.ID(), err)
		_ = endpoint.CloseWithReason(websocket.ClosePolicyViolation, "invalid handshake")
		return false
	default:
		h.logger.Errorf("control message on %s: %v", endpoint.ID(), err)
		return false
	}
}

func (h *WebSocketHandler) handleBinaryMessage(ctx context.Context, endpoint *wsdevice.WSEndpoint, engine *segmentation.Engine, data []byte) bool {
	err := engine.HandleAudio(ctx, data)
	switch {
	case err == nil:
		return true
	case errors.Is(err, segmentation.ErrTooManyViolations):
		h.logger.Warnf("closing connection %s: %v", endpoint.ID(), err)
		_ = endpoint.CloseWithReason(websocket.ClosePolicyViolation, "too many invalid frames")
		return false
	case errors.Is(err, segmentation.ErrClosed):
		return false
	default:
		// already logged and counted by the engine
		return true
	}
}
