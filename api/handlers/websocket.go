package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/extension-bridge/backend/internal/model"
)

// Connector accepts host websocket connections.
type Connector interface {
	HandleConnection(w http.ResponseWriter, r *http.Request) error
}

// WebSocketHandler attaches the host editor's websocket.
type WebSocketHandler struct {
	connector Connector
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(connector Connector) *WebSocketHandler {
	return &WebSocketHandler{connector: connector}
}

// Attach handles GET / - the host connects here after reading the handshake line.
// A 409 has already been written when another host is attached.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	err := h.connector.HandleConnection(c.Writer, c.Request)
	if err != nil && !errors.Is(err, model.ErrPeerAlreadyConnected) {
		// The upgrader has already replied to the client.
		log.Debug().Err(err).Str("remote", c.Request.RemoteAddr).Msg("websocket upgrade failed")
	}
}

// RegisterRoutes registers the WebSocket route on a Gin router.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/", h.Attach)
}
