package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"bulksender/internal/events"
	"bulksender/internal/logging"
)

// WebSocketHandler streams campaign events to websocket clients
type WebSocketHandler struct {
	hub            *events.Hub
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewWebSocketHandler creates the handler. An empty origin list or "*"
// accepts every origin.
func NewWebSocketHandler(hub *events.Hub, allowedOrigins []string) *WebSocketHandler {
	h := &WebSocketHandler{hub: hub, allowedOrigins: allowedOrigins}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// HandleEvents handles GET /ws?campaign_id=... ; without campaign_id every campaign is streamed
func (h *WebSocketHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already wrote the error response
		logging.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := events.NewClient(h.hub, conn, r.URL.Query().Get("campaign_id"))
	if !client.Start() {
		logging.Debug().Msg("websocket hub stopped, connection closed")
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || (origin != "" && allowed == origin) {
			return true
		}
	}

	logging.Warn().Str("origin", origin).Msg("websocket connection rejected from unauthorized origin")
	return false
}
