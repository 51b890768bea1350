package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/flalad/chat-room/internal/config"
	"github.com/flalad/chat-room/internal/hub"
)

// Handler upgrades HTTP requests to websocket connections and starts
// the per-connection pumps.
type Handler struct {
	hub      *hub.Hub
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(h *hub.Hub, cfg *config.Config, logger zerolog.Logger) *Handler {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	allowAll := false
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}

	return &Handler{
		hub:    h,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowAll {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Non-browser clients send no Origin header.
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := newClient(conn, h.hub, h.logger, r.RemoteAddr)
	go client.writePump()
	go client.readPump()
}
