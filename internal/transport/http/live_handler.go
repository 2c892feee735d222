package http

import (
	"log/slog"
	"net/http"

	gorilla "github.com/gorilla/websocket"

	ws "licensegate/internal/websocket"
)

// LiveHandler upgrades admin dashboard connections onto the live event feed.
// It is mounted behind admin authentication, so the upgrade itself carries
// no extra credential check.
type LiveHandler struct {
	hub      *ws.Hub
	upgrader gorilla.Upgrader
	logger   *slog.Logger
}

// NewLiveHandler creates the live feed handler for the given hub
func NewLiveHandler(hub *ws.Hub, logger *slog.Logger) *LiveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveHandler{
		hub: hub,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Admin auth already gates this route; origin carries no signal
			// for non-browser dashboard clients
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With(slog.String("handler", "live")),
	}
}

// ServeHTTP handles GET /live
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.logger.WarnContext(r.Context(), "websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	ws.ServeWS(h.hub, conn, h.logger)
}
