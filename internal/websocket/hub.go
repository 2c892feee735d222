// Package websocket streams license telemetry to connected admin dashboards.
// A single Hub fans ingested events out to every connected client; slow
// clients are dropped rather than allowed to stall the broadcast.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event kinds pushed over the live feed
const (
	TypeConnection = "connection"
	TypeUsage      = "usage"
	TypeViolation  = "violation"
)

// Envelope is the wire frame for every live feed message
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts events to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}

	mu      sync.Mutex
	running bool

	logger *slog.Logger
}

// NewHub creates a hub. Call Start before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "websocket.hub")),
	}
}

// Start launches the hub loop. Calling Start twice is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

// Stop shuts the hub down and disconnects every client
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.logger.Info("hub shut down")
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Info("client connected",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", len(h.clients)))

			// Greet the new client so it can confirm the stream is live
			if msg, err := marshalEnvelope(TypeConnection, map[string]string{
				"status":    "connected",
				"client_id": client.id,
			}); err == nil {
				select {
				case client.send <- msg:
				default:
				}
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("client disconnected",
					slog.String("client_id", client.id),
					slog.Int("total_clients", len(h.clients)))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client cannot keep up; cut it loose
					delete(h.clients, client)
					close(client.send)
					h.logger.Warn("client dropped, send buffer full",
						slog.String("client_id", client.id))
				}
			}
		}
	}
}

// BroadcastEvent pushes one event to all connected clients. Safe to call
// from any goroutine; a stopped hub swallows the event.
func (h *Hub) BroadcastEvent(kind string, payload interface{}) {
	msg, err := marshalEnvelope(kind, payload)
	if err != nil {
		h.logger.Warn("event encode failed",
			slog.String("kind", kind),
			slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- msg:
	case <-h.quit:
	}
}

func marshalEnvelope(kind string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      kind,
		Data:      payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
