// Package diag is a local diagnostics feed that mirrors push-session
// lifecycle events (connect, ping, reconnect, push received) to a browser
// over a WebSocket, for watching a live session without instrumenting a
// full metrics/Grafana stack. It is not the LINE push protocol itself
// (raw HTTP/2 framing, see internal/push) — this is a separate, purely
// local observability bridge.
//
// Grounded on internal/websocket/dag_streamer.go's hub/broadcast pattern:
// a register/unregister/broadcast channel trio drained by a single Run
// goroutine, with one upgraded connection per browser tab.
package diag

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one diagnostics entry broadcast to every connected client.
type Event struct {
	Kind      string         `json:"kind"` // "connected", "reconnecting", "push", "ping", "error"
	Timestamp time.Time      `json:"timestamp"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Streamer is a WebSocket hub broadcasting Events to every connected
// client. The zero value is not usable; construct with NewStreamer.
type Streamer struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewStreamer builds a Streamer. Call Run in its own goroutine before
// serving HandleWebSocket.
func NewStreamer(logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Run drains register/unregister/broadcast until done is closed. It must run
// in its own goroutine.
func (s *Streamer) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			s.mu.Lock()
			for client := range s.clients {
				client.Close()
			}
			s.mu.Unlock()
			return

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			n := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("diag: client connected", "clients", n)

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.Close()
			}
			n := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("diag: client disconnected", "clients", n)

		case event := <-s.broadcast:
			s.mu.RLock()
			for client := range s.clients {
				if err := client.WriteJSON(event); err != nil {
					s.logger.Debug("diag: write error, dropping client", "error", err)
					client.Close()
					delete(s.clients, client)
				}
			}
			s.mu.RUnlock()
		}
	}
}

// HandleWebSocket upgrades the request and registers the connection for
// broadcast delivery until the client disconnects.
func (s *Streamer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("diag: upgrade error", "error", err)
		return
	}
	s.register <- conn

	go func() {
		defer func() { s.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Emit broadcasts one Event to every connected client. Non-blocking: if
// the internal broadcast buffer is full, the event is dropped rather than
// stalling the caller (a push-session reconnect loop, most likely).
func (s *Streamer) Emit(kind string, detail map[string]any) {
	ev := Event{Kind: kind, Timestamp: time.Now(), Detail: detail}
	select {
	case s.broadcast <- ev:
	default:
		s.logger.Debug("diag: broadcast buffer full, dropping event", "kind", kind)
	}
}
