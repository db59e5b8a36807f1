package diag

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, s *Streamer) (*httptest.Server, func()) {
	t.Helper()
	done := make(chan struct{})
	go s.Run(done)

	srv := httptest.NewServer(http.HandlerFunc(s.HandleWebSocket))
	return srv, func() {
		close(done)
		srv.Close()
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestStreamerBroadcastsToConnectedClient(t *testing.T) {
	s := NewStreamer(nil)
	srv, stop := newTestServer(t, s)
	defer stop()

	conn := dial(t, srv)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // allow registration to land
	s.Emit("connected", map[string]any{"chat": "c1"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Kind != "connected" {
		t.Fatalf("expected kind=connected, got %q", ev.Kind)
	}
	if ev.Detail["chat"] != "c1" {
		t.Fatalf("expected detail chat=c1, got %v", ev.Detail["chat"])
	}
}

func TestStreamerBroadcastsToMultipleClients(t *testing.T) {
	s := NewStreamer(nil)
	srv, stop := newTestServer(t, s)
	defer stop()

	connA := dial(t, srv)
	defer connA.Close()
	connB := dial(t, srv)
	defer connB.Close()

	time.Sleep(20 * time.Millisecond)
	s.Emit("ping", nil)

	for _, conn := range []*websocket.Conn{connA, connB} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Kind != "ping" {
			t.Fatalf("expected kind=ping, got %q", ev.Kind)
		}
	}
}

func TestStreamerEmitDoesNotBlockWithoutClients(t *testing.T) {
	s := NewStreamer(nil)
	done := make(chan struct{})
	go s.Run(done)
	defer close(done)

	// No clients registered; Emit must return promptly regardless.
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Emit("push", nil)
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked with no connected clients")
	}
}
