// Package admin exposes a small local HTTP surface for operating a running
// session: liveness, Prometheus scraping, the in-progress QR login code,
// and a JSON session status snapshot.
//
// Grounded on cmd/api/main.go's router setup: a mux.Router, a JSON health
// endpoint, and global middleware registered with router.Use — adapted
// from a multi-tenant governance API surface down to a single-session
// bot-client admin surface.
package admin

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skip2/go-qrcode"

	"github.com/jkfujinami/linepy/internal/diag"
)

// StatusProvider reports the current session status for /status.
type StatusProvider interface {
	Snapshot() StatusSnapshot
}

// StatusSnapshot is the JSON shape returned by /status.
type StatusSnapshot struct {
	State           string            `json:"state"`
	Mid             string            `json:"mid,omitempty"`
	WatchedChats    []string          `json:"watchedChats"`
	Connected       bool              `json:"connected"`
	LastPush        time.Time         `json:"lastPush,omitempty"`
	CircuitBreakers map[string]string `json:"circuitBreakers,omitempty"`
}

// Server is the admin HTTP surface. Construct with New and serve its
// Router from an *http.Server.
type Server struct {
	router   *mux.Router
	login    *LoginStatus
	status   StatusProvider
	gatherer prometheus.Gatherer
	diag     *diag.Streamer
	logger   *slog.Logger
}

// New builds a Server. gatherer and diagStreamer may be nil to omit
// /metrics and /diag/ws respectively.
func New(login *LoginStatus, status StatusProvider, gatherer prometheus.Gatherer, diagStreamer *diag.Streamer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:   mux.NewRouter(),
		login:    login,
		status:   status,
		gatherer: gatherer,
		diag:     diagStreamer,
		logger:   logger,
	}
	s.routes()
	return s
}

// Router returns the handler to serve, with logging middleware applied.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/qr", s.handleQR).Methods(http.MethodGet)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if s.diag != nil {
		s.router.HandleFunc("/diag/ws", s.diag.HandleWebSocket)
	}

	s.router.Use(s.loggingMiddleware)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.status == nil {
		json.NewEncoder(w).Encode(StatusSnapshot{State: "unknown"})
		return
	}
	json.NewEncoder(w).Encode(s.status.Snapshot())
}

// handleQR renders the current login QR code as a PNG, or 404 when no
// login is in progress (no URL has been set on LoginStatus).
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	if s.login == nil {
		http.NotFound(w, r)
		return
	}
	snap := s.login.Snapshot()
	if snap.QRURL == "" {
		http.Error(w, "no login in progress", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(snap.QRURL, qrcode.Medium, 320)
	if err != nil {
		s.logger.Error("admin: encode qr", "error", err)
		http.Error(w, "failed to render qr code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, "qr.png", time.Now(), bytes.NewReader(png))
}
