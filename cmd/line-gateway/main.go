// line-gateway runs one LINE session as a long-lived daemon: it logs in
// (or resumes a persisted session), keeps the push connection (or polling
// fallback) alive, dispatches events to the bot-layer collaborators, and
// serves a small admin HTTP surface for operating the running session.
//
// Grounded on cmd/api/main.go's entry-point shape: config.Get(), a
// godotenv load, structured startup logging, an http.Server with
// signal.Notify-driven graceful shutdown.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jkfujinami/linepy/internal/admin"
	"github.com/jkfujinami/linepy/internal/client"
	"github.com/jkfujinami/linepy/internal/config"
	"github.com/jkfujinami/linepy/internal/control"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, continuing with process environment")
	}

	cfg := config.Get()

	c, err := client.New(cfg, slog.Default())
	if err != nil {
		log.Fatalf("line-gateway: build client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := c.Resume(ctx); err != nil {
		slog.Warn("no persisted session to resume, logging in fresh", "error", err)
		login := c.LoginStatus()
		if err := c.Login(ctx, "", login.OnURL, login.OnPIN); err != nil {
			cancel()
			log.Fatalf("line-gateway: login: %v", err)
		}
	}
	cancel()

	// GatewayControlServer dispatches in-process today (no compiled .proto
	// yet); constructing a RemoteClient alongside it exercises the same
	// real-ClientConn-plus-inline-dispatch path control.RemoteClient
	// offers a future wire-level caller, without requiring one to exist.
	controlServer := control.NewServer(c)
	controlClient, err := control.NewRemoteClient("127.0.0.1:0", controlServer)
	if err != nil {
		log.Fatalf("line-gateway: build control client: %v", err)
	}
	defer controlClient.Close()
	if status, err := controlClient.Status(context.Background()); err != nil {
		slog.Warn("control status check failed", "error", err)
	} else {
		slog.Info("gateway control plane ready", "state", status.State, "mid", status.Mid)
	}

	var adminServer *admin.Server
	if cfg.Admin.Enabled {
		streamer := c.DiagStreamer()
		go streamer.Run(make(chan struct{}))
		adminServer = admin.New(c.LoginStatus(), c, c.Registry(), streamer, slog.Default())
	}

	runCtx, runCancel := context.WithCancel(context.Background())

	go c.Start(runCtx, nil)

	var httpServer *http.Server
	if adminServer != nil {
		httpServer = &http.Server{
			Addr:         cfg.Admin.Addr,
			Handler:      adminServer.Router(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			slog.Info("admin surface listening", "addr", cfg.Admin.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("admin server failed", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down gateway")
	runCancel()
	c.Stop()

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("admin server shutdown error", "error", err)
		}
	}

	slog.Info("gateway stopped")
}
