package client

import (
	"context"
	"testing"

	"github.com/jkfujinami/linepy/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Store.Backend = "file"
	cfg.Store.Path = dir + "/session.json"
	cfg.Device.Kind = "DESKTOPWIN"
	cfg.Endpoints.LegyHost = "legy.example.invalid"
	cfg.Endpoints.TimeoutSec = 5
	cfg.Fetch.Mode = "poll"
	cfg.Fetch.QueueSize = 16
	cfg.Bus.Backend = "memory"
	cfg.Bot.RateLimit.MaxPerMinute = 10
	cfg.Bot.ReadStore.Backend = ""
	return cfg
}

func TestNewBuildsWithoutNetworkAccess(t *testing.T) {
	c, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil {
		t.Fatal("expected non-nil client")
	}
	c.rateLimiter.Close()
}

func TestSnapshotReflectsWatchedChats(t *testing.T) {
	c, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.rateLimiter.Close()

	if err := c.AddWatchedChat(context.Background(), "chat-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := c.Snapshot()
	if len(snap.WatchedChats) != 1 || snap.WatchedChats[0] != "chat-1" {
		t.Fatalf("unexpected watched chats: %v", snap.WatchedChats)
	}

	if err := c.RemoveWatchedChat(context.Background(), "chat-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap = c.Snapshot()
	if len(snap.WatchedChats) != 0 {
		t.Fatalf("expected no watched chats after removal, got %v", snap.WatchedChats)
	}
}

func TestStatusImplementsSessionController(t *testing.T) {
	c, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.rateLimiter.Close()

	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.State != "idle" {
		t.Fatalf("expected idle state before any push frame, got %q", status.State)
	}
}

func TestForceReconnectIsNoopInPollMode(t *testing.T) {
	c, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.rateLimiter.Close()

	if err := c.ForceReconnect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
