package control

import (
	"context"
	"errors"
	"testing"
)

type fakeController struct {
	status        SessionStatus
	statusErr     error
	added         []string
	removed       []string
	addErr        error
	reconnectErr  error
	reconnectHits int
}

func (f *fakeController) Status(ctx context.Context) (SessionStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeController) AddWatchedChat(ctx context.Context, chatMid string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, chatMid)
	return nil
}

func (f *fakeController) RemoveWatchedChat(ctx context.Context, chatMid string) error {
	f.removed = append(f.removed, chatMid)
	return nil
}

func (f *fakeController) ForceReconnect(ctx context.Context) error {
	f.reconnectHits++
	return f.reconnectErr
}

func TestServerGetStatusDelegatesToController(t *testing.T) {
	fc := &fakeController{status: SessionStatus{State: "authenticated", Connected: true}}
	srv := NewServer(fc)

	resp, err := srv.GetStatus(context.Background(), &StatusRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status.State != "authenticated" || !resp.Status.Connected {
		t.Fatalf("unexpected status: %+v", resp.Status)
	}
}

func TestServerGetStatusPropagatesControllerError(t *testing.T) {
	fc := &fakeController{statusErr: errors.New("boom")}
	srv := NewServer(fc)

	if _, err := srv.GetStatus(context.Background(), &StatusRequest{}); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestServerAddWatchedChatDelegates(t *testing.T) {
	fc := &fakeController{}
	srv := NewServer(fc)

	resp, err := srv.AddWatchedChat(context.Background(), &AddWatchedChatRequest{ChatMid: "c1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Ok || len(fc.added) != 1 || fc.added[0] != "c1" {
		t.Fatalf("expected chat added, got %+v", fc.added)
	}
}

func TestServerRemoveWatchedChatDelegates(t *testing.T) {
	fc := &fakeController{}
	srv := NewServer(fc)

	if _, err := srv.RemoveWatchedChat(context.Background(), &RemoveWatchedChatRequest{ChatMid: "c1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fc.removed) != 1 || fc.removed[0] != "c1" {
		t.Fatalf("expected chat removed, got %+v", fc.removed)
	}
}

func TestServerForceReconnectDelegates(t *testing.T) {
	fc := &fakeController{}
	srv := NewServer(fc)

	if _, err := srv.ForceReconnect(context.Background(), &ForceReconnectRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.reconnectHits != 1 {
		t.Fatalf("expected 1 reconnect call, got %d", fc.reconnectHits)
	}
}

func TestUnimplementedServerReturnsError(t *testing.T) {
	var srv GatewayControlServer = UnimplementedGatewayControlServer{}
	if _, err := srv.GetStatus(context.Background(), &StatusRequest{}); err == nil {
		t.Fatal("expected unimplemented error")
	}
}

func TestRemoteClientRoundTripsThroughServer(t *testing.T) {
	fc := &fakeController{status: SessionStatus{State: "idle"}}
	srv := NewServer(fc)

	client, err := NewRemoteClient("127.0.0.1:0", srv)
	if err != nil {
		t.Fatalf("unexpected dial error: %v", err)
	}
	defer client.Close()

	if err := client.AddWatchedChat(context.Background(), "c9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fc.added) != 1 || fc.added[0] != "c9" {
		t.Fatalf("expected chat added via remote client, got %+v", fc.added)
	}

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.State != "idle" {
		t.Fatalf("unexpected status: %+v", status)
	}
}
