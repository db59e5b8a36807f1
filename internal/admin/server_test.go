package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type fakeStatus struct {
	snap StatusSnapshot
}

func (f fakeStatus) Snapshot() StatusSnapshot { return f.snap }

func TestHealthzReturnsOK(t *testing.T) {
	s := New(NewLoginStatus(), nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %v", body)
	}
}

func TestStatusReturnsProviderSnapshot(t *testing.T) {
	want := StatusSnapshot{State: "authenticated", Mid: "u123", Connected: true, WatchedChats: []string{"c1", "c2"}}
	s := New(NewLoginStatus(), fakeStatus{snap: want}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var got StatusSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Mid != want.Mid || got.Connected != want.Connected || len(got.WatchedChats) != 2 {
		t.Fatalf("unexpected status snapshot: %+v", got)
	}
}

func TestQRReturns404WithoutLoginInProgress(t *testing.T) {
	s := New(NewLoginStatus(), nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/qr", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestQRRendersPNGOnceURLIsSet(t *testing.T) {
	login := NewLoginStatus()
	login.OnURL("https://line.me/R/ti/p/abc123")

	s := New(login, nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/qr", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected non-empty PNG body")
	}
}

func TestMetricsOmittedWhenGathererIsNil(t *testing.T) {
	s := New(NewLoginStatus(), nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected /metrics to 404 without a gatherer, got %d", rec.Code)
	}
}

func TestMetricsServedWhenGathererProvided(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(NewLoginStatus(), nil, reg, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLoginStatusResetClearsQRAndPIN(t *testing.T) {
	login := NewLoginStatus()
	login.OnURL("https://example.invalid/qr")
	login.OnPIN("1234")
	login.SetState("awaiting_scan")

	login.Reset()
	snap := login.Snapshot()
	if snap.QRURL != "" || snap.PIN != "" || snap.State != "idle" {
		t.Fatalf("expected reset snapshot, got %+v", snap)
	}
}

func TestLoginStatusSnapshotIsImmutableCopy(t *testing.T) {
	login := NewLoginStatus()
	login.OnURL("https://example.invalid/qr")
	snap := login.Snapshot()

	login.OnURL("https://example.invalid/other")
	if snap.QRURL != "https://example.invalid/qr" {
		t.Fatalf("expected snapshot to retain original value, got %q", snap.QRURL)
	}

	_ = time.Now()
}
