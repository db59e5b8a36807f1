package facade

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUploadObject(t *testing.T) {
	var gotParams map[string]string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/g2/m/reqseq" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		raw, err := base64.StdEncoding.DecodeString(r.Header.Get("X-Obs-Params"))
		if err != nil {
			t.Fatalf("decode obs params: %v", err)
		}
		if err := json.Unmarshal(raw, &gotParams); err != nil {
			t.Fatalf("unmarshal obs params: %v", err)
		}
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set(obsHeaderOid, "obj-123")
		w.Header().Set(obsHeaderHash, "hash-abc")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.obsHostOverride = c.host

	result, err := c.UploadObject(context.Background(), "chat-1", []byte("payload"), "image", "pic.jpg", 42, 0)
	if err != nil {
		t.Fatalf("upload object: %v", err)
	}
	if result.ObjectID != "obj-123" || result.ObjHash != "hash-abc" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if string(gotBody) != "payload" {
		t.Fatalf("unexpected body: %q", gotBody)
	}
	if gotParams["tomid"] != "chat-1" || gotParams["name"] != "pic.jpg" || gotParams["cat"] != "original" {
		t.Fatalf("unexpected params: %+v", gotParams)
	}
}

func TestUploadObjectVideoDefaultsDuration(t *testing.T) {
	var gotParams map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := base64.StdEncoding.DecodeString(r.Header.Get("X-Obs-Params"))
		_ = json.Unmarshal(raw, &gotParams)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.obsHostOverride = c.host

	if _, err := c.UploadObject(context.Background(), "chat-1", []byte("v"), "video", "clip.mp4", 1, 0); err != nil {
		t.Fatalf("upload object: %v", err)
	}
	if gotParams["duration"] != "1000" {
		t.Fatalf("expected default duration, got %+v", gotParams)
	}
}
