package facade

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jkfujinami/linepy/internal/device"
	"github.com/jkfujinami/linepy/internal/thrift"
	"github.com/jkfujinami/linepy/internal/transport"
)

func writeCompactReply(t *testing.T, w http.ResponseWriter, seqID int32, name string, body *thrift.Struct) {
	t.Helper()
	var buf bytes.Buffer
	if err := (thrift.CompactProtocol{}).EncodeMessage(&buf, &thrift.Message{Name: name, Kind: thrift.KindReply, SeqID: seqID, Body: body}); err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	w.Write(buf.Bytes())
}

func newTestClient(t *testing.T, srvURL string) *Client {
	t.Helper()
	profile, err := device.NewProfile(device.DesktopWin, "")
	if err != nil {
		t.Fatalf("new profile: %v", err)
	}
	tc := transport.NewClient(profile, 5*time.Second, nil)
	tc.SetAccessToken("test-access-token")
	host := strings.TrimPrefix(srvURL, "http://")
	c := NewClient(tc, profile, host, nil)
	c.scheme = "http"
	return c
}

func TestFetchMyEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(squareEndpoint, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		msg, err := (thrift.CompactProtocol{}).DecodeMessage(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if msg.Name != "fetchMyEvents" {
			t.Fatalf("unexpected method %s", msg.Name)
		}
		event := &thrift.Struct{}
		event.Set(1, thrift.I64(42))
		eventList := &thrift.List{ElemType: thrift.TypeStruct, Elems: []thrift.Value{thrift.Struc(event)}}
		inner := &thrift.Struct{}
		inner.Set(1, thrift.String("sync-tok-1"))
		inner.Set(3, thrift.Value{Type: thrift.TypeList, List: eventList})
		reply := &thrift.Struct{}
		reply.Set(0, thrift.Struc(inner))
		writeCompactReply(t, w, msg.SeqID, msg.Name, reply)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, err := c.FetchMyEvents(context.Background(), 0, "", "", 50)
	if err != nil {
		t.Fatalf("fetch my events: %v", err)
	}
	if result.SyncToken != "sync-tok-1" {
		t.Fatalf("unexpected sync token: %q", result.SyncToken)
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(result.Events))
	}
	if f, ok := result.Events[0].Field(1); !ok || f.Int != 42 {
		t.Fatalf("unexpected event field: %+v", f)
	}
}

func TestSendMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(squareEndpoint, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		msg, err := (thrift.CompactProtocol{}).DecodeMessage(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if msg.Name != "sendMessage" {
			t.Fatalf("unexpected method %s", msg.Name)
		}
		inner, ok := msg.Body.Get(1)
		if !ok || inner.Type != thrift.TypeStruct {
			t.Fatal("expected arg struct")
		}
		chatMidField, ok := inner.Struct.Get(2)
		if !ok || chatMidField.AsString() != "sc-1" {
			t.Fatalf("unexpected chat mid: %+v", chatMidField)
		}
		sentMessage := &thrift.Struct{}
		sentMessage.Set(1, thrift.String("m-999"))
		wrapper := &thrift.Struct{}
		wrapper.Set(1, thrift.Struc(sentMessage))
		reply := &thrift.Struct{}
		reply.Set(0, thrift.Struc(wrapper))
		writeCompactReply(t, w, msg.SeqID, msg.Name, reply)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	id, err := c.SendMessage(context.Background(), "sc-1", "hello")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if id != "m-999" {
		t.Fatalf("unexpected message id: %q", id)
	}
}

func TestMarkAsRead(t *testing.T) {
	var gotThread string
	mux := http.NewServeMux()
	mux.HandleFunc(squareEndpoint, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		msg, _ := (thrift.CompactProtocol{}).DecodeMessage(bytes.NewReader(data))
		inner, _ := msg.Body.Get(1)
		if tf, ok := inner.Struct.Get(5); ok {
			gotThread = tf.AsString()
		}
		writeCompactReply(t, w, msg.SeqID, msg.Name, &thrift.Struct{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.MarkAsRead(context.Background(), "sc-1", "m-1", "thread-1"); err != nil {
		t.Fatalf("mark as read: %v", err)
	}
	if gotThread != "thread-1" {
		t.Fatalf("expected thread mid forwarded, got %q", gotThread)
	}
}
