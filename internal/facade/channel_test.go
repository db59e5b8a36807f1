package facade

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jkfujinami/linepy/internal/thrift"
)

func TestIssueChannelToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(channelEndpoint, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		msg, err := (thrift.CompactProtocol{}).DecodeMessage(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if msg.Name != "approveChannelAndIssueChannelToken" {
			t.Fatalf("unexpected method %s", msg.Name)
		}
		arg, ok := msg.Body.Get(1)
		if !ok || arg.AsString() != timelineChannelIDDefault {
			t.Fatalf("unexpected channel id arg: %+v", arg)
		}
		reply := &thrift.Struct{}
		inner := &thrift.Struct{}
		inner.Set(5, thrift.String("channel-access-token"))
		reply.Set(0, thrift.Struc(inner))
		writeCompactReply(t, w, msg.SeqID, msg.Name, reply)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	token, err := c.IssueChannelToken(context.Background(), timelineChannelIDDefault)
	if err != nil {
		t.Fatalf("issue channel token: %v", err)
	}
	if token != "channel-access-token" {
		t.Fatalf("unexpected token: %q", token)
	}
}

func TestTimelineChannelIDBranchesOnChromeOS(t *testing.T) {
	if TimelineChannelID("CHROMEOS") != timelineChannelIDChromeOS {
		t.Fatal("expected chromeos channel id")
	}
	if TimelineChannelID("ANDROID") != timelineChannelIDDefault {
		t.Fatal("expected default channel id")
	}
}
