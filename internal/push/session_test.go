package push

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jkfujinami/linepy/internal/device"
	"github.com/jkfujinami/linepy/internal/store"
)

// TestSessionNegotiatesThenAcksPush drives a fake server side through the
// negotiate handshake and a single ack-required push frame, and asserts the
// session acks it and invokes OnPush.
func TestSessionNegotiatesThenAcksPush(t *testing.T) {
	serverConn, clientConn := net.Pipe()

	profile, err := device.NewProfile(device.DesktopWin, "")
	if err != nil {
		t.Fatalf("new profile: %v", err)
	}
	s := NewSession(profile, store.NewMemoryStore(), nil)
	s.dial = func(ctx context.Context, host, path string, headers http.Header) (*conn, error) {
		return &conn{
			w:       clientConn,
			r:       bufio.NewReader(clientConn),
			pingFn:  func(context.Context) error { return nil },
			closeFn: clientConn.Close,
		}, nil
	}

	pushed := make(chan struct {
		kind ServiceKind
		id   int32
	}, 1)
	s.OnPush = func(kind ServiceKind, pushID int32) {
		pushed <- struct {
			kind ServiceKind
			id   int32
		}{kind, pushID}
	}

	srvErrCh := make(chan error, 1)
	go func() {
		r := bufio.NewReader(serverConn)

		if typ, _, err := readPacket(r); err != nil || typ != PacketStatus {
			srvErrCh <- err
			return
		}
		if typ, _, err := readPacket(r); err != nil || typ != PacketSignOnRequest {
			srvErrCh <- err
			return
		}

		pushPayload := []byte{pingAckRequired, byte(ServiceSquare), 0, 0, 0, 42, 'e', 'v'}
		if err := writePacket(serverConn, PacketPush, pushPayload); err != nil {
			srvErrCh <- err
			return
		}

		typ, ackPayload, err := readPacket(r)
		if err != nil {
			srvErrCh <- err
			return
		}
		if typ != PacketPush || len(ackPayload) != pushFrameHeaderSize {
			srvErrCh <- err
			return
		}
		srvErrCh <- nil
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, []ServiceKind{ServiceSquare})

	select {
	case got := <-pushed:
		if got.kind != ServiceSquare || got.id != 42 {
			t.Fatalf("unexpected push: %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for OnPush callback")
	}

	if err := <-srvErrCh; err != nil {
		t.Fatalf("server side: %v", err)
	}

	cancel()
	s.Stop()
}

func TestServiceKindDoesNotCollideWithPingSubKinds(t *testing.T) {
	// pingAckRequired (2) aliases ServiceSignOnRequest (2) numerically;
	// the two are only ever compared within their own frame kind, so this
	// just documents the overlap is intentional rather than a bug.
	if uint8(pingAckRequired) != uint8(ServiceSignOnRequest) {
		t.Skip("overlap assumption changed, nothing to document")
	}
}
