package push

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/jkfujinami/linepy/internal/lineerr"
)

// conn is one duplex byte stream carrying LEGY frames: a writer side for
// outgoing frames and a buffered reader side for incoming ones, plus a
// keep-alive ping and a teardown hook. dialPush backs this with a real
// HTTP/2 stream; tests back it with an in-memory pipe.
//
// linepy/push/conn.py manages the equivalent with a raw h2.Connection over
// a TLS socket; net/http2's ClientConn gives the same shape without
// hand-rolling HTTP/2 framing ourselves.
type conn struct {
	w      io.Writer
	r      *bufio.Reader
	pingFn func(ctx context.Context) error
	closeFn func() error
}

// dialPush opens the push stream to host:443 + path, carrying headers on the
// initial request. The body is a pipe so frames can be written after the
// request has gone out, and the response body is read frame-by-frame as the
// server pushes data.
//
// Grounded on linepy/push/conn.py's PushConnection.connect: TLS with ALPN
// "h2", then an HTTP/2 request whose body is never closed until teardown.
func dialPush(ctx context.Context, host, path string, headers http.Header) (*conn, error) {
	tlsConf := &tls.Config{
		ServerName: host,
		NextProtos: []string{"h2"},
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	rawConn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(host, "443"), tlsConf)
	if err != nil {
		return nil, lineerr.Wrap(lineerr.KindTransport, "push: dial", err)
	}

	t := &http2.Transport{}
	cc, err := t.NewClientConn(rawConn)
	if err != nil {
		rawConn.Close()
		return nil, lineerr.Wrap(lineerr.KindTransport, "push: establish http2 connection", err)
	}

	pr, pw := io.Pipe()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("https://%s%s", host, path), pr)
	if err != nil {
		cc.Close()
		return nil, lineerr.Wrap(lineerr.KindTransport, "push: build request", err)
	}
	req.ContentLength = -1
	req.Header = headers

	resp, err := cc.RoundTrip(req)
	if err != nil {
		cc.Close()
		return nil, lineerr.Wrap(lineerr.KindTransport, "push: open stream", err)
	}
	if resp.StatusCode != http.StatusOK {
		cc.Close()
		return nil, lineerr.New(lineerr.KindTransport, fmt.Sprintf("push: unexpected status %d", resp.StatusCode))
	}

	return &conn{
		w: pw,
		r: bufio.NewReader(resp.Body),
		pingFn: func(pingCtx context.Context) error {
			return cc.Ping(pingCtx)
		},
		closeFn: func() error {
			pw.Close()
			resp.Body.Close()
			return cc.Close()
		},
	}, nil
}

func (c *conn) writeFrame(typ PacketType, payload []byte) error {
	return writePacket(c.w, typ, payload)
}

func (c *conn) readFrame() (PacketType, []byte, error) {
	return readPacket(c.r)
}

// ping sends an HTTP/2-level PING for keep-alive, independent of the
// application-level ping/pong frames carried inside the stream.
func (c *conn) ping(ctx context.Context) error {
	return c.pingFn(ctx)
}

func (c *conn) close() error {
	return c.closeFn()
}
