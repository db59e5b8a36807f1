package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jkfujinami/linepy/internal/device"
	"github.com/jkfujinami/linepy/internal/lineerr"
	"github.com/jkfujinami/linepy/internal/thrift"
)

// Client is a pooled HTTP/2 client keyed by host: one *http.Client backs
// every call, reusing connections and the TLS session the way the reference
// SDK client does, but fronting three call shapes instead of one.
type Client struct {
	profile *device.Profile
	http    *http.Client
	logger  *slog.Logger

	mu          sync.RWMutex
	accessToken string
}

// NewClient builds a Client for profile with the given per-call timeout.
func NewClient(profile *device.Profile, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		profile: profile,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SetAccessToken updates the token attached to subsequent calls as
// x-line-access. Safe for concurrent use since the fetcher/dispatcher run
// calls from multiple goroutines while a refresh is in flight.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

func (c *Client) currentAccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// ThriftCall POSTs a Thrift-encoded call envelope to path and decodes the
// reply with the matching protocol. isAuthMethod controls whether a
// declared server exception surfaces as AuthError or ServerError.
func (c *Client) ThriftCall(ctx context.Context, scheme, host, path string, protocol thrift.Protocol, methodName string, seqID int32, args *thrift.Struct, isAuthMethod bool) (thrift.Value, error) {
	var buf bytes.Buffer
	if err := thrift.EncodeCall(protocol, &buf, methodName, seqID, args); err != nil {
		return thrift.Value{}, lineerr.Wrap(lineerr.KindCodec, "encode call", err)
	}

	respBody, _, err := c.rawCall(ctx, scheme, host, path, http.MethodPost, buf.Bytes(), HeaderSet{LogicalMethod: "POST"})
	if err != nil {
		return thrift.Value{}, err
	}

	r := bytes.NewReader(respBody)
	v, err := thrift.DecodeReply(protocol, r, isAuthMethod)
	if err != nil {
		return thrift.Value{}, err
	}
	return v, nil
}

// ThriftCallWithHeaders is ThriftCall with the QR/PIN long-poll header
// variant: AccessToken carries the short-lived sqr token instead of a real
// access token, and QRRemainingMillis-derived x-lst tells the server how
// long it may hold the request open.
func (c *Client) ThriftCallWithHeaders(ctx context.Context, scheme, host, path string, protocol thrift.Protocol, methodName string, seqID int32, args *thrift.Struct, isAuthMethod bool, sqr string, remainingMillis int64) (thrift.Value, error) {
	var buf bytes.Buffer
	if err := thrift.EncodeCall(protocol, &buf, methodName, seqID, args); err != nil {
		return thrift.Value{}, lineerr.Wrap(lineerr.KindCodec, "encode call", err)
	}

	respBody, _, err := c.rawCall(ctx, scheme, host, path, http.MethodPost, buf.Bytes(), HeaderSet{
		LogicalMethod:     "POST",
		AccessToken:       sqr,
		QRRemainingMillis: remainingMillis,
	})
	if err != nil {
		return thrift.Value{}, err
	}

	r := bytes.NewReader(respBody)
	return thrift.DecodeReply(protocol, r, isAuthMethod)
}

// RawCall performs a raw-bytes request and returns the response body
// unconditionally, including on non-2xx status (used by the QR long-poll,
// which expects a timeout status while the user has not yet acted).
func (c *Client) RawCall(ctx context.Context, scheme, host, path, method string, body []byte, hs HeaderSet) ([]byte, int, error) {
	return c.rawCall(ctx, scheme, host, path, method, body, hs)
}

// RawCallWithResponseHeaders is RawCall plus the response header set, for
// the one surface (OBS object upload) that returns its result in headers
// (x-obs-oid/x-obs-hash) rather than a body.
func (c *Client) RawCallWithResponseHeaders(ctx context.Context, scheme, host, path, method string, body []byte, hs HeaderSet) ([]byte, int, http.Header, error) {
	return c.rawCallWithHeaders(ctx, scheme, host, path, method, body, hs)
}

func (c *Client) rawCall(ctx context.Context, scheme, host, path, method string, body []byte, hs HeaderSet) ([]byte, int, error) {
	respBody, status, _, err := c.rawCallWithHeaders(ctx, scheme, host, path, method, body, hs)
	return respBody, status, err
}

func (c *Client) rawCallWithHeaders(ctx context.Context, scheme, host, path, method string, body []byte, hs HeaderSet) ([]byte, int, http.Header, error) {
	url := fmt.Sprintf("%s://%s%s", scheme, host, path)

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, 0, nil, lineerr.Wrap(lineerr.KindTransport, "build request", err)
	}
	req.Header = buildHeaders(c.profile, hs)
	if hs.AccessToken == "" {
		if tok := c.currentAccessToken(); tok != "" {
			req.Header.Set(headerAccess, tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, nil, lineerr.Wrap(lineerr.KindTransport, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, resp.Header, lineerr.Wrap(lineerr.KindTransport, "read response body", err)
	}

	c.logger.Debug("transport call", "method", method, "path", path, "status", resp.StatusCode, "bytes", len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, resp.StatusCode, resp.Header, lineerr.New(lineerr.KindTransport, fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode))
	}
	return respBody, resp.StatusCode, resp.Header, nil
}

// JSONCall marshals req, POSTs/GETs it to path, and unmarshals the response
// into out. Used by the auth surfaces that speak JSON instead of Thrift.
func (c *Client) JSONCall(ctx context.Context, scheme, host, path, method string, req, out interface{}) error {
	var body []byte
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return lineerr.Wrap(lineerr.KindCodec, "marshal json request", err)
		}
		body = b
	}

	respBody, _, err := c.rawCall(ctx, scheme, host, path, method, body, HeaderSet{
		LogicalMethod: method,
		ContentType:   "application/json",
		Accept:        "application/json",
	})
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return lineerr.Wrap(lineerr.KindCodec, "unmarshal json response", err)
	}
	return nil
}
