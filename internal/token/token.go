// Package token implements Token Lifecycle (C9): refreshing an access
// token on demand, persisting the renewed credentials, and the
// primary-device guard that makes refresh a safe no-op on the device
// profile representing the user's physical phone.
package token

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jkfujinami/linepy/internal/device"
	"github.com/jkfujinami/linepy/internal/lineerr"
	"github.com/jkfujinami/linepy/internal/store"
	"github.com/jkfujinami/linepy/internal/thrift"
	"github.com/jkfujinami/linepy/internal/transport"
)

const refreshEndpoint = "/EXT/auth/tokenrefresh/v1"

// Client refreshes and persists a device's access token. It holds no
// session state itself beyond the backing store.
type Client struct {
	transport *transport.Client
	store     store.Store
	profile   *device.Profile
	scheme    string
	host      string
	logger    *slog.Logger

	seq int32
}

// NewClient builds a token Client over the given session store.
func NewClient(t *transport.Client, s store.Store, profile *device.Profile, host string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: t,
		store:     s,
		profile:   profile,
		scheme:    "https",
		host:      host,
		logger:    logger,
	}
}

func (c *Client) nextSeq() int32 {
	return int32(atomic.AddInt32(&c.seq, 1))
}

// refreshReply is the decoded RefreshAccessTokenResponse shape: the original
// service has no published struct definition, so this mirrors the
// TokenInfo layout the login responses already use for the same triple of
// access/refresh token plus issuedAt/expiresIn.
type refreshReply struct {
	accessToken  string
	refreshToken string
	issuedAt     int64
	expiresIn    int64
}

// RefreshAccessToken renews the stored access token for the current
// session. On a primary-device profile this is a guaranteed no-op: it
// returns the session unchanged and never opens a network connection,
// because refreshing a physical phone's session would invalidate it.
//
// On a secondary device, a failed refresh call leaves the stored credentials
// untouched and the caller sees a classified AuthError; a session with no
// stored refresh token fails with a ConfigError before any call is made.
func (c *Client) RefreshAccessToken(ctx context.Context) (*store.Session, error) {
	sess, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	if c.profile.IsPrimaryDevice() {
		c.logger.Debug("refresh skipped: primary device", "mid", sess.Mid)
		return sess, nil
	}

	if sess.RefreshToken == "" {
		return nil, lineerr.New(lineerr.KindConfig, "token refresh: no refresh token stored")
	}

	c.transport.SetAccessToken(sess.AccessToken)
	reply, err := c.callRefresh(ctx, sess.RefreshToken)
	if err != nil {
		return nil, lineerr.Wrap(lineerr.KindAuth, "token refresh", err)
	}

	updated := sess.Clone()
	if reply.accessToken != "" {
		updated.AccessToken = reply.accessToken
	}
	if reply.refreshToken != "" {
		updated.RefreshToken = reply.refreshToken
	}
	if reply.expiresIn > 0 {
		updated.ExpiresAt = time.Now().Add(time.Duration(reply.expiresIn) * time.Second)
	}

	if err := c.store.Save(ctx, updated); err != nil {
		return nil, lineerr.Wrap(lineerr.KindState, "persist refreshed token", err)
	}
	c.transport.SetAccessToken(updated.AccessToken)

	c.reportRefreshed(ctx, updated.AccessToken)
	return updated, nil
}

func (c *Client) callRefresh(ctx context.Context, refreshToken string) (*refreshReply, error) {
	inner := &thrift.Struct{}
	inner.Set(1, thrift.String(refreshToken))
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	v, err := c.transport.ThriftCall(ctx, c.scheme, c.host, refreshEndpoint, thrift.CompactProtocol{}, "refresh", c.nextSeq(), args, true)
	if err != nil {
		return nil, err
	}
	return decodeRefreshReply(v)
}

func decodeRefreshReply(v thrift.Value) (*refreshReply, error) {
	if v.Type != thrift.TypeStruct || v.Struct == nil {
		return nil, lineerr.New(lineerr.KindCodec, "token refresh response: empty body")
	}
	r := &refreshReply{}
	if f, ok := v.Struct.Get(1); ok {
		r.accessToken = f.AsString()
	}
	if f, ok := v.Struct.Get(2); ok {
		r.refreshToken = f.AsString()
	}
	if f, ok := v.Struct.Get(3); ok {
		r.issuedAt = f.Int
	}
	if f, ok := v.Struct.Get(4); ok {
		r.expiresIn = f.Int
	}
	if r.accessToken == "" {
		return nil, lineerr.New(lineerr.KindCodec, "token refresh response: missing access token")
	}
	return r, nil
}

// reportRefreshed tells the server the new access token is in use. Best
// effort: a failure here doesn't invalidate the refresh that already
// succeeded and was persisted, so it is only logged.
func (c *Client) reportRefreshed(ctx context.Context, accessToken string) {
	inner := &thrift.Struct{}
	inner.Set(1, thrift.String(accessToken))
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	if _, err := c.transport.ThriftCall(ctx, c.scheme, c.host, refreshEndpoint, thrift.CompactProtocol{}, "reportRefreshedAccessToken", c.nextSeq(), args, true); err != nil {
		c.logger.Warn("report refreshed access token failed", "error", err)
	}
}
