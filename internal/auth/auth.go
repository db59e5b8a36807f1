// Package auth implements Auth & Login (C4): the RSA credential envelope,
// the email v1/v2 and QR v1/v2 login flows, PIN/certificate verification,
// and the wire shapes each of those calls uses. Token refresh policy lives
// in the separate token package — this one only ever produces a fresh
// token pair, never renews one.
package auth

import (
	"log/slog"
	"sync/atomic"

	"github.com/jkfujinami/linepy/internal/device"
	"github.com/jkfujinami/linepy/internal/e2ee"
	"github.com/jkfujinami/linepy/internal/transport"
)

const (
	talkEndpoint         = "/api/v3/TalkService.do"
	authEndpoint         = "/api/v3p/rs"
	qrEndpoint           = "/acct/lgn/sq/v1"
	qrLongPollEndpoint   = "/acct/lp/lgn/sq/v1"
	e2eeVerifyEndpoint   = "/LF1"
	legacyVerifyEndpoint = "/Q"
)

// Client drives the login flows for one device profile against one legy
// host. It holds no session state of its own — callers persist the
// resulting TokenInfo via the store package.
type Client struct {
	transport *transport.Client
	e2ee      e2ee.Provider
	profile   *device.Profile
	scheme    string
	host      string
	logger    *slog.Logger

	seq int32
}

// NewClient builds a login Client. provider may be nil, in which case E2EE
// PIN verification and the QR secret parameter are skipped and flows fall
// back to direct PIN entry.
func NewClient(t *transport.Client, profile *device.Profile, host string, provider e2ee.Provider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: t,
		e2ee:      provider,
		profile:   profile,
		scheme:    "https",
		host:      host,
		logger:    logger,
	}
}

func (c *Client) nextSeq() int32 {
	return int32(atomic.AddInt32(&c.seq, 1))
}

// TokenInfo is the credential pair a completed login flow produces.
type TokenInfo struct {
	AccessToken  string
	RefreshToken string
	IssuedAt     int64
	ExpiresIn    int64
}

// Credentials is an email/password pair for the email login flows.
type Credentials struct {
	Email    string
	Password string
}

// PINCallback is invoked with a human-readable PIN or certificate prompt the
// caller must surface to the user (and, for QR, the URL to render as a
// scannable code).
type PINCallback func(pin string)

// URLCallback is invoked with the QR login URL the caller must render.
type URLCallback func(url string)
