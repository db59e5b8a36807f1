// Package facade implements the Service Facade (C5): typed RPC operations
// for Talk, Square (group chat), Channel, Timeline, and object upload, all
// over the already-authenticated transport (C2) and wire codec (C1). A
// facade method constructs a Thrift struct from named parameters, picks the
// path and protocol for that call, and decodes the reply into a structured
// result or a classified error. Methods are stateless: session state lives
// entirely in the store package, and a facade never talks to the push
// session.
package facade

import (
	"log/slog"
	"sync/atomic"

	"github.com/jkfujinami/linepy/internal/circuitbreaker"
	"github.com/jkfujinami/linepy/internal/device"
	"github.com/jkfujinami/linepy/internal/transport"
)

const (
	talkEndpoint     = "/S4"
	squareEndpoint   = "/SQ1"
	channelEndpoint  = "/CH4"
	timelineHomeHost = "legy.line-apps.com"
	timelineSnHost   = "legy-jp.line-apps.com"
	obsHost          = "obs.line-apps.com"
)

// Client issues typed RPCs for one authenticated device session. It holds
// no token of its own: the caller is responsible for having called
// transport.Client.SetAccessToken before issuing any facade call.
type Client struct {
	transport *transport.Client
	profile   *device.Profile
	scheme    string
	host      string
	logger    *slog.Logger

	seq int32

	// breaker is nil by default: calls run unprotected unless
	// SetCircuitBreaker wires one in.
	breaker *circuitbreaker.CircuitBreaker

	// Host overrides for the Timeline/OBS surfaces, which talk to fixed
	// third-party domains rather than the RPC host. Empty means use the
	// real domain; tests point these at an httptest server.
	timelineHomeHostOverride string
	timelineSnHostOverride   string
	obsHostOverride          string
}

// SetCircuitBreaker wires cb around every RPC issued through callCompact,
// tripping open after a run of RPC failures rather than letting a fetch
// or reconnect loop hammer an unreachable host. Passing nil disables it.
func (c *Client) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// NewClient builds a facade Client bound to host (the legy RPC host).
func NewClient(t *transport.Client, profile *device.Profile, host string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: t,
		profile:   profile,
		scheme:    "https",
		host:      host,
		logger:    logger,
	}
}

func (c *Client) nextSeq() int32 {
	return int32(atomic.AddInt32(&c.seq, 1))
}

func (c *Client) resolveTimelineHost(homeID string) (host, prefix string) {
	if len(homeID) > 0 && homeID[0] == 's' {
		if c.timelineSnHostOverride != "" {
			return c.timelineSnHostOverride, "sn"
		}
		return timelineSnHost, "sn"
	}
	if c.timelineHomeHostOverride != "" {
		return c.timelineHomeHostOverride, "mh"
	}
	return timelineHomeHost, "mh"
}

func (c *Client) resolveObsHost() string {
	if c.obsHostOverride != "" {
		return c.obsHostOverride
	}
	return obsHost
}
