package push

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jkfujinami/linepy/internal/circuitbreaker"
	"github.com/jkfujinami/linepy/internal/device"
	"github.com/jkfujinami/linepy/internal/lineerr"
	"github.com/jkfujinami/linepy/internal/metrics"
	"github.com/jkfujinami/linepy/internal/store"
	"github.com/jkfujinami/linepy/internal/thrift"
)

const (
	pushHost            = "gd2.line.naver.jp"
	pushPath            = "/PUSH/1/subs"
	serverPingInterval  = 30 * time.Second
	idleTimeout         = 120 * time.Second
	reconnectBackoff    = 3 * time.Second
	pingWriteGrace      = 5 * time.Second
)

// Session is the Push Session (C6): one long-lived connection per device
// login, alternating between dial/negotiate and an active read loop, with
// an automatic 3s-backoff reconnect on any error.
//
// Grounded on linepy/push/manager.py's PushManager: the same service list,
// the same sign-on-then-read-loop sequence, and the same unconditional
// reconnect-after-error behavior.
type Session struct {
	profile *device.Profile
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics

	// breaker is nil by default: dial/negotiate runs unprotected unless
	// SetCircuitBreaker wires one in. It guards only the dial-through-
	// negotiate phase, never the already-established read loop, so a
	// long-lived connection's eventual idle-timeout reconnect is never
	// counted as the kind of rapid-fire dial failure that should trip it.
	breaker *circuitbreaker.CircuitBreaker

	// hostOverride replaces the production push host when set, for tests.
	hostOverride string

	services []ServiceKind

	// OnPush is invoked for every application push frame the server sends,
	// after this session has already ack'd it if required. It must not
	// block: C6 notifies C7 of availability, it never pulls events itself.
	OnPush func(kind ServiceKind, pushID int32)

	mu           sync.Mutex
	running      bool
	cancel       context.CancelFunc
	accessToken  atomic.Value // string

	reqSeq            uint32
	signOnServiceByID map[uint16]ServiceKind
	partial           map[uint16][]byte

	// dial is dialPush in production; tests substitute an in-memory conn.
	dial func(ctx context.Context, host, path string, headers http.Header) (*conn, error)
}

// NewSession builds a Session. Call SetAccessToken before Start.
func NewSession(profile *device.Profile, st store.Store, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		profile: profile,
		store:   st,
		logger:  logger,
		metrics: metrics.NewNop(),
		dial:    dialPush,
	}
	s.accessToken.Store("")
	return s
}

// SetMetrics wires Prometheus collectors into this session's reconnect loop.
// Passing nil reverts to discarding collectors.
func (s *Session) SetMetrics(m *metrics.Metrics) {
	if m == nil {
		m = metrics.NewNop()
	}
	s.metrics = m
}

// SetCircuitBreaker wires cb around the dial/negotiate phase of every
// reconnect attempt, tripping open after a run of failed connection
// attempts rather than hammering an unreachable push host every
// reconnectBackoff interval. Passing nil disables it.
func (s *Session) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	s.breaker = cb
}

// SetAccessToken updates the token carried on the next (re)connect. An
// in-flight connection keeps using the token it dialed with; a refreshed
// token only takes effect on the next dial.
func (s *Session) SetAccessToken(token string) {
	s.accessToken.Store(token)
}

func (s *Session) currentAccessToken() string {
	return s.accessToken.Load().(string)
}

// Start begins the dial/negotiate/read/reconnect loop in a background
// goroutine for the given services (e.g. ServiceSquare, ServiceTalkSync).
// Calling Start twice without an intervening Stop is a no-op.
func (s *Session) Start(ctx context.Context, services []ServiceKind) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.services = services
	s.mu.Unlock()

	go s.runLoop(runCtx)
}

// Stop tears down the active connection (if any) and ends the reconnect
// loop.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connectAndServe(ctx); err != nil {
			s.logger.Warn("push connection error", "error", err)
			s.metrics.PushConnectionState.Set(0)
			s.metrics.PushReconnects.Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func (s *Session) connectAndServe(ctx context.Context) error {
	c, err := s.dialAndNegotiate(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	s.metrics.PushConnectionState.Set(1)
	return s.readLoop(ctx, c)
}

// dialAndNegotiate dials the push host and runs sign-on for every enabled
// service. When a circuit breaker is wired in, this whole phase counts as
// one guarded request: repeated dial/negotiate failures trip it, so a
// downed push host stops being hammered every reconnectBackoff interval.
func (s *Session) dialAndNegotiate(ctx context.Context) (*conn, error) {
	mask := ServiceMask(s.services...)
	host := pushHost
	if s.hostOverride != "" {
		host = s.hostOverride
	}

	headers := http.Header{}
	headers.Set("x-line-application", s.profile.ApplicationHeader())
	headers.Set("x-line-access", s.currentAccessToken())
	headers.Set("content-type", "application/octet-stream")
	headers.Set("accept", "application/octet-stream")

	path := pushPath + "?m=" + strconv.FormatUint(uint64(mask), 10)

	do := func(ctx context.Context) (interface{}, error) {
		c, err := s.dial(ctx, host, path, headers)
		if err != nil {
			return nil, err
		}

		s.reqSeq = 0
		s.signOnServiceByID = map[uint16]ServiceKind{}
		s.partial = map[uint16][]byte{}

		if err := c.writeFrame(PacketStatus, buildStatusPacket(true, uint16(serverPingInterval/time.Second))); err != nil {
			c.close()
			return nil, err
		}
		if err := s.negotiate(ctx, c); err != nil {
			c.close()
			return nil, err
		}
		return c, nil
	}

	if s.breaker == nil {
		return asConn(do(ctx))
	}
	return asConn(s.breaker.ExecuteContext(ctx, do))
}

func asConn(v interface{}, err error) (*conn, error) {
	if err != nil {
		if v == nil {
			return nil, err
		}
		return v.(*conn), err
	}
	return v.(*conn), nil
}

// negotiate sends one sign-on request per enabled service, regenerating
// the square subscription id fresh on every connect (linepy/push/manager.py:
// "CHRLINE forces new subscriptionID on every Init").
func (s *Session) negotiate(ctx context.Context, c *conn) error {
	for _, svc := range s.services {
		switch svc {
		case ServiceSquare:
			subscriptionID := time.Now().UnixMilli()
			request, err := buildFetchMyEventsSignOn(subscriptionID, s.loadSquareSyncToken(ctx))
			if err != nil {
				return err
			}
			if err := s.sendSignOn(c, ServiceSquare, request); err != nil {
				return err
			}
		case ServiceTalkFetchOps, ServiceTalkSync:
			s.logger.Debug("push: talk sign-on not implemented", "service", svc)
		default:
			s.logger.Debug("push: unhandled service in sign-on", "service", svc)
		}
	}
	return nil
}

func (s *Session) loadSquareSyncToken(ctx context.Context) string {
	if s.store == nil {
		return ""
	}
	sess, err := s.store.Load(ctx)
	if err != nil || sess == nil {
		return ""
	}
	if c, ok := sess.Cursors["__mh__"]; ok {
		return c.SyncToken
	}
	return ""
}

func (s *Session) sendSignOn(c *conn, kind ServiceKind, request []byte) error {
	s.reqSeq++
	id := uint16(s.reqSeq)
	s.signOnServiceByID[id] = kind
	return c.writeFrame(PacketSignOnRequest, buildSignOnRequestPacket(id, kind, request))
}

// buildFetchMyEventsSignOn builds the Thrift call envelope carried inside a
// square sign-on request: fetchMyEvents(subscriptionId, syncToken, limit).
//
// Grounded on linepy/push/manager.py's _build_fetch_my_events_request:
// compact protocol, param struct {1:subscriptionId(i64), 2:syncToken(string),
// 3:limit(i32)=100}.
func buildFetchMyEventsSignOn(subscriptionID int64, syncToken string) ([]byte, error) {
	inner := &thrift.Struct{}
	inner.Set(1, thrift.I64(subscriptionID))
	inner.Set(2, thrift.String(syncToken))
	inner.Set(3, thrift.I32(100))
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	var buf bytes.Buffer
	if err := (thrift.CompactProtocol{}).EncodeMessage(&buf, &thrift.Message{
		Name: "fetchMyEvents", Kind: thrift.KindCall, SeqID: 0, Body: args,
	}); err != nil {
		return nil, lineerr.Wrap(lineerr.KindCodec, "push: encode fetchMyEvents sign-on", err)
	}
	return buf.Bytes(), nil
}

func (s *Session) readLoop(ctx context.Context, c *conn) error {
	awaitingPong := false
	frames := make(chan frameOrErr, 4)

	go func() {
		for {
			typ, payload, err := c.readFrame()
			select {
			case frames <- frameOrErr{typ, payload, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()
	keepAlive := time.NewTicker(serverPingInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-idleTimer.C:
			return lineerr.New(lineerr.KindFlowTimeout, "push: idle timeout, no frames received")

		case <-keepAlive.C:
			if awaitingPong {
				return lineerr.New(lineerr.KindFlowTimeout, "push: keep-alive ping unanswered")
			}
			pingCtx, cancel := context.WithTimeout(ctx, pingWriteGrace)
			err := c.ping(pingCtx)
			cancel()
			if err != nil {
				return lineerr.Wrap(lineerr.KindTransport, "push: send keep-alive ping", err)
			}
			awaitingPong = true

		case f := <-frames:
			if f.err != nil {
				return lineerr.Wrap(lineerr.KindTransport, "push: read frame", f.err)
			}
			idleTimer.Reset(idleTimeout)
			awaitingPong = false

			if err := s.handleFrame(c, f.typ, f.payload); err != nil {
				return err
			}
		}
	}
}

type frameOrErr struct {
	typ     PacketType
	payload []byte
	err     error
}

func (s *Session) handleFrame(c *conn, typ PacketType, payload []byte) error {
	switch typ {
	case PacketPing:
		subKind, id := parsePingPacket(payload)
		if subKind == pingAckRequired {
			return c.writeFrame(PacketPing, buildPingAckPacket(id))
		}
		return nil

	case PacketSignOnReply:
		requestID, fin, fragment, err := parseSignOnReplyPacket(payload)
		if err != nil {
			return err
		}
		s.partial[requestID] = append(s.partial[requestID], fragment...)
		if !fin {
			return nil
		}
		full := s.partial[requestID]
		delete(s.partial, requestID)
		kind, known := s.signOnServiceByID[requestID]
		if !known {
			return nil
		}
		s.logger.Debug("push: sign-on response complete", "service", kind, "bytes", len(full))
		return nil

	case PacketPush:
		n, err := parsePushPacket(payload)
		if err != nil {
			return err
		}
		if n.AckRequired {
			if err := c.writeFrame(PacketPush, buildPushAckPacket(n)); err != nil {
				return err
			}
		}
		if s.OnPush != nil {
			s.OnPush(n.ServiceKind, n.PushID)
		}
		return nil

	default:
		s.logger.Debug("push: unhandled frame type", "type", typ)
		return nil
	}
}
