package auth

import (
	"context"
	"encoding/base64"
	"net/url"
	"time"

	"github.com/jkfujinami/linepy/internal/lineerr"
	"github.com/jkfujinami/linepy/internal/thrift"
)

// QRState is one step of the QR/PIN login state machine.
type QRState int

const (
	QRStateInit QRState = iota
	QRStateSessionCreated
	QRStateCodeIssued
	QRStateAwaitingScan
	QRStateScanned
	QRStateCertVerified
	QRStatePinIssued
	QRStateAwaitingPin
	QRStatePinVerified
	QRStateAuthenticated
	QRStateTimeout
	QRStateFatal
)

func (s QRState) String() string {
	switch s {
	case QRStateInit:
		return "INIT"
	case QRStateSessionCreated:
		return "SESSION_CREATED"
	case QRStateCodeIssued:
		return "CODE_ISSUED"
	case QRStateAwaitingScan:
		return "AWAITING_SCAN"
	case QRStateScanned:
		return "SCANNED"
	case QRStateCertVerified:
		return "CERT_VERIFIED"
	case QRStatePinIssued:
		return "PIN_ISSUED"
	case QRStateAwaitingPin:
		return "AWAITING_PIN"
	case QRStatePinVerified:
		return "PIN_VERIFIED"
	case QRStateAuthenticated:
		return "AUTHENTICATED"
	case QRStateTimeout:
		return "TIMEOUT"
	case QRStateFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether s ends the flow, successfully or not.
func (s QRState) IsTerminal() bool {
	return s == QRStateAuthenticated || s == QRStateTimeout || s == QRStateFatal
}

const (
	longPollRequestTimeout = 20 * time.Second
	longPollOuterDeadline  = 5 * time.Minute
)

// qrSession tracks the state machine's progress through one login attempt,
// mirroring the transition history the handshake state machine keeps for
// diagnostics.
type qrSession struct {
	state   QRState
	history []QRState
	sqr     string
}

func (s *qrSession) transition(to QRState) {
	s.history = append(s.history, s.state)
	s.state = to
}

// QRLoginResult is what a completed QR login flow produces.
type QRLoginResult struct {
	Token       TokenInfo
	Mid         string
	Certificate string
}

// LoginWithQR runs the full QR state machine: create a session, issue a QR
// code (with an E2EE key-exchange parameter appended when a provider is
// configured), long-poll for the scan, attempt certificate verification,
// fall back to a PIN challenge on certificate failure, and finally call
// qrCodeLogin/qrCodeLoginV2 depending on the device's v3 support.
func (c *Client) LoginWithQR(ctx context.Context, savedCert string, onURL URLCallback, onPIN PINCallback) (*QRLoginResult, error) {
	sess := &qrSession{state: QRStateInit}
	defer func() {
		c.logger.Debug("qr login flow finished", "finalState", sess.state.String(), "transitions", len(sess.history))
	}()

	sqr, err := c.createQRSession(ctx)
	if err != nil {
		sess.transition(QRStateFatal)
		return nil, err
	}
	sess.sqr = sqr
	sess.transition(QRStateSessionCreated)

	qrURL, err := c.createQrCode(ctx, sqr)
	if err != nil {
		sess.transition(QRStateFatal)
		return nil, err
	}
	sess.transition(QRStateCodeIssued)

	if c.e2ee != nil {
		kp, kerr := c.e2ee.GenerateKeyPair()
		if kerr != nil {
			return nil, lineerr.Wrap(lineerr.KindConfig, "generate qr e2ee key pair", kerr)
		}
		qrURL = appendE2EEParam(qrURL, kp.Public[:])
	}
	if onURL != nil {
		onURL(qrURL)
	}
	sess.transition(QRStateAwaitingScan)

	if err := c.pollUntil(ctx, "checkQrCodeVerified", sqr); err != nil {
		if lineerr.Of(err, lineerr.KindFlowTimeout) {
			sess.transition(QRStateTimeout)
		} else {
			sess.transition(QRStateFatal)
		}
		return nil, err
	}
	sess.transition(QRStateScanned)

	certOK := false
	if savedCert != "" {
		if err := c.verifyCertificate(ctx, sqr, savedCert); err == nil {
			certOK = true
		}
	}

	if certOK {
		sess.transition(QRStateCertVerified)
	} else {
		pin, err := c.createPinCode(ctx, sqr)
		if err != nil {
			sess.transition(QRStateFatal)
			return nil, err
		}
		sess.transition(QRStatePinIssued)
		if onPIN != nil {
			onPIN(pin)
		}
		sess.transition(QRStateAwaitingPin)

		if err := c.pollUntil(ctx, "checkPinCodeVerified", sqr); err != nil {
			if lineerr.Of(err, lineerr.KindFlowTimeout) {
				sess.transition(QRStateTimeout)
			} else {
				sess.transition(QRStateFatal)
			}
			return nil, err
		}
		sess.transition(QRStatePinVerified)
	}

	var result *QRLoginResult
	if c.profile.SupportsTokenV3() {
		result, err = c.qrCodeLoginV2(ctx, sqr)
	} else {
		result, err = c.qrCodeLoginV1(ctx, sqr)
	}
	if err != nil {
		sess.transition(QRStateFatal)
		return nil, err
	}
	sess.transition(QRStateAuthenticated)
	return result, nil
}

func (c *Client) createQRSession(ctx context.Context) (string, error) {
	v, err := c.callCompact(ctx, qrEndpoint, "createSession", &thrift.Struct{}, true)
	if err != nil {
		return "", err
	}
	if v.Type != thrift.TypeStruct || v.Struct == nil {
		return "", lineerr.New(lineerr.KindCodec, "createSession: empty response")
	}
	f, ok := v.Struct.Get(1)
	if !ok {
		return "", lineerr.New(lineerr.KindCodec, "createSession: missing sqr")
	}
	return f.AsString(), nil
}

func (c *Client) createQrCode(ctx context.Context, sqr string) (string, error) {
	inner := &thrift.Struct{}
	inner.Set(1, thrift.String(sqr))
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	v, err := c.callCompact(ctx, qrEndpoint, "createQrCode", args, true)
	if err != nil {
		return "", err
	}
	if v.Type != thrift.TypeStruct || v.Struct == nil {
		return "", lineerr.New(lineerr.KindCodec, "createQrCode: empty response")
	}
	f, ok := v.Struct.Get(1)
	if !ok {
		return "", lineerr.New(lineerr.KindCodec, "createQrCode: missing url")
	}
	return f.AsString(), nil
}

func (c *Client) createPinCode(ctx context.Context, sqr string) (string, error) {
	inner := &thrift.Struct{}
	inner.Set(1, thrift.String(sqr))
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	v, err := c.callCompact(ctx, qrEndpoint, "createPinCode", args, true)
	if err != nil {
		return "", err
	}
	if v.Type != thrift.TypeStruct || v.Struct == nil {
		return "", lineerr.New(lineerr.KindCodec, "createPinCode: empty response")
	}
	f, ok := v.Struct.Get(1)
	if !ok {
		return "", lineerr.New(lineerr.KindCodec, "createPinCode: missing pincode")
	}
	return f.AsString(), nil
}

func (c *Client) verifyCertificate(ctx context.Context, sqr, cert string) error {
	inner := &thrift.Struct{}
	inner.Set(1, thrift.String(sqr))
	inner.Set(2, thrift.String(cert))
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	_, err := c.callCompact(ctx, qrEndpoint, "verifyCertificate", args, true)
	return err
}

func (c *Client) qrCodeLoginV1(ctx context.Context, sqr string) (*QRLoginResult, error) {
	inner := &thrift.Struct{}
	inner.Set(1, thrift.String(sqr))
	inner.Set(2, thrift.String(string(c.profile.Kind)))
	inner.Set(3, thrift.Bool(true)) // autoLoginIsRequired
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	v, err := c.callCompact(ctx, qrEndpoint, "qrCodeLogin", args, true)
	if err != nil {
		return nil, err
	}
	if v.Type != thrift.TypeStruct || v.Struct == nil {
		return nil, lineerr.New(lineerr.KindCodec, "qrCodeLogin: empty response")
	}
	r := &QRLoginResult{}
	if f, ok := v.Struct.Get(1); ok {
		r.Certificate = f.AsString()
	}
	if f, ok := v.Struct.Get(2); ok {
		r.Token.AccessToken = f.AsString()
	}
	if f, ok := v.Struct.Get(3); ok {
		r.Mid = f.AsString()
	}
	if r.Token.AccessToken == "" {
		return nil, lineerr.New(lineerr.KindAuth, "qrCodeLogin: no auth token in response")
	}
	return r, nil
}

func (c *Client) qrCodeLoginV2(ctx context.Context, sqr string) (*QRLoginResult, error) {
	inner := &thrift.Struct{}
	inner.Set(1, thrift.String(sqr))
	inner.Set(2, thrift.String(c.profile.SystemName))
	inner.Set(3, thrift.String(c.profile.SystemName))
	inner.Set(4, thrift.Bool(true)) // autoLoginIsRequired
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	v, err := c.callCompact(ctx, qrEndpoint, "qrCodeLoginV2", args, true)
	if err != nil {
		return nil, err
	}
	if v.Type != thrift.TypeStruct || v.Struct == nil {
		return nil, lineerr.New(lineerr.KindCodec, "qrCodeLoginV2: empty response")
	}
	r := &QRLoginResult{}
	if f, ok := v.Struct.Get(1); ok {
		r.Certificate = f.AsString()
	}
	if f, ok := v.Struct.Get(2); ok {
		r.Mid = f.AsString()
	}
	if f, ok := v.Struct.Get(3); ok && f.Type == thrift.TypeStruct && f.Struct != nil {
		if sf, ok := f.Struct.Get(1); ok {
			r.Token.AccessToken = sf.AsString()
		}
		if sf, ok := f.Struct.Get(2); ok {
			r.Token.RefreshToken = sf.AsString()
		}
		if sf, ok := f.Struct.Get(3); ok {
			r.Token.IssuedAt = sf.Int
		}
		if sf, ok := f.Struct.Get(4); ok {
			r.Token.ExpiresIn = sf.Int
		}
	}
	if r.Token.AccessToken == "" {
		return nil, lineerr.New(lineerr.KindAuth, "qrCodeLoginV2: no token info in response")
	}
	return r, nil
}

// pollUntil long-polls method (checkQrCodeVerified or checkPinCodeVerified)
// every longPollRequestTimeout until the server acknowledges, the caller's
// context is cancelled, or longPollOuterDeadline elapses. A per-request
// deadline exceeded is benign (the user has not yet acted) and is retried;
// any other error is fatal and propagates immediately.
func (c *Client) pollUntil(ctx context.Context, method, sqr string) error {
	deadline := time.Now().Add(longPollOuterDeadline)

	for {
		if time.Now().After(deadline) {
			return lineerr.New(lineerr.KindFlowTimeout, method+": outer deadline exceeded")
		}
		remaining := time.Until(deadline)
		reqTimeout := longPollRequestTimeout
		if remaining < reqTimeout {
			reqTimeout = remaining
		}

		reqCtx, cancel := context.WithTimeout(ctx, reqTimeout)
		_, err := c.longPollOnce(reqCtx, method, sqr, reqTimeout)
		timedOut := reqCtx.Err() != nil
		cancel()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lineerr.Wrap(lineerr.KindFlowTimeout, method+": cancelled", ctx.Err())
		}
		if timedOut {
			continue // per-request timeout: server hasn't acked yet, retry
		}
		return err
	}
}

func (c *Client) longPollOnce(ctx context.Context, method, sqr string, remaining time.Duration) (thrift.Value, error) {
	inner := &thrift.Struct{}
	inner.Set(1, thrift.String(sqr))
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	return c.transport.ThriftCallWithHeaders(ctx, c.scheme, c.host, qrLongPollEndpoint, thrift.CompactProtocol{}, method, c.nextSeq(), args, true, sqr, remaining.Milliseconds())
}

// appendE2EEParam adds the secret/e2eeVersion query parameters a QR URL
// carries when E2EE key exchange is available.
func appendE2EEParam(qrURL string, pub []byte) string {
	v := url.Values{}
	v.Set("secret", base64.StdEncoding.EncodeToString(pub))
	v.Set("e2eeVersion", "1")
	sep := "?"
	if u, err := url.Parse(qrURL); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return qrURL + sep + v.Encode()
}
