// Package lineerr defines the error taxonomy shared across the client: a
// fixed set of kinds that callers can branch on with errors.Is/errors.As,
// independent of the message text attached at any particular call site.
package lineerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the taxonomy buckets from the design.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindTransport
	KindCodec
	KindAuth
	KindFlowTimeout
	KindRateLimit
	KindServer
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindTransport:
		return "TransportError"
	case KindCodec:
		return "CodecError"
	case KindAuth:
		return "AuthError"
	case KindFlowTimeout:
		return "FlowTimeout"
	case KindRateLimit:
		return "RateLimit"
	case KindServer:
		return "ServerError"
	case KindState:
		return "StateError"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type carrying a Kind plus an optional server
// code/message/metadata triple, mirroring the {code, message, metadata}
// structured error the Thrift exception branch decodes into.
type Error struct {
	Kind     Kind
	Code     int32
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: [%d] %s", e.Kind, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, lineerr.Transport) etc. match any *Error of that Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == KindUnknown {
		return true
	}
	return e.Kind == t.Kind
}

// Sentinel values usable with errors.Is as e.g. errors.Is(err, lineerr.Transport).
var (
	Config      = &Error{Kind: KindConfig}
	Transport   = &Error{Kind: KindTransport}
	Codec       = &Error{Kind: KindCodec}
	Auth        = &Error{Kind: KindAuth}
	FlowTimeout = &Error{Kind: KindFlowTimeout}
	RateLimit   = &Error{Kind: KindRateLimit}
	Server      = &Error{Kind: KindServer}
	State       = &Error{Kind: KindState}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// FromServer builds a ServerError (or AuthError, when isAuth is true) from a
// decoded Thrift exception branch.
func FromServer(isAuth bool, code int32, message string, metadata map[string]string) *Error {
	k := KindServer
	if isAuth {
		k = KindAuth
	}
	return &Error{Kind: k, Code: code, Message: message, Metadata: metadata}
}

// Of reports whether the first *Error in err's chain has the given Kind.
// An *Error nested inside another *Error is not consulted.
func Of(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
