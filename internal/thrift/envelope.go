package thrift

import (
	"bytes"

	"github.com/jkfujinami/linepy/internal/lineerr"
)

// Protocol encodes and decodes a complete message envelope on a single wire
// format. BinaryProtocol and CompactProtocol are the two implementations;
// callers select one per transport call and never mix them on one stream.
type Protocol interface {
	EncodeMessage(buf *bytes.Buffer, msg *Message) error
	DecodeMessage(r *bytes.Reader) (*Message, error)
}

// successFieldID and exceptionFieldID are the two field ids a reply struct
// ever carries: the declared return value, or a declared exception.
const (
	successFieldID   int16 = 0
	exceptionFieldID int16 = 1
)

// exception sub-struct field ids, following the {code, message, metadata}
// shape every declared LINE exception shares.
const (
	excFieldCode     int16 = 1
	excFieldMessage  int16 = 2
	excFieldMetadata int16 = 3
)

// EncodeCall builds a call envelope for methodName with the given positional
// argument struct and writes it to buf using p.
func EncodeCall(p Protocol, buf *bytes.Buffer, methodName string, seqID int32, args *Struct) error {
	return p.EncodeMessage(buf, &Message{Name: methodName, Kind: KindCall, SeqID: seqID, Body: args})
}

// DecodeReply reads one message from r and resolves it into either the
// success value (field 0) or a structured server error (field 1), matching
// the exception-branch shape {code, message, metadata}. isAuthMethod controls
// whether a declared exception surfaces as AuthError or ServerError.
func DecodeReply(p Protocol, r *bytes.Reader, isAuthMethod bool) (Value, error) {
	msg, err := p.DecodeMessage(r)
	if err != nil {
		return Value{}, err
	}
	if msg.Kind == KindException {
		return Value{}, decodeTransportException(msg.Body)
	}
	if v, ok := msg.Body.Get(exceptionFieldID); ok {
		return Value{}, decodeDeclaredException(v, isAuthMethod)
	}
	if v, ok := msg.Body.Get(successFieldID); ok {
		return v, nil
	}
	// A reply with neither field set is a valid void return.
	return Value{}, nil
}

// decodeTransportException handles the protocol-level TApplicationException
// branch (Kind == KindException), which carries a flat {message, type}
// struct rather than the declared-exception {code, message, metadata} shape.
func decodeTransportException(body *Struct) error {
	msg := "application exception"
	if v, ok := body.Get(1); ok {
		msg = v.AsString()
	}
	return lineerr.New(lineerr.KindTransport, msg)
}

func decodeDeclaredException(v Value, isAuthMethod bool) error {
	if v.Type != TypeStruct || v.Struct == nil {
		return lineerr.FromServer(isAuthMethod, 0, "declared exception with no body", nil)
	}
	var code int32
	var message string
	metadata := map[string]string{}

	if cv, ok := v.Struct.Get(excFieldCode); ok {
		code = int32(cv.Int)
	}
	if mv, ok := v.Struct.Get(excFieldMessage); ok {
		message = mv.AsString()
	}
	if md, ok := v.Struct.Get(excFieldMetadata); ok && md.Map != nil {
		for _, e := range md.Map.Entries {
			metadata[e.Key.AsString()] = e.Value.AsString()
		}
	}
	return lineerr.FromServer(isAuthMethod, code, message, metadata)
}
