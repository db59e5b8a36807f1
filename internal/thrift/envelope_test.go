package thrift

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jkfujinami/linepy/internal/lineerr"
)

func TestDecodeReplySuccess(t *testing.T) {
	body := &Struct{}
	body.Set(successFieldID, String("ok"))
	msg := &Message{Name: "m", Kind: KindReply, SeqID: 1, Body: body}
	var buf bytes.Buffer
	if err := (BinaryProtocol{}).EncodeMessage(&buf, msg); err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	v, err := DecodeReply(BinaryProtocol{}, bytes.NewReader(buf.Bytes()), false)
	if err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if v.AsString() != "ok" {
		t.Fatalf("unexpected success value: %+v", v)
	}
}

func TestDecodeReplyDeclaredException(t *testing.T) {
	exc := &Struct{}
	exc.Set(excFieldCode, I32(12))
	exc.Set(excFieldMessage, String("bad request"))
	exc.Set(excFieldMetadata, Value{Type: TypeMap, Map: &Map{
		KeyType: TypeString, ValType: TypeString,
		Entries: []MapEntry{{Key: String("field"), Value: String("password")}},
	}})
	body := &Struct{}
	body.Set(exceptionFieldID, Struc(exc))
	msg := &Message{Name: "login", Kind: KindReply, SeqID: 2, Body: body}
	var buf bytes.Buffer
	if err := (BinaryProtocol{}).EncodeMessage(&buf, msg); err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err := DecodeReply(BinaryProtocol{}, bytes.NewReader(buf.Bytes()), true)
	if err == nil {
		t.Fatal("expected declared exception error")
	}
	if !errors.Is(err, lineerr.Auth) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	var le *lineerr.Error
	if errors.As(err, &le) {
		if le.Code != 12 || le.Message != "bad request" || le.Metadata["field"] != "password" {
			t.Fatalf("unexpected decoded exception: %+v", le)
		}
	}
}

func TestDecodeReplyTransportException(t *testing.T) {
	body := &Struct{}
	body.Set(1, String("unknown method"))
	msg := &Message{Name: "m", Kind: KindException, SeqID: 3, Body: body}
	var buf bytes.Buffer
	if err := (BinaryProtocol{}).EncodeMessage(&buf, msg); err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err := DecodeReply(BinaryProtocol{}, bytes.NewReader(buf.Bytes()), false)
	if !errors.Is(err, lineerr.Transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}
