package push

import (
	"bufio"
	"bytes"
	"testing"
)

func TestWriteReadPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := writePacket(&buf, PacketPush, []byte("hello")); err != nil {
		t.Fatalf("write packet: %v", err)
	}
	typ, payload, err := readPacket(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read packet: %v", err)
	}
	if typ != PacketPush || string(payload) != "hello" {
		t.Fatalf("unexpected round trip: type=%v payload=%q", typ, payload)
	}
}

func TestWriteReadPacketEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := writePacket(&buf, PacketStatus, nil); err != nil {
		t.Fatalf("write packet: %v", err)
	}
	typ, payload, err := readPacket(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read packet: %v", err)
	}
	if typ != PacketStatus || len(payload) != 0 {
		t.Fatalf("unexpected: type=%v payload=%v", typ, payload)
	}
}

func TestPingPacketRoundTrip(t *testing.T) {
	ack := buildPingAckPacket(42)
	subKind, id := parsePingPacket(ack)
	if subKind != pingAck || id != 42 {
		t.Fatalf("unexpected ping ack: subKind=%d id=%d", subKind, id)
	}
}

func TestSignOnRequestPacketLayout(t *testing.T) {
	request := []byte{0xAA, 0xBB, 0xCC}
	packet := buildSignOnRequestPacket(7, ServiceSquare, request)
	if len(packet) != signOnRequestHeaderSize+len(request) {
		t.Fatalf("unexpected packet length: %d", len(packet))
	}
	if packet[2] != byte(ServiceSquare) {
		t.Fatalf("expected service kind at byte 2, got %d", packet[2])
	}
	if !bytes.Equal(packet[6:], request) {
		t.Fatalf("expected request body appended after 6-byte header, got %v", packet[6:])
	}
}

func TestSignOnReplyPacketFinBit(t *testing.T) {
	payload := []byte{0x80, 0x03, 'a', 'b', 'c'}
	requestID, fin, fragment, err := parseSignOnReplyPacket(payload)
	if err != nil {
		t.Fatalf("parse sign-on reply: %v", err)
	}
	if requestID != 3 || !fin || string(fragment) != "abc" {
		t.Fatalf("unexpected parse: id=%d fin=%v fragment=%q", requestID, fin, fragment)
	}
}

func TestSignOnReplyPacketWithoutFinBit(t *testing.T) {
	payload := []byte{0x00, 0x05, 'x'}
	requestID, fin, fragment, err := parseSignOnReplyPacket(payload)
	if err != nil {
		t.Fatalf("parse sign-on reply: %v", err)
	}
	if requestID != 5 || fin || string(fragment) != "x" {
		t.Fatalf("unexpected parse: id=%d fin=%v fragment=%q", requestID, fin, fragment)
	}
}

func TestPushPacketRoundTrip(t *testing.T) {
	payload := []byte{pingAckRequired, byte(ServiceSquare), 0, 0, 0, 9, 'd', 'a', 't', 'a'}
	n, err := parsePushPacket(payload)
	if err != nil {
		t.Fatalf("parse push: %v", err)
	}
	if !n.AckRequired || n.ServiceKind != ServiceSquare || n.PushID != 9 || string(n.Payload) != "data" {
		t.Fatalf("unexpected push notification: %+v", n)
	}
	ack := buildPushAckPacket(n)
	if len(ack) != pushFrameHeaderSize {
		t.Fatalf("unexpected ack length: %d", len(ack))
	}
	if ack[1] != byte(ServiceSquare) {
		t.Fatalf("expected service kind echoed in ack, got %d", ack[1])
	}
}

func TestServiceMask(t *testing.T) {
	mask := ServiceMask(ServiceSquare, ServiceTalkSync)
	// square=3 -> bit 2 (4), talk-sync=8 -> bit 7 (128)
	if mask != 4+128 {
		t.Fatalf("unexpected mask: %d", mask)
	}
}
