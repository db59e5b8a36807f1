// Package push implements the Push Session (C6): one HTTP/2 stream carrying
// a continuous sequence of length-prefixed frames in both directions. It
// negotiates service sign-ons, answers server pings, and surfaces push
// notifications to a caller-supplied callback — it never pulls events
// itself, that is the Event Fetcher's job.
package push

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jkfujinami/linepy/internal/lineerr"
)

// PacketType is the one-byte frame discriminator carried after the 2-byte
// length prefix.
//
// Grounded on linepy/push/data.py's LegyH2Frame subclasses: Status(0),
// Ping(1), SignOnRequest(2), SignOnResponse(3), Push(4).
type PacketType uint8

const (
	PacketStatus        PacketType = 0
	PacketPing          PacketType = 1
	PacketSignOnRequest PacketType = 2
	PacketSignOnReply   PacketType = 3
	PacketPush          PacketType = 4
)

// maxPayloadSize is the 15-bit size field's ceiling (linepy/push/conn.py
// masks the length with 0x7FFF when parsing; one bit is reserved).
const maxPayloadSize = 0x7FFF

// writePacket frames payload with the 3-byte LEGY header (2-byte
// big-endian size, 1-byte type) and writes it to w.
func writePacket(w io.Writer, typ PacketType, payload []byte) error {
	if len(payload) > maxPayloadSize {
		return lineerr.New(lineerr.KindCodec, fmt.Sprintf("push: payload too large (%d bytes)", len(payload)))
	}
	header := make([]byte, 3)
	binary.BigEndian.PutUint16(header, uint16(len(payload))&maxPayloadSize)
	header[2] = byte(typ)
	if _, err := w.Write(header); err != nil {
		return lineerr.Wrap(lineerr.KindTransport, "push: write frame header", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return lineerr.Wrap(lineerr.KindTransport, "push: write frame payload", err)
		}
	}
	return nil
}

// readPacket reads one complete LEGY frame from r, blocking until the
// header and payload are both available.
func readPacket(r *bufio.Reader) (PacketType, []byte, error) {
	header := make([]byte, 3)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	size := binary.BigEndian.Uint16(header[:2]) & maxPayloadSize
	typ := PacketType(header[2])
	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, lineerr.Wrap(lineerr.KindTransport, "push: read frame payload", err)
		}
	}
	return typ, payload, nil
}

// Ping frame sub-kinds (byte 0 of a PacketPing payload).
const (
	pingNone        uint8 = 0
	pingAck         uint8 = 1
	pingAckRequired uint8 = 2
)

// buildStatusPacket encodes the negotiation status frame: a foreground flag
// and the client's desired server-ping interval in seconds.
//
// linepy/push/data.py declares LegyH2StatusFrame's fields but never encodes
// or sends one; this fills that gap with the straightforward layout implied
// by its two fields, matching the base LegyH2Frame.request_packet encoding
// (length-prefixed body) every other frame kind uses.
func buildStatusPacket(foreground bool, pingIntervalSeconds uint16) []byte {
	payload := make([]byte, 3)
	if foreground {
		payload[0] = 1
	}
	binary.BigEndian.PutUint16(payload[1:3], pingIntervalSeconds)
	return payload
}

// buildPingAckPacket answers a server ping (sub-kind 2) with an ack
// (sub-kind 1) echoing the same id.
func buildPingAckPacket(id uint16) []byte {
	payload := make([]byte, 3)
	payload[0] = pingAck
	binary.BigEndian.PutUint16(payload[1:3], id)
	return payload
}

// parsePingPacket splits a PacketPing payload into its sub-kind and id.
func parsePingPacket(payload []byte) (subKind uint8, id uint16) {
	if len(payload) == 0 {
		return pingNone, 0
	}
	subKind = payload[0]
	if len(payload) >= 3 {
		id = binary.BigEndian.Uint16(payload[1:3])
	}
	return subKind, id
}

// signOnRequestHeaderSize is the fixed 6-byte prefix of a
// PacketSignOnRequest payload: request id, service kind, a reserved byte,
// and the inner request's length. The inner request itself is a complete
// Thrift call envelope built by the caller.
const signOnRequestHeaderSize = 6

func buildSignOnRequestPacket(requestID uint16, serviceKind ServiceKind, request []byte) []byte {
	payload := make([]byte, signOnRequestHeaderSize+len(request))
	binary.BigEndian.PutUint16(payload[0:2], requestID)
	payload[2] = byte(serviceKind)
	payload[3] = 0
	binary.BigEndian.PutUint16(payload[4:6], uint16(len(request)))
	copy(payload[6:], request)
	return payload
}

// parseSignOnReplyPacket splits a PacketSignOnReply payload into the
// request id, the fin bit (the response is complete), and the response
// fragment.
func parseSignOnReplyPacket(payload []byte) (requestID uint16, fin bool, fragment []byte, err error) {
	if len(payload) < 2 {
		return 0, false, nil, lineerr.New(lineerr.KindCodec, "push: sign-on reply too short")
	}
	word := binary.BigEndian.Uint16(payload[0:2])
	requestID = word &^ 0x8000
	fin = word&0x8000 != 0
	return requestID, fin, payload[2:], nil
}

// pushFrameHeaderSize is the fixed prefix of a PacketPush payload: push
// sub-kind (ack-required or not), service kind, and a 4-byte push id.
const pushFrameHeaderSize = 6

// PushNotification is one decoded PacketPush frame.
type PushNotification struct {
	AckRequired bool
	ServiceKind ServiceKind
	PushID      int32
	Payload     []byte
}

func parsePushPacket(payload []byte) (*PushNotification, error) {
	if len(payload) < pushFrameHeaderSize {
		return nil, lineerr.New(lineerr.KindCodec, "push: push frame too short")
	}
	return &PushNotification{
		AckRequired: payload[0] == pingAckRequired,
		ServiceKind: ServiceKind(payload[1]),
		PushID:      int32(binary.BigEndian.Uint32(payload[2:6])),
		Payload:     payload[6:],
	}, nil
}

// buildPushAckPacket acknowledges a PacketPush frame that required one.
func buildPushAckPacket(n *PushNotification) []byte {
	payload := make([]byte, pushFrameHeaderSize)
	payload[0] = pingAck
	payload[1] = byte(n.ServiceKind)
	binary.BigEndian.PutUint32(payload[2:6], uint32(n.PushID))
	return payload
}
