package thrift

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jkfujinami/linepy/internal/lineerr"
)

// BinaryProtocol implements Thrift binary protocol 3: fixed-width
// big-endian primitives, an explicit i32 length prefix on every string and
// collection, and a message header carrying an explicit version marker.
type BinaryProtocol struct{}

const binaryVersionMask = 0x80010000

// EncodeMessage writes msg's envelope and body using binary protocol 3.
func (BinaryProtocol) EncodeMessage(buf *bytes.Buffer, msg *Message) error {
	header := uint32(binaryVersionMask) | uint32(msg.Kind)
	if err := writeU32(buf, header); err != nil {
		return err
	}
	if err := writeBinaryString(buf, msg.Name); err != nil {
		return err
	}
	if err := writeI32(buf, msg.SeqID); err != nil {
		return err
	}
	return encodeBinaryStruct(buf, msg.Body)
}

// DecodeMessage reads one binary-protocol-3 message from r.
func (BinaryProtocol) DecodeMessage(r *bytes.Reader) (*Message, error) {
	header, err := readU32(r)
	if err != nil {
		return nil, lineerr.Wrap(lineerr.KindCodec, "read binary header", err)
	}
	if header&0xFFFF0000 != binaryVersionMask {
		return nil, lineerr.New(lineerr.KindCodec, fmt.Sprintf("unknown binary protocol version marker 0x%x", header&0xFFFF0000))
	}
	kind := MessageKind(header & 0xFF)
	name, err := readBinaryString(r)
	if err != nil {
		return nil, lineerr.Wrap(lineerr.KindCodec, "read method name", err)
	}
	seq, err := readI32(r)
	if err != nil {
		return nil, lineerr.Wrap(lineerr.KindCodec, "read sequence id", err)
	}
	body, err := decodeBinaryStruct(r)
	if err != nil {
		return nil, err
	}
	return &Message{Name: name, Kind: kind, SeqID: seq, Body: body}, nil
}

func encodeBinaryStruct(buf *bytes.Buffer, s *Struct) error {
	if s == nil {
		s = &Struct{}
	}
	for _, f := range s.Fields {
		buf.WriteByte(byte(f.Value.Type))
		if err := writeI16(buf, f.ID); err != nil {
			return err
		}
		if err := encodeBinaryValue(buf, f.Value); err != nil {
			return err
		}
	}
	buf.WriteByte(byte(TypeStop))
	return nil
}

func decodeBinaryStruct(r *bytes.Reader) (*Struct, error) {
	s := &Struct{}
	seen := make(map[int16]bool)
	for {
		tb, err := r.ReadByte()
		if err != nil {
			return nil, lineerr.Wrap(lineerr.KindCodec, "read field type", err)
		}
		ft := Type(tb)
		if ft == TypeStop {
			return s, nil
		}
		fid, err := readI16(r)
		if err != nil {
			return nil, lineerr.Wrap(lineerr.KindCodec, "read field id", err)
		}
		if seen[fid] {
			return nil, lineerr.New(lineerr.KindCodec, fmt.Sprintf("duplicate field id %d in struct", fid))
		}
		seen[fid] = true
		v, err := decodeBinaryValue(r, ft)
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, Field{ID: fid, Value: v})
	}
}

func encodeBinaryValue(buf *bytes.Buffer, v Value) error {
	switch v.Type {
	case TypeBool:
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case TypeByte:
		buf.WriteByte(byte(v.Int))
	case TypeDouble:
		return writeU64(buf, math.Float64bits(v.Double))
	case TypeI16:
		return writeI16(buf, int16(v.Int))
	case TypeI32:
		return writeI32(buf, int32(v.Int))
	case TypeI64:
		return writeI64(buf, v.Int)
	case TypeString:
		if err := writeI32(buf, int32(len(v.Bin))); err != nil {
			return err
		}
		buf.Write(v.Bin)
	case TypeStruct:
		return encodeBinaryStruct(buf, v.Struct)
	case TypeList, TypeSet:
		l := v.List
		if v.Type == TypeSet {
			l = v.Set
		}
		if l == nil {
			l = &List{}
		}
		buf.WriteByte(byte(l.ElemType))
		if err := writeI32(buf, int32(len(l.Elems))); err != nil {
			return err
		}
		for _, e := range l.Elems {
			if err := encodeBinaryValue(buf, e); err != nil {
				return err
			}
		}
	case TypeMap:
		m := v.Map
		if m == nil {
			m = &Map{}
		}
		buf.WriteByte(byte(m.KeyType))
		buf.WriteByte(byte(m.ValType))
		if err := writeI32(buf, int32(len(m.Entries))); err != nil {
			return err
		}
		for _, e := range m.Entries {
			if err := encodeBinaryValue(buf, e.Key); err != nil {
				return err
			}
			if err := encodeBinaryValue(buf, e.Value); err != nil {
				return err
			}
		}
	default:
		return lineerr.New(lineerr.KindCodec, fmt.Sprintf("encode: unsupported type %s", v.Type))
	}
	return nil
}

func decodeBinaryValue(r *bytes.Reader, t Type) (Value, error) {
	switch t {
	case TypeBool:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read bool", err)
		}
		return Value{Type: t, Bool: b != 0}, nil
	case TypeByte:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read byte", err)
		}
		return Value{Type: t, Int: int64(int8(b))}, nil
	case TypeDouble:
		u, err := readU64(r)
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read double", err)
		}
		return Value{Type: t, Double: math.Float64frombits(u)}, nil
	case TypeI16:
		i, err := readI16(r)
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read i16", err)
		}
		return Value{Type: t, Int: int64(i)}, nil
	case TypeI32:
		i, err := readI32(r)
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read i32", err)
		}
		return Value{Type: t, Int: int64(i)}, nil
	case TypeI64:
		i, err := readI64(r)
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read i64", err)
		}
		return Value{Type: t, Int: i}, nil
	case TypeString:
		s, err := readBinaryString(r)
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read string", err)
		}
		return Value{Type: t, Bin: []byte(s)}, nil
	case TypeStruct:
		st, err := decodeBinaryStruct(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Struct: st}, nil
	case TypeList, TypeSet:
		etb, err := r.ReadByte()
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read elem type", err)
		}
		size, err := readI32(r)
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read collection size", err)
		}
		if size < 0 {
			return Value{}, lineerr.New(lineerr.KindCodec, "negative collection size")
		}
		l := &List{ElemType: Type(etb)}
		for i := int32(0); i < size; i++ {
			e, err := decodeBinaryValue(r, l.ElemType)
			if err != nil {
				return Value{}, err
			}
			l.Elems = append(l.Elems, e)
		}
		if t == TypeSet {
			return Value{Type: t, Set: l}, nil
		}
		return Value{Type: t, List: l}, nil
	case TypeMap:
		ktb, err := r.ReadByte()
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read map key type", err)
		}
		vtb, err := r.ReadByte()
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read map val type", err)
		}
		size, err := readI32(r)
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read map size", err)
		}
		if size < 0 {
			return Value{}, lineerr.New(lineerr.KindCodec, "negative map size")
		}
		m := &Map{KeyType: Type(ktb), ValType: Type(vtb)}
		for i := int32(0); i < size; i++ {
			k, err := decodeBinaryValue(r, m.KeyType)
			if err != nil {
				return Value{}, err
			}
			v, err := decodeBinaryValue(r, m.ValType)
			if err != nil {
				return Value{}, err
			}
			m.Entries = append(m.Entries, MapEntry{Key: k, Value: v})
		}
		return Value{Type: t, Map: m}, nil
	default:
		return Value{}, lineerr.New(lineerr.KindCodec, fmt.Sprintf("decode: unsupported type %s", t))
	}
}

// --- primitive byte order helpers (binary protocol is always big-endian) ---

func writeU32(buf *bytes.Buffer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := buf.Write(b[:])
	return err
}

func writeI32(buf *bytes.Buffer, v int32) error { return writeU32(buf, uint32(v)) }

func writeI16(buf *bytes.Buffer, v int16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	_, err := buf.Write(b[:])
	return err
}

func writeU64(buf *bytes.Buffer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := buf.Write(b[:])
	return err
}

func writeI64(buf *bytes.Buffer, v int64) error { return writeU64(buf, uint64(v)) }

func writeBinaryString(buf *bytes.Buffer, s string) error {
	if err := writeI32(buf, int32(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readI32(r *bytes.Reader) (int32, error) {
	u, err := readU32(r)
	return int32(u), err
}

func readI16(r *bytes.Reader) (int16, error) {
	var b [2]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b[:])), nil
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readI64(r *bytes.Reader) (int64, error) {
	u, err := readU64(r)
	return int64(u), err
}

func readBinaryString(r *bytes.Reader) (string, error) {
	n, err := readI32(r)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", lineerr.New(lineerr.KindCodec, "negative string length")
	}
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err != nil {
		return n, err
	}
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		if err != nil {
			return n, lineerr.New(lineerr.KindCodec, "truncated payload")
		}
		n += m
	}
	return n, nil
}

var _ Protocol = BinaryProtocol{}
