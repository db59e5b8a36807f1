package thrift

import (
	"bytes"
	"fmt"
	"math"

	"github.com/jkfujinami/linepy/internal/lineerr"
)

// compactType is the 4-bit type tag compact protocol uses in field and
// collection headers; distinct from the binary-protocol Type numbering in
// types.go even though both describe the same logical types. Booleans get
// two tags (ctTrue/ctFalse) because compact protocol inlines a bool's value
// into the field header itself rather than writing a value byte.
type compactType byte

const (
	ctStop   compactType = 0x00
	ctTrue   compactType = 0x01
	ctFalse  compactType = 0x02
	ctByte   compactType = 0x03
	ctI16    compactType = 0x04
	ctI32    compactType = 0x05
	ctI64    compactType = 0x06
	ctDouble compactType = 0x07
	ctBinary compactType = 0x08
	ctList   compactType = 0x09
	ctSet    compactType = 0x0A
	ctMap    compactType = 0x0B
	ctStruct compactType = 0x0C
)

func toCompactType(t Type) (compactType, error) {
	switch t {
	case TypeByte:
		return ctByte, nil
	case TypeI16:
		return ctI16, nil
	case TypeI32:
		return ctI32, nil
	case TypeI64:
		return ctI64, nil
	case TypeDouble:
		return ctDouble, nil
	case TypeString:
		return ctBinary, nil
	case TypeList:
		return ctList, nil
	case TypeSet:
		return ctSet, nil
	case TypeMap:
		return ctMap, nil
	case TypeStruct:
		return ctStruct, nil
	default:
		return 0, lineerr.New(lineerr.KindCodec, fmt.Sprintf("no compact type for %s", t))
	}
}

func fromCompactType(ct compactType) (Type, error) {
	switch ct {
	case ctBool1, ctBool2:
		return TypeBool, nil
	case ctByte:
		return TypeByte, nil
	case ctI16:
		return TypeI16, nil
	case ctI32:
		return TypeI32, nil
	case ctI64:
		return TypeI64, nil
	case ctDouble:
		return TypeDouble, nil
	case ctBinary:
		return TypeString, nil
	case ctList:
		return TypeList, nil
	case ctSet:
		return TypeSet, nil
	case ctMap:
		return TypeMap, nil
	case ctStruct:
		return TypeStruct, nil
	default:
		return 0, lineerr.New(lineerr.KindCodec, fmt.Sprintf("unknown compact type 0x%x", byte(ct)))
	}
}

// aliases so fromCompactType's switch reads naturally for both bool tags.
const (
	ctBool1 = ctTrue
	ctBool2 = ctFalse
)

// CompactProtocol implements Thrift compact protocol 4: varint/zigzag
// integers, inline-encoded booleans, and delta-encoded field ids.
type CompactProtocol struct{}

const (
	compactProtocolID = 0x82
	compactVersion    = 1
)

func (CompactProtocol) EncodeMessage(buf *bytes.Buffer, msg *Message) error {
	buf.WriteByte(compactProtocolID)
	buf.WriteByte(byte(compactVersion<<5) | byte(msg.Kind))
	writeUvarint(buf, uint64(msg.SeqID))
	writeUvarint(buf, uint64(len(msg.Name)))
	buf.WriteString(msg.Name)
	return encodeCompactStruct(buf, msg.Body)
}

func (CompactProtocol) DecodeMessage(r *bytes.Reader) (*Message, error) {
	pid, err := r.ReadByte()
	if err != nil {
		return nil, lineerr.Wrap(lineerr.KindCodec, "read compact protocol id", err)
	}
	if pid != compactProtocolID {
		return nil, lineerr.New(lineerr.KindCodec, fmt.Sprintf("bad compact protocol id 0x%x", pid))
	}
	vt, err := r.ReadByte()
	if err != nil {
		return nil, lineerr.Wrap(lineerr.KindCodec, "read compact version/type", err)
	}
	kind := MessageKind(vt & 0x1F)
	seq64, err := readUvarint(r)
	if err != nil {
		return nil, lineerr.Wrap(lineerr.KindCodec, "read compact seq id", err)
	}
	nameLen, err := readUvarint(r)
	if err != nil {
		return nil, lineerr.Wrap(lineerr.KindCodec, "read compact name len", err)
	}
	nameBuf := make([]byte, nameLen)
	if _, err := readFull(r, nameBuf); err != nil {
		return nil, lineerr.Wrap(lineerr.KindCodec, "read compact name", err)
	}
	body, err := decodeCompactStruct(r)
	if err != nil {
		return nil, err
	}
	return &Message{Name: string(nameBuf), Kind: kind, SeqID: int32(seq64), Body: body}, nil
}

func encodeCompactStruct(buf *bytes.Buffer, s *Struct) error {
	if s == nil {
		s = &Struct{}
	}
	var lastID int16
	for _, f := range s.Fields {
		ct, isBool, err := compactFieldType(f.Value)
		if err != nil {
			return err
		}
		delta := f.ID - lastID
		if delta > 0 && delta <= 15 {
			buf.WriteByte(byte(delta<<4) | byte(ct))
		} else {
			buf.WriteByte(byte(ct))
			writeZigzag16(buf, f.ID)
		}
		lastID = f.ID
		if isBool {
			continue // value folded into the field header
		}
		if err := encodeCompactValue(buf, f.Value); err != nil {
			return err
		}
	}
	buf.WriteByte(byte(ctStop))
	return nil
}

func compactFieldType(v Value) (ct compactType, isBool bool, err error) {
	if v.Type == TypeBool {
		if v.Bool {
			return ctTrue, true, nil
		}
		return ctFalse, true, nil
	}
	ct, err = toCompactType(v.Type)
	return ct, false, err
}

func decodeCompactStruct(r *bytes.Reader) (*Struct, error) {
	s := &Struct{}
	var lastID int16
	seen := make(map[int16]bool)
	for {
		hb, err := r.ReadByte()
		if err != nil {
			return nil, lineerr.Wrap(lineerr.KindCodec, "read compact field header", err)
		}
		if hb == byte(ctStop) {
			return s, nil
		}
		deltaNibble := (hb >> 4) & 0x0F
		ct := compactType(hb & 0x0F)
		var fid int16
		if deltaNibble == 0 {
			fid, err = readZigzag16(r)
			if err != nil {
				return nil, lineerr.Wrap(lineerr.KindCodec, "read compact field id", err)
			}
		} else {
			fid = lastID + int16(deltaNibble)
		}
		if seen[fid] {
			return nil, lineerr.New(lineerr.KindCodec, fmt.Sprintf("duplicate field id %d in struct", fid))
		}
		seen[fid] = true
		lastID = fid

		var v Value
		switch ct {
		case ctTrue:
			v = Value{Type: TypeBool, Bool: true}
		case ctFalse:
			v = Value{Type: TypeBool, Bool: false}
		default:
			t, err := fromCompactType(ct)
			if err != nil {
				return nil, err
			}
			v, err = decodeCompactValue(r, t)
			if err != nil {
				return nil, err
			}
		}
		s.Fields = append(s.Fields, Field{ID: fid, Value: v})
	}
}

func encodeCompactValue(buf *bytes.Buffer, v Value) error {
	switch v.Type {
	case TypeByte:
		buf.WriteByte(byte(v.Int))
	case TypeI16:
		writeZigzag64(buf, v.Int)
	case TypeI32:
		writeZigzag64(buf, v.Int)
	case TypeI64:
		writeZigzag64(buf, v.Int)
	case TypeDouble:
		var b [8]byte
		u := math.Float64bits(v.Double)
		for i := 0; i < 8; i++ {
			b[i] = byte(u >> (8 * i))
		}
		buf.Write(b[:])
	case TypeString:
		writeUvarint(buf, uint64(len(v.Bin)))
		buf.Write(v.Bin)
	case TypeStruct:
		return encodeCompactStruct(buf, v.Struct)
	case TypeList, TypeSet:
		l := v.List
		if v.Type == TypeSet {
			l = v.Set
		}
		if l == nil {
			l = &List{}
		}
		elemCt, err := toCompactType(l.ElemType)
		if err != nil {
			return err
		}
		if len(l.Elems) < 15 {
			buf.WriteByte(byte(len(l.Elems)<<4) | byte(elemCt))
		} else {
			buf.WriteByte(byte(0xF0) | byte(elemCt))
			writeUvarint(buf, uint64(len(l.Elems)))
		}
		for _, e := range l.Elems {
			if err := encodeCompactValue(buf, e); err != nil {
				return err
			}
		}
	case TypeMap:
		m := v.Map
		if m == nil {
			m = &Map{}
		}
		if len(m.Entries) == 0 {
			buf.WriteByte(0)
			return nil
		}
		writeUvarint(buf, uint64(len(m.Entries)))
		kct, err := toCompactType(m.KeyType)
		if err != nil {
			return err
		}
		vct, err := toCompactType(m.ValType)
		if err != nil {
			return err
		}
		buf.WriteByte(byte(kct<<4) | byte(vct))
		for _, e := range m.Entries {
			if err := encodeCompactValue(buf, e.Key); err != nil {
				return err
			}
			if err := encodeCompactValue(buf, e.Value); err != nil {
				return err
			}
		}
	default:
		return lineerr.New(lineerr.KindCodec, fmt.Sprintf("encode: unsupported compact type %s", v.Type))
	}
	return nil
}

func decodeCompactValue(r *bytes.Reader, t Type) (Value, error) {
	switch t {
	case TypeByte:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read compact byte", err)
		}
		return Value{Type: t, Int: int64(int8(b))}, nil
	case TypeI16, TypeI32, TypeI64:
		i, err := readZigzag64(r)
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read compact varint", err)
		}
		return Value{Type: t, Int: i}, nil
	case TypeDouble:
		var b [8]byte
		if _, err := readFull(r, b[:]); err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read compact double", err)
		}
		var u uint64
		for i := 7; i >= 0; i-- {
			u = (u << 8) | uint64(b[i])
		}
		return Value{Type: t, Double: math.Float64frombits(u)}, nil
	case TypeString:
		n, err := readUvarint(r)
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read compact binary len", err)
		}
		buf := make([]byte, n)
		if _, err := readFull(r, buf); err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read compact binary", err)
		}
		return Value{Type: t, Bin: buf}, nil
	case TypeStruct:
		st, err := decodeCompactStruct(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Type: t, Struct: st}, nil
	case TypeList, TypeSet:
		hb, err := r.ReadByte()
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read compact collection header", err)
		}
		size := uint64(hb>>4) & 0x0F
		elemCt := compactType(hb & 0x0F)
		if size == 15 {
			size, err = readUvarint(r)
			if err != nil {
				return Value{}, lineerr.Wrap(lineerr.KindCodec, "read compact collection size", err)
			}
		}
		elemType, err := fromCompactType(elemCt)
		if err != nil {
			return Value{}, err
		}
		l := &List{ElemType: elemType}
		for i := uint64(0); i < size; i++ {
			e, err := decodeCompactValue(r, elemType)
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
		size, err := readUvarint(r)
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read compact map size", err)
		}
		m := &Map{}
		if size == 0 {
			return Value{Type: t, Map: m}, nil
		}
		kv, err := r.ReadByte()
		if err != nil {
			return Value{}, lineerr.Wrap(lineerr.KindCodec, "read compact map types", err)
		}
		m.KeyType, err = fromCompactType(compactType(kv >> 4))
		if err != nil {
			return Value{}, err
		}
		m.ValType, err = fromCompactType(compactType(kv & 0x0F))
		if err != nil {
			return Value{}, err
		}
		for i := uint64(0); i < size; i++ {
			k, err := decodeCompactValue(r, m.KeyType)
			if err != nil {
				return Value{}, err
			}
			v, err := decodeCompactValue(r, m.ValType)
			if err != nil {
				return Value{}, err
			}
			m.Entries = append(m.Entries, MapEntry{Key: k, Value: v})
		}
		return Value{Type: t, Map: m}, nil
	default:
		return Value{}, lineerr.New(lineerr.KindCodec, fmt.Sprintf("decode: unsupported compact type %s", t))
	}
}

// --- varint / zigzag helpers ---

func writeUvarint(buf *bytes.Buffer, v uint64) {
	for v >= 0x80 {
		buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	buf.WriteByte(byte(v))
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	var result uint64
	var shift uint
	for {
		if shift >= 70 {
			return 0, lineerr.New(lineerr.KindCodec, "malformed varint (too long)")
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, lineerr.Wrap(lineerr.KindCodec, "read varint", err)
		}
		result |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

func zigzagEncode64(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }
func zigzagDecode64(u uint64) int64 { return int64(u>>1) ^ -int64(u&1) }

func writeZigzag64(buf *bytes.Buffer, v int64) { writeUvarint(buf, zigzagEncode64(v)) }

func readZigzag64(r *bytes.Reader) (int64, error) {
	u, err := readUvarint(r)
	if err != nil {
		return 0, err
	}
	return zigzagDecode64(u), nil
}

func writeZigzag16(buf *bytes.Buffer, v int16) { writeZigzag64(buf, int64(v)) }

func readZigzag16(r *bytes.Reader) (int16, error) {
	v, err := readZigzag64(r)
	if err != nil {
		return 0, err
	}
	return int16(v), nil
}

var _ Protocol = CompactProtocol{}
