// Package thrift implements the two wire formats the LINE RPC surface uses:
// binary protocol 3 and compact protocol 4. Both encode the same logical
// model (a message envelope wrapping a struct keyed by field id); only the
// byte layout differs. Callers pick a Protocol per call and never see the
// wire format beyond that choice.
package thrift

import "fmt"

// Type is a Thrift value type tag, using the binary-protocol numeric space
// (TType in the reference implementation). Compact protocol field headers
// use a different 4-bit space internally but always resolve to one of these.
type Type byte

const (
	TypeStop   Type = 0
	TypeBool   Type = 2
	TypeByte   Type = 3
	TypeDouble Type = 4
	TypeI16    Type = 6
	TypeI32    Type = 8
	TypeI64    Type = 10
	TypeString Type = 11 // also binary
	TypeStruct Type = 12
	TypeMap    Type = 13
	TypeSet    Type = 14
	TypeList   Type = 15
)

func (t Type) String() string {
	switch t {
	case TypeStop:
		return "stop"
	case TypeBool:
		return "bool"
	case TypeByte:
		return "byte"
	case TypeDouble:
		return "double"
	case TypeI16:
		return "i16"
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeString:
		return "string"
	case TypeStruct:
		return "struct"
	case TypeMap:
		return "map"
	case TypeSet:
		return "set"
	case TypeList:
		return "list"
	default:
		return fmt.Sprintf("type(%d)", byte(t))
	}
}

// Value is a tagged union holding exactly one Thrift value. Only the field
// matching Type is meaningful; the rest are zero.
type Value struct {
	Type   Type
	Bool   bool
	Int    int64 // carries byte/i16/i32/i64
	Double float64
	Bin    []byte // carries string/binary
	Struct *Struct
	List   *List
	Set    *List
	Map    *Map
}

// Field is one entry of a Struct: a field id plus its value (a reply body's
// success value uses id 0).
type Field struct {
	ID    int16
	Value Value
}

// Struct is an ordered-by-insertion map from field id to value. Field order
// is preserved on decode so re-encoding an unmodified struct is byte-stable
// modulo protocol-specific delta encoding.
type Struct struct {
	Fields []Field
}

// Get returns the value for a field id, or ok=false if absent.
func (s *Struct) Get(id int16) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	for _, f := range s.Fields {
		if f.ID == id {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Set appends or replaces the field with the given id.
func (s *Struct) Set(id int16, v Value) {
	for i, f := range s.Fields {
		if f.ID == id {
			s.Fields[i].Value = v
			return
		}
	}
	s.Fields = append(s.Fields, Field{ID: id, Value: v})
}

// List is an ordered, homogeneously-typed Thrift list or set.
type List struct {
	ElemType Type
	Elems    []Value
}

// MapEntry is one key/value pair of a Map.
type MapEntry struct {
	Key   Value
	Value Value
}

// Map is an ordered Thrift map; both key and value types are uniform.
type Map struct {
	KeyType Type
	ValType Type
	Entries []MapEntry
}

// Constructors for the common scalar cases, used heavily by the facade
// layer when building request structs from named parameters.

func Bool(b bool) Value    { return Value{Type: TypeBool, Bool: b} }
func Byte(i int8) Value    { return Value{Type: TypeByte, Int: int64(i)} }
func I16(i int16) Value    { return Value{Type: TypeI16, Int: int64(i)} }
func I32(i int32) Value    { return Value{Type: TypeI32, Int: int64(i)} }
func I64(i int64) Value    { return Value{Type: TypeI64, Int: i} }
func Double(f float64) Value { return Value{Type: TypeDouble, Double: f} }
func String(s string) Value  { return Value{Type: TypeString, Bin: []byte(s)} }
func Binary(b []byte) Value  { return Value{Type: TypeString, Bin: b} }
func Struc(s *Struct) Value  { return Value{Type: TypeStruct, Struct: s} }

// AsString returns the string form of a binary/string value.
func (v Value) AsString() string { return string(v.Bin) }

// MessageKind distinguishes the four Thrift envelope roles. Oneway never
// appears on this wire but is preserved for forward-compatibility, matching
// the codec's policy of never failing on a recognized-but-unused tag.
type MessageKind byte

const (
	KindCall      MessageKind = 1
	KindReply     MessageKind = 2
	KindException MessageKind = 3
	KindOneway    MessageKind = 4
)

// Message is the logical envelope: method name, role, sequence id, and a
// struct body. The body's shape depends on Kind: for a Call it is the
// positional argument struct; for a Reply/Exception it carries field 0
// (success) or field 1 (declared exception).
type Message struct {
	Name  string
	Kind  MessageKind
	SeqID int32
	Body  *Struct
}
