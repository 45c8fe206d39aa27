// Package value implements the tagged value model stored in tree entries:
// int, float, text, uuid, and the recursive mapping / sequence composites.
package value

import "errors"

var (
	ErrInvalidEncoding = errors.New("value: invalid encoding")

	// ErrUnsupported is returned by the codec when fed a value with no
	// corresponding variant tag.
	ErrUnsupported = errors.New("value: unsupported value type")
)

// Kind is the one-byte type tag written in front of every encoded value.
type Kind uint8

const (
	KindInt   Kind = 0x01
	KindFloat Kind = 0x02
	KindText  Kind = 0x03
	KindUUID  Kind = 0x04
	KindMap   Kind = 0x05
	KindList  Kind = 0x06
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindUUID:
		return "uuid"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// MapEntry is one (text key, value) pair of a mapping. Mappings preserve
// insertion order: two mappings with the same pairs in different order
// encode to different bytes and therefore act as distinct keys.
type MapEntry struct {
	Key string
	Val Value
}

// Value is a closed sum over the supported variants. The zero Value is not
// valid; always build one through a constructor.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	u    [16]byte
	m    []MapEntry
	l    []Value
}

func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func Text(s string) Value    { return Value{kind: KindText, s: s} }
func UUID(u [16]byte) Value  { return Value{kind: KindUUID, u: u} }
func Map(m []MapEntry) Value { return Value{kind: KindMap, m: m} }
func List(l []Value) Value   { return Value{kind: KindList, l: l} }

func (v Value) Kind() Kind             { return v.kind }
func (v Value) Int() int64             { return v.i }
func (v Value) Float() float64         { return v.f }
func (v Value) Text() string           { return v.s }
func (v Value) UUID() [16]byte         { return v.u }
func (v Value) MapEntries() []MapEntry { return v.m }
func (v Value) List() []Value          { return v.l }

// Equal reports deep equality between two values, including composite order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindText:
		return v.s == o.s
	case KindUUID:
		return v.u == o.u
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for i := range v.m {
			if v.m[i].Key != o.m[i].Key || !v.m[i].Val.Equal(o.m[i].Val) {
				return false
			}
		}
		return true
	case KindList:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
