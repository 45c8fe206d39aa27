package value

import (
	"fmt"
	"math"

	"github.com/cannondb/cannondb/pkg/bx"
)

// MaxNestingDepth caps how deep mapping / sequence values may recurse, on
// both encode and decode. Exceeding it fails with ErrInvalidEncoding.
const MaxNestingDepth = 32

// Encode serializes v as one type-tag byte followed by the variant payload:
//
//	int   -> 8-byte signed big-endian
//	float -> 8-byte IEEE-754 big-endian
//	text  -> u32 length, UTF-8 bytes
//	uuid  -> 16 raw bytes
//	map   -> u32 count, count x (encoded text key, encoded value)
//	list  -> u32 count, count x encoded value
//
// The output is self-delimiting, so composites embed it recursively.
func Encode(v Value) ([]byte, error) {
	return encode(nil, v, 0)
}

func encode(dst []byte, v Value, depth int) ([]byte, error) {
	if depth > MaxNestingDepth {
		return nil, fmt.Errorf("nesting deeper than %d: %w", MaxNestingDepth, ErrInvalidEncoding)
	}

	switch v.kind {
	case KindInt:
		var b [8]byte
		bx.PutU64(b[:], uint64(v.i))
		return append(append(dst, byte(KindInt)), b[:]...), nil

	case KindFloat:
		var b [8]byte
		bx.PutU64(b[:], math.Float64bits(v.f))
		return append(append(dst, byte(KindFloat)), b[:]...), nil

	case KindText:
		var n [4]byte
		bx.PutU32(n[:], uint32(len(v.s)))
		dst = append(append(dst, byte(KindText)), n[:]...)
		return append(dst, v.s...), nil

	case KindUUID:
		return append(append(dst, byte(KindUUID)), v.u[:]...), nil

	case KindMap:
		var n [4]byte
		bx.PutU32(n[:], uint32(len(v.m)))
		dst = append(append(dst, byte(KindMap)), n[:]...)
		var err error
		for _, e := range v.m {
			if dst, err = encode(dst, Text(e.Key), depth+1); err != nil {
				return nil, err
			}
			if dst, err = encode(dst, e.Val, depth+1); err != nil {
				return nil, err
			}
		}
		return dst, nil

	case KindList:
		var n [4]byte
		bx.PutU32(n[:], uint32(len(v.l)))
		dst = append(append(dst, byte(KindList)), n[:]...)
		var err error
		for _, item := range v.l {
			if dst, err = encode(dst, item, depth+1); err != nil {
				return nil, err
			}
		}
		return dst, nil

	default:
		return nil, fmt.Errorf("kind %#x: %w", uint8(v.kind), ErrUnsupported)
	}
}

// Decode parses one encoded value and requires the buffer to hold exactly
// that value, nothing more.
func Decode(data []byte) (Value, error) {
	v, n, err := decode(data, 0)
	if err != nil {
		return Value{}, err
	}
	if n != len(data) {
		return Value{}, fmt.Errorf("%d trailing bytes: %w", len(data)-n, ErrInvalidEncoding)
	}
	return v, nil
}

func decode(data []byte, depth int) (Value, int, error) {
	if depth > MaxNestingDepth {
		return Value{}, 0, fmt.Errorf("nesting deeper than %d: %w", MaxNestingDepth, ErrInvalidEncoding)
	}
	if len(data) < 1 {
		return Value{}, 0, fmt.Errorf("empty input: %w", ErrInvalidEncoding)
	}

	switch Kind(data[0]) {
	case KindInt:
		if len(data) < 9 {
			return Value{}, 0, fmt.Errorf("short int payload: %w", ErrInvalidEncoding)
		}
		return Int(bx.I64(data[1:9])), 9, nil

	case KindFloat:
		if len(data) < 9 {
			return Value{}, 0, fmt.Errorf("short float payload: %w", ErrInvalidEncoding)
		}
		return Float(math.Float64frombits(bx.U64(data[1:9]))), 9, nil

	case KindText:
		if len(data) < 5 {
			return Value{}, 0, fmt.Errorf("short text header: %w", ErrInvalidEncoding)
		}
		n := int(bx.U32(data[1:5]))
		if len(data) < 5+n {
			return Value{}, 0, fmt.Errorf("short text payload: %w", ErrInvalidEncoding)
		}
		return Text(string(data[5 : 5+n])), 5 + n, nil

	case KindUUID:
		if len(data) < 17 {
			return Value{}, 0, fmt.Errorf("short uuid payload: %w", ErrInvalidEncoding)
		}
		var u [16]byte
		copy(u[:], data[1:17])
		return UUID(u), 17, nil

	case KindMap:
		if len(data) < 5 {
			return Value{}, 0, fmt.Errorf("short map header: %w", ErrInvalidEncoding)
		}
		count := int(bx.U32(data[1:5]))
		off := 5
		entries := make([]MapEntry, 0, count)
		for i := 0; i < count; i++ {
			k, n, err := decode(data[off:], depth+1)
			if err != nil {
				return Value{}, 0, err
			}
			if k.Kind() != KindText {
				return Value{}, 0, fmt.Errorf("map key tag %#x: %w", uint8(k.Kind()), ErrInvalidEncoding)
			}
			off += n
			v, n, err := decode(data[off:], depth+1)
			if err != nil {
				return Value{}, 0, err
			}
			off += n
			entries = append(entries, MapEntry{Key: k.Text(), Val: v})
		}
		return Map(entries), off, nil

	case KindList:
		if len(data) < 5 {
			return Value{}, 0, fmt.Errorf("short list header: %w", ErrInvalidEncoding)
		}
		count := int(bx.U32(data[1:5]))
		off := 5
		items := make([]Value, 0, count)
		for i := 0; i < count; i++ {
			v, n, err := decode(data[off:], depth+1)
			if err != nil {
				return Value{}, 0, err
			}
			off += n
			items = append(items, v)
		}
		return List(items), off, nil

	default:
		return Value{}, 0, fmt.Errorf("unknown tag %#x: %w", data[0], ErrInvalidEncoding)
	}
}
