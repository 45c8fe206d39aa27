package value

import (
	"bytes"
	"math"

	"github.com/cannondb/cannondb/pkg/bx"
)

// Compare orders two encoded keys without decoding them into Values.
// Unequal tags compare by tag number; equal tags compare by payload:
// numerically for int/float, lexicographically for text/uuid, and by raw
// encoded bytes for composites. The result is a total order.
//
// Both arguments must be valid encodings; malformed input falls back to a
// plain byte comparison so the order stays total even then.
func Compare(a, b []byte) int {
	if len(a) == 0 || len(b) == 0 || a[0] != b[0] {
		return bytes.Compare(a, b)
	}

	switch Kind(a[0]) {
	case KindInt:
		if len(a) < 9 || len(b) < 9 {
			return bytes.Compare(a, b)
		}
		ai, bi := bx.I64(a[1:9]), bx.I64(b[1:9])
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0

	case KindFloat:
		if len(a) < 9 || len(b) < 9 {
			return bytes.Compare(a, b)
		}
		af := math.Float64frombits(bx.U64(a[1:9]))
		bf := math.Float64frombits(bx.U64(b[1:9]))
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0

	case KindText:
		if len(a) < 5 || len(b) < 5 {
			return bytes.Compare(a, b)
		}
		return bytes.Compare(a[5:], b[5:])

	case KindUUID:
		return bytes.Compare(a[1:], b[1:])

	default:
		// map / list: lexicographic over the full encoding.
		return bytes.Compare(a, b)
	}
}
