package btree

import (
	"fmt"

	"github.com/cannondb/cannondb/pkg/bx"
)

const (
	kindBranch byte = 0x00
	kindLeaf   byte = 0x01

	// nodeHeaderSize is the kind byte plus the u16 entry count.
	nodeHeaderSize = 3

	// childPtrSize is one child page number, u32.
	childPtrSize = 4

	// entryHeaderSize is the u16 key length plus the u16 value length.
	entryHeaderSize = 4
)

// ComputeOrder derives the branching factor m from the page geometry: the
// largest m such that m entries of maximum key+value size plus m+1 child
// pointers fit in one page behind the node header. A usable tree needs
// m >= 3.
func ComputeOrder(pageSize, maxKeySize, maxValueSize int) (int, error) {
	perEntry := entryHeaderSize + maxKeySize + maxValueSize + childPtrSize
	m := (pageSize - nodeHeaderSize - childPtrSize) / perEntry
	if m < 3 {
		return 0, fmt.Errorf("page size %d holds fewer than 3 max-size entries: %w",
			pageSize, ErrConfigTooTight)
	}
	return m, nil
}

// node is the decoded form of a tree page. Entries are (key, value) pairs in
// both leaves and branches; a branch additionally has len(keys)+1 children.
// Nodes reference each other by page number only, never by pointer, so the
// cache stays the single owner of page state.
type node struct {
	page     uint32
	leaf     bool
	keys     [][]byte
	vals     [][]byte
	children []uint32
}

// find returns the smallest index with key <= keys[idx], and whether it is
// an exact match.
func (n *node) find(key []byte) (int, bool) {
	lo, hi := 0, len(n.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if compare(n.keys[mid], key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(n.keys) && compare(n.keys[lo], key) == 0
}

// encodeNode renders the node as a full page image:
// kind byte, u16 count, count x (u16 klen, key, u16 vlen, value), and for
// branches count+1 child page numbers. The rest of the page is padding.
func encodeNode(n *node, pageSize int) ([]byte, error) {
	page := make([]byte, pageSize)

	if n.leaf {
		page[0] = kindLeaf
	} else {
		page[0] = kindBranch
		if len(n.children) != len(n.keys)+1 {
			return nil, fmt.Errorf("page %d: %d keys, %d children: %w",
				n.page, len(n.keys), len(n.children), ErrCorruptNode)
		}
	}
	bx.PutU16At(page, 1, uint16(len(n.keys)))

	off := nodeHeaderSize
	for i := range n.keys {
		need := entryHeaderSize + len(n.keys[i]) + len(n.vals[i])
		if off+need > pageSize {
			return nil, fmt.Errorf("page %d overflows at entry %d: %w", n.page, i, ErrCorruptNode)
		}
		bx.PutU16At(page, off, uint16(len(n.keys[i])))
		off += 2
		copy(page[off:], n.keys[i])
		off += len(n.keys[i])
		bx.PutU16At(page, off, uint16(len(n.vals[i])))
		off += 2
		copy(page[off:], n.vals[i])
		off += len(n.vals[i])
	}

	if !n.leaf {
		if off+len(n.children)*childPtrSize > pageSize {
			return nil, fmt.Errorf("page %d child block overflows: %w", n.page, ErrCorruptNode)
		}
		for _, c := range n.children {
			bx.PutU32At(page, off, c)
			off += childPtrSize
		}
	}

	return page, nil
}

func decodeNode(pageNo uint32, data []byte) (*node, error) {
	if len(data) < nodeHeaderSize {
		return nil, fmt.Errorf("page %d too short: %w", pageNo, ErrCorruptNode)
	}

	n := &node{page: pageNo}
	switch data[0] {
	case kindLeaf:
		n.leaf = true
	case kindBranch:
	default:
		return nil, fmt.Errorf("page %d kind %#x: %w", pageNo, data[0], ErrCorruptNode)
	}

	count := int(bx.U16At(data, 1))
	off := nodeHeaderSize
	n.keys = make([][]byte, 0, count)
	n.vals = make([][]byte, 0, count)

	for i := 0; i < count; i++ {
		if off+2 > len(data) {
			return nil, fmt.Errorf("page %d entry %d key length: %w", pageNo, i, ErrCorruptNode)
		}
		klen := int(bx.U16At(data, off))
		off += 2
		if off+klen > len(data) {
			return nil, fmt.Errorf("page %d entry %d key bytes: %w", pageNo, i, ErrCorruptNode)
		}
		key := data[off : off+klen]
		off += klen

		if off+2 > len(data) {
			return nil, fmt.Errorf("page %d entry %d value length: %w", pageNo, i, ErrCorruptNode)
		}
		vlen := int(bx.U16At(data, off))
		off += 2
		if off+vlen > len(data) {
			return nil, fmt.Errorf("page %d entry %d value bytes: %w", pageNo, i, ErrCorruptNode)
		}
		val := data[off : off+vlen]
		off += vlen

		n.keys = append(n.keys, key)
		n.vals = append(n.vals, val)
	}

	if !n.leaf {
		n.children = make([]uint32, 0, count+1)
		for i := 0; i <= count; i++ {
			if off+childPtrSize > len(data) {
				return nil, fmt.Errorf("page %d child %d: %w", pageNo, i, ErrCorruptNode)
			}
			n.children = append(n.children, bx.U32At(data, off))
			off += childPtrSize
		}
	}

	return n, nil
}
