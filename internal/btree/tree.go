// Package btree implements the on-disk B-tree: an ordered index over
// encoded keys with insert, override, delete, and the split / borrow / merge
// rebalancing that keeps every leaf at the same depth.
package btree

import (
	"errors"

	"github.com/cannondb/cannondb/internal/bufferpool"
	"github.com/cannondb/cannondb/internal/storage"
	"github.com/cannondb/cannondb/internal/value"
)

var (
	ErrKeyNotFound   = errors.New("btree: key not found")
	ErrDuplicateKey  = errors.New("btree: key already exists")
	ErrConfigTooTight = errors.New("btree: page size cannot hold 3 max-size entries")
	ErrCorruptNode   = errors.New("btree: node page does not decode")
)

// compare is the canonical ordering over encoded keys.
func compare(a, b []byte) int { return value.Compare(a, b) }

// Tree borrows node pages through the cache and never keeps them across
// calls; the pager hands out and takes back page numbers.
type Tree struct {
	pager *storage.Pager
	cache *bufferpool.Cache
	order int
}

func New(pager *storage.Pager, cache *bufferpool.Cache, order int) *Tree {
	return &Tree{pager: pager, cache: cache, order: order}
}

// minKeys is the occupancy floor for non-root nodes.
func (t *Tree) minKeys() int { return (t.order+1)/2 - 1 }

// maxKeys is the occupancy ceiling; one more triggers a split.
func (t *Tree) maxKeys() int { return t.order - 1 }

func (t *Tree) readNode(pageNo uint32) (*node, error) {
	data, err := t.cache.Get(pageNo)
	if err != nil {
		return nil, err
	}
	return decodeNode(pageNo, data)
}

func (t *Tree) writeNode(n *node) error {
	data, err := encodeNode(n, t.pager.PageSize())
	if err != nil {
		return err
	}
	return t.cache.PutDirty(n.page, data)
}

func (t *Tree) allocNode(leaf bool) (*node, error) {
	pageNo, err := t.pager.Allocate(t.cache.Get)
	if err != nil {
		return nil, err
	}
	return &node{page: pageNo, leaf: leaf}, nil
}

// freeNode returns the node's page to the free list. The free-page image
// goes through the cache so the push is journaled with everything else.
func (t *Tree) freeNode(n *node) error {
	img := t.pager.Free(n.page)
	return t.cache.PutDirty(n.page, img)
}

// Init writes a fresh empty leaf as the root. Called once per database
// lifetime, before the first user operation.
func (t *Tree) Init() error {
	root, err := t.allocNode(true)
	if err != nil {
		return err
	}
	if err := t.writeNode(root); err != nil {
		return err
	}
	t.pager.SetRoot(root.page)
	return nil
}

// Search descends from the root and returns the encoded value stored under
// key, or ErrKeyNotFound.
func (t *Tree) Search(key []byte) ([]byte, error) {
	pageNo := t.pager.Root()
	for {
		n, err := t.readNode(pageNo)
		if err != nil {
			return nil, err
		}
		idx, found := n.find(key)
		if found {
			return n.vals[idx], nil
		}
		if n.leaf {
			return nil, ErrKeyNotFound
		}
		pageNo = n.children[idx]
	}
}

// Walk visits every entry in ascending key order.
func (t *Tree) Walk(fn func(key, val []byte) error) error {
	return t.walk(t.pager.Root(), fn)
}

func (t *Tree) walk(pageNo uint32, fn func(key, val []byte) error) error {
	n, err := t.readNode(pageNo)
	if err != nil {
		return err
	}
	if n.leaf {
		for i := range n.keys {
			if err := fn(n.keys[i], n.vals[i]); err != nil {
				return err
			}
		}
		return nil
	}
	for i := range n.keys {
		if err := t.walk(n.children[i], fn); err != nil {
			return err
		}
		if err := fn(n.keys[i], n.vals[i]); err != nil {
			return err
		}
	}
	return t.walk(n.children[len(n.keys)], fn)
}
