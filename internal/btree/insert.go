package btree

// promoted carries a split's median entry and the new right sibling up one
// level.
type promoted struct {
	key   []byte
	val   []byte
	right uint32
}

// Insert adds (key, val) to the tree. An existing key fails with
// ErrDuplicateKey unless override is set, in which case its value is
// replaced in place. Splits propagate upward; a root split grows the tree
// by one level.
func (t *Tree) Insert(key, val []byte, override bool) error {
	rootNo := t.pager.Root()
	p, err := t.insertAt(rootNo, key, val, override)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}

	newRoot, err := t.allocNode(false)
	if err != nil {
		return err
	}
	newRoot.keys = [][]byte{p.key}
	newRoot.vals = [][]byte{p.val}
	newRoot.children = []uint32{rootNo, p.right}
	if err := t.writeNode(newRoot); err != nil {
		return err
	}
	t.pager.SetRoot(newRoot.page)
	return nil
}

func (t *Tree) insertAt(pageNo uint32, key, val []byte, override bool) (*promoted, error) {
	n, err := t.readNode(pageNo)
	if err != nil {
		return nil, err
	}

	idx, found := n.find(key)
	if found {
		if !override {
			return nil, ErrDuplicateKey
		}
		n.vals[idx] = val
		return nil, t.writeNode(n)
	}

	if n.leaf {
		n.keys = insertBytes(n.keys, idx, key)
		n.vals = insertBytes(n.vals, idx, val)
	} else {
		p, err := t.insertAt(n.children[idx], key, val, override)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, nil
		}
		n.keys = insertBytes(n.keys, idx, p.key)
		n.vals = insertBytes(n.vals, idx, p.val)
		n.children = insertChild(n.children, idx+1, p.right)
	}

	if len(n.keys) <= t.maxKeys() {
		return nil, t.writeNode(n)
	}
	return t.split(n)
}

// split partitions an overflowing node around the median entry at index
// floor(m/2), promotes the median, and hands the upper half to a freshly
// allocated right sibling.
func (t *Tree) split(n *node) (*promoted, error) {
	mid := len(n.keys) / 2
	medianKey, medianVal := n.keys[mid], n.vals[mid]

	right, err := t.allocNode(n.leaf)
	if err != nil {
		return nil, err
	}
	right.keys = append(right.keys, n.keys[mid+1:]...)
	right.vals = append(right.vals, n.vals[mid+1:]...)
	if !n.leaf {
		right.children = append(right.children, n.children[mid+1:]...)
	}

	n.keys = n.keys[:mid]
	n.vals = n.vals[:mid]
	if !n.leaf {
		n.children = n.children[:mid+1]
	}

	if err := t.writeNode(n); err != nil {
		return nil, err
	}
	if err := t.writeNode(right); err != nil {
		return nil, err
	}
	return &promoted{key: medianKey, val: medianVal, right: right.page}, nil
}

func insertBytes(s [][]byte, idx int, b []byte) [][]byte {
	s = append(s, nil)
	copy(s[idx+1:], s[idx:])
	s[idx] = b
	return s
}

func insertChild(s []uint32, idx int, c uint32) []uint32 {
	s = append(s, 0)
	copy(s[idx+1:], s[idx:])
	s[idx] = c
	return s
}
