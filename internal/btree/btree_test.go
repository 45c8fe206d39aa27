package btree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cannondb/cannondb/internal/bufferpool"
	"github.com/cannondb/cannondb/internal/storage"
	"github.com/cannondb/cannondb/internal/value"
	"github.com/cannondb/cannondb/pkg/bx"
)

var treeOpts = storage.Options{PageSize: 512, MaxKeySize: 16, MaxValueSize: 16}

func newTestTree(t *testing.T) (*Tree, *storage.Pager) {
	t.Helper()

	pager, err := storage.OpenMemory(treeOpts)
	require.NoError(t, err)

	cache := bufferpool.New(64, pager.ReadPage, pager.WritePage)

	order, err := ComputeOrder(treeOpts.PageSize, treeOpts.MaxKeySize, treeOpts.MaxValueSize)
	require.NoError(t, err)

	tree := New(pager, cache, order)
	require.NoError(t, tree.Init())
	return tree, pager
}

func encInt(t *testing.T, i int64) []byte {
	t.Helper()
	b, err := value.Encode(value.Int(i))
	require.NoError(t, err)
	return b
}

func TestComputeOrder(t *testing.T) {
	m, err := ComputeOrder(8192, 32, 256)
	require.NoError(t, err)
	require.GreaterOrEqual(t, m, 3)

	m, err = ComputeOrder(512, 16, 16)
	require.NoError(t, err)
	require.Equal(t, 12, m)

	// A page that cannot hold 3 max-size entries is rejected.
	_, err = ComputeOrder(512, 100, 100)
	require.ErrorIs(t, err, ErrConfigTooTight)
}

func TestInsertAndSearch(t *testing.T) {
	tree, _ := newTestTree(t)

	require.NoError(t, tree.Insert(encInt(t, 1), encInt(t, 100), false))
	require.NoError(t, tree.Insert(encInt(t, 2), encInt(t, 200), false))

	got, err := tree.Search(encInt(t, 1))
	require.NoError(t, err)
	require.Equal(t, encInt(t, 100), got)

	_, err = tree.Search(encInt(t, 3))
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestDuplicateAndOverride(t *testing.T) {
	tree, _ := newTestTree(t)

	key := encInt(t, 7)
	require.NoError(t, tree.Insert(key, encInt(t, 1), false))
	require.ErrorIs(t, tree.Insert(key, encInt(t, 2), false), ErrDuplicateKey)

	require.NoError(t, tree.Insert(key, encInt(t, 2), true))
	got, err := tree.Search(key)
	require.NoError(t, err)
	require.Equal(t, encInt(t, 2), got)
}

func TestRemove(t *testing.T) {
	tree, _ := newTestTree(t)

	require.NoError(t, tree.Insert(encInt(t, 1), encInt(t, 1), false))
	require.NoError(t, tree.Remove(encInt(t, 1)))

	_, err := tree.Search(encInt(t, 1))
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.ErrorIs(t, tree.Remove(encInt(t, 1)), ErrKeyNotFound)
}

func TestManyInsertsRandomOrder(t *testing.T) {
	tree, pager := newTestTree(t)

	const n = 3000
	perm := rand.New(rand.NewSource(1)).Perm(n)
	for _, i := range perm {
		require.NoError(t, tree.Insert(encInt(t, int64(i)), encInt(t, int64(i)), false))
	}

	checkInvariants(t, tree, pager)

	for i := int64(0); i < n; i++ {
		got, err := tree.Search(encInt(t, i))
		require.NoError(t, err)
		require.Equal(t, encInt(t, i), got)
	}

	// In-order traversal yields 0..n-1 ascending.
	var want int64
	require.NoError(t, tree.Walk(func(key, val []byte) error {
		require.Equal(t, encInt(t, want), key)
		want++
		return nil
	}))
	require.Equal(t, int64(n), want)
}

func TestRemoveRebalances(t *testing.T) {
	tree, pager := newTestTree(t)

	const n = 1000
	for i := int64(0); i < n; i++ {
		require.NoError(t, tree.Insert(encInt(t, i), encInt(t, i), false))
	}

	// Remove every even key.
	for i := int64(0); i < n; i += 2 {
		require.NoError(t, tree.Remove(encInt(t, i)))
		if i%100 == 0 {
			checkInvariants(t, tree, pager)
		}
	}
	checkInvariants(t, tree, pager)

	for i := int64(0); i < n; i++ {
		_, err := tree.Search(encInt(t, i))
		if i%2 == 0 {
			require.ErrorIs(t, err, ErrKeyNotFound, "key %d", i)
		} else {
			require.NoError(t, err, "key %d", i)
		}
	}
}

func TestRemoveAllShrinksToLeafRoot(t *testing.T) {
	tree, pager := newTestTree(t)

	const n = 500
	for i := int64(0); i < n; i++ {
		require.NoError(t, tree.Insert(encInt(t, i), encInt(t, i), false))
	}
	for i := int64(0); i < n; i++ {
		require.NoError(t, tree.Remove(encInt(t, i)))
	}
	checkInvariants(t, tree, pager)

	root, err := tree.readNode(pager.Root())
	require.NoError(t, err)
	require.True(t, root.leaf)
	require.Empty(t, root.keys)

	// Freed pages get reused.
	highBefore := pager.HighWater()
	for i := int64(0); i < n; i++ {
		require.NoError(t, tree.Insert(encInt(t, i), encInt(t, i), false))
	}
	require.Equal(t, highBefore, pager.HighWater())
}

func TestMixedWorkload(t *testing.T) {
	tree, pager := newTestTree(t)

	rng := rand.New(rand.NewSource(42))
	expect := make(map[int64]int64)

	for op := 0; op < 5000; op++ {
		k := int64(rng.Intn(400))
		switch rng.Intn(3) {
		case 0:
			v := rng.Int63n(1 << 30)
			err := tree.Insert(encInt(t, k), encInt(t, v), true)
			require.NoError(t, err)
			expect[k] = v
		case 1:
			err := tree.Remove(encInt(t, k))
			if _, ok := expect[k]; ok {
				require.NoError(t, err)
				delete(expect, k)
			} else {
				require.ErrorIs(t, err, ErrKeyNotFound)
			}
		case 2:
			got, err := tree.Search(encInt(t, k))
			if v, ok := expect[k]; ok {
				require.NoError(t, err)
				require.Equal(t, encInt(t, v), got)
			} else {
				require.ErrorIs(t, err, ErrKeyNotFound)
			}
		}
	}
	checkInvariants(t, tree, pager)
}

// checkInvariants walks the whole tree and the free list and asserts the
// structural invariants: strict key order, separator bounds, occupancy
// floors and ceilings, uniform leaf depth, and page-number accounting
// (every allocated page is in the tree or on the free list, never both).
func checkInvariants(t *testing.T, tree *Tree, pager *storage.Pager) {
	t.Helper()

	seen := make(map[uint32]bool)
	leafDepth := -1

	var walk func(pageNo uint32, depth int, lower, upper []byte, isRoot bool)
	walk = func(pageNo uint32, depth int, lower, upper []byte, isRoot bool) {
		require.NotZero(t, pageNo, "tree references page 0")
		require.False(t, seen[pageNo], "page %d appears twice", pageNo)
		seen[pageNo] = true

		n, err := tree.readNode(pageNo)
		require.NoError(t, err)

		require.LessOrEqual(t, len(n.keys), tree.maxKeys(), "page %d over-full", pageNo)
		if !isRoot {
			require.GreaterOrEqual(t, len(n.keys), tree.minKeys(), "page %d under-full", pageNo)
		}

		for i, k := range n.keys {
			if i > 0 {
				require.Negative(t, compare(n.keys[i-1], k), "page %d keys out of order", pageNo)
			}
			if lower != nil {
				require.Negative(t, compare(lower, k), "page %d key below bound", pageNo)
			}
			if upper != nil {
				require.Negative(t, compare(k, upper), "page %d key above bound", pageNo)
			}
		}

		if n.leaf {
			if leafDepth == -1 {
				leafDepth = depth
			}
			require.Equal(t, leafDepth, depth, "leaves at differing depths")
			return
		}

		require.Len(t, n.children, len(n.keys)+1, "page %d child count", pageNo)
		for i := range n.children {
			lo, hi := lower, upper
			if i > 0 {
				lo = n.keys[i-1]
			}
			if i < len(n.keys) {
				hi = n.keys[i]
			}
			walk(n.children[i], depth+1, lo, hi, false)
		}
	}
	walk(pager.Root(), 0, nil, nil, true)

	// Free-list pages are disjoint from the tree.
	free := make(map[uint32]bool)
	for head := pager.FreeHead(); head != 0; {
		require.False(t, seen[head], "free page %d also in tree", head)
		require.False(t, free[head], "free page %d linked twice", head)
		free[head] = true
		data, err := tree.cache.Get(head)
		require.NoError(t, err)
		head = bx.U32(data[:storage.FreeNextSize])
	}

	// Every allocated page is accounted for.
	for n := uint32(1); n <= pager.HighWater(); n++ {
		require.True(t, seen[n] || free[n], "page %d leaked", n)
	}
}
