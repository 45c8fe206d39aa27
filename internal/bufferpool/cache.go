// Package bufferpool keeps a bounded set of page images in memory under an
// LRU policy. Clean pages are evicted silently; a dirty page is evicted only
// when no clean page is left, and then only after the flusher has written it.
package bufferpool

import (
	"container/list"
	"errors"
	"sort"
)

var (
	DefaultCapacity = 512

	ErrNoLoader = errors.New("bufferpool: no loader configured")
)

// Loader resolves a cache miss to the page's current bytes.
type Loader func(pageNo uint32) ([]byte, error)

// Flusher persists one dirty page when eviction finds no clean victim. The
// engine wires this to the WAL pathway so the flush is as durable as a
// commit.
type Flusher func(pageNo uint32, data []byte) error

// DirtyPage is one element of the drained dirty set.
type DirtyPage struct {
	PageNo uint32
	Data   []byte
}

type frame struct {
	pageNo uint32
	data   []byte
	dirty  bool
}

// Cache maps page numbers to page images. Front of the list is
// most-recently used.
type Cache struct {
	capacity int
	load     Loader
	flush    Flusher

	lru     *list.List
	entries map[uint32]*list.Element
}

func New(capacity int, load Loader, flush Flusher) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		load:     load,
		flush:    flush,
		lru:      list.New(),
		entries:  make(map[uint32]*list.Element),
	}
}

// Get returns the page image for pageNo, loading it on miss. A hit only
// refreshes recency. The returned slice is the cached image itself; callers
// that mutate must go through PutDirty with a fresh image.
func (c *Cache) Get(pageNo uint32) ([]byte, error) {
	if elem, ok := c.entries[pageNo]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*frame).data, nil
	}

	if c.load == nil {
		return nil, ErrNoLoader
	}
	data, err := c.load(pageNo)
	if err != nil {
		return nil, err
	}

	if err := c.evictIfFull(); err != nil {
		return nil, err
	}
	c.entries[pageNo] = c.lru.PushFront(&frame{pageNo: pageNo, data: data})
	return data, nil
}

// PutDirty installs or replaces the image for pageNo and marks it dirty.
// Eviction prefers clean frames; a dirty frame is picked only when every
// frame is dirty, and it is flushed first.
func (c *Cache) PutDirty(pageNo uint32, data []byte) error {
	if elem, ok := c.entries[pageNo]; ok {
		f := elem.Value.(*frame)
		f.data = data
		f.dirty = true
		c.lru.MoveToFront(elem)
		return nil
	}

	if err := c.evictIfFull(); err != nil {
		return err
	}
	c.entries[pageNo] = c.lru.PushFront(&frame{pageNo: pageNo, data: data, dirty: true})
	return nil
}

// MarkDirty re-pins an already-cached page, used when a failed commit has to
// leave the dirty set intact.
func (c *Cache) MarkDirty(pageNo uint32) {
	if elem, ok := c.entries[pageNo]; ok {
		elem.Value.(*frame).dirty = true
	}
}

// DrainDirty returns the dirty set in ascending page-number order and clears
// the dirty flags. The frames stay cached, now clean and evictable.
func (c *Cache) DrainDirty() []DirtyPage {
	var out []DirtyPage
	for _, elem := range c.entries {
		f := elem.Value.(*frame)
		if f.dirty {
			out = append(out, DirtyPage{PageNo: f.pageNo, Data: f.data})
			f.dirty = false
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNo < out[j].PageNo })
	return out
}

// Invalidate drops a page from the cache regardless of its state.
func (c *Cache) Invalidate(pageNo uint32) {
	if elem, ok := c.entries[pageNo]; ok {
		c.lru.Remove(elem)
		delete(c.entries, pageNo)
	}
}

func (c *Cache) Len() int { return c.lru.Len() }

// evictIfFull makes room for one admission. Strategy: evict the
// least-recently-used clean frame; if every frame is dirty, flush the
// least-recently-used dirty frame through the WAL pathway first.
func (c *Cache) evictIfFull() error {
	if c.lru.Len() < c.capacity {
		return nil
	}

	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		f := elem.Value.(*frame)
		if f.dirty {
			continue
		}
		c.lru.Remove(elem)
		delete(c.entries, f.pageNo)
		return nil
	}

	// All frames dirty: flush the oldest and evict it.
	elem := c.lru.Back()
	if elem == nil {
		return nil
	}
	f := elem.Value.(*frame)
	if c.flush != nil {
		if err := c.flush(f.pageNo, f.data); err != nil {
			return err
		}
	}
	c.lru.Remove(elem)
	delete(c.entries, f.pageNo)
	return nil
}
