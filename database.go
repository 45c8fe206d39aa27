// Package cannondb is an embeddable, single-writer key-value store backed by
// an on-disk B-tree, with a write-ahead log providing crash-consistent
// durability. A database is two files, <name>.db and <name>.wal; keys and
// values are typed (int, float, text, uuid, mapping, sequence) and ordered
// under a canonical encoded-byte comparison.
package cannondb

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cannondb/cannondb/internal/btree"
	"github.com/cannondb/cannondb/internal/bufferpool"
	"github.com/cannondb/cannondb/internal/storage"
	"github.com/cannondb/cannondb/internal/value"
	"github.com/cannondb/cannondb/internal/wal"
)

var (
	// ErrNotFound is returned by Get and Remove for an absent key.
	ErrNotFound = btree.ErrKeyNotFound

	// ErrDuplicateKey is returned by Insert without override when the key
	// already exists.
	ErrDuplicateKey = btree.ErrDuplicateKey

	// ErrEncodingTooLarge is returned when an encoded key or value exceeds
	// the configured limit.
	ErrEncodingTooLarge = errors.New("cannondb: encoded key or value exceeds configured limit")

	// ErrPoisoned is returned for every operation except Close after an
	// I/O failure left the handle unusable. On-disk state remains at the
	// last successful commit point.
	ErrPoisoned = errors.New("cannondb: handle poisoned by a previous failure")

	// ErrClosed is returned for operations on a closed handle.
	ErrClosed = errors.New("cannondb: database is closed")

	ErrIncompatibleFile = storage.ErrIncompatibleFile
	ErrAlreadyOpen      = storage.ErrAlreadyOpen
	ErrConfigTooTight   = btree.ErrConfigTooTight
	ErrCorruptWAL       = wal.ErrCorrupt
	ErrInvalidEncoding  = value.ErrInvalidEncoding
)

// Value is re-exported so callers build keys and values without importing
// internal packages.
type Value = value.Value

// MapEntry is one insertion-ordered pair of a mapping value.
type MapEntry = value.MapEntry

// Kind is a value's type tag.
type Kind = value.Kind

const (
	KindInt   = value.KindInt
	KindFloat = value.KindFloat
	KindText  = value.KindText
	KindUUID  = value.KindUUID
	KindMap   = value.KindMap
	KindList  = value.KindList
)

// Constructors for the supported variants.
func Int(i int64) Value      { return value.Int(i) }
func Float(f float64) Value  { return value.Float(f) }
func Text(s string) Value    { return value.Text(s) }
func UUID(u [16]byte) Value  { return value.UUID(u) }
func Map(m []MapEntry) Value { return value.Map(m) }
func List(l []Value) Value   { return value.List(l) }

// DB is one open database handle. All operations are serialized behind one
// mutex: single writer, single reader. Opening the same file from a second
// handle fails with ErrAlreadyOpen.
type DB struct {
	mu sync.Mutex

	path  string
	cfg   Config
	pager *storage.Pager
	cache *bufferpool.Cache
	wal   *wal.WAL // nil in in-memory mode
	tree  *btree.Tree

	autoCommit bool
	poisoned   bool
	closed     bool
}

// Open opens or creates the database named by path (the files become
// <path>.db and <path>.wal). Any log left by a crash is recovered before
// the first user operation. With cfg.InMemory the database lives in a
// buffer, the WAL is short-circuited and durability guarantees are void.
func Open(path string, cfg Config) (*DB, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := storage.Options{
		PageSize:     cfg.PageSize,
		MaxKeySize:   cfg.MaxKeySize,
		MaxValueSize: cfg.MaxValueSize,
	}

	var (
		pager *storage.Pager
		err   error
	)
	if cfg.InMemory {
		pager, err = storage.OpenMemory(opts)
	} else {
		pager, err = storage.Open(path+".db", opts)
	}
	if err != nil {
		return nil, err
	}

	// An existing file's stored limits win over the configured ones.
	h := pager.Header()
	cfg.MaxKeySize = int(h.MaxKeySize)
	cfg.MaxValueSize = int(h.MaxValueSize)

	order, err := btree.ComputeOrder(cfg.PageSize, cfg.MaxKeySize, cfg.MaxValueSize)
	if err != nil {
		_ = pager.Discard()
		return nil, err
	}

	var w *wal.WAL
	if !cfg.InMemory {
		w, err = wal.Open(path+".wal", cfg.PageSize)
		if err != nil {
			_ = pager.Discard()
			return nil, err
		}
		groups, err := w.Recover(pager)
		if err != nil {
			_ = w.Close()
			_ = pager.Discard()
			return nil, err
		}
		if groups > 0 {
			if err := pager.ReloadHeader(); err != nil {
				_ = w.Close()
				_ = pager.Discard()
				return nil, err
			}
			slog.Info("cannondb: recovered wal", "path", path, "commits", groups)
		}
	}

	load := func(pageNo uint32) ([]byte, error) {
		if w != nil {
			if img, ok := w.Lookup(pageNo); ok {
				return img, nil
			}
		}
		return pager.ReadPage(pageNo)
	}
	flush := func(pageNo uint32, data []byte) error {
		if w == nil {
			return pager.WritePage(pageNo, data)
		}
		return w.AppendCommit([]wal.Frame{{PageNo: pageNo, Data: data}})
	}
	cache := bufferpool.New(cfg.CacheSize, load, flush)

	db := &DB{
		path:       path,
		cfg:        cfg,
		pager:      pager,
		cache:      cache,
		wal:        w,
		tree:       btree.New(pager, cache, order),
		autoCommit: cfg.AutoCommit,
	}

	if pager.Root() == 0 {
		if err := db.tree.Init(); err != nil {
			_ = db.releaseFiles()
			return nil, err
		}
		if err := db.commitLocked(); err != nil {
			_ = db.releaseFiles()
			return nil, err
		}
	}

	slog.Info("cannondb: opened", "path", path, "in_memory", cfg.InMemory,
		"page_size", cfg.PageSize, "order", order)
	return db, nil
}

// Get returns the value stored under key, or ErrNotFound.
func (db *DB) Get(key Value) (Value, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.usable(); err != nil {
		return Value{}, err
	}

	kenc, err := db.encodeKey(key)
	if err != nil {
		return Value{}, err
	}
	raw, err := db.tree.Search(kenc)
	if err != nil {
		return Value{}, db.fail(err)
	}
	v, err := value.Decode(raw)
	if err != nil {
		return Value{}, db.fail(err)
	}
	return v, nil
}

// Insert stores (key, val). An existing key fails with ErrDuplicateKey
// unless override is set. With auto-commit on, the mutation is committed
// before Insert returns.
func (db *DB) Insert(key, val Value, override bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.usable(); err != nil {
		return err
	}

	kenc, err := db.encodeKey(key)
	if err != nil {
		return err
	}
	venc, err := db.encodeValue(val)
	if err != nil {
		return err
	}
	if err := db.tree.Insert(kenc, venc, override); err != nil {
		return db.fail(err)
	}
	if db.autoCommit {
		return db.commitLocked()
	}
	return nil
}

// Remove deletes key, or fails with ErrNotFound. Auto-commit applies as for
// Insert.
func (db *DB) Remove(key Value) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.usable(); err != nil {
		return err
	}

	kenc, err := db.encodeKey(key)
	if err != nil {
		return err
	}
	if err := db.tree.Remove(kenc); err != nil {
		return db.fail(err)
	}
	if db.autoCommit {
		return db.commitLocked()
	}
	return nil
}

// Walk visits every key/value pair in ascending key order. The callback
// must not call back into the database.
func (db *DB) Walk(fn func(key, val Value) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.usable(); err != nil {
		return err
	}

	var userErr error
	err := db.tree.Walk(func(kenc, venc []byte) error {
		k, err := value.Decode(kenc)
		if err != nil {
			return err
		}
		v, err := value.Decode(venc)
		if err != nil {
			return err
		}
		if err := fn(k, v); err != nil {
			userErr = err
			return err
		}
		return nil
	})
	if userErr != nil {
		return userErr
	}
	if err != nil {
		return db.fail(err)
	}
	return nil
}

// SetAutoCommit toggles committing after every mutation. Defaults to on.
func (db *DB) SetAutoCommit(on bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.autoCommit = on
}

// Commit seals the dirtied pages of the operations so far into one atomic
// WAL group and syncs the log. Nothing is written to the main file here.
func (db *DB) Commit() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.usable(); err != nil {
		return err
	}
	return db.commitLocked()
}

// Checkpoint applies every committed page to the main file, makes it
// durable, and truncates the WAL. A no-op in in-memory mode.
func (db *DB) Checkpoint() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.usable(); err != nil {
		return err
	}
	return db.checkpointLocked()
}

// Close commits, checkpoints, and releases both files. A poisoned handle
// skips the flush so on-disk state stays at the last successful commit.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	if db.poisoned {
		return db.releaseFiles()
	}

	if err := db.commitLocked(); err != nil {
		_ = db.releaseFiles()
		return err
	}
	if err := db.checkpointLocked(); err != nil {
		_ = db.releaseFiles()
		return err
	}

	if db.wal != nil {
		if err := db.wal.Close(); err != nil {
			_ = db.pager.Close()
			return err
		}
	}
	return db.pager.Close()
}

func (db *DB) usable() error {
	if db.closed {
		return ErrClosed
	}
	if db.poisoned {
		return ErrPoisoned
	}
	return nil
}

// fail classifies an operation error: logical errors pass through, anything
// touching I/O or stored-data integrity poisons the handle.
func (db *DB) fail(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrEncodingTooLarge) {
		return err
	}
	db.poisoned = true
	slog.Error("cannondb: handle poisoned", "path", db.path, "err", err)
	return err
}

func (db *DB) encodeKey(v Value) ([]byte, error) {
	enc, err := value.Encode(v)
	if err != nil {
		return nil, err
	}
	if len(enc) > db.cfg.MaxKeySize {
		return nil, fmt.Errorf("key is %d bytes, limit %d: %w",
			len(enc), db.cfg.MaxKeySize, ErrEncodingTooLarge)
	}
	return enc, nil
}

func (db *DB) encodeValue(v Value) ([]byte, error) {
	enc, err := value.Encode(v)
	if err != nil {
		return nil, err
	}
	if len(enc) > db.cfg.MaxValueSize {
		return nil, fmt.Errorf("value is %d bytes, limit %d: %w",
			len(enc), db.cfg.MaxValueSize, ErrEncodingTooLarge)
	}
	return enc, nil
}

// commitLocked drains the dirty set, prepends the header page when it
// changed, and appends one commit group. A failed append leaves the dirty
// set intact and poisons the handle.
func (db *DB) commitLocked() error {
	dirty := db.cache.DrainDirty()

	frames := make([]wal.Frame, 0, len(dirty)+1)
	if db.pager.HeaderDirty() {
		frames = append(frames, wal.Frame{PageNo: 0, Data: db.pager.HeaderImage()})
	}
	for _, d := range dirty {
		frames = append(frames, wal.Frame{PageNo: d.PageNo, Data: d.Data})
	}
	if len(frames) == 0 {
		return nil
	}

	if db.wal == nil {
		for _, fr := range frames {
			if err := db.pager.WritePage(fr.PageNo, fr.Data); err != nil {
				return db.fail(err)
			}
		}
		db.pager.MarkHeaderClean()
		return nil
	}

	if err := db.wal.AppendCommit(frames); err != nil {
		for _, d := range dirty {
			db.cache.MarkDirty(d.PageNo)
		}
		return db.fail(err)
	}
	db.pager.MarkHeaderClean()
	return nil
}

func (db *DB) checkpointLocked() error {
	if db.wal == nil {
		return nil
	}
	if err := db.wal.Checkpoint(db.pager); err != nil {
		return db.fail(err)
	}
	return nil
}

// releaseFiles closes both files without flushing anything.
func (db *DB) releaseFiles() error {
	var first error
	if db.wal != nil {
		if err := db.wal.Close(); err != nil {
			first = err
		}
	}
	if err := db.pager.Discard(); err != nil && first == nil {
		first = err
	}
	return first
}
