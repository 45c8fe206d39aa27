package storage

import (
	"fmt"
	"io"

	"github.com/cannondb/cannondb/pkg/bx"
)

// Options carries the page geometry a fresh file is created with. When the
// file already exists its stored key/value limits win; the page size must
// match or the open fails.
type Options struct {
	PageSize     int
	MaxKeySize   int
	MaxValueSize int
}

// Pager owns the database file. It reads and writes page-aligned blocks,
// hands out page numbers (free list first, then the high-water mark) and
// keeps the header current. It never syncs implicitly; durability barriers
// belong to the commit machinery above it.
type Pager struct {
	backend     Backend
	header      Header
	pageSize    int
	created     bool
	headerDirty bool
}

// Open opens or creates the main database file at path.
func Open(path string, opts Options) (*Pager, error) {
	backend, err := openFileBackend(path)
	if err != nil {
		return nil, err
	}

	p, err := open(backend, opts)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return p, nil
}

// OpenMemory builds a pager over a growable in-memory buffer. Sync is a
// no-op there, so durability guarantees are void but semantics identical.
func OpenMemory(opts Options) (*Pager, error) {
	return open(newMemBackend(), opts)
}

func open(backend Backend, opts Options) (*Pager, error) {
	size, err := backend.Size()
	if err != nil {
		return nil, fmt.Errorf("stat database: %w", err)
	}

	p := &Pager{backend: backend, pageSize: opts.PageSize}

	if size == 0 {
		p.created = true
		p.header = Header{
			Version:      FormatVersion,
			PageSize:     uint32(opts.PageSize),
			MaxKeySize:   uint32(opts.MaxKeySize),
			MaxValueSize: uint32(opts.MaxValueSize),
		}
		if err := p.WriteHeader(); err != nil {
			return nil, err
		}
		return p, nil
	}

	raw := make([]byte, HeaderSize)
	if _, err := backend.ReadAt(raw, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}
	if int(h.PageSize) != opts.PageSize {
		return nil, fmt.Errorf("page size %d, configured %d: %w",
			h.PageSize, opts.PageSize, ErrIncompatibleFile)
	}
	p.header = h
	return p, nil
}

// Created reports whether this open initialized a fresh file.
func (p *Pager) Created() bool { return p.created }

func (p *Pager) PageSize() int { return p.pageSize }

// ReadPage reads page n with exactly one positioned read. Reads past the
// current end of file return a zero page, which lets writes extend the file
// lazily.
func (p *Pager) ReadPage(n uint32) ([]byte, error) {
	buf := make([]byte, p.pageSize)
	_, err := p.backend.ReadAt(buf, int64(n)*int64(p.pageSize))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read page %d: %w", n, err)
	}
	return buf, nil
}

// WritePage writes page n with exactly one positioned write. No sync.
func (p *Pager) WritePage(n uint32, data []byte) error {
	if len(data) != p.pageSize {
		return fmt.Errorf("page %d: %w", n, ErrPageSize)
	}
	if _, err := p.backend.WriteAt(data, int64(n)*int64(p.pageSize)); err != nil {
		return fmt.Errorf("write page %d: %w", n, err)
	}
	return nil
}

// Sync is the durable barrier over the main file.
func (p *Pager) Sync() error { return p.backend.Sync() }

func (p *Pager) Root() uint32 { return p.header.Root }

func (p *Pager) SetRoot(n uint32) {
	if p.header.Root != n {
		p.header.Root = n
		p.headerDirty = true
	}
}

func (p *Pager) FreeHead() uint32 { return p.header.FreeHead }

func (p *Pager) HighWater() uint32 { return p.header.HighWater }

// Allocate returns a page number for a new page: the free-list head when the
// list is non-empty, else a bump of the high-water mark. read resolves the
// popped page's bytes; the caller routes it through the page cache so a
// freed-but-not-checkpointed page is seen with its committed image.
func (p *Pager) Allocate(read func(uint32) ([]byte, error)) (uint32, error) {
	if head := p.header.FreeHead; head != 0 {
		data, err := read(head)
		if err != nil {
			return 0, err
		}
		p.header.FreeHead = bx.U32(data[:FreeNextSize])
		p.headerDirty = true
		return head, nil
	}
	p.header.HighWater++
	p.headerDirty = true
	return p.header.HighWater, nil
}

// Free pushes page n onto the free list and returns the page image that must
// be journaled for the push to survive: the old list head threaded into the
// page body. Free-list changes are not logged separately; they ride along as
// ordinary page writes.
func (p *Pager) Free(n uint32) []byte {
	img := make([]byte, p.pageSize)
	bx.PutU32(img[:FreeNextSize], p.header.FreeHead)
	p.header.FreeHead = n
	p.headerDirty = true
	return img
}

func (p *Pager) Header() Header { return p.header }

func (p *Pager) HeaderDirty() bool { return p.headerDirty }

func (p *Pager) MarkHeaderClean() { p.headerDirty = false }

// HeaderImage renders the current header as a full page-0 image, ready to be
// committed like any other page.
func (p *Pager) HeaderImage() []byte {
	return encodeHeader(p.header, p.pageSize)
}

// ReloadHeader re-reads page 0, discarding the in-memory copy. Used after
// WAL recovery replayed a newer header into the main file.
func (p *Pager) ReloadHeader() error {
	raw, err := p.ReadPage(0)
	if err != nil {
		return err
	}
	h, err := decodeHeader(raw)
	if err != nil {
		return err
	}
	if int(h.PageSize) != p.pageSize {
		return fmt.Errorf("page size %d, configured %d: %w", h.PageSize, p.pageSize, ErrIncompatibleFile)
	}
	p.header = h
	p.headerDirty = false
	return nil
}

// WriteHeader writes the header page directly, bypassing the commit path.
// Used when initializing a fresh file and on close.
func (p *Pager) WriteHeader() error {
	if err := p.WritePage(0, p.HeaderImage()); err != nil {
		return err
	}
	p.headerDirty = false
	return nil
}

// Close persists the header and releases the file.
func (p *Pager) Close() error {
	if err := p.WriteHeader(); err != nil {
		_ = p.backend.Close()
		return err
	}
	if err := p.Sync(); err != nil {
		_ = p.backend.Close()
		return err
	}
	return p.backend.Close()
}

// Discard releases the file without touching on-disk state. Used when the
// handle is poisoned and the last commit point must stay authoritative.
func (p *Pager) Discard() error {
	return p.backend.Close()
}
