package storage

import (
	"fmt"
	"io"
	"os"
	"syscall"
)

// Backend is the byte-addressable surface the pager runs on. The file
// backend maps onto an *os.File; the memory backend onto a growable buffer,
// which is what makes in-memory mode share the whole pager code path.
type Backend interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Sync() error
	Size() (int64, error)
	Close() error
}

type fileBackend struct {
	f *os.File
}

var _ Backend = (*fileBackend)(nil)

// openFileBackend opens (or creates) the database file and takes an
// exclusive advisory lock so a second handle on the same file fails fast
// instead of corrupting it.
func openFileBackend(path string) (*fileBackend, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode0664)
	if err != nil {
		return nil, fmt.Errorf("open database file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, ErrAlreadyOpen
		}
		return nil, fmt.Errorf("lock database file: %w", err)
	}

	return &fileBackend{f: f}, nil
}

func (b *fileBackend) ReadAt(p []byte, off int64) (int, error)  { return b.f.ReadAt(p, off) }
func (b *fileBackend) WriteAt(p []byte, off int64) (int, error) { return b.f.WriteAt(p, off) }
func (b *fileBackend) Sync() error                              { return b.f.Sync() }

func (b *fileBackend) Size() (int64, error) {
	info, err := b.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (b *fileBackend) Close() error {
	_ = syscall.Flock(int(b.f.Fd()), syscall.LOCK_UN)
	return b.f.Close()
}

// memBackend keeps the whole database in one growable byte slice. Sync is a
// no-op because there is nothing to make durable.
type memBackend struct {
	buf []byte
}

var _ Backend = (*memBackend)(nil)

func newMemBackend() *memBackend {
	return &memBackend{}
}

func (b *memBackend) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b.buf)) {
		for i := range p {
			p[i] = 0
		}
		return 0, io.EOF
	}
	n := copy(p, b.buf[off:])
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *memBackend) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(b.buf)) {
		grown := make([]byte, end)
		copy(grown, b.buf)
		b.buf = grown
	}
	return copy(b.buf[off:], p), nil
}

func (b *memBackend) Sync() error { return nil }

func (b *memBackend) Size() (int64, error) { return int64(len(b.buf)), nil }

func (b *memBackend) Close() error { return nil }
