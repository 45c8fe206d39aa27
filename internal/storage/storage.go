// Package storage owns the main database file: the fixed-size page
// abstraction, the file header, the free-page list, and the choice between a
// real file and a growable in-memory buffer.
package storage

import "errors"

const (
	// Magic opens page 0 of every database file.
	Magic = "CANNONDB"

	// FormatVersion is bumped whenever the on-disk layout changes,
	// including adding a value variant.
	FormatVersion = 1

	// HeaderSize is the used prefix of page 0: 8 magic bytes plus seven
	// u32 fields. The rest of the page is reserved zero.
	HeaderSize = 8 + 7*4

	// FreeNextSize is the number of bytes at the start of a free page that
	// hold the next free page number.
	FreeNextSize = 4
)

const (
	FileMode0644 = 0o644
	FileMode0664 = 0o664
)

var (
	ErrIncompatibleFile = errors.New("storage: incompatible file (magic, version or page size mismatch)")
	ErrAlreadyOpen      = errors.New("storage: database file is locked by another handle")
	ErrInvalidPage      = errors.New("storage: invalid page number")
	ErrPageSize         = errors.New("storage: buffer length does not match page size")
)
