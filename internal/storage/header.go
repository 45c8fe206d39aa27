package storage

import (
	"bytes"
	"fmt"

	"github.com/cannondb/cannondb/pkg/bx"
)

// Header is the decoded form of page 0. It is the only page addressed by
// absolute offset; everything else is a page number.
type Header struct {
	Version      uint32
	PageSize     uint32
	MaxKeySize   uint32
	MaxValueSize uint32
	Root         uint32 // root tree page, 0 before the tree is initialized
	FreeHead     uint32 // head of the free-page chain, 0 when empty
	HighWater    uint32 // highest page number ever allocated
}

// encodeHeader renders the header into a full zero-padded page image.
func encodeHeader(h Header, pageSize int) []byte {
	page := make([]byte, pageSize)
	copy(page[0:8], Magic)
	bx.PutU32At(page, 8, h.Version)
	bx.PutU32At(page, 12, h.PageSize)
	bx.PutU32At(page, 16, h.MaxKeySize)
	bx.PutU32At(page, 20, h.MaxValueSize)
	bx.PutU32At(page, 24, h.Root)
	bx.PutU32At(page, 28, h.FreeHead)
	bx.PutU32At(page, 32, h.HighWater)
	return page
}

func decodeHeader(page []byte) (Header, error) {
	if len(page) < HeaderSize {
		return Header{}, fmt.Errorf("header shorter than %d bytes: %w", HeaderSize, ErrIncompatibleFile)
	}
	if !bytes.Equal(page[0:8], []byte(Magic)) {
		return Header{}, fmt.Errorf("bad magic: %w", ErrIncompatibleFile)
	}
	h := Header{
		Version:      bx.U32At(page, 8),
		PageSize:     bx.U32At(page, 12),
		MaxKeySize:   bx.U32At(page, 16),
		MaxValueSize: bx.U32At(page, 20),
		Root:         bx.U32At(page, 24),
		FreeHead:     bx.U32At(page, 28),
		HighWater:    bx.U32At(page, 32),
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("format version %d: %w", h.Version, ErrIncompatibleFile)
	}
	return h, nil
}
