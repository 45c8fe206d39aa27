// Package wal implements the write-ahead log: an append-only file of
// CRC-checked page images grouped into atomic commit records, replayed into
// the main file on recovery and drained by checkpoint.
package wal

import (
	"bufio"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cannondb/cannondb/pkg/bx"
)

var (
	ErrCorrupt   = errors.New("wal: corrupt frame before the log tail")
	ErrFrameSize = errors.New("wal: frame payload does not match page size")
)

const (
	// commitSentinel is the page number of a commit record. Real pages can
	// never reach it.
	commitSentinel uint32 = 0xFFFFFFFF

	// frameHeaderSize is page number + payload length + CRC, u32 each.
	frameHeaderSize = 12
)

// Frame is one page image inside a commit group.
type Frame struct {
	PageNo uint32
	Data   []byte
}

// PageWriter is where replayed and checkpointed frames land. The pager
// satisfies it; keeping it an interface keeps this package free of a
// storage import.
type PageWriter interface {
	WritePage(pageNo uint32, data []byte) error
	Sync() error
}

// WAL owns the log file. Alongside the file it keeps the latest committed
// image per page since the last checkpoint, so cache misses never read a
// stale page from the not-yet-checkpointed main file.
type WAL struct {
	f        *os.File
	path     string
	pageSize int
	images   map[uint32][]byte
}

func Open(path string, pageSize int) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	return &WAL{
		f:        f,
		path:     path,
		pageSize: pageSize,
		images:   make(map[uint32][]byte),
	}, nil
}

func (w *WAL) Close() error {
	if w == nil || w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// Lookup returns the latest committed image of pageNo since the last
// checkpoint, if any.
func (w *WAL) Lookup(pageNo uint32) ([]byte, bool) {
	img, ok := w.images[pageNo]
	return img, ok
}

// AppendCommit writes the frames followed by one commit record sealing them
// into an atomic group, then syncs the log. The commit record's CRC covers
// the group's frame CRCs in append order.
func (w *WAL) AppendCommit(frames []Frame) error {
	if len(frames) == 0 {
		return nil
	}

	for _, fr := range frames {
		if len(fr.Data) != w.pageSize {
			return fmt.Errorf("page %d: %w", fr.PageNo, ErrFrameSize)
		}
	}

	buf := make([]byte, 0, len(frames)*(frameHeaderSize+w.pageSize)+frameHeaderSize)
	groupCRCs := make([]byte, 0, len(frames)*4)

	var scratch [frameHeaderSize]byte
	for _, fr := range frames {
		crc := crc32.ChecksumIEEE(fr.Data)
		bx.PutU32(scratch[0:4], fr.PageNo)
		bx.PutU32(scratch[4:8], uint32(w.pageSize))
		bx.PutU32(scratch[8:12], crc)
		buf = append(buf, scratch[:]...)
		buf = append(buf, fr.Data...)

		var crcB [4]byte
		bx.PutU32(crcB[:], crc)
		groupCRCs = append(groupCRCs, crcB[:]...)
	}

	bx.PutU32(scratch[0:4], commitSentinel)
	bx.PutU32(scratch[4:8], 0)
	bx.PutU32(scratch[8:12], crc32.ChecksumIEEE(groupCRCs))
	buf = append(buf, scratch[:]...)

	if _, err := w.f.Write(buf); err != nil {
		return fmt.Errorf("append commit: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync wal: %w", err)
	}

	for _, fr := range frames {
		w.images[fr.PageNo] = fr.Data
	}
	return nil
}

type group struct {
	frames []Frame
	valid  bool
}

// Recover scans the log and replays every fully committed group into pw.
// A torn trailing group is dropped silently; a corrupt group followed by
// further complete groups fails with ErrCorrupt. Replays are not synced
// individually; one sync closes the pass. Recovery is idempotent.
func (w *WAL) Recover(pw PageWriter) (int, error) {
	groups, err := w.scan()
	if err != nil {
		return 0, err
	}

	lastValid := -1
	for i, g := range groups {
		if g.valid {
			lastValid = i
		}
	}
	for i := 0; i < lastValid; i++ {
		if !groups[i].valid {
			return 0, ErrCorrupt
		}
	}
	if lastValid < 0 {
		return 0, nil
	}

	for _, g := range groups[:lastValid+1] {
		for _, fr := range g.frames {
			if err := pw.WritePage(fr.PageNo, fr.Data); err != nil {
				return 0, fmt.Errorf("replay page %d: %w", fr.PageNo, err)
			}
		}
	}
	if err := pw.Sync(); err != nil {
		return 0, fmt.Errorf("sync after replay: %w", err)
	}
	return lastValid + 1, nil
}

// scan parses the log into commit groups. Parsing stops at the first
// structural break (short read, bad payload length); everything before it is
// returned, everything after is unreachable by construction.
func (w *WAL) scan() ([]group, error) {
	f, err := os.Open(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)

	var groups []group
	cur := group{valid: true}
	var groupCRCs []byte

	for {
		var hdr [frameHeaderSize]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			// Clean EOF ends the log; a short header is a torn tail.
			// Either way the open group is dropped.
			return groups, nil
		}
		pageNo := bx.U32(hdr[0:4])
		payloadLen := bx.U32(hdr[4:8])
		storedCRC := bx.U32(hdr[8:12])

		if pageNo == commitSentinel {
			if payloadLen != 0 {
				return groups, nil
			}
			if crc32.ChecksumIEEE(groupCRCs) != storedCRC {
				cur.valid = false
			}
			if len(cur.frames) == 0 {
				cur.valid = false
			}
			groups = append(groups, cur)
			cur = group{valid: true}
			groupCRCs = nil
			continue
		}

		if int(payloadLen) != w.pageSize {
			return groups, nil
		}
		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return groups, nil
		}
		if crc32.ChecksumIEEE(payload) != storedCRC {
			cur.valid = false
		}
		var crcB [4]byte
		bx.PutU32(crcB[:], storedCRC)
		groupCRCs = append(groupCRCs, crcB[:]...)
		cur.frames = append(cur.frames, Frame{PageNo: pageNo, Data: payload})
	}
}

// Checkpoint drains every committed image into pw, makes the main file
// durable, then truncates the log and syncs it and its directory. Running it
// twice is the same as once.
func (w *WAL) Checkpoint(pw PageWriter) error {
	for _, pageNo := range sortedPages(w.images) {
		if err := pw.WritePage(pageNo, w.images[pageNo]); err != nil {
			return fmt.Errorf("checkpoint page %d: %w", pageNo, err)
		}
	}
	if err := pw.Sync(); err != nil {
		return fmt.Errorf("sync main file: %w", err)
	}

	if err := w.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate wal: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync wal: %w", err)
	}
	if err := syncDir(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.images = make(map[uint32][]byte)
	return nil
}

func sortedPages(m map[uint32][]byte) []uint32 {
	out := make([]uint32, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open wal dir: %w", err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync wal dir: %w", err)
	}
	return nil
}
