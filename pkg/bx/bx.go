// stand for bytes helper
package bx

import "encoding/binary"

// The on-disk format is big-endian throughout (header, node pages, WAL
// frames), so the unprefixed helpers are BE. LE variants are provided
// alongside; the on-disk format does not use them.
var (
	BE = binary.BigEndian
	LE = binary.LittleEndian
)

// --- BE: read ---
func U16(b []byte) uint16 { return BE.Uint16(b) }
func U32(b []byte) uint32 { return BE.Uint32(b) }
func U64(b []byte) uint64 { return BE.Uint64(b) }
func I64(b []byte) int64  { return int64(U64(b)) }

// --- BE: write ---
func PutU16(b []byte, v uint16) { BE.PutUint16(b, v) }
func PutU32(b []byte, v uint32) { BE.PutUint32(b, v) }
func PutU64(b []byte, v uint64) { BE.PutUint64(b, v) }

// --- BE: At (offset) ---
func U16At(b []byte, off int) uint16       { return U16(b[off:]) }
func U32At(b []byte, off int) uint32       { return U32(b[off:]) }
func U64At(b []byte, off int) uint64       { return U64(b[off:]) }
func PutU16At(b []byte, off int, v uint16) { PutU16(b[off:], v) }
func PutU32At(b []byte, off int, v uint32) { PutU32(b[off:], v) }
func PutU64At(b []byte, off int, v uint64) { PutU64(b[off:], v) }

// --- LE ---
func U16LE(b []byte) uint16       { return LE.Uint16(b) }
func U32LE(b []byte) uint32       { return LE.Uint32(b) }
func U64LE(b []byte) uint64       { return LE.Uint64(b) }
func PutU16LE(b []byte, v uint16) { LE.PutUint16(b, v) }
func PutU32LE(b []byte, v uint32) { LE.PutUint32(b, v) }
func PutU64LE(b []byte, v uint64) { LE.PutUint64(b, v) }
