package wasm

import (
	"encoding/binary"
	"math"

	"github.com/wasp-engine/wasp/api"
)

// PageSize is the size in bytes of one unit of linear memory growth.
const PageSize = 65536

// MaxPages is the absolute ceiling on memory size the Wasm 1.0 spec allows
// (2^16 pages = 4GiB), independent of any smaller declared Limits.Max.
const MaxPages = 65536

// MemInst is a linear memory instance. Data's length is always a multiple
// of PageSize.
type MemInst struct {
	Limits api.Limits
	Data   []byte
}

// NewMemInst allocates a MemInst at its minimum size, zero-filled.
func NewMemInst(t api.MemoryType) *MemInst {
	return &MemInst{Limits: t.Limits, Data: make([]byte, uint64(t.Limits.Min)*PageSize)}
}

// PageCount returns the current size in pages.
func (m *MemInst) PageCount() uint32 { return uint32(len(m.Data) / PageSize) }

// Grow appends n pages of zero bytes if doing so stays within both the
// declared Limits.Max (if any) and MaxPages. It returns the memory's size
// in pages *before* growing, and false if the growth was refused — in
// which case Data is left untouched.
func (m *MemInst) Grow(n uint32) (before uint32, ok bool) {
	before = m.PageCount()
	newPages := uint64(before) + uint64(n)
	if newPages > MaxPages {
		return before, false
	}
	if m.Limits.HasMax() && newPages > uint64(m.Limits.Max) {
		return before, false
	}
	m.Data = append(m.Data, make([]byte, uint64(n)*PageSize)...)
	return before, true
}

// inBounds reports whether [addr, addr+size) lies within Data, guarding
// against the overflow a naive addr+size check would miss.
func (m *MemInst) inBounds(addr uint64, size uint64) bool {
	end := addr + size
	if end < addr {
		return false
	}
	return end <= uint64(len(m.Data))
}

// effectiveAddr computes i+offset in a 64-bit accumulator, so the sum never
// wraps the way a 32-bit addition would; with two uint32 inputs it cannot
// overflow 64 bits either, so ok is always true. An address past the end of
// memory is rejected afterwards by inBounds.
func effectiveAddr(i uint32, offset uint32) (uint64, bool) {
	ea := uint64(i) + uint64(offset)
	if ea < uint64(i) {
		return 0, false
	}
	return ea, true
}

// ReadByte/WriteByte and the ReadUintNLE/WriteUintNLE family are the
// bit-exact little-endian codec underlying every memory load/store. ok is
// false on an out-of-bounds access, letting the interpreter raise the
// out-of-bounds trap.
func (m *MemInst) ReadByte(i, offset uint32) (byte, bool) {
	ea, ok := effectiveAddr(i, offset)
	if !ok || !m.inBounds(ea, 1) {
		return 0, false
	}
	return m.Data[ea], true
}

func (m *MemInst) WriteByte(i, offset uint32, v byte) bool {
	ea, ok := effectiveAddr(i, offset)
	if !ok || !m.inBounds(ea, 1) {
		return false
	}
	m.Data[ea] = v
	return true
}

func (m *MemInst) ReadUint16LE(i, offset uint32) (uint16, bool) {
	ea, ok := effectiveAddr(i, offset)
	if !ok || !m.inBounds(ea, 2) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(m.Data[ea:]), true
}

func (m *MemInst) WriteUint16LE(i, offset uint32, v uint16) bool {
	ea, ok := effectiveAddr(i, offset)
	if !ok || !m.inBounds(ea, 2) {
		return false
	}
	binary.LittleEndian.PutUint16(m.Data[ea:], v)
	return true
}

func (m *MemInst) ReadUint32LE(i, offset uint32) (uint32, bool) {
	ea, ok := effectiveAddr(i, offset)
	if !ok || !m.inBounds(ea, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.Data[ea:]), true
}

func (m *MemInst) WriteUint32LE(i, offset uint32, v uint32) bool {
	ea, ok := effectiveAddr(i, offset)
	if !ok || !m.inBounds(ea, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.Data[ea:], v)
	return true
}

func (m *MemInst) ReadUint64LE(i, offset uint32) (uint64, bool) {
	ea, ok := effectiveAddr(i, offset)
	if !ok || !m.inBounds(ea, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.Data[ea:]), true
}

func (m *MemInst) WriteUint64LE(i, offset uint32, v uint64) bool {
	ea, ok := effectiveAddr(i, offset)
	if !ok || !m.inBounds(ea, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.Data[ea:], v)
	return true
}

func (m *MemInst) ReadFloat32LE(i, offset uint32) (float32, bool) {
	bits, ok := m.ReadUint32LE(i, offset)
	if !ok {
		return 0, false
	}
	return math.Float32frombits(bits), true
}

func (m *MemInst) WriteFloat32LE(i, offset uint32, v float32) bool {
	return m.WriteUint32LE(i, offset, math.Float32bits(v))
}

func (m *MemInst) ReadFloat64LE(i, offset uint32) (float64, bool) {
	bits, ok := m.ReadUint64LE(i, offset)
	if !ok {
		return 0, false
	}
	return math.Float64frombits(bits), true
}

func (m *MemInst) WriteFloat64LE(i, offset uint32, v float64) bool {
	return m.WriteUint64LE(i, offset, math.Float64bits(v))
}

// Read/Write/Size implement api.Memory, the narrow surface handed to
// HostEnv.Call.
func (m *MemInst) Read(offset, n uint32) ([]byte, bool) {
	if !m.inBounds(uint64(offset), uint64(n)) {
		return nil, false
	}
	return m.Data[offset : offset+n], true
}

func (m *MemInst) Write(offset uint32, b []byte) bool {
	if !m.inBounds(uint64(offset), uint64(len(b))) {
		return false
	}
	copy(m.Data[offset:], b)
	return true
}

func (m *MemInst) Size() uint32 { return uint32(len(m.Data)) }

var _ api.Memory = (*MemInst)(nil)
