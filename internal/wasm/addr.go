// Package wasm holds the runtime data model: the Store's slot-allocated
// tables of instances, and the per-module Instance binding table.
package wasm

// Addr is a stable index into one of the Store's slot vectors. Addresses
// are never reused while their owning entry is live; once an entry is
// removed its address is recycled by a later push.
type Addr = uint32

// slots is an insertion-order vector of optional entries plus a free list:
// push reuses a free slot when one exists, else appends; remove marks a
// slot empty and returns its index to the free list for reuse.
type slots[T any] struct {
	entries []*T
	free    []Addr
}

// push inserts v, reusing a freed slot if one is available, and returns its
// address.
func (s *slots[T]) push(v T) Addr {
	if n := len(s.free); n > 0 {
		i := s.free[n-1]
		s.free = s.free[:n-1]
		s.entries[i] = &v
		return i
	}
	s.entries = append(s.entries, &v)
	return Addr(len(s.entries) - 1)
}

// get returns the entry at addr. Indexing an empty slot is a programming
// error, since the engine never holds an address past its owner's release.
func (s *slots[T]) get(addr Addr) *T {
	e := s.entries[addr]
	if e == nil {
		panic("wasm: dereferenced a freed Store address")
	}
	return e
}

// getOK is get for the one caller that must tolerate a freed slot
// (memory.init/data.drop after the segment was dropped).
func (s *slots[T]) getOK(addr Addr) (*T, bool) {
	if int(addr) >= len(s.entries) || s.entries[addr] == nil {
		return nil, false
	}
	return s.entries[addr], true
}

// remove frees the slot at addr, returning it to the free list.
func (s *slots[T]) remove(addr Addr) {
	if s.entries[addr] == nil {
		return
	}
	s.entries[addr] = nil
	s.free = append(s.free, addr)
}

func (s *slots[T]) len() int { return len(s.entries) }
