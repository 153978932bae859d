package api

import "context"

// Importer resolves a module name to its decoded Module. The orchestrator
// invokes this lazily whenever a non-env import references modname, and
// expects it to be idempotent per module. Returning (nil, false) means the
// module is unknown.
//
// This is an external collaborator contract — the engine only calls it, it
// never implements module resolution itself (that's the binary decoder's
// and the embedder's job).
type Importer interface {
	Import(modname string) (*Module, bool)
}

// ImporterFunc adapts a plain function to an Importer.
type ImporterFunc func(modname string) (*Module, bool)

func (f ImporterFunc) Import(modname string) (*Module, bool) { return f(modname) }

// HostEnv implements imported functions on behalf of the embedder. A call
// receives the popped parameters in natural order (first param first) and
// an optional mutable reference to the module's linear memory.
//
// Memory is nil when the calling module has none. HostEnv implementations
// must not retain params beyond the call, and must not retain Memory's
// backing slice across Grow (it may be reallocated).
type HostEnv interface {
	Call(ctx context.Context, name string, params []Value, memory Memory) ([]Value, error)
}

// Memory is the subset of the linear memory surface a HostEnv needs: raw
// byte access for reading/writing guest buffers. The concrete MemInst
// (internal/wasm) satisfies this; it is handed to HostEnv.Call as an
// interface so host code can't accidentally depend on engine internals.
type Memory interface {
	// Read returns the byte slice live-backed by memory at [offset, offset+n).
	// Its second result is false if the range is out of bounds.
	Read(offset, n uint32) ([]byte, bool)
	// Write copies b into memory starting at offset, returning false if the
	// range is out of bounds.
	Write(offset uint32, b []byte) bool
	// Size returns the current memory size in bytes.
	Size() uint32
}

// HostError wraps an error returned by a HostEnv.Call, surfaced to the
// interpreter as a trap.
type HostError struct {
	Name string
	Err  error
}

func (e *HostError) Error() string {
	return "host function " + e.Name + " failed: " + e.Err.Error()
}

func (e *HostError) Unwrap() error { return e.Err }
