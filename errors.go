// Package wasp is the public facade of the execution engine: it wires
// api.Module + api.Importer + api.HostEnv together against the Store and
// the orchestrator, exposing an embeddable surface for running sandboxed
// Wasm code. One Engine owns one Store and one instruction buffer.
package wasp

import (
	"errors"
	"fmt"

	"github.com/wasp-engine/wasp/internal/interpreter"
	"github.com/wasp-engine/wasp/internal/wasm"
)

// RuntimeError is returned by Instantiate/Start/Invoke for every failure
// that isn't itself a Trap. It wraps a more specific cause reachable via
// errors.Is/As.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string { return fmt.Sprintf("wasp: %s: %v", e.Op, e.Err) }

func (e *RuntimeError) Unwrap() error { return e.Err }

// Sentinel RuntimeError causes. Traps are reported as *Trap directly,
// unwrapped, so callers can errors.As into the specific reason without an
// extra indirection.
var (
	ErrModuleNotFound  = errors.New("module not found")
	ErrFuncNotFound    = errors.New("function not found")
	ErrTableNotFound   = errors.New("table not found")
	ErrGlobalNotFound  = errors.New("global not found")
	ErrMemNotFound     = errors.New("memory not found")
	ErrNoStartFunction = errors.New("module has no start function")

	// ErrConstantExpression is raised (wrapped) by Instantiate when a global
	// initializer or segment offset isn't a valid constant expression.
	ErrConstantExpression = wasm.ErrConstExpr
)

// Trap re-exports interpreter.Trap so embedders never need to import the
// internal package to errors.As a trap out of a RuntimeError/error return.
type Trap = interpreter.Trap

func wrapf(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RuntimeError{Op: op, Err: err}
}
