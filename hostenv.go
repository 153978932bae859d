package wasp

import (
	"context"
	"fmt"
	"sync"

	"github.com/wasp-engine/wasp/api"
)

// LoggingHostEnv is a convenience api.HostEnv that records every call it
// receives, for use in tests and examples in place of a real host.
type LoggingHostEnv struct {
	mu    sync.Mutex
	calls []HostCall

	// Funcs optionally supplies the actual result-producing behavior per
	// function name; a name with no entry returns no results.
	Funcs map[string]func(ctx context.Context, params []api.Value, memory api.Memory) ([]api.Value, error)
}

// HostCall records one call LoggingHostEnv observed.
type HostCall struct {
	Name   string
	Params []api.Value
}

// NewLoggingHostEnv returns an empty LoggingHostEnv.
func NewLoggingHostEnv() *LoggingHostEnv {
	return &LoggingHostEnv{Funcs: map[string]func(context.Context, []api.Value, api.Memory) ([]api.Value, error){}}
}

// Calls returns every call recorded so far, in order.
func (e *LoggingHostEnv) Calls() []HostCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]HostCall(nil), e.calls...)
}

// Call implements api.HostEnv.
func (e *LoggingHostEnv) Call(ctx context.Context, name string, params []api.Value, memory api.Memory) ([]api.Value, error) {
	e.mu.Lock()
	e.calls = append(e.calls, HostCall{Name: name, Params: append([]api.Value(nil), params...)})
	e.mu.Unlock()

	if fn, ok := e.Funcs[name]; ok {
		return fn(ctx, params, memory)
	}
	return nil, nil
}

var _ api.HostEnv = (*LoggingHostEnv)(nil)

// ErrUnknownHostFunc can be returned by a strict HostEnv for a name it
// doesn't recognize. Like any error a HostEnv returns, it surfaces to the
// invoker as a *Trap whose Reason is an api.HostError wrapping it.
var ErrUnknownHostFunc = fmt.Errorf("wasp: unknown host function")
