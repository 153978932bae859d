package wasp

import (
	"context"
	"fmt"

	"github.com/wasp-engine/wasp/api"
	"github.com/wasp-engine/wasp/internal/orchestrator"
	"github.com/wasp-engine/wasp/internal/wasm"
)

// Engine owns one Store, one shared instruction buffer, and the named
// registry of already-instantiated modules an Importer's results get
// linked against. An Engine is not safe for concurrent use; all of its
// state is exclusively owned by the running invocation.
//
// envName designates which import module name routes to registered
// HostEnvs rather than to another Wasm module.
type Engine struct {
	runtime *orchestrator.Runtime
	envName string

	modules       map[string]*Module
	hostFuncCache map[[2]string]wasm.Addr
}

// NewEngine creates an Engine bound to envName (conventionally "env" or
// "spectest") with the given feature set enabled.
func NewEngine(envName string, features api.Features) *Engine {
	return &Engine{
		runtime:       orchestrator.New(features),
		envName:       envName,
		modules:       map[string]*Module{},
		hostFuncCache: map[[2]string]wasm.Addr{},
	}
}

// RegisterHostEnv makes env available to imports naming modname. Only
// imports whose module name equals the envName given to NewEngine resolve
// to host functions; imports from any other module name go to the Importer,
// so an env registered under a different name is never called.
func (e *Engine) RegisterHostEnv(modname string, env api.HostEnv) {
	e.runtime.RegisterHostEnv(modname, env)
}

// Module is an instantiated module: the embedder-facing handle returned by
// Instantiate, wrapping the orchestrator's opaque instance address.
type Module struct {
	engine  *Engine
	name    string
	addr    wasm.Addr
	exports []api.Export
}

// Name returns the name this module was instantiated (or imported) under.
func (m *Module) Name() string { return m.name }

// Exports lists the module's export table.
func (m *Module) Exports() []api.Export { return m.exports }

// Instantiate loads mod under name, resolving its imports via importer
// (non-"env" imports) or a registered HostEnv ("env" imports). The
// resulting Module is also registered in the Engine's namespace under
// name, so later modules can import it by that name.
//
// The deferred recover mirrors the one in internal/orchestrator.(*Runtime).run:
// a malformed module reaching an index out of the range validation was
// supposed to rule out surfaces as a *RuntimeError here rather than a
// panic escaping to the embedder.
func (e *Engine) Instantiate(name string, mod *api.Module, importer api.Importer) (m *Module, err error) {
	defer func() {
		if v := recover(); v != nil {
			m, err = nil, &RuntimeError{Op: "instantiate", Err: fmt.Errorf("recovered: %v", v)}
		}
	}()

	if _, dup := e.modules[name]; dup {
		return nil, &RuntimeError{Op: "instantiate", Err: fmt.Errorf("module %q already instantiated", name)}
	}

	var resolveErr error
	resolve := func(modname, expName string, kind api.ExternKind) (wasm.Addr, bool) {
		if modname == e.envName {
			if kind != api.ExternKindFunc {
				// Only function imports can be satisfied by a host environment.
				return 0, false
			}
			for _, imp := range mod.Imports {
				if imp.Module == modname && imp.Name == expName && imp.Desc.Kind == api.ExternKindFunc {
					t := mod.Types[imp.Desc.TypeIdx]
					return e.runtime.HostFuncAddr(e.hostFuncCache, modname, expName, t), true
				}
			}
			return 0, false
		}

		dep, ok := e.modules[modname]
		if !ok {
			depMod, found := importer.Import(modname)
			if !found {
				resolveErr = &RuntimeError{Op: "instantiate", Err: fmt.Errorf("%w: %q", ErrModuleNotFound, modname)}
				return 0, false
			}
			inst, err := e.Instantiate(modname, depMod, importer)
			if err != nil {
				resolveErr = err
				return 0, false
			}
			dep = inst
		}
		return e.runtime.Store.Instance(dep.addr).Export(expName, kind)
	}

	inst, addr, err := e.runtime.Instantiate(mod, name, resolve)
	if err != nil {
		if resolveErr != nil {
			return nil, resolveErr
		}
		return nil, wrapf("instantiate", err)
	}

	m = &Module{engine: e, name: name, addr: addr, exports: inst.Exports}
	e.modules[name] = m
	return m, nil
}

// Start runs m's start function. Returns ErrNoStartFunction if the module
// declares none.
func (e *Engine) Start(ctx context.Context, m *Module) error {
	if e.runtime.Store.Instance(m.addr).StartFuncAddr == nil {
		return &RuntimeError{Op: "start", Err: ErrNoStartFunction}
	}
	if err := e.runtime.Start(ctx, m.addr); err != nil {
		return asTrapOrWrap("start", err)
	}
	return nil
}

// Invoke calls m's exported function name with params, driving the stepper
// to completion and resuming across every host-call suspension. On a trap,
// the returned error unwraps (via errors.As) to *wasp.Trap; the Store is
// left valid for further invocations on any export.
func (e *Engine) Invoke(ctx context.Context, m *Module, name string, params []api.Value) ([]api.Value, error) {
	if _, ok := e.runtime.Store.Instance(m.addr).ExportedFunc(name); !ok {
		return nil, &RuntimeError{Op: "invoke", Err: fmt.Errorf("%w: %q", ErrFuncNotFound, name)}
	}
	results, err := e.runtime.InvokeExport(ctx, m.addr, name, params)
	if err != nil {
		return nil, asTrapOrWrap("invoke", err)
	}
	return results, nil
}

// Release frees every Store address m contributed and removes m from the
// Engine's module namespace. Addresses m resolved from imports stay live,
// as do this Engine's other modules; m itself must not be used afterwards.
// Lowered code is not reclaimed — the shared instruction buffer only ever
// grows.
func (e *Engine) Release(m *Module) {
	inst := e.runtime.Store.Instance(m.addr)
	inst.Release(e.runtime.Store)
	e.runtime.Store.ReleaseInstance(m.addr)
	delete(e.modules, m.name)
}

// ExportedGlobal returns the current value of m's exported global name.
func (m *Module) ExportedGlobal(name string) (api.Value, error) {
	addr, ok := m.engine.runtime.Store.Instance(m.addr).Export(name, api.ExternKindGlobal)
	if !ok {
		return api.Value{}, &RuntimeError{Op: "export", Err: fmt.Errorf("%w: %q", ErrGlobalNotFound, name)}
	}
	return m.engine.runtime.Store.Global(addr).Value, nil
}

// ExportedMemory returns m's exported linear memory name as the same
// api.Memory surface a host function receives.
func (m *Module) ExportedMemory(name string) (api.Memory, error) {
	addr, ok := m.engine.runtime.Store.Instance(m.addr).Export(name, api.ExternKindMemory)
	if !ok {
		return nil, &RuntimeError{Op: "export", Err: fmt.Errorf("%w: %q", ErrMemNotFound, name)}
	}
	return m.engine.runtime.Store.Mem(addr), nil
}

// ExportedTable returns a snapshot of m's exported table name's elements.
func (m *Module) ExportedTable(name string) ([]api.Ref, error) {
	addr, ok := m.engine.runtime.Store.Instance(m.addr).Export(name, api.ExternKindTable)
	if !ok {
		return nil, &RuntimeError{Op: "export", Err: fmt.Errorf("%w: %q", ErrTableNotFound, name)}
	}
	tbl := m.engine.runtime.Store.Table(addr)
	return append([]api.Ref(nil), tbl.Elements...), nil
}

func asTrapOrWrap(op string, err error) error {
	if _, ok := err.(*Trap); ok {
		return err
	}
	return wrapf(op, err)
}
