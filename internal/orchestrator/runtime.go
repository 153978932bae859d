// Package orchestrator loads a decoded Module into a Store (resolving
// imports, allocating globals/tables/memories/element and data segments,
// lowering and appending every function body to one shared instruction
// buffer), runs the start function, and drives named invocations to
// completion, resuming the interpreter across host-call suspensions.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/wasp-engine/wasp/api"
	"github.com/wasp-engine/wasp/internal/interpreter"
	"github.com/wasp-engine/wasp/internal/ir"
	"github.com/wasp-engine/wasp/internal/wasm"
)

// Resolve looks up the Store address an import binds to. Callers (the root
// package's module registry) implement this over already-instantiated
// modules' exports and registered host environments; the orchestrator
// itself is agnostic to where an address comes from.
type Resolve func(modname, name string, kind api.ExternKind) (wasm.Addr, bool)

// Runtime owns the Store and the single shared instruction buffer every
// instantiated module's functions are appended to.
type Runtime struct {
	Code     []api.Instr
	Store    *wasm.Store
	Features api.Features

	// HostEnvs routes a suspended host FuncInst's (HostModule, HostName) to
	// the api.HostEnv that implements it, for callHost.
	HostEnvs map[string]api.HostEnv
}

func New(features api.Features) *Runtime {
	return &Runtime{Store: wasm.NewStore(), Features: features, HostEnvs: map[string]api.HostEnv{}}
}

// RegisterHostEnv makes env available to imports naming modname.
func (r *Runtime) RegisterHostEnv(modname string, env api.HostEnv) { r.HostEnvs[modname] = env }

// HostFuncAddr returns (allocating and memoizing on first use) the Store
// address of a host-backed FuncInst for (modname, name, t).
func (r *Runtime) HostFuncAddr(cache map[[2]string]wasm.Addr, modname, name string, t api.FuncType) wasm.Addr {
	key := [2]string{modname, name}
	if addr, ok := cache[key]; ok {
		return addr
	}
	addr := r.Store.AllocateHostFunc(t, modname, name)
	cache[key] = addr
	return addr
}

// Instantiate resolves mod's imports, allocates its globals/tables/memory/
// functions, lowers and appends its function bodies to the shared buffer,
// evaluates element/data segments, and records its exports.
func (r *Runtime) Instantiate(mod *api.Module, name string, resolve Resolve) (*wasm.Instance, wasm.Addr, error) {
	inst := &wasm.Instance{Name: name, Types: mod.Types, Exports: mod.Exports}

	for _, imp := range mod.Imports {
		switch imp.Desc.Kind {
		case api.ExternKindFunc:
			addr, ok := resolve(imp.Module, imp.Name, api.ExternKindFunc)
			if !ok {
				return nil, 0, fmt.Errorf("orchestrator: unresolved func import %s.%s", imp.Module, imp.Name)
			}
			inst.FuncAddrs = append(inst.FuncAddrs, addr)
		case api.ExternKindTable:
			addr, ok := resolve(imp.Module, imp.Name, api.ExternKindTable)
			if !ok {
				return nil, 0, fmt.Errorf("orchestrator: unresolved table import %s.%s", imp.Module, imp.Name)
			}
			inst.TableAddrs = append(inst.TableAddrs, addr)
		case api.ExternKindMemory:
			addr, ok := resolve(imp.Module, imp.Name, api.ExternKindMemory)
			if !ok {
				return nil, 0, fmt.Errorf("orchestrator: unresolved memory import %s.%s", imp.Module, imp.Name)
			}
			inst.MemAddr = &addr
		case api.ExternKindGlobal:
			addr, ok := resolve(imp.Module, imp.Name, api.ExternKindGlobal)
			if !ok {
				return nil, 0, fmt.Errorf("orchestrator: unresolved global import %s.%s", imp.Module, imp.Name)
			}
			inst.GlobalAddrs = append(inst.GlobalAddrs, addr)
		}
	}
	inst.ImportedFuncs = len(inst.FuncAddrs)
	inst.ImportedGlobals = len(inst.GlobalAddrs)
	inst.ImportedTables = len(inst.TableAddrs)
	inst.MemImported = inst.MemAddr != nil

	for _, g := range mod.Globals {
		v, err := wasm.EvalConstExpr(g.Init, inst, r.Store)
		if err != nil {
			return nil, 0, fmt.Errorf("orchestrator: global init: %w", err)
		}
		inst.GlobalAddrs = append(inst.GlobalAddrs, r.Store.AllocateGlobal(g.Type, v))
	}
	for _, t := range mod.Tables {
		inst.TableAddrs = append(inst.TableAddrs, r.Store.AllocateTable(t))
	}
	for _, m := range mod.Mems {
		addr := r.Store.AllocateMem(m)
		inst.MemAddr = &addr
	}
	for _, f := range mod.Funcs {
		inst.FuncAddrs = append(inst.FuncAddrs, r.Store.AllocateInnerFunc(mod.Types[f.TypeIdx], f.Locals))
	}

	if mod.Start != nil {
		startAddr := inst.FuncAddrs[*mod.Start]
		inst.StartFuncAddr = &startAddr
	}

	instAddr := r.Store.AllocateInstance(*inst)

	for i, f := range mod.Funcs {
		lowered, err := ir.Lower(f.Body)
		if err != nil {
			return nil, 0, fmt.Errorf("orchestrator: lowering func %d: %w", i, err)
		}
		if err := checkFeatures(lowered, r.Features); err != nil {
			return nil, 0, fmt.Errorf("orchestrator: func %d: %w", i, err)
		}
		start := len(r.Code)
		r.Code = append(r.Code, lowered...)
		r.Store.PatchInnerFunc(inst.FuncAddrs[mod.NumImportedFuncs+uint32(i)], instAddr, start)
	}

	for _, el := range mod.Elems {
		refs := make([]api.Ref, len(el.Init))
		for i, init := range el.Init {
			v, err := wasm.EvalConstExpr(init, inst, r.Store)
			if err != nil {
				return nil, 0, fmt.Errorf("orchestrator: elem init: %w", err)
			}
			refs[i] = v.Ref()
		}
		addr := r.Store.AllocateElem(el.Type, refs)
		inst.ElemAddrs = append(inst.ElemAddrs, addr)

		switch el.Mode {
		case api.ElemModeActive:
			offset, err := wasm.EvalConstI32(el.Offset, inst, r.Store)
			if err != nil {
				return nil, 0, fmt.Errorf("orchestrator: elem offset: %w", err)
			}
			table := r.Store.Table(inst.TableAddrs[el.Table])
			if offset < 0 || int64(offset)+int64(len(refs)) > int64(len(table.Elements)) {
				return nil, 0, fmt.Errorf("orchestrator: active element segment out of table bounds")
			}
			copy(table.Elements[offset:], refs)
			r.Store.DropElem(addr) // active segments don't remain addressable, per the bulk-memory proposal.
		case api.ElemModeDeclarative:
			r.Store.DropElem(addr) // declarative segments have no storage effect.
		}
	}

	for _, d := range mod.Datas {
		addr := r.Store.AllocateData(d.Init)
		inst.DataAddrs = append(inst.DataAddrs, addr)

		if d.Mode == api.DataModeActive {
			offset, err := wasm.EvalConstI32(d.Offset, inst, r.Store)
			if err != nil {
				return nil, 0, fmt.Errorf("orchestrator: data offset: %w", err)
			}
			mem := r.Store.Mem(*inst.MemAddr)
			if offset < 0 || int64(offset)+int64(len(d.Init)) > int64(len(mem.Data)) {
				return nil, 0, fmt.Errorf("orchestrator: active data segment out of memory bounds")
			}
			copy(mem.Data[offset:], d.Init)
			r.Store.DropData(addr)
		}
	}

	*r.Store.Instance(instAddr) = *inst
	return inst, instAddr, nil
}

// Start runs the module's start function, if it declared one.
func (r *Runtime) Start(ctx context.Context, instAddr wasm.Addr) error {
	inst := r.Store.Instance(instAddr)
	if inst.StartFuncAddr == nil {
		return nil
	}
	_, err := r.run(ctx, *inst.StartFuncAddr, instAddr, nil)
	return err
}

// InvokeExport runs the exported function named name with params, driving
// the interpreter to completion and handling every host-call suspension
// along the way.
func (r *Runtime) InvokeExport(ctx context.Context, instAddr wasm.Addr, name string, params []api.Value) ([]api.Value, error) {
	inst := r.Store.Instance(instAddr)
	addr, ok := inst.ExportedFunc(name)
	if !ok {
		return nil, fmt.Errorf("orchestrator: no exported function %q", name)
	}
	return r.run(ctx, addr, instAddr, params)
}

// run drives one top-level call (start function or an export) to
// completion, resuming across every host-call suspension the stepper
// reports. callerInstAddr names the instance whose memory a directly
// host-backed entry point (addr itself a Host FuncInst) should see.
//
// The deferred recover turns a bug inside the engine (an out-of-range
// Store address, a mismatched Value tag) into an error return instead of
// taking down the embedder — no panic is meant to reach
// Engine.Invoke/Engine.Start.
func (r *Runtime) run(ctx context.Context, addr wasm.Addr, callerInstAddr wasm.Addr, params []api.Value) (results []api.Value, err error) {
	defer func() {
		if v := recover(); v != nil {
			results = nil
			err = fmt.Errorf("orchestrator: recovered: %v", v)
		}
	}()

	fi := r.Store.Func(addr)
	engine := interpreter.New(r.Code, r.Store)

	stack := interpreter.NewStack()
	if fi.IsHost {
		return r.callHost(ctx, fi, params, callerInstAddr)
	}

	locals := append(append([]api.Value(nil), params...), make([]api.Value, len(fi.Locals))...)
	for i, t := range fi.Locals {
		locals[len(params)+i] = api.ZeroValue(t)
	}
	stack.PushFrame(interpreter.Frame{
		N:            len(fi.Type.Results),
		InstanceAddr: fi.InstanceAddr,
		Locals:       locals,
		StackOffset:  0,
		LabelBase:    0,
		CallerPC:     -1,
	})

	pc := fi.Start
	for {
		res := engine.Run(stack, pc)
		switch res.State {
		case interpreter.StateFinished:
			return res.Results, nil
		case interpreter.StateTrapped:
			return nil, res.Err
		case interpreter.StateHostCall:
			hfi := r.Store.Func(res.HostFunc)
			results, err := r.callHost(ctx, hfi, res.HostArgs, res.CallerInstance)
			if err != nil {
				return nil, err
			}
			stack.PushValues(results)
			pc = res.NextPC
		default:
			return nil, fmt.Errorf("orchestrator: unexpected state %v", res.State)
		}
	}
}

// callHost invokes the HostEnv registered for fi's import module, handing
// it a mutable view of the calling instance's memory, if it has one.
func (r *Runtime) callHost(ctx context.Context, fi *wasm.FuncInst, args []api.Value, callerInstAddr wasm.Addr) ([]api.Value, error) {
	env, ok := r.HostEnvs[fi.HostModule]
	if !ok {
		return nil, fmt.Errorf("orchestrator: no host environment registered for module %q", fi.HostModule)
	}
	var mem api.Memory
	if inst := r.Store.Instance(callerInstAddr); inst.MemAddr != nil {
		mem = r.Store.Mem(*inst.MemAddr)
	}
	results, err := env.Call(ctx, fi.HostName, args, mem)
	if err != nil {
		// A failing host call is a trap, same as any other execution-time
		// abort — only a missing host environment (above) is a plain error.
		return nil, &interpreter.Trap{Reason: &api.HostError{Name: fi.HostName, Err: err}}
	}
	return results, nil
}
