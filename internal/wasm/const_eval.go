package wasm

import (
	"errors"
	"fmt"

	"github.com/wasp-engine/wasp/api"
)

// ErrConstExpr is the sentinel every constant-expression evaluation failure
// wraps, so embedders can errors.Is a bad initializer apart from other
// instantiation errors.
var ErrConstExpr = errors.New("invalid constant expression")

// EvalConstExpr evaluates a constant initializer expression: the
// const-producing instructions plus ref.null/ref.func, plus global.get of
// an already-initialized (imported, immutable) global, which the Wasm spec
// also permits in const exprs.
//
// inst must already have GlobalAddrs/FuncAddrs populated for every index the
// expression can reference: globals.get only ever targets an *imported*
// global (whose value is set before any of the current module's own globals
// are evaluated), and ref.func may name any function index since taking a
// function's address doesn't require it to be running yet.
func EvalConstExpr(expr api.Expr, inst *Instance, store *Store) (api.Value, error) {
	var stack []api.Value
	push := func(v api.Value) { stack = append(stack, v) }

	for _, in := range expr.Instrs {
		switch in.Op {
		case api.OpConstI32:
			push(api.I32(in.I32))
		case api.OpConstI64:
			push(api.I64(in.I64))
		case api.OpConstF32:
			push(api.F32(in.F32))
		case api.OpConstF64:
			push(api.F64(in.F64))
		case api.OpGlobalGet:
			if int(in.GlobalIdx) >= len(inst.GlobalAddrs) {
				return api.Value{}, fmt.Errorf("wasm: %w: global index %d out of range", ErrConstExpr, in.GlobalIdx)
			}
			g := store.Global(inst.GlobalAddrs[in.GlobalIdx])
			push(g.Value)
		case api.OpRefNull:
			push(api.RefValue(api.NullRef))
		case api.OpRefFunc:
			if int(in.FuncIdx) >= len(inst.FuncAddrs) {
				return api.Value{}, fmt.Errorf("wasm: %w: func index %d out of range", ErrConstExpr, in.FuncIdx)
			}
			push(api.RefValue(api.FuncRef(inst.FuncAddrs[in.FuncIdx])))
		default:
			return api.Value{}, fmt.Errorf("wasm: %w: unsupported opcode %v", ErrConstExpr, in.Op)
		}
	}

	if len(stack) != 1 {
		return api.Value{}, fmt.Errorf("wasm: %w: expected exactly one result, got %d", ErrConstExpr, len(stack))
	}
	return stack[0], nil
}

// EvalConstI32 evaluates a constant expression known to produce an i32 —
// used for active element/data segment offsets.
func EvalConstI32(expr api.Expr, inst *Instance, store *Store) (int32, error) {
	v, err := EvalConstExpr(expr, inst, store)
	if err != nil {
		return 0, err
	}
	if v.Kind() != api.ValueKindI32 {
		return 0, fmt.Errorf("wasm: %w: expected i32 offset, got %s", ErrConstExpr, v.Kind())
	}
	return v.I32(), nil
}
