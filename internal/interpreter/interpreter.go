// Package interpreter implements the stepper: the instruction dispatch
// loop that drives a single linear instruction buffer (produced by
// internal/ir) against the three-layered Stack, suspending to the host
// instead of calling it directly and reporting traps as a typed error
// rather than a Go panic. Dispatch is a single switch over the flat Op
// stream, never a recursive tree-walk over blocks.
package interpreter

import (
	"fmt"

	"github.com/wasp-engine/wasp/api"
	"github.com/wasp-engine/wasp/internal/wasm"
)

// State is the stepper's run state.
type State int

const (
	StateRunning State = iota
	StateHostCall
	StateFinished
	StateTrapped
)

// RunResult reports why Run stopped stepping.
type RunResult struct {
	State State

	// StateFinished.
	Results []api.Value

	// StateHostCall: the call site has already been consumed (args popped,
	// pc advanced past it); the driver (orchestrator's Runtime.run) pushes
	// the host's results and calls Run again from NextPC. CallerInstance is the calling frame's instance, so the
	// driver can hand the host the calling module's memory.
	HostFunc       wasm.Addr
	HostArgs       []api.Value
	NextPC         int
	CallerInstance wasm.Addr

	// StateTrapped.
	Err error
}

// Interp steps a shared instruction buffer against a Store. One Interp can
// drive any number of Stacks/Runs; it holds no per-call state of its own.
// Feature gating happens before any instruction reaches here — the
// orchestrator rejects a module using a disabled extension at instantiation,
// so the dispatch loop stays branch-free on configuration.
type Interp struct {
	Code  []api.Instr
	Store *wasm.Store
}

func New(code []api.Instr, store *wasm.Store) *Interp {
	return &Interp{Code: code, Store: store}
}

// Run steps from pc until the call finishes, traps, or needs to suspend for
// a host call.
func (e *Interp) Run(stack *Stack, pc int) RunResult {
	for {
		if pc < 0 || pc >= len(e.Code) {
			return RunResult{State: StateTrapped, Err: fmt.Errorf("interpreter: pc %d out of code bounds", pc)}
		}
		in := e.Code[pc]
		frame := stack.TopFrame()

		switch in.Op {
		case api.OpUnreachable:
			return RunResult{State: StateTrapped, Err: newTrap(ErrUnreachable)}
		case api.OpNop:
			pc++

		case api.OpBlock:
			bt := in.Block.FuncType(e.instanceOf(frame).Types)
			stack.PushLabel(Label{N: len(bt.Results), StackOffset: len(stack.Values) - len(bt.Params), Pc: pc + in.EndOffset})
			pc++
		case api.OpLoop:
			// A branch to a loop label re-enters the loop, so it carries the
			// block's parameters, not its results.
			bt := in.Block.FuncType(e.instanceOf(frame).Types)
			stack.PushLabel(Label{N: len(bt.Params), StackOffset: len(stack.Values) - len(bt.Params), Pc: pc, Cont: true})
			pc++
		case api.OpIf:
			bt := in.Block.FuncType(e.instanceOf(frame).Types)
			cond := stack.PopValue().I32()
			exit := pc + in.EndOffset
			if cond != 0 {
				stack.PushLabel(Label{N: len(bt.Results), StackOffset: len(stack.Values) - len(bt.Params), Pc: exit})
				pc++
			} else if in.ElseOffset != -1 {
				stack.PushLabel(Label{N: len(bt.Results), StackOffset: len(stack.Values) - len(bt.Params), Pc: exit})
				pc += in.ElseOffset
			} else {
				pc = exit
			}
		case api.OpElse:
			return RunResult{State: StateTrapped, Err: fmt.Errorf("interpreter: unlowered else at pc %d", pc)}
		case api.OpElseJump:
			stack.PopLabel()
			pc += in.EndOffset
		case api.OpEnd:
			stack.PopLabel()
			pc++

		case api.OpBr:
			npc, done := stack.Jump(in.LabelIdx)
			if done && len(stack.Frames) == 0 {
				return RunResult{State: StateFinished, Results: append([]api.Value(nil), stack.Values...)}
			}
			pc = npc
		case api.OpBrIf:
			cond := stack.PopValue().I32()
			if cond != 0 {
				npc, done := stack.Jump(in.LabelIdx)
				if done && len(stack.Frames) == 0 {
					return RunResult{State: StateFinished, Results: append([]api.Value(nil), stack.Values...)}
				}
				pc = npc
			} else {
				pc++
			}
		case api.OpBrTable:
			idx := stack.PopValue().I32()
			target := in.Default
			if idx >= 0 && int(idx) < len(in.Labels) {
				target = in.Labels[idx]
			}
			npc, done := stack.Jump(target)
			if done && len(stack.Frames) == 0 {
				return RunResult{State: StateFinished, Results: append([]api.Value(nil), stack.Values...)}
			}
			pc = npc
		case api.OpReturn:
			npc, _ := stack.Return()
			if len(stack.Frames) == 0 {
				return RunResult{State: StateFinished, Results: append([]api.Value(nil), stack.Values...)}
			}
			pc = npc

		case api.OpCall:
			inst := e.instanceOf(frame)
			addr := inst.FuncAddrs[in.FuncIdx]
			res, trap := e.call(stack, addr, pc+1)
			if trap != nil {
				return RunResult{State: StateTrapped, Err: trap}
			}
			if res.State == StateHostCall {
				return res
			}
			pc = res.NextPC
		case api.OpCallIndirect:
			inst := e.instanceOf(frame)
			tableAddr := inst.TableAddrs[in.TableIdx]
			table := e.Store.Table(tableAddr)
			idx := stack.PopValue().I32()
			if idx < 0 || int(idx) >= len(table.Elements) {
				return RunResult{State: StateTrapped, Err: newTrap(ErrOutOfBoundsTable)}
			}
			ref := table.Elements[idx]
			if ref.IsNull() {
				return RunResult{State: StateTrapped, Err: newTrap(ErrNullReference)}
			}
			if ref.Kind != api.RefKindFunc {
				return RunResult{State: StateTrapped, Err: newTrap(ErrNotFuncRef)}
			}
			addr := wasm.Addr(ref.Addr)
			fi := e.Store.Func(addr)
			want := inst.Types[in.TypeIdx]
			if !funcTypeEqual(fi.Type, want) {
				return RunResult{State: StateTrapped, Err: newTrap(ErrIndirectCallType)}
			}
			res, trap := e.call(stack, addr, pc+1)
			if trap != nil {
				return RunResult{State: StateTrapped, Err: trap}
			}
			if res.State == StateHostCall {
				return res
			}
			pc = res.NextPC

		case api.OpRefNull:
			stack.PushValue(api.RefValue(api.NullRef))
			pc++
		case api.OpRefIsNull:
			r := stack.PopValue().Ref()
			stack.PushValue(boolValue(r.IsNull()))
			pc++
		case api.OpRefFunc:
			inst := e.instanceOf(frame)
			stack.PushValue(api.RefValue(api.FuncRef(inst.FuncAddrs[in.FuncIdx])))
			pc++

		case api.OpDrop:
			stack.PopValue()
			pc++
		case api.OpSelect:
			cond := stack.PopValue().I32()
			v2 := stack.PopValue()
			v1 := stack.PopValue()
			if cond != 0 {
				stack.PushValue(v1)
			} else {
				stack.PushValue(v2)
			}
			pc++

		case api.OpLocalGet:
			stack.PushValue(frame.Locals[in.LocalIdx])
			pc++
		case api.OpLocalSet:
			frame.Locals[in.LocalIdx] = stack.PopValue()
			pc++
		case api.OpLocalTee:
			frame.Locals[in.LocalIdx] = stack.TopValue()
			pc++
		case api.OpGlobalGet:
			inst := e.instanceOf(frame)
			stack.PushValue(e.Store.Global(inst.GlobalAddrs[in.GlobalIdx]).Value)
			pc++
		case api.OpGlobalSet:
			inst := e.instanceOf(frame)
			e.Store.Global(inst.GlobalAddrs[in.GlobalIdx]).Value = stack.PopValue()
			pc++

		case api.OpTableGet:
			inst := e.instanceOf(frame)
			table := e.Store.Table(inst.TableAddrs[in.TableIdx])
			i := stack.PopValue().I32()
			if i < 0 || int(i) >= len(table.Elements) {
				return RunResult{State: StateTrapped, Err: newTrap(ErrOutOfBoundsTable)}
			}
			stack.PushValue(api.RefValue(table.Elements[i]))
			pc++
		case api.OpTableSet:
			inst := e.instanceOf(frame)
			table := e.Store.Table(inst.TableAddrs[in.TableIdx])
			v := stack.PopValue().Ref()
			i := stack.PopValue().I32()
			if i < 0 || int(i) >= len(table.Elements) {
				return RunResult{State: StateTrapped, Err: newTrap(ErrOutOfBoundsTable)}
			}
			table.Elements[i] = v
			pc++
		case api.OpTableSize:
			inst := e.instanceOf(frame)
			table := e.Store.Table(inst.TableAddrs[in.TableIdx])
			stack.PushValue(api.I32(int32(len(table.Elements))))
			pc++
		case api.OpTableGrow:
			inst := e.instanceOf(frame)
			table := e.Store.Table(inst.TableAddrs[in.TableIdx])
			n := stack.PopValue().I32()
			init := stack.PopValue().Ref()
			before := len(table.Elements)
			after := before + int(n)
			if n < 0 || (table.Type.Limits.HasMax() && int64(after) > table.Type.Limits.Max) {
				stack.PushValue(api.I32(-1))
			} else {
				grown := make([]api.Ref, after)
				copy(grown, table.Elements)
				for i := before; i < after; i++ {
					grown[i] = init
				}
				table.Elements = grown
				stack.PushValue(api.I32(int32(before)))
			}
			pc++
		case api.OpTableFill:
			inst := e.instanceOf(frame)
			table := e.Store.Table(inst.TableAddrs[in.TableIdx])
			n := stack.PopValue().I32()
			v := stack.PopValue().Ref()
			i := stack.PopValue().I32()
			if i < 0 || n < 0 || int64(i)+int64(n) > int64(len(table.Elements)) {
				return RunResult{State: StateTrapped, Err: newTrap(ErrOutOfBoundsTable)}
			}
			for k := int32(0); k < n; k++ {
				table.Elements[i+k] = v
			}
			pc++
		case api.OpTableCopy:
			inst := e.instanceOf(frame)
			dst := e.Store.Table(inst.TableAddrs[in.TableIdx])
			src := e.Store.Table(inst.TableAddrs[in.TableIdx2])
			n := stack.PopValue().I32()
			s := stack.PopValue().I32()
			d := stack.PopValue().I32()
			if d < 0 || s < 0 || n < 0 ||
				int64(d)+int64(n) > int64(len(dst.Elements)) ||
				int64(s)+int64(n) > int64(len(src.Elements)) {
				return RunResult{State: StateTrapped, Err: newTrap(ErrOutOfBoundsTable)}
			}
			copy(dst.Elements[d:int64(d)+int64(n)], src.Elements[s:int64(s)+int64(n)])
			pc++
		case api.OpTableInit:
			inst := e.instanceOf(frame)
			table := e.Store.Table(inst.TableAddrs[in.TableIdx])
			elem := e.Store.Elem(inst.ElemAddrs[in.ElemIdx])
			n := stack.PopValue().I32()
			s := stack.PopValue().I32()
			d := stack.PopValue().I32()
			if d < 0 || s < 0 || n < 0 ||
				int64(d)+int64(n) > int64(len(table.Elements)) ||
				int64(s)+int64(n) > int64(len(elem.Elements)) {
				return RunResult{State: StateTrapped, Err: newTrap(ErrOutOfBoundsTable)}
			}
			copy(table.Elements[d:int64(d)+int64(n)], elem.Elements[s:int64(s)+int64(n)])
			pc++
		case api.OpElemDrop:
			inst := e.instanceOf(frame)
			e.Store.DropElem(inst.ElemAddrs[in.ElemIdx])
			pc++

		case api.OpLoad:
			if err := e.execLoad(stack, frame, in); err != nil {
				return RunResult{State: StateTrapped, Err: err}
			}
			pc++
		case api.OpLoad8, api.OpLoad16, api.OpLoad32:
			if err := e.execLoadNarrow(stack, frame, in); err != nil {
				return RunResult{State: StateTrapped, Err: err}
			}
			pc++
		case api.OpStore:
			if err := e.execStore(stack, frame, in); err != nil {
				return RunResult{State: StateTrapped, Err: err}
			}
			pc++
		case api.OpStore8, api.OpStore16, api.OpStore32:
			if err := e.execStoreNarrow(stack, frame, in); err != nil {
				return RunResult{State: StateTrapped, Err: err}
			}
			pc++
		case api.OpMemorySize:
			mem := e.Store.Mem(*e.instanceOf(frame).MemAddr)
			stack.PushValue(api.I32(int32(mem.PageCount())))
			pc++
		case api.OpMemoryGrow:
			mem := e.Store.Mem(*e.instanceOf(frame).MemAddr)
			n := stack.PopValue().I32()
			if n < 0 {
				stack.PushValue(api.I32(-1))
			} else if before, ok := mem.Grow(uint32(n)); ok {
				stack.PushValue(api.I32(int32(before)))
			} else {
				stack.PushValue(api.I32(-1))
			}
			pc++
		case api.OpMemoryInit:
			inst := e.instanceOf(frame)
			mem := e.Store.Mem(*inst.MemAddr)
			// A dropped segment behaves as zero-length: any positive n traps.
			var segment []byte
			if data, ok := e.Store.DataOK(inst.DataAddrs[in.DataIdx]); ok {
				segment = data.Data
			}
			n := stack.PopValue().I32()
			s := stack.PopValue().I32()
			d := stack.PopValue().I32()
			if d < 0 || s < 0 || n < 0 ||
				uint64(d)+uint64(n) > uint64(len(mem.Data)) ||
				uint64(s)+uint64(n) > uint64(len(segment)) {
				return RunResult{State: StateTrapped, Err: newTrap(ErrOutOfBoundsMemory)}
			}
			copy(mem.Data[d:int64(d)+int64(n)], segment[s:int64(s)+int64(n)])
			pc++
		case api.OpDataDrop:
			inst := e.instanceOf(frame)
			// Dropping twice is a no-op, not an error.
			if _, ok := e.Store.DataOK(inst.DataAddrs[in.DataIdx]); ok {
				e.Store.DropData(inst.DataAddrs[in.DataIdx])
			}
			pc++
		case api.OpMemoryCopy:
			mem := e.Store.Mem(*e.instanceOf(frame).MemAddr)
			n := stack.PopValue().I32()
			s := stack.PopValue().I32()
			d := stack.PopValue().I32()
			if d < 0 || s < 0 || n < 0 ||
				uint64(d)+uint64(n) > uint64(len(mem.Data)) ||
				uint64(s)+uint64(n) > uint64(len(mem.Data)) {
				return RunResult{State: StateTrapped, Err: newTrap(ErrOutOfBoundsMemory)}
			}
			copy(mem.Data[d:int64(d)+int64(n)], mem.Data[s:int64(s)+int64(n)])
			pc++
		case api.OpMemoryFill:
			mem := e.Store.Mem(*e.instanceOf(frame).MemAddr)
			n := stack.PopValue().I32()
			v := byte(stack.PopValue().I32())
			d := stack.PopValue().I32()
			if d < 0 || n < 0 || uint64(d)+uint64(n) > uint64(len(mem.Data)) {
				return RunResult{State: StateTrapped, Err: newTrap(ErrOutOfBoundsMemory)}
			}
			region := mem.Data[d : int64(d)+int64(n)]
			for i := range region {
				region[i] = v
			}
			pc++

		case api.OpConstI32:
			stack.PushValue(api.I32(in.I32))
			pc++
		case api.OpConstI64:
			stack.PushValue(api.I64(in.I64))
			pc++
		case api.OpConstF32:
			stack.PushValue(api.F32(in.F32))
			pc++
		case api.OpConstF64:
			stack.PushValue(api.F64(in.F64))
			pc++

		case api.OpEq, api.OpNe, api.OpLt, api.OpGt, api.OpLe, api.OpGe:
			rhs := stack.PopValue()
			lhs := stack.PopValue()
			stack.PushValue(relop(in.Op, in.Type, in.Signed, lhs, rhs))
			pc++
		case api.OpEqz:
			v := stack.PopValue()
			stack.PushValue(testop(in.Type, v))
			pc++

		case api.OpAdd, api.OpSub, api.OpMul, api.OpDiv, api.OpRem,
			api.OpAnd, api.OpOr, api.OpXor, api.OpShl, api.OpShr, api.OpRotl, api.OpRotr,
			api.OpMin, api.OpMax, api.OpCopysign:
			rhs := stack.PopValue()
			lhs := stack.PopValue()
			res, err := binop(in.Op, in.Type, in.Signed, lhs, rhs)
			if err != nil {
				return RunResult{State: StateTrapped, Err: err}
			}
			stack.PushValue(res)
			pc++
		case api.OpClz, api.OpCtz, api.OpPopcnt,
			api.OpAbs, api.OpNeg, api.OpCeil, api.OpFloor, api.OpTrunc, api.OpNearest, api.OpSqrt:
			v := stack.PopValue()
			stack.PushValue(unop(in.Op, in.Type, v))
			pc++

		case api.OpWrap, api.OpExtend, api.OpTruncFromF, api.OpTruncSatFromF,
			api.OpConvertFromI, api.OpDemote, api.OpPromote, api.OpReinterpret, api.OpSignExtend:
			v := stack.PopValue()
			res, err := cvtop(in, v)
			if err != nil {
				return RunResult{State: StateTrapped, Err: err}
			}
			stack.PushValue(res)
			pc++

		default:
			return RunResult{State: StateTrapped, Err: fmt.Errorf("interpreter: unimplemented opcode %v", in.Op)}
		}
	}
}

// call resolves addr's FuncInst and either suspends for the host or pushes
// a new Frame and reports the callee's entry pc. The stepper never calls
// host code itself; the orchestrator does, then resumes.
func (e *Interp) call(stack *Stack, addr wasm.Addr, callerPC int) (RunResult, error) {
	fi := e.Store.Func(addr)
	args := stack.PopValues(len(fi.Type.Params))
	if fi.IsHost {
		callerInstance := stack.TopFrame().InstanceAddr
		return RunResult{State: StateHostCall, HostFunc: addr, HostArgs: args, NextPC: callerPC, CallerInstance: callerInstance}, nil
	}
	locals := append(args, make([]api.Value, len(fi.Locals))...)
	for i, t := range fi.Locals {
		locals[len(args)+i] = api.ZeroValue(t)
	}
	stack.PushFrame(Frame{
		N:            len(fi.Type.Results),
		InstanceAddr: fi.InstanceAddr,
		Locals:       locals,
		StackOffset:  len(stack.Values),
		LabelBase:    len(stack.Labels),
		CallerPC:     callerPC,
	})
	return RunResult{State: StateRunning, NextPC: fi.Start}, nil
}

func (e *Interp) instanceOf(frame *Frame) *wasm.Instance { return e.Store.Instance(frame.InstanceAddr) }

func funcTypeEqual(a, b api.FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

func boolValue(b bool) api.Value {
	if b {
		return api.I32(1)
	}
	return api.I32(0)
}
