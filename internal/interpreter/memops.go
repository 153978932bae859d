package interpreter

import (
	"github.com/wasp-engine/wasp/api"
)

// execLoad handles the full-width Load instruction (i32.load, i64.load,
// f32.load, f64.load), keyed off in.Type.
func (e *Interp) execLoad(stack *Stack, frame *Frame, in api.Instr) error {
	mem := e.Store.Mem(*e.instanceOf(frame).MemAddr)
	addr := uint32(stack.PopValue().I32())
	switch in.Type {
	case api.NumTypeI32:
		v, ok := mem.ReadUint32LE(addr, in.MemArg.Offset)
		if !ok {
			return newTrap(ErrOutOfBoundsMemory)
		}
		stack.PushValue(api.I32(int32(v)))
	case api.NumTypeI64:
		v, ok := mem.ReadUint64LE(addr, in.MemArg.Offset)
		if !ok {
			return newTrap(ErrOutOfBoundsMemory)
		}
		stack.PushValue(api.I64(int64(v)))
	case api.NumTypeF32:
		v, ok := mem.ReadFloat32LE(addr, in.MemArg.Offset)
		if !ok {
			return newTrap(ErrOutOfBoundsMemory)
		}
		stack.PushValue(api.F32(v))
	case api.NumTypeF64:
		v, ok := mem.ReadFloat64LE(addr, in.MemArg.Offset)
		if !ok {
			return newTrap(ErrOutOfBoundsMemory)
		}
		stack.PushValue(api.F64(v))
	}
	return nil
}

// execLoadNarrow handles i32/i64.load8_{s,u}, load16_{s,u}, and
// i64.load32_{s,u}, sign- or zero-extending into in.Type.
func (e *Interp) execLoadNarrow(stack *Stack, frame *Frame, in api.Instr) error {
	mem := e.Store.Mem(*e.instanceOf(frame).MemAddr)
	addr := uint32(stack.PopValue().I32())

	switch in.Op {
	case api.OpLoad8:
		b, ok := mem.ReadByte(addr, in.MemArg.Offset)
		if !ok {
			return newTrap(ErrOutOfBoundsMemory)
		}
		if in.Type == api.NumTypeI64 {
			if in.Signed {
				stack.PushValue(api.I64(int64(int8(b))))
			} else {
				stack.PushValue(api.I64(int64(b)))
			}
		} else {
			if in.Signed {
				stack.PushValue(api.I32(int32(int8(b))))
			} else {
				stack.PushValue(api.I32(int32(b)))
			}
		}
	case api.OpLoad16:
		v, ok := mem.ReadUint16LE(addr, in.MemArg.Offset)
		if !ok {
			return newTrap(ErrOutOfBoundsMemory)
		}
		if in.Type == api.NumTypeI64 {
			if in.Signed {
				stack.PushValue(api.I64(int64(int16(v))))
			} else {
				stack.PushValue(api.I64(int64(v)))
			}
		} else {
			if in.Signed {
				stack.PushValue(api.I32(int32(int16(v))))
			} else {
				stack.PushValue(api.I32(int32(v)))
			}
		}
	case api.OpLoad32:
		v, ok := mem.ReadUint32LE(addr, in.MemArg.Offset)
		if !ok {
			return newTrap(ErrOutOfBoundsMemory)
		}
		if in.Signed {
			stack.PushValue(api.I64(int64(int32(v))))
		} else {
			stack.PushValue(api.I64(int64(v)))
		}
	}
	return nil
}

func (e *Interp) execStore(stack *Stack, frame *Frame, in api.Instr) error {
	mem := e.Store.Mem(*e.instanceOf(frame).MemAddr)
	v := stack.PopValue()
	addr := uint32(stack.PopValue().I32())
	var ok bool
	switch in.Type {
	case api.NumTypeI32:
		ok = mem.WriteUint32LE(addr, in.MemArg.Offset, uint32(v.I32()))
	case api.NumTypeI64:
		ok = mem.WriteUint64LE(addr, in.MemArg.Offset, uint64(v.I64()))
	case api.NumTypeF32:
		ok = mem.WriteFloat32LE(addr, in.MemArg.Offset, v.F32())
	case api.NumTypeF64:
		ok = mem.WriteFloat64LE(addr, in.MemArg.Offset, v.F64())
	}
	if !ok {
		return newTrap(ErrOutOfBoundsMemory)
	}
	return nil
}

func (e *Interp) execStoreNarrow(stack *Stack, frame *Frame, in api.Instr) error {
	mem := e.Store.Mem(*e.instanceOf(frame).MemAddr)
	v := stack.PopValue()
	addr := uint32(stack.PopValue().I32())

	var ok bool
	switch in.Op {
	case api.OpStore8:
		var b byte
		if in.Type == api.NumTypeI64 {
			b = byte(v.I64())
		} else {
			b = byte(v.I32())
		}
		ok = mem.WriteByte(addr, in.MemArg.Offset, b)
	case api.OpStore16:
		var h uint16
		if in.Type == api.NumTypeI64 {
			h = uint16(v.I64())
		} else {
			h = uint16(v.I32())
		}
		ok = mem.WriteUint16LE(addr, in.MemArg.Offset, h)
	case api.OpStore32:
		ok = mem.WriteUint32LE(addr, in.MemArg.Offset, uint32(v.I64()))
	}
	if !ok {
		return newTrap(ErrOutOfBoundsMemory)
	}
	return nil
}
