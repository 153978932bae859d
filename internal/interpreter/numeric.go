package interpreter

import (
	"math"
	"math/bits"

	"github.com/wasp-engine/wasp/api"
	"github.com/wasp-engine/wasp/internal/moremath"
)

// The unop/binop/relop/testop/cvtop helper family. Go generics buy little
// here — the operand is always one of four concrete kinds carried in a
// tagged api.Value — so each op is a small switch over api.NumType.

// binop applies a binary arithmetic/bitwise op. The caller pops rhs first,
// then lhs (matching push order), and the expression is op(lhs, rhs).
// signed only matters for Div/Rem/Shr on integer types.
func binop(op api.Opcode, t api.NumType, signed bool, lhs, rhs api.Value) (api.Value, error) {
	switch t {
	case api.NumTypeI32:
		a, b := lhs.I32(), rhs.I32()
		switch op {
		case api.OpAdd:
			return api.I32(a + b), nil
		case api.OpSub:
			return api.I32(a - b), nil
		case api.OpMul:
			return api.I32(a * b), nil
		case api.OpAnd:
			return api.I32(a & b), nil
		case api.OpOr:
			return api.I32(a | b), nil
		case api.OpXor:
			return api.I32(a ^ b), nil
		case api.OpShl:
			return api.I32(a << (uint32(b) % 32)), nil
		case api.OpShr:
			return api.I32(shrI32(a, b, signed)), nil
		case api.OpRotl:
			return api.I32(int32(bits.RotateLeft32(uint32(a), int(b)))), nil
		case api.OpRotr:
			return api.I32(int32(bits.RotateLeft32(uint32(a), -int(b)))), nil
		case api.OpDiv, api.OpRem:
			return i32DivRem(op, signed, a, b)
		}
	case api.NumTypeI64:
		a, b := lhs.I64(), rhs.I64()
		switch op {
		case api.OpAdd:
			return api.I64(a + b), nil
		case api.OpSub:
			return api.I64(a - b), nil
		case api.OpMul:
			return api.I64(a * b), nil
		case api.OpAnd:
			return api.I64(a & b), nil
		case api.OpOr:
			return api.I64(a | b), nil
		case api.OpXor:
			return api.I64(a ^ b), nil
		case api.OpShl:
			return api.I64(a << (uint64(b) % 64)), nil
		case api.OpShr:
			return api.I64(shrI64(a, b, signed)), nil
		case api.OpRotl:
			return api.I64(int64(bits.RotateLeft64(uint64(a), int(b)))), nil
		case api.OpRotr:
			return api.I64(int64(bits.RotateLeft64(uint64(a), -int(b)))), nil
		case api.OpDiv, api.OpRem:
			return i64DivRem(op, signed, a, b)
		}
	case api.NumTypeF32:
		a, b := lhs.F32(), rhs.F32()
		return f32binop(op, a, b), nil
	case api.NumTypeF64:
		a, b := lhs.F64(), rhs.F64()
		return f64binop(op, a, b), nil
	}
	panic("interpreter: unreachable binop")
}

func shrI32(a int32, b int32, signed bool) int32 {
	sh := uint32(b) % 32
	if signed {
		return a >> sh
	}
	return int32(uint32(a) >> sh)
}

func shrI64(a int64, b int64, signed bool) int64 {
	sh := uint64(b) % 64
	if signed {
		return a >> sh
	}
	return int64(uint64(a) >> sh)
}

// i32DivRem implements Div/Rem for i32, trapping on divide-by-zero and on
// the one signed-division overflow case (MinInt32 / -1).
func i32DivRem(op api.Opcode, signed bool, a, b int32) (api.Value, error) {
	if b == 0 {
		return api.Value{}, newTrap(ErrIntegerDivideZero)
	}
	if signed {
		if op == api.OpDiv && a == math.MinInt32 && b == -1 {
			return api.Value{}, newTrap(ErrIntegerOverflow)
		}
		if op == api.OpDiv {
			return api.I32(a / b), nil
		}
		return api.I32(a % b), nil
	}
	ua, ub := uint32(a), uint32(b)
	if op == api.OpDiv {
		return api.I32(int32(ua / ub)), nil
	}
	return api.I32(int32(ua % ub)), nil
}

func i64DivRem(op api.Opcode, signed bool, a, b int64) (api.Value, error) {
	if b == 0 {
		return api.Value{}, newTrap(ErrIntegerDivideZero)
	}
	if signed {
		if op == api.OpDiv && a == math.MinInt64 && b == -1 {
			return api.Value{}, newTrap(ErrIntegerOverflow)
		}
		if op == api.OpDiv {
			return api.I64(a / b), nil
		}
		return api.I64(a % b), nil
	}
	ua, ub := uint64(a), uint64(b)
	if op == api.OpDiv {
		return api.I64(int64(ua / ub)), nil
	}
	return api.I64(int64(ua % ub)), nil
}

func f32binop(op api.Opcode, a, b float32) api.Value {
	switch op {
	case api.OpAdd:
		return api.F32(a + b)
	case api.OpSub:
		return api.F32(a - b)
	case api.OpMul:
		return api.F32(a * b)
	case api.OpDiv:
		return api.F32(a / b)
	case api.OpMin:
		return api.F32(moremath.WasmCompatMinF32(a, b))
	case api.OpMax:
		return api.F32(moremath.WasmCompatMaxF32(a, b))
	case api.OpCopysign:
		return api.F32(float32(math.Copysign(float64(a), float64(b))))
	}
	panic("interpreter: unreachable f32 binop")
}

func f64binop(op api.Opcode, a, b float64) api.Value {
	switch op {
	case api.OpAdd:
		return api.F64(a + b)
	case api.OpSub:
		return api.F64(a - b)
	case api.OpMul:
		return api.F64(a * b)
	case api.OpDiv:
		return api.F64(a / b)
	case api.OpMin:
		return api.F64(moremath.WasmCompatMin(a, b))
	case api.OpMax:
		return api.F64(moremath.WasmCompatMax(a, b))
	case api.OpCopysign:
		return api.F64(math.Copysign(a, b))
	}
	panic("interpreter: unreachable f64 binop")
}

// unop applies a unary arithmetic op.
func unop(op api.Opcode, t api.NumType, v api.Value) api.Value {
	switch t {
	case api.NumTypeI32:
		a := v.I32()
		switch op {
		case api.OpClz:
			return api.I32(int32(bits.LeadingZeros32(uint32(a))))
		case api.OpCtz:
			return api.I32(int32(bits.TrailingZeros32(uint32(a))))
		case api.OpPopcnt:
			return api.I32(int32(bits.OnesCount32(uint32(a))))
		}
	case api.NumTypeI64:
		a := v.I64()
		switch op {
		case api.OpClz:
			return api.I64(int64(bits.LeadingZeros64(uint64(a))))
		case api.OpCtz:
			return api.I64(int64(bits.TrailingZeros64(uint64(a))))
		case api.OpPopcnt:
			return api.I64(int64(bits.OnesCount64(uint64(a))))
		}
	case api.NumTypeF32:
		a := v.F32()
		switch op {
		case api.OpAbs:
			return api.F32(float32(math.Abs(float64(a))))
		case api.OpNeg:
			return api.F32(-a)
		case api.OpCeil:
			return api.F32(float32(math.Ceil(float64(a))))
		case api.OpFloor:
			return api.F32(float32(math.Floor(float64(a))))
		case api.OpTrunc:
			return api.F32(float32(math.Trunc(float64(a))))
		case api.OpNearest:
			return api.F32(moremath.WasmCompatNearestF32(a))
		case api.OpSqrt:
			return api.F32(float32(math.Sqrt(float64(a))))
		}
	case api.NumTypeF64:
		a := v.F64()
		switch op {
		case api.OpAbs:
			return api.F64(math.Abs(a))
		case api.OpNeg:
			return api.F64(-a)
		case api.OpCeil:
			return api.F64(math.Ceil(a))
		case api.OpFloor:
			return api.F64(math.Floor(a))
		case api.OpTrunc:
			return api.F64(math.Trunc(a))
		case api.OpNearest:
			return api.F64(moremath.WasmCompatNearestF64(a))
		case api.OpSqrt:
			return api.F64(math.Sqrt(a))
		}
	}
	panic("interpreter: unreachable unop")
}

// relop applies a comparison, returning an i32 0/1.
func relop(op api.Opcode, t api.NumType, signed bool, lhs, rhs api.Value) api.Value {
	b2i := func(b bool) api.Value {
		if b {
			return api.I32(1)
		}
		return api.I32(0)
	}
	switch t {
	case api.NumTypeI32:
		if signed {
			a, c := lhs.I32(), rhs.I32()
			return b2i(cmp(op, a, c))
		}
		a, c := uint32(lhs.I32()), uint32(rhs.I32())
		return b2i(cmp(op, a, c))
	case api.NumTypeI64:
		if signed {
			a, c := lhs.I64(), rhs.I64()
			return b2i(cmp(op, a, c))
		}
		a, c := uint64(lhs.I64()), uint64(rhs.I64())
		return b2i(cmp(op, a, c))
	case api.NumTypeF32:
		a, c := lhs.F32(), rhs.F32()
		return b2i(cmp(op, a, c))
	case api.NumTypeF64:
		a, c := lhs.F64(), rhs.F64()
		return b2i(cmp(op, a, c))
	}
	panic("interpreter: unreachable relop")
}

type ordered interface {
	~int32 | ~int64 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func cmp[T ordered](op api.Opcode, a, b T) bool {
	switch op {
	case api.OpEq:
		return a == b
	case api.OpNe:
		return a != b
	case api.OpLt:
		return a < b
	case api.OpGt:
		return a > b
	case api.OpLe:
		return a <= b
	case api.OpGe:
		return a >= b
	}
	panic("interpreter: unreachable relop kind")
}

// cvtop applies a conversion instruction: Wrap, Extend, TruncFromF,
// TruncSatFromF, ConvertFromI, Demote, Promote, Reinterpret, SignExtend.
// Trapping conversions return a *Trap via error; the trunc_sat forms
// saturate instead of trapping.
func cvtop(in api.Instr, v api.Value) (api.Value, error) {
	switch in.Op {
	case api.OpWrap:
		return api.I32(int32(v.I64())), nil
	case api.OpExtend:
		if in.Signed {
			return api.I64(int64(v.I32())), nil
		}
		return api.I64(int64(uint32(v.I32()))), nil
	case api.OpSignExtend:
		switch in.Type {
		case api.NumTypeI32:
			x := v.I32()
			switch in.Width {
			case 8:
				return api.I32(int32(int8(x))), nil
			case 16:
				return api.I32(int32(int16(x))), nil
			}
		case api.NumTypeI64:
			x := v.I64()
			switch in.Width {
			case 8:
				return api.I64(int64(int8(x))), nil
			case 16:
				return api.I64(int64(int16(x))), nil
			case 32:
				return api.I64(int64(int32(x))), nil
			}
		}
		panic("interpreter: unreachable sign extend width")
	case api.OpTruncFromF:
		return truncFromF(in.Type, in.FromType, in.Signed, v)
	case api.OpTruncSatFromF:
		return satTruncFromF(in.Type, in.FromType, in.Signed, v), nil
	case api.OpConvertFromI:
		return convertFromI(in.Type, in.FromType, in.Signed, v), nil
	case api.OpDemote:
		return api.F32(float32(v.F64())), nil
	case api.OpPromote:
		return api.F64(float64(v.F32())), nil
	case api.OpReinterpret:
		return reinterpret(in.Type, v), nil
	}
	panic("interpreter: unreachable cvtop")
}

func truncFromF(to, from api.NumType, signed bool, v api.Value) (api.Value, error) {
	f := asF64(from, v)
	// Out-of-range or NaN truncation traps "integer overflow" per the Wasm
	// spec, regardless of which bound or NaN caused it.
	trap := func() (api.Value, error) { return api.Value{}, newTrap(ErrIntegerOverflow) }
	switch to {
	case api.NumTypeI32:
		if signed {
			r, ok := moremath.TruncToI32(f)
			if !ok {
				return trap()
			}
			return api.I32(r), nil
		}
		r, ok := moremath.TruncToU32(f)
		if !ok {
			return trap()
		}
		return api.I32(int32(r)), nil
	case api.NumTypeI64:
		if signed {
			r, ok := moremath.TruncToI64(f)
			if !ok {
				return trap()
			}
			return api.I64(r), nil
		}
		r, ok := moremath.TruncToU64(f)
		if !ok {
			return trap()
		}
		return api.I64(int64(r)), nil
	}
	panic("interpreter: unreachable trunc target")
}

func satTruncFromF(to, from api.NumType, signed bool, v api.Value) api.Value {
	f := asF64(from, v)
	switch to {
	case api.NumTypeI32:
		if signed {
			return api.I32(moremath.SatTruncToI32(f))
		}
		return api.I32(int32(moremath.SatTruncToU32(f)))
	case api.NumTypeI64:
		if signed {
			return api.I64(moremath.SatTruncToI64(f))
		}
		return api.I64(int64(moremath.SatTruncToU64(f)))
	}
	panic("interpreter: unreachable trunc_sat target")
}

func convertFromI(to, from api.NumType, signed bool, v api.Value) api.Value {
	var f float64
	switch from {
	case api.NumTypeI32:
		if signed {
			f = float64(v.I32())
		} else {
			f = float64(uint32(v.I32()))
		}
	case api.NumTypeI64:
		if signed {
			f = float64(v.I64())
		} else {
			f = float64(uint64(v.I64()))
		}
	}
	if to == api.NumTypeF32 {
		return api.F32(float32(f))
	}
	return api.F64(f)
}

func asF64(t api.NumType, v api.Value) float64 {
	if t == api.NumTypeF32 {
		return float64(v.F32())
	}
	return v.F64()
}

func reinterpret(to api.NumType, v api.Value) api.Value {
	switch to {
	case api.NumTypeI32:
		return api.I32(int32(math.Float32bits(v.F32())))
	case api.NumTypeI64:
		return api.I64(int64(math.Float64bits(v.F64())))
	case api.NumTypeF32:
		return api.F32(math.Float32frombits(uint32(v.I32())))
	case api.NumTypeF64:
		return api.F64(math.Float64frombits(uint64(v.I64())))
	}
	panic("interpreter: unreachable reinterpret target")
}

// testop applies Eqz.
func testop(t api.NumType, v api.Value) api.Value {
	var zero bool
	switch t {
	case api.NumTypeI32:
		zero = v.I32() == 0
	case api.NumTypeI64:
		zero = v.I64() == 0
	}
	if zero {
		return api.I32(1)
	}
	return api.I32(0)
}
