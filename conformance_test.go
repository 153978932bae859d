package wasp

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasp-engine/wasp/api"
	"github.com/wasp-engine/wasp/internal/interpreter"
)

// This file is the assert_return/assert_trap conformance suite over the
// supported feature subset: each case is a module built the way the
// external decoder would build it, invoked through the public Engine, with
// the expected results or trap reason checked — the same command shapes the
// official spec test runner drives, minus the .wast parser.

func i64Const(v int64) api.Instr   { return api.Instr{Op: api.OpConstI64, I64: v} }
func f32Const(v float32) api.Instr { return api.Instr{Op: api.OpConstF32, F32: v} }
func f64Const(v float64) api.Instr { return api.Instr{Op: api.OpConstF64, F64: v} }
func localGet(i uint32) api.Instr  { return api.Instr{Op: api.OpLocalGet, LocalIdx: i} }

// runBody instantiates a single-function module around body and invokes it.
func runBody(t *testing.T, ft api.FuncType, locals []api.ValueType, body []api.Instr, args []api.Value) ([]api.Value, error) {
	t.Helper()
	mod := &api.Module{
		Types:   []api.FuncType{ft},
		Funcs:   []api.Func{{TypeIdx: 0, Locals: locals, Body: api.Expr{Instrs: body}}},
		Exports: []api.Export{{Name: "run", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 0}}},
	}
	e := NewEngine("env", api.AllFeatures)
	m, err := e.Instantiate("m", mod, NewModuleImporter())
	require.NoError(t, err)
	return e.Invoke(context.Background(), m, "run", args)
}

func assertReturn(t *testing.T, ft api.FuncType, body []api.Instr, args []api.Value, want []api.Value) {
	t.Helper()
	results, err := runBody(t, ft, nil, body, args)
	require.NoError(t, err)
	require.Equal(t, want, results)
}

func assertTrap(t *testing.T, ft api.FuncType, body []api.Instr, args []api.Value, reason error) {
	t.Helper()
	_, err := runBody(t, ft, nil, body, args)
	var trap *Trap
	require.ErrorAs(t, err, &trap)
	require.ErrorIs(t, trap, reason)
}

var (
	retI32 = api.FuncType{Results: []api.ValueType{api.ValueTypeI32}}
	retI64 = api.FuncType{Results: []api.ValueType{api.ValueTypeI64}}
	retF32 = api.FuncType{Results: []api.ValueType{api.ValueTypeF32}}
	retF64 = api.FuncType{Results: []api.ValueType{api.ValueTypeF64}}
)

func TestConformanceI32Arithmetic(t *testing.T) {
	bin := func(op api.Opcode, signed bool, a, b int32) []api.Instr {
		return []api.Instr{i32Const(a), i32Const(b), {Op: op, Type: api.NumTypeI32, Signed: signed}}
	}
	tests := []struct {
		name string
		body []api.Instr
		want int32
	}{
		{"add wraps", bin(api.OpAdd, false, math.MaxInt32, 1), math.MinInt32},
		{"sub", bin(api.OpSub, false, 10, 3), 7},
		{"mul wraps", bin(api.OpMul, false, 0x10000, 0x10000), 0},
		{"div_s", bin(api.OpDiv, true, -7, 2), -3},
		{"div_u treats operands unsigned", bin(api.OpDiv, false, -1, 2), math.MaxInt32},
		{"rem_s", bin(api.OpRem, true, -7, 2), -1},
		{"rem_s MIN/-1 is 0, not a trap", bin(api.OpRem, true, math.MinInt32, -1), 0},
		{"rem_u", bin(api.OpRem, false, 7, 3), 1},
		{"and", bin(api.OpAnd, false, 0b1100, 0b1010), 0b1000},
		{"or", bin(api.OpOr, false, 0b1100, 0b1010), 0b1110},
		{"xor", bin(api.OpXor, false, 0b1100, 0b1010), 0b0110},
		{"shl masks count", bin(api.OpShl, false, 1, 33), 2},
		{"shr_s keeps sign", bin(api.OpShr, true, -8, 1), -4},
		{"shr_u shifts in zeros", bin(api.OpShr, false, -8, 1), 0x7ffffffc},
		{"rotl", bin(api.OpRotl, false, int32(-0x80000000), 1), 1},
		{"rotr", bin(api.OpRotr, false, 1, 1), int32(-0x80000000)},
		{"clz", []api.Instr{i32Const(1), {Op: api.OpClz, Type: api.NumTypeI32}}, 31},
		{"ctz", []api.Instr{i32Const(8), {Op: api.OpCtz, Type: api.NumTypeI32}}, 3},
		{"popcnt", []api.Instr{i32Const(0b1011), {Op: api.OpPopcnt, Type: api.NumTypeI32}}, 3},
		{"eqz", []api.Instr{i32Const(0), {Op: api.OpEqz, Type: api.NumTypeI32}}, 1},
		{"lt_s", bin(api.OpLt, true, -1, 0), 1},
		{"lt_u treats -1 as max", bin(api.OpLt, false, -1, 0), 0},
		{"ge_u", bin(api.OpGe, false, -1, 0), 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assertReturn(t, retI32, tc.body, nil, []api.Value{api.I32(tc.want)})
		})
	}

	t.Run("div_s by zero traps", func(t *testing.T) {
		assertTrap(t, retI32, bin(api.OpDiv, true, 1, 0), nil, interpreter.ErrIntegerDivideZero)
	})
	t.Run("div_s MIN/-1 traps", func(t *testing.T) {
		assertTrap(t, retI32, bin(api.OpDiv, true, math.MinInt32, -1), nil, interpreter.ErrIntegerOverflow)
	})
}

func TestConformanceI64Arithmetic(t *testing.T) {
	bin := func(op api.Opcode, signed bool, a, b int64) []api.Instr {
		return []api.Instr{i64Const(a), i64Const(b), {Op: op, Type: api.NumTypeI64, Signed: signed}}
	}
	tests := []struct {
		name string
		body []api.Instr
		want int64
	}{
		{"add wraps", bin(api.OpAdd, false, math.MaxInt64, 1), math.MinInt64},
		{"div_u", bin(api.OpDiv, false, -1, 2), math.MaxInt64},
		{"rem_s MIN/-1 is 0", bin(api.OpRem, true, math.MinInt64, -1), 0},
		{"shl masks count mod 64", bin(api.OpShl, false, 1, 65), 2},
		{"rotr", bin(api.OpRotr, false, 1, 1), math.MinInt64},
		{"clz", []api.Instr{i64Const(1), {Op: api.OpClz, Type: api.NumTypeI64}}, 63},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assertReturn(t, retI64, tc.body, nil, []api.Value{api.I64(tc.want)})
		})
	}

	t.Run("div by zero traps", func(t *testing.T) {
		assertTrap(t, retI64, bin(api.OpDiv, false, 1, 0), nil, interpreter.ErrIntegerDivideZero)
	})
	t.Run("i64 comparison produces i32", func(t *testing.T) {
		body := []api.Instr{i64Const(-1), i64Const(0), {Op: api.OpLt, Type: api.NumTypeI64, Signed: true}}
		assertReturn(t, retI32, body, nil, []api.Value{api.I32(1)})
	})
}

func TestConformanceFloatOps(t *testing.T) {
	negZero32 := float32(math.Copysign(0, -1))

	t.Run("f32.min NaN propagates", func(t *testing.T) {
		body := []api.Instr{f32Const(float32(math.NaN())), f32Const(1), {Op: api.OpMin, Type: api.NumTypeF32}}
		results, err := runBody(t, retF32, nil, body, nil)
		require.NoError(t, err)
		require.True(t, math.IsNaN(float64(results[0].F32())))
	})
	t.Run("f32.max NaN propagates", func(t *testing.T) {
		body := []api.Instr{f32Const(1), f32Const(float32(math.NaN())), {Op: api.OpMax, Type: api.NumTypeF32}}
		results, err := runBody(t, retF32, nil, body, nil)
		require.NoError(t, err)
		require.True(t, math.IsNaN(float64(results[0].F32())))
	})
	t.Run("f32.min orders signed zeros", func(t *testing.T) {
		body := []api.Instr{f32Const(0), f32Const(negZero32), {Op: api.OpMin, Type: api.NumTypeF32}}
		results, err := runBody(t, retF32, nil, body, nil)
		require.NoError(t, err)
		require.True(t, math.Signbit(float64(results[0].F32())))
	})
	t.Run("f64.nearest ties to even", func(t *testing.T) {
		body := []api.Instr{f64Const(2.5), {Op: api.OpNearest, Type: api.NumTypeF64}}
		assertReturn(t, retF64, body, nil, []api.Value{api.F64(2)})
	})
	t.Run("f64.copysign", func(t *testing.T) {
		body := []api.Instr{f64Const(3), f64Const(-1), {Op: api.OpCopysign, Type: api.NumTypeF64}}
		assertReturn(t, retF64, body, nil, []api.Value{api.F64(-3)})
	})
	t.Run("f32.div by zero is Inf, not a trap", func(t *testing.T) {
		body := []api.Instr{f32Const(1), f32Const(0), {Op: api.OpDiv, Type: api.NumTypeF32}}
		assertReturn(t, retF32, body, nil, []api.Value{api.F32(float32(math.Inf(1)))})
	})
	t.Run("f64.sqrt of negative is NaN", func(t *testing.T) {
		body := []api.Instr{f64Const(-1), {Op: api.OpSqrt, Type: api.NumTypeF64}}
		results, err := runBody(t, retF64, nil, body, nil)
		require.NoError(t, err)
		require.True(t, math.IsNaN(results[0].F64()))
	})
}

func TestConformanceConversions(t *testing.T) {
	t.Run("i32.wrap_i64", func(t *testing.T) {
		body := []api.Instr{i64Const(0x1_0000_0001), {Op: api.OpWrap}}
		assertReturn(t, retI32, body, nil, []api.Value{api.I32(1)})
	})
	t.Run("i64.extend_i32_s", func(t *testing.T) {
		body := []api.Instr{i32Const(-1), {Op: api.OpExtend, Signed: true}}
		assertReturn(t, retI64, body, nil, []api.Value{api.I64(-1)})
	})
	t.Run("i64.extend_i32_u", func(t *testing.T) {
		body := []api.Instr{i32Const(-1), {Op: api.OpExtend}}
		assertReturn(t, retI64, body, nil, []api.Value{api.I64(0xffffffff)})
	})
	t.Run("i32.trunc_f32_s traps on NaN", func(t *testing.T) {
		body := []api.Instr{f32Const(float32(math.NaN())), {Op: api.OpTruncFromF, Type: api.NumTypeI32, FromType: api.NumTypeF32, Signed: true}}
		assertTrap(t, retI32, body, nil, interpreter.ErrIntegerOverflow)
	})
	t.Run("i32.trunc_f64_u traps below zero", func(t *testing.T) {
		body := []api.Instr{f64Const(-1), {Op: api.OpTruncFromF, Type: api.NumTypeI32, FromType: api.NumTypeF64}}
		assertTrap(t, retI32, body, nil, interpreter.ErrIntegerOverflow)
	})
	t.Run("i32.trunc_sat_f32_s NaN is 0", func(t *testing.T) {
		body := []api.Instr{f32Const(float32(math.NaN())), {Op: api.OpTruncSatFromF, Type: api.NumTypeI32, FromType: api.NumTypeF32, Signed: true}}
		assertReturn(t, retI32, body, nil, []api.Value{api.I32(0)})
	})
	t.Run("i32.trunc_sat_f32_s +Inf clamps to max", func(t *testing.T) {
		body := []api.Instr{f32Const(float32(math.Inf(1))), {Op: api.OpTruncSatFromF, Type: api.NumTypeI32, FromType: api.NumTypeF32, Signed: true}}
		assertReturn(t, retI32, body, nil, []api.Value{api.I32(math.MaxInt32)})
	})
	t.Run("i64.trunc_sat_f64_u -Inf clamps to 0", func(t *testing.T) {
		body := []api.Instr{f64Const(math.Inf(-1)), {Op: api.OpTruncSatFromF, Type: api.NumTypeI64, FromType: api.NumTypeF64}}
		assertReturn(t, retI64, body, nil, []api.Value{api.I64(0)})
	})
	t.Run("f64.convert_i32_u", func(t *testing.T) {
		body := []api.Instr{i32Const(-1), {Op: api.OpConvertFromI, Type: api.NumTypeF64, FromType: api.NumTypeI32}}
		assertReturn(t, retF64, body, nil, []api.Value{api.F64(4294967295)})
	})
	t.Run("demote then promote", func(t *testing.T) {
		body := []api.Instr{f64Const(1.5), {Op: api.OpDemote}, {Op: api.OpPromote}}
		assertReturn(t, retF64, body, nil, []api.Value{api.F64(1.5)})
	})
	t.Run("reinterpret round trip", func(t *testing.T) {
		body := []api.Instr{f64Const(6.25), {Op: api.OpReinterpret, Type: api.NumTypeI64}, {Op: api.OpReinterpret, Type: api.NumTypeF64}}
		assertReturn(t, retF64, body, nil, []api.Value{api.F64(6.25)})
	})
	t.Run("i32.extend8_s", func(t *testing.T) {
		body := []api.Instr{i32Const(0x80), {Op: api.OpSignExtend, Type: api.NumTypeI32, Width: 8}}
		assertReturn(t, retI32, body, nil, []api.Value{api.I32(-128)})
	})
	t.Run("i64.extend16_s", func(t *testing.T) {
		body := []api.Instr{i64Const(0x8000), {Op: api.OpSignExtend, Type: api.NumTypeI64, Width: 16}}
		assertReturn(t, retI64, body, nil, []api.Value{api.I64(-32768)})
	})
}

func TestConformanceBrTable(t *testing.T) {
	// block $2 { block $1 { block $0 { br_table 0 1 default=2 }
	//   10 return } 20 return } 30
	body := []api.Instr{
		{Op: api.OpBlock, Block: api.BlockType{Kind: api.BlockTypeEmpty}},
		{Op: api.OpBlock, Block: api.BlockType{Kind: api.BlockTypeEmpty}},
		{Op: api.OpBlock, Block: api.BlockType{Kind: api.BlockTypeEmpty}},
		localGet(0),
		{Op: api.OpBrTable, Labels: []uint32{0, 1}, Default: 2},
		{Op: api.OpEnd},
		i32Const(10), {Op: api.OpReturn},
		{Op: api.OpEnd},
		i32Const(20), {Op: api.OpReturn},
		{Op: api.OpEnd},
		i32Const(30),
	}
	ft := api.FuncType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}

	tests := []struct {
		selector int32
		want     int32
	}{
		{0, 10},
		{1, 20},
		{2, 30},         // first out-of-range index takes the default.
		{100, 30},       // far out of range too.
		{-1, 30},        // negative selector is a huge unsigned index.
	}
	for _, tc := range tests {
		assertReturn(t, ft, body, []api.Value{api.I32(tc.selector)}, []api.Value{api.I32(tc.want)})
	}
}

func TestConformanceLoopWithParameter(t *testing.T) {
	// A loop whose label carries a parameter: the countdown value stays on
	// the operand stack across iterations, so a branch back to the loop has
	// to preserve the label's parameter arity, not its result arity.
	typeIdx := uint32(1)
	mod := &api.Module{
		Types: []api.FuncType{
			{Results: []api.ValueType{api.ValueTypeI32}},
			{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		},
		Funcs: []api.Func{{
			TypeIdx: 0,
			Locals:  []api.ValueType{api.ValueTypeI32},
			Body: api.Expr{Instrs: []api.Instr{
				i32Const(3),
				{Op: api.OpLoop, Block: api.BlockType{Kind: api.BlockTypeIndex, TypeIdx: typeIdx}},
				i32Const(1),
				{Op: api.OpSub, Type: api.NumTypeI32},
				{Op: api.OpLocalTee, LocalIdx: 0},
				localGet(0),
				i32Const(0),
				{Op: api.OpGt, Type: api.NumTypeI32, Signed: true},
				{Op: api.OpBrIf, LabelIdx: 0},
				{Op: api.OpEnd},
			}},
		}},
		Exports: []api.Export{{Name: "run", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 0}}},
	}

	e := NewEngine("env", api.AllFeatures)
	m, err := e.Instantiate("m", mod, NewModuleImporter())
	require.NoError(t, err)
	results, err := e.Invoke(context.Background(), m, "run", nil)
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(0)}, results)
}

func TestConformanceSelectAndDrop(t *testing.T) {
	t.Run("select picks first when nonzero", func(t *testing.T) {
		body := []api.Instr{i32Const(7), i32Const(8), i32Const(1), {Op: api.OpSelect}}
		assertReturn(t, retI32, body, nil, []api.Value{api.I32(7)})
	})
	t.Run("select picks second when zero", func(t *testing.T) {
		body := []api.Instr{i32Const(7), i32Const(8), i32Const(0), {Op: api.OpSelect}}
		assertReturn(t, retI32, body, nil, []api.Value{api.I32(8)})
	})
	t.Run("drop discards exactly one value", func(t *testing.T) {
		body := []api.Instr{i32Const(1), i32Const(2), {Op: api.OpDrop}}
		assertReturn(t, retI32, body, nil, []api.Value{api.I32(1)})
	})
	t.Run("unreachable traps", func(t *testing.T) {
		assertTrap(t, retI32, []api.Instr{{Op: api.OpUnreachable}}, nil, interpreter.ErrUnreachable)
	})
}

func TestConformanceGlobals(t *testing.T) {
	mod := &api.Module{
		Types: []api.FuncType{{Results: []api.ValueType{api.ValueTypeI32}}},
		Globals: []api.Global{
			{Type: api.GlobalType{ValType: api.ValueTypeI32, Mut: api.Mutable}, Init: api.Expr{Instrs: []api.Instr{i32Const(10)}}},
			{Type: api.GlobalType{ValType: api.ValueTypeI32, Mut: api.Immutable}, Init: api.Expr{Instrs: []api.Instr{i32Const(100)}}},
		},
		Funcs: []api.Func{{TypeIdx: 0, Body: api.Expr{Instrs: []api.Instr{
			{Op: api.OpGlobalGet, GlobalIdx: 0},
			i32Const(1),
			addI32(),
			{Op: api.OpGlobalSet, GlobalIdx: 0},
			{Op: api.OpGlobalGet, GlobalIdx: 0},
			{Op: api.OpGlobalGet, GlobalIdx: 1},
			addI32(),
		}}}},
		Exports: []api.Export{
			{Name: "bump", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 0}},
			{Name: "counter", Desc: api.ExportDesc{Kind: api.ExternKindGlobal, Index: 0}},
		},
	}

	e := NewEngine("env", api.AllFeatures)
	m, err := e.Instantiate("m", mod, NewModuleImporter())
	require.NoError(t, err)

	results, err := e.Invoke(context.Background(), m, "bump", nil)
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(111)}, results)

	// Mutation persists across invocations.
	results, err = e.Invoke(context.Background(), m, "bump", nil)
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(112)}, results)

	v, err := m.ExportedGlobal("counter")
	require.NoError(t, err)
	require.Equal(t, api.I32(12), v)

	_, err = m.ExportedGlobal("missing")
	require.ErrorIs(t, err, ErrGlobalNotFound)
}

// memoryModule builds a module with one 1-page memory, a passive "abc"
// data segment, and exports exercising loads, stores and the bulk memory
// instructions.
func memoryModule() *api.Module {
	p2i := api.FuncType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	p3 := api.FuncType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}}
	p1i := api.FuncType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	none := api.FuncType{}
	retI := api.FuncType{Results: []api.ValueType{api.ValueTypeI32}}

	return &api.Module{
		Types: []api.FuncType{p2i, p3, p1i, none, retI},
		Mems:  []api.MemoryType{{Limits: api.Limits{Min: 1, Max: 2}}},
		Datas: []api.Data{{Init: []byte("abc"), Mode: api.DataModePassive}},
		Funcs: []api.Func{
			// poke_peek8(addr, v) -> i32: store8 then load8_u.
			{TypeIdx: 0, Body: api.Expr{Instrs: []api.Instr{
				localGet(0), localGet(1), {Op: api.OpStore8, Type: api.NumTypeI32},
				localGet(0), {Op: api.OpLoad8, Type: api.NumTypeI32},
			}}},
			// load8_s(addr) -> i32: sign-extending narrow load.
			{TypeIdx: 2, Body: api.Expr{Instrs: []api.Instr{
				localGet(0), {Op: api.OpLoad8, Type: api.NumTypeI32, Signed: true},
			}}},
			// load32(addr) -> i32 with a static offset of 4.
			{TypeIdx: 2, Body: api.Expr{Instrs: []api.Instr{
				localGet(0), {Op: api.OpLoad, Type: api.NumTypeI32, MemArg: api.MemArg{Offset: 4}},
			}}},
			// store32(addr, v).
			{TypeIdx: 0, Body: api.Expr{Instrs: []api.Instr{
				localGet(0), localGet(1), {Op: api.OpStore, Type: api.NumTypeI32},
				localGet(0), {Op: api.OpLoad, Type: api.NumTypeI32},
			}}},
			// fill(d, v, n).
			{TypeIdx: 1, Body: api.Expr{Instrs: []api.Instr{
				localGet(0), localGet(1), localGet(2), {Op: api.OpMemoryFill},
			}}},
			// copy(d, s, n).
			{TypeIdx: 1, Body: api.Expr{Instrs: []api.Instr{
				localGet(0), localGet(1), localGet(2), {Op: api.OpMemoryCopy},
			}}},
			// init(d, s, n) from the passive segment.
			{TypeIdx: 1, Body: api.Expr{Instrs: []api.Instr{
				localGet(0), localGet(1), localGet(2), {Op: api.OpMemoryInit, DataIdx: 0},
			}}},
			// drop_data().
			{TypeIdx: 3, Body: api.Expr{Instrs: []api.Instr{{Op: api.OpDataDrop, DataIdx: 0}}}},
			// size() -> i32.
			{TypeIdx: 4, Body: api.Expr{Instrs: []api.Instr{{Op: api.OpMemorySize}}}},
			// grow(n) -> i32.
			{TypeIdx: 2, Body: api.Expr{Instrs: []api.Instr{localGet(0), {Op: api.OpMemoryGrow}}}},
		},
		Exports: []api.Export{
			{Name: "poke_peek8", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 0}},
			{Name: "load8_s", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 1}},
			{Name: "load_off4", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 2}},
			{Name: "store_load", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 3}},
			{Name: "fill", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 4}},
			{Name: "copy", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 5}},
			{Name: "init", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 6}},
			{Name: "drop_data", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 7}},
			{Name: "size", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 8}},
			{Name: "grow", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 9}},
			{Name: "mem", Desc: api.ExportDesc{Kind: api.ExternKindMemory, Index: 0}},
		},
	}
}

func TestConformanceMemoryOps(t *testing.T) {
	const page = 65536
	ctx := context.Background()
	e := NewEngine("env", api.AllFeatures)
	m, err := e.Instantiate("m", memoryModule(), NewModuleImporter())
	require.NoError(t, err)

	invoke := func(name string, args ...api.Value) ([]api.Value, error) {
		return e.Invoke(ctx, m, name, args)
	}
	requireTrap := func(err error, reason error) {
		t.Helper()
		var trap *Trap
		require.ErrorAs(t, err, &trap)
		require.ErrorIs(t, trap, reason)
	}

	// Store/load round trips, including sign extension on the narrow load.
	results, err := invoke("poke_peek8", api.I32(5), api.I32(0xff))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(0xff)}, results)

	results, err = invoke("load8_s", api.I32(5))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(-1)}, results)

	results, err = invoke("store_load", api.I32(16), api.I32(-123456))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(-123456)}, results)

	// The static offset immediate shifts the effective address.
	results, err = invoke("load_off4", api.I32(12))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(-123456)}, results)

	// Loads at the very edge trap.
	_, err = invoke("load_off4", api.I32(page-4))
	requireTrap(err, interpreter.ErrOutOfBoundsMemory)

	mem, err := m.ExportedMemory("mem")
	require.NoError(t, err)

	// memory.fill writes v over [d, d+n).
	_, err = invoke("fill", api.I32(100), api.I32(7), api.I32(3))
	require.NoError(t, err)
	b, ok := mem.Read(100, 3)
	require.True(t, ok)
	require.Equal(t, []byte{7, 7, 7}, b)

	// Bound check precedes the n=0 shortcut: d past memory traps even with
	// n=0, while d exactly at memory length does not.
	_, err = invoke("fill", api.I32(page+1), api.I32(0), api.I32(0))
	requireTrap(err, interpreter.ErrOutOfBoundsMemory)
	_, err = invoke("fill", api.I32(page), api.I32(0), api.I32(0))
	require.NoError(t, err)

	// Overlapping memory.copy is memmove, both directions.
	_, err = invoke("init", api.I32(200), api.I32(0), api.I32(3)) // "abc" at 200
	require.NoError(t, err)
	_, err = invoke("copy", api.I32(201), api.I32(200), api.I32(3)) // forward overlap
	require.NoError(t, err)
	b, ok = mem.Read(200, 4)
	require.True(t, ok)
	require.Equal(t, "aabc", string(b))

	// memory.init past the segment traps.
	_, err = invoke("init", api.I32(0), api.I32(0), api.I32(4))
	requireTrap(err, interpreter.ErrOutOfBoundsMemory)

	// After data.drop the segment is zero-length: n=0 still succeeds, any
	// positive n traps, and dropping again is a no-op.
	_, err = invoke("drop_data")
	require.NoError(t, err)
	_, err = invoke("init", api.I32(0), api.I32(0), api.I32(0))
	require.NoError(t, err)
	_, err = invoke("init", api.I32(0), api.I32(0), api.I32(1))
	requireTrap(err, interpreter.ErrOutOfBoundsMemory)
	_, err = invoke("drop_data")
	require.NoError(t, err)

	// memory.grow within and past the declared max of 2 pages.
	results, err = invoke("size")
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(1)}, results)
	results, err = invoke("grow", api.I32(1))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(1)}, results)
	results, err = invoke("grow", api.I32(1))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(-1)}, results)
	results, err = invoke("size")
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(2)}, results)
}

// tableModule builds a module with a 4-slot funcref table, two constant
// functions, a passive element segment, and exports for every table
// instruction plus call_indirect.
func tableModule() *api.Module {
	retI := api.FuncType{Results: []api.ValueType{api.ValueTypeI32}}
	p1i := api.FuncType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	p2 := api.FuncType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}}
	p3 := api.FuncType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}}
	none := api.FuncType{}
	p2i := api.FuncType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}

	return &api.Module{
		Types:  []api.FuncType{retI, p1i, p2, p3, none, p2i},
		Tables: []api.TableType{{RefType: api.RefTypeFuncref, Limits: api.Limits{Min: 4, Max: 8}}},
		Elems: []api.Elem{{
			Type: api.RefTypeFuncref,
			Init: []api.Expr{
				{Instrs: []api.Instr{{Op: api.OpRefFunc, FuncIdx: 0}}},
				{Instrs: []api.Instr{{Op: api.OpRefFunc, FuncIdx: 1}}},
			},
			Mode: api.ElemModePassive,
		}},
		Funcs: []api.Func{
			{TypeIdx: 0, Body: api.Expr{Instrs: []api.Instr{i32Const(42)}}}, // 0
			{TypeIdx: 0, Body: api.Expr{Instrs: []api.Instr{i32Const(13)}}}, // 1
			// call(i) -> i32: call_indirect under type retI.
			{TypeIdx: 1, Body: api.Expr{Instrs: []api.Instr{
				localGet(0), {Op: api.OpCallIndirect, TypeIdx: 0, TableIdx: 0},
			}}},
			// call_wrong_type(i) -> i32: expects (i32,i32)->i32.
			{TypeIdx: 1, Body: api.Expr{Instrs: []api.Instr{
				i32Const(0), i32Const(0),
				localGet(0), {Op: api.OpCallIndirect, TypeIdx: 5, TableIdx: 0},
			}}},
			// set_null(i): table.set with a null ref.
			{TypeIdx: 1, Body: api.Expr{Instrs: []api.Instr{
				localGet(0), {Op: api.OpRefNull, RefType: api.RefTypeFuncref}, {Op: api.OpTableSet, TableIdx: 0},
				localGet(0), {Op: api.OpTableGet, TableIdx: 0}, {Op: api.OpRefIsNull},
			}}},
			// init(d, s, n) from the passive element segment.
			{TypeIdx: 3, Body: api.Expr{Instrs: []api.Instr{
				localGet(0), localGet(1), localGet(2), {Op: api.OpTableInit, TableIdx: 0, ElemIdx: 0},
			}}},
			// copy(d, s, n) within the one table.
			{TypeIdx: 3, Body: api.Expr{Instrs: []api.Instr{
				localGet(0), localGet(1), localGet(2), {Op: api.OpTableCopy, TableIdx: 0, TableIdx2: 0},
			}}},
			// fill(i, n) with func 0's ref.
			{TypeIdx: 2, Body: api.Expr{Instrs: []api.Instr{
				localGet(0), {Op: api.OpRefFunc, FuncIdx: 0}, localGet(1), {Op: api.OpTableFill, TableIdx: 0},
			}}},
			// size() -> i32.
			{TypeIdx: 0, Body: api.Expr{Instrs: []api.Instr{{Op: api.OpTableSize, TableIdx: 0}}}},
			// grow(n) -> i32, initializing new slots with func 1's ref.
			{TypeIdx: 1, Body: api.Expr{Instrs: []api.Instr{
				{Op: api.OpRefFunc, FuncIdx: 1}, localGet(0), {Op: api.OpTableGrow, TableIdx: 0},
			}}},
			// drop_elem().
			{TypeIdx: 4, Body: api.Expr{Instrs: []api.Instr{{Op: api.OpElemDrop, ElemIdx: 0}}}},
		},
		Exports: []api.Export{
			{Name: "call", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 2}},
			{Name: "call_wrong_type", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 3}},
			{Name: "set_null", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 4}},
			{Name: "init", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 5}},
			{Name: "copy", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 6}},
			{Name: "fill", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 7}},
			{Name: "size", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 8}},
			{Name: "grow", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 9}},
			{Name: "drop_elem", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 10}},
			{Name: "table", Desc: api.ExportDesc{Kind: api.ExternKindTable, Index: 0}},
		},
	}
}

func TestConformanceTableOps(t *testing.T) {
	ctx := context.Background()
	e := NewEngine("env", api.AllFeatures)
	m, err := e.Instantiate("m", tableModule(), NewModuleImporter())
	require.NoError(t, err)

	invoke := func(name string, args ...api.Value) ([]api.Value, error) {
		return e.Invoke(ctx, m, name, args)
	}
	requireTrap := func(err error, reason error) {
		t.Helper()
		var trap *Trap
		require.ErrorAs(t, err, &trap)
		require.ErrorIs(t, trap, reason)
	}

	// Uninitialized slots hold null: calling one traps.
	_, err = invoke("call", api.I32(0))
	requireTrap(err, interpreter.ErrNullReference)

	// table.init [f0, f1] at 0, then the calls route through the table.
	_, err = invoke("init", api.I32(0), api.I32(0), api.I32(2))
	require.NoError(t, err)
	results, err := invoke("call", api.I32(0))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(42)}, results)
	results, err = invoke("call", api.I32(1))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(13)}, results)

	// Out-of-bounds index and signature mismatch trap distinctly.
	_, err = invoke("call", api.I32(100))
	requireTrap(err, interpreter.ErrOutOfBoundsTable)
	_, err = invoke("call_wrong_type", api.I32(0))
	requireTrap(err, interpreter.ErrIndirectCallType)

	// table.copy shifts f1's ref into slot 2.
	_, err = invoke("copy", api.I32(2), api.I32(1), api.I32(1))
	require.NoError(t, err)
	results, err = invoke("call", api.I32(2))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(13)}, results)

	// table.set to null, observed via table.get + ref.is_null.
	results, err = invoke("set_null", api.I32(2))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(1)}, results)

	// table.fill repopulates slots 2-3 with f0.
	_, err = invoke("fill", api.I32(2), api.I32(2))
	require.NoError(t, err)
	results, err = invoke("call", api.I32(3))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(42)}, results)

	// Filling past the current size traps, even partially.
	_, err = invoke("fill", api.I32(3), api.I32(2))
	requireTrap(err, interpreter.ErrOutOfBoundsTable)

	// table.grow within the max of 8 succeeds and returns the old size;
	// past it fails with -1.
	results, err = invoke("size")
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(4)}, results)
	results, err = invoke("grow", api.I32(2))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(4)}, results)
	results, err = invoke("call", api.I32(5)) // new slots carry f1.
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(13)}, results)
	results, err = invoke("grow", api.I32(100))
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(-1)}, results)

	// elem.drop empties the segment; table.init from it then traps for n>0.
	_, err = invoke("drop_elem")
	require.NoError(t, err)
	_, err = invoke("init", api.I32(0), api.I32(0), api.I32(1))
	requireTrap(err, interpreter.ErrOutOfBoundsTable)

	// The exported table snapshot reflects the final state.
	refs, err := m.ExportedTable("table")
	require.NoError(t, err)
	require.Len(t, refs, 6)
	require.Equal(t, api.RefKindFunc, refs[0].Kind)

	_, err = m.ExportedTable("missing")
	require.ErrorIs(t, err, ErrTableNotFound)
}

func TestFeatureGatingRejectsDisabledExtensions(t *testing.T) {
	signExtendMod := func() *api.Module {
		return &api.Module{
			Types: []api.FuncType{{Results: []api.ValueType{api.ValueTypeI32}}},
			Funcs: []api.Func{{TypeIdx: 0, Body: api.Expr{Instrs: []api.Instr{
				i32Const(0x80), {Op: api.OpSignExtend, Type: api.NumTypeI32, Width: 8},
			}}}},
			Exports: []api.Export{{Name: "run", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 0}}},
		}
	}

	e := NewEngine("env", api.FeaturesMVP)
	_, err := e.Instantiate("m", signExtendMod(), NewModuleImporter())
	require.Error(t, err)
	require.Contains(t, err.Error(), "sign-extension-ops")

	// The same module instantiates fine with the extension enabled.
	e = NewEngine("env", api.FeaturesMVP|api.FeatureSignExtensionOps)
	m, err := e.Instantiate("m", signExtendMod(), NewModuleImporter())
	require.NoError(t, err)
	results, err := e.Invoke(context.Background(), m, "run", nil)
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(-128)}, results)
}

func TestEngineRelease(t *testing.T) {
	ctx := context.Background()
	counting := func(n int32) *api.Module {
		return &api.Module{
			Types:   []api.FuncType{{Results: []api.ValueType{api.ValueTypeI32}}},
			Globals: []api.Global{{Type: api.GlobalType{ValType: api.ValueTypeI32, Mut: api.Immutable}, Init: api.Expr{Instrs: []api.Instr{i32Const(n)}}}},
			Funcs:   []api.Func{{TypeIdx: 0, Body: api.Expr{Instrs: []api.Instr{{Op: api.OpGlobalGet, GlobalIdx: 0}}}}},
			Exports: []api.Export{{Name: "get", Desc: api.ExportDesc{Kind: api.ExternKindFunc, Index: 0}}},
		}
	}

	e := NewEngine("env", api.AllFeatures)
	a, err := e.Instantiate("a", counting(1), NewModuleImporter())
	require.NoError(t, err)
	b, err := e.Instantiate("b", counting(2), NewModuleImporter())
	require.NoError(t, err)

	e.Release(a)

	// b is untouched, and a's name is free for a fresh instantiation that
	// reuses the freed Store slots.
	results, err := e.Invoke(ctx, b, "get", nil)
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(2)}, results)

	a2, err := e.Instantiate("a", counting(3), NewModuleImporter())
	require.NoError(t, err)
	results, err = e.Invoke(ctx, a2, "get", nil)
	require.NoError(t, err)
	require.Equal(t, []api.Value{api.I32(3)}, results)
}

func TestInvokeUnknownExportReportsFuncNotFound(t *testing.T) {
	mod := &api.Module{Types: []api.FuncType{{}}}
	e := NewEngine("env", api.AllFeatures)
	m, err := e.Instantiate("m", mod, NewModuleImporter())
	require.NoError(t, err)
	_, err = e.Invoke(context.Background(), m, "nope", nil)
	require.ErrorIs(t, err, ErrFuncNotFound)
}
