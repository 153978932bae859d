package api

import "fmt"

// opcodeNames is indexed by Opcode; the order must track the const block in
// module.go. Names follow the Wasm text-format mnemonic family an opcode
// covers, without the per-type prefix the flat numbering folds away.
var opcodeNames = [...]string{
	OpUnreachable:  "unreachable",
	OpNop:          "nop",
	OpBlock:        "block",
	OpLoop:         "loop",
	OpIf:           "if",
	OpElse:         "else",
	OpEnd:          "end",
	OpElseJump:     "else-jump",
	OpBr:           "br",
	OpBrIf:         "br_if",
	OpBrTable:      "br_table",
	OpReturn:       "return",
	OpCall:         "call",
	OpCallIndirect: "call_indirect",

	OpRefNull:   "ref.null",
	OpRefIsNull: "ref.is_null",
	OpRefFunc:   "ref.func",

	OpDrop:   "drop",
	OpSelect: "select",

	OpLocalGet:  "local.get",
	OpLocalSet:  "local.set",
	OpLocalTee:  "local.tee",
	OpGlobalGet: "global.get",
	OpGlobalSet: "global.set",

	OpTableGet:  "table.get",
	OpTableSet:  "table.set",
	OpTableSize: "table.size",
	OpTableGrow: "table.grow",
	OpTableFill: "table.fill",
	OpTableCopy: "table.copy",
	OpTableInit: "table.init",
	OpElemDrop:  "elem.drop",

	OpLoad:       "load",
	OpLoad8:      "load8",
	OpLoad16:     "load16",
	OpLoad32:     "load32",
	OpStore:      "store",
	OpStore8:     "store8",
	OpStore16:    "store16",
	OpStore32:    "store32",
	OpMemorySize: "memory.size",
	OpMemoryGrow: "memory.grow",
	OpMemoryInit: "memory.init",
	OpDataDrop:   "data.drop",
	OpMemoryCopy: "memory.copy",
	OpMemoryFill: "memory.fill",

	OpConstI32: "i32.const",
	OpConstI64: "i64.const",
	OpConstF32: "f32.const",
	OpConstF64: "f64.const",

	OpEq:  "eq",
	OpNe:  "ne",
	OpEqz: "eqz",
	OpLt:  "lt",
	OpGt:  "gt",
	OpLe:  "le",
	OpGe:  "ge",

	OpAdd:    "add",
	OpSub:    "sub",
	OpMul:    "mul",
	OpClz:    "clz",
	OpCtz:    "ctz",
	OpPopcnt: "popcnt",
	OpDiv:    "div",
	OpRem:    "rem",
	OpAnd:    "and",
	OpOr:     "or",
	OpXor:    "xor",
	OpShl:    "shl",
	OpShr:    "shr",
	OpRotl:   "rotl",
	OpRotr:   "rotr",

	OpAbs:      "abs",
	OpNeg:      "neg",
	OpCeil:     "ceil",
	OpFloor:    "floor",
	OpTrunc:    "trunc",
	OpNearest:  "nearest",
	OpSqrt:     "sqrt",
	OpMin:      "min",
	OpMax:      "max",
	OpCopysign: "copysign",

	OpWrap:          "i32.wrap_i64",
	OpExtend:        "i64.extend_i32",
	OpTruncFromF:    "trunc_from_f",
	OpTruncSatFromF: "trunc_sat_from_f",
	OpConvertFromI:  "convert_from_i",
	OpDemote:        "f32.demote_f64",
	OpPromote:       "f64.promote_f32",
	OpReinterpret:   "reinterpret",
	OpSignExtend:    "extend_n_s",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("opcode(%d)", uint16(op))
}
