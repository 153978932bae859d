package api

// ValueType is the binary encoding of a Wasm value type
// (https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-valtype),
// extended with the reference-types proposal's funcref/externref.
type ValueType = byte

const (
	ValueTypeI32       ValueType = 0x7f
	ValueTypeI64       ValueType = 0x7e
	ValueTypeF32       ValueType = 0x7d
	ValueTypeF64       ValueType = 0x7c
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f
)

// RefType is the subset of ValueType that denotes a reference type.
type RefType = byte

const (
	RefTypeFuncref   RefType = ValueTypeFuncref
	RefTypeExternref RefType = ValueTypeExternref
)

// FuncType is a function signature: an ordered list of parameter types and
// an ordered list of result types.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// Limits bounds the size of a table or memory, in table-elements or
// 64KiB pages respectively. Max is -1 when unbounded.
type Limits struct {
	Min uint32
	Max int64 // -1 means unbounded.
}

// HasMax reports whether the limits declare an upper bound.
func (l Limits) HasMax() bool { return l.Max >= 0 }

// Mutability of a global.
type Mutability byte

const (
	Immutable Mutability = iota
	Mutable
)

// GlobalType is a global's declared value type and mutability.
type GlobalType struct {
	ValType ValueType
	Mut     Mutability
}

// TableType is a table's element reftype and size limits.
type TableType struct {
	RefType RefType
	Limits  Limits
}

// MemoryType is a memory's size limits, in pages.
type MemoryType struct {
	Limits Limits
}

// BlockType describes the signature of a structured-control-flow block.
// Empty means no params, no results. ValType means no params, a single
// result of the given type. TypeIndex refers to Module.Types for an
// arbitrary param/result signature (the multi-value encoding of block
// types).
type BlockType struct {
	Kind     BlockTypeKind
	ValType  ValueType
	TypeIdx  uint32
}

type BlockTypeKind byte

const (
	BlockTypeEmpty BlockTypeKind = iota
	BlockTypeValue
	BlockTypeIndex
)

// FuncType resolves a BlockType to a concrete signature given the module's
// type section (needed for arbitrary param/result blocks).
func (bt BlockType) FuncType(types []FuncType) FuncType {
	switch bt.Kind {
	case BlockTypeEmpty:
		return FuncType{}
	case BlockTypeValue:
		return FuncType{Results: []ValueType{bt.ValType}}
	case BlockTypeIndex:
		return types[bt.TypeIdx]
	default:
		panic("api: unknown block type kind")
	}
}

// MemArg is the alignment hint and offset immediate of a load/store
// instruction. Alignment is advisory only — the interpreter doesn't trap on
// misalignment, consistent with the Wasm spec.
type MemArg struct {
	Align  uint32
	Offset uint32
}

// Opcode identifies an instruction. It is a flat numbering counted up from
// 0, not the binary encoding: the 0xFC-prefixed bulk-memory/table/
// saturating-truncation instructions and the 0xC0-0xC4 sign-extension
// instructions sit in the same sequence as every other opcode, and one
// Opcode covers all operand types of an instruction family (see Instr.Type).
// A real decoder is expected to produce this normalized numbering rather
// than the raw one- or two-byte encodings.
type Opcode uint16

const (
	OpUnreachable Opcode = iota
	OpNop
	OpBlock
	OpLoop
	OpIf
	OpElse      // decoder-only; internal/ir rewrites this in place to OpElseJump.
	OpEnd       // closes the innermost Block/Loop/If; pops its label.
	OpElseJump  // lowered form of OpElse: pops the then-branch's label and jumps past the matching OpEnd.
	OpBr
	OpBrIf
	OpBrTable
	OpReturn
	OpCall
	OpCallIndirect

	OpRefNull
	OpRefIsNull
	OpRefFunc

	OpDrop
	OpSelect

	OpLocalGet
	OpLocalSet
	OpLocalTee
	OpGlobalGet
	OpGlobalSet

	OpTableGet
	OpTableSet
	OpTableSize
	OpTableGrow
	OpTableFill
	OpTableCopy
	OpTableInit
	OpElemDrop

	OpLoad
	OpLoad8
	OpLoad16
	OpLoad32
	OpStore
	OpStore8
	OpStore16
	OpStore32
	OpMemorySize
	OpMemoryGrow
	OpMemoryInit
	OpDataDrop
	OpMemoryCopy
	OpMemoryFill

	OpConstI32
	OpConstI64
	OpConstF32
	OpConstF64

	OpEq
	OpNe
	OpEqz
	OpLt
	OpGt
	OpLe
	OpGe

	OpAdd
	OpSub
	OpMul
	OpClz
	OpCtz
	OpPopcnt
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpRotl
	OpRotr

	OpAbs
	OpNeg
	OpCeil
	OpFloor
	OpTrunc
	OpNearest
	OpSqrt
	OpMin
	OpMax
	OpCopysign

	OpWrap
	OpExtend
	OpTruncFromF
	OpTruncSatFromF
	OpConvertFromI
	OpDemote
	OpPromote
	OpReinterpret
	OpSignExtend
)

// NumType is the operand type an arithmetic/comparison instruction is
// specialized for.
type NumType byte

const (
	NumTypeI32 NumType = iota
	NumTypeI64
	NumTypeF32
	NumTypeF64
)

// Instr is one decoded instruction, exactly as a binary decoder would
// produce it (before the engine's own lowering pass flattens control flow
// — see internal/ir). Not every field is meaningful for every Op; see the
// comment on each Op's producer in a real decoder.
type Instr struct {
	Op Opcode

	// Control flow.
	Block      BlockType
	ElseOffset int // -1 if absent. Relative to this instruction, as lowered.
	EndOffset  int
	LabelIdx   uint32   // Br, BrIf target.
	Labels     []uint32 // BrTable targets.
	Default    uint32   // BrTable default target.

	// Calls / indices.
	FuncIdx   uint32
	TypeIdx   uint32
	TableIdx  uint32
	TableIdx2 uint32
	GlobalIdx uint32
	LocalIdx  uint32
	ElemIdx   uint32
	DataIdx   uint32

	// Memory / table ops.
	MemArg MemArg

	// Numeric immediates.
	I32 int32
	I64 int64
	F32 float32
	F64 float64

	// Typed dispatch.
	Type     NumType // operand type for Eq/Add/.../Copysign etc.
	FromType NumType // TruncFromF/TruncSatFromF/ConvertFromI source type.
	Signed   bool
	RefType  RefType // RefNull's reftype immediate.
	Width    int     // SignExtend source width in bits: 8 or 16 (i32.extend_n_s) / 8, 16 or 32 (i64.extend_n_s).
}

// Expr is a constant or function-body instruction sequence.
type Expr struct {
	Instrs []Instr
}

// Func is a function definition: its declared type, its additional locals
// (beyond parameters), and its body.
type Func struct {
	TypeIdx uint32
	Locals  []ValueType
	Body    Expr
}

// ImportDesc classifies what an Import brings in.
type ImportDesc struct {
	Kind       ExternKind
	TypeIdx    uint32     // Kind == ExternKindFunc
	TableType  TableType  // Kind == ExternKindTable
	MemoryType MemoryType // Kind == ExternKindMemory
	GlobalType GlobalType // Kind == ExternKindGlobal
}

type ExternKind byte

const (
	ExternKindFunc ExternKind = iota
	ExternKindTable
	ExternKindMemory
	ExternKindGlobal
)

// Import is one entry of the import section.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// ExportDesc is the logical index an export resolves to.
type ExportDesc struct {
	Kind  ExternKind
	Index uint32
}

// Export is one entry of the export section.
type Export struct {
	Name string
	Desc ExportDesc
}

// ElemMode classifies an element segment's initialization behavior.
type ElemMode byte

const (
	ElemModeActive ElemMode = iota
	ElemModePassive
	ElemModeDeclarative
)

// Elem is one element segment.
type Elem struct {
	Type  RefType
	Init  []Expr // one constant expression per element (RefFunc/RefNull/global.get).
	Mode  ElemMode
	Table uint32 // valid when Mode == ElemModeActive.
	Offset Expr  // valid when Mode == ElemModeActive.
}

// DataMode classifies a data segment's initialization behavior.
type DataMode byte

const (
	DataModeActive DataMode = iota
	DataModePassive
)

// Data is one data segment.
type Data struct {
	Init   []byte
	Mode   DataMode
	Memory uint32 // valid when Mode == DataModeActive.
	Offset Expr   // valid when Mode == DataModeActive.
}

// Global is a module-defined global: its type and constant initializer.
type Global struct {
	Type GlobalType
	Init Expr
}

// Module is the decoded form of a Wasm binary, exactly the contract the
// (external, out of scope) decoder is expected to produce: §6 "Decoder
// contract". Validation (type-checking, not just structural decoding) is
// assumed to already have happened.
type Module struct {
	Types   []FuncType
	Imports []Import
	Funcs   []Func
	Tables  []TableType
	Mems    []MemoryType
	Globals []Global
	Exports []Export
	Start   *uint32
	Elems   []Elem
	Datas   []Data

	// NumImportedFuncs/Tables/Mems/Globals let callers compute module-local
	// indices without re-scanning Imports; a decoder fills these in as it
	// parses the import section.
	NumImportedFuncs   uint32
	NumImportedTables  uint32
	NumImportedMems    uint32
	NumImportedGlobals uint32
}
