// Package api contains the types and interfaces shared between the engine
// and its embedder: value representation, the module AST produced by a
// decoder, and the host/importer contracts described in the design as
// external collaborators.
package api

import "fmt"

// ValueKind discriminates the payload carried by a Value.
type ValueKind byte

const (
	ValueKindI32 ValueKind = iota
	ValueKindI64
	ValueKindF32
	ValueKindF64
	ValueKindRef
)

func (k ValueKind) String() string {
	switch k {
	case ValueKindI32:
		return "i32"
	case ValueKindI64:
		return "i64"
	case ValueKindF32:
		return "f32"
	case ValueKindF64:
		return "f64"
	case ValueKindRef:
		return "ref"
	default:
		return fmt.Sprintf("valuekind(%d)", byte(k))
	}
}

// RefKind discriminates the three states a reference value can be in.
type RefKind byte

const (
	RefKindNull RefKind = iota
	RefKindFunc
	RefKindExtern
)

// Ref is a reftype value: either null, or a stable Store address of a
// function or an opaque host (extern) object.
type Ref struct {
	Kind RefKind
	Addr uint32
}

// NullRef is the null reference of any reftype.
var NullRef = Ref{Kind: RefKindNull}

// FuncRef builds a funcref pointing at the given Store function address.
func FuncRef(addr uint32) Ref { return Ref{Kind: RefKindFunc, Addr: addr} }

// ExternRef builds an externref pointing at the given Store extern address.
func ExternRef(addr uint32) Ref { return Ref{Kind: RefKindExtern, Addr: addr} }

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool { return r.Kind == RefKindNull }

// Value is a tagged scalar: exactly one of i32/i64/f32/f64/ref is live,
// selected by Kind. Extraction methods panic if Kind doesn't match —
// by construction, every Value on the operand stack was pushed with a type
// known from a validated module, so a mismatch is a programming error, not
// a recoverable one.
type Value struct {
	kind ValueKind
	i32  int32
	i64  int64
	f32  float32
	f64  float64
	ref  Ref
}

func I32(v int32) Value   { return Value{kind: ValueKindI32, i32: v} }
func I64(v int64) Value   { return Value{kind: ValueKindI64, i64: v} }
func F32(v float32) Value { return Value{kind: ValueKindF32, f32: v} }
func F64(v float64) Value { return Value{kind: ValueKindF64, f64: v} }
func RefValue(r Ref) Value { return Value{kind: ValueKindRef, ref: r} }

// ZeroValue returns the default-initialized Value for a ValueType, used to
// seed locals that aren't supplied as call parameters (§4.5 Call: "appends
// zero-initialized locals").
func ZeroValue(t ValueType) Value {
	switch t {
	case ValueTypeI32:
		return I32(0)
	case ValueTypeI64:
		return I64(0)
	case ValueTypeF32:
		return F32(0)
	case ValueTypeF64:
		return F64(0)
	case ValueTypeFuncref, ValueTypeExternref:
		return RefValue(NullRef)
	default:
		panic(fmt.Sprintf("api: unknown value type %#x", t))
	}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) I32() int32 {
	v.mustBe(ValueKindI32)
	return v.i32
}

func (v Value) I64() int64 {
	v.mustBe(ValueKindI64)
	return v.i64
}

func (v Value) F32() float32 {
	v.mustBe(ValueKindF32)
	return v.f32
}

func (v Value) F64() float64 {
	v.mustBe(ValueKindF64)
	return v.f64
}

func (v Value) Ref() Ref {
	v.mustBe(ValueKindRef)
	return v.ref
}

func (v Value) mustBe(k ValueKind) {
	if v.kind != k {
		panic(fmt.Sprintf("api: Value is %s, not %s", v.kind, k))
	}
}

// Type returns the ValueType this Value would be typed as in a module
// signature. For a null funcref/externref this is ambiguous at the type
// level; callers needing that distinction should track it separately (the
// interpreter always knows the declared type from the signature, never
// from the Value alone).
func (v Value) Type() ValueType {
	switch v.kind {
	case ValueKindI32:
		return ValueTypeI32
	case ValueKindI64:
		return ValueTypeI64
	case ValueKindF32:
		return ValueTypeF32
	case ValueKindF64:
		return ValueTypeF64
	case ValueKindRef:
		if v.ref.Kind == RefKindExtern {
			return ValueTypeExternref
		}
		return ValueTypeFuncref
	default:
		panic("api: zero Value has no type")
	}
}

func (v Value) String() string {
	switch v.kind {
	case ValueKindI32:
		return fmt.Sprintf("i32:%d", v.i32)
	case ValueKindI64:
		return fmt.Sprintf("i64:%d", v.i64)
	case ValueKindF32:
		return fmt.Sprintf("f32:%g", v.f32)
	case ValueKindF64:
		return fmt.Sprintf("f64:%g", v.f64)
	case ValueKindRef:
		if v.ref.IsNull() {
			return "ref:null"
		}
		return fmt.Sprintf("ref:%d@%d", v.ref.Kind, v.ref.Addr)
	default:
		return "<zero value>"
	}
}
