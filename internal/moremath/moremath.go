// Package moremath implements the floating-point helpers the Wasm spec
// requires that diverge from Go's math package defaults: NaN-propagating
// min/max (Go's math.Min/Max follow IEEE minNum/maxNum, which prefer a
// non-NaN operand; Wasm's min/max always produce NaN if either input is),
// ties-to-even rounding, and the saturating truncation conversions.
package moremath

import "math"

// WasmCompatMin mirrors Wasm's f64.min: propagates NaN from either operand
// (Go's ordinary `<` can't be trusted once NaN is involved, since every
// comparison against NaN is false), and treats -0 as strictly below +0 even
// though IEEE-754 equality says they're equal. Ordinary `<` already sorts
// infinities correctly, so there's nothing special to do for them once NaN
// is ruled out.
func WasmCompatMin(x, y float64) float64 {
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.NaN()
	}
	if x == y {
		return signedZeroMin(x, y)
	}
	if x < y {
		return x
	}
	return y
}

// WasmCompatMax is WasmCompatMin's mirror image.
func WasmCompatMax(x, y float64) float64 {
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.NaN()
	}
	if x == y {
		return signedZeroMax(x, y)
	}
	if x > y {
		return x
	}
	return y
}

// signedZeroMin/Max break the x==y tie between +0 and -0, which ordinary
// float equality can't distinguish. Called only once x and y are known
// equal; every other equal-value case (matching infinities, matching
// finite non-zero values) is unaffected by sign and returns x unchanged.
func signedZeroMin(x, y float64) float64 {
	if x != 0 {
		return x
	}
	if math.Signbit(x) || math.Signbit(y) {
		return math.Copysign(0, -1)
	}
	return x
}

func signedZeroMax(x, y float64) float64 {
	if x != 0 {
		return x
	}
	if math.Signbit(x) && math.Signbit(y) {
		return x
	}
	return math.Copysign(0, 1)
}

// WasmCompatMinF32/MaxF32 are the float32 analogues, computed in float64
// and rounded back so a NaN payload from either path is preserved as *a*
// NaN even though Wasm doesn't mandate bit-exact NaN payload propagation.
func WasmCompatMinF32(x, y float32) float32 {
	if f32IsNaN(x) || f32IsNaN(y) {
		return float32(math.NaN())
	}
	return float32(WasmCompatMin(float64(x), float64(y)))
}

func WasmCompatMaxF32(x, y float32) float32 {
	if f32IsNaN(x) || f32IsNaN(y) {
		return float32(math.NaN())
	}
	return float32(WasmCompatMax(float64(x), float64(y)))
}

func f32IsNaN(f float32) bool { return f != f }

// WasmCompatNearestF32/F64 implement round-to-nearest, ties-to-even
// (banker's rounding), as required by the Wasm `nearest` instructions. Go's
// math.Round ties away from zero, so it can't be used directly.
func WasmCompatNearestF64(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return f
	}
	r := math.RoundToEven(f)
	return r
}

func WasmCompatNearestF32(f float32) float32 {
	return float32(WasmCompatNearestF64(float64(f)))
}

// TruncToI32/TruncToI64/TruncToU32/TruncToU64 implement the trapping
// float-to-int truncation: they report ok=false for NaN, infinities, or
// any value outside the destination's representable range.
func TruncToI32(f float64) (int32, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	t := math.Trunc(f)
	if t < math.MinInt32 || t > math.MaxInt32 {
		return 0, false
	}
	return int32(t), true
}

func TruncToU32(f float64) (uint32, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	t := math.Trunc(f)
	if t < 0 || t > math.MaxUint32 {
		return 0, false
	}
	return uint32(t), true
}

func TruncToI64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	t := math.Trunc(f)
	// math.MaxInt64 isn't exactly representable as float64; compare against
	// the nearest representable bound the same way reference interpreters do.
	if t < -9223372036854775808.0 || t >= 9223372036854775808.0 {
		return 0, false
	}
	return int64(t), true
}

func TruncToU64(f float64) (uint64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	t := math.Trunc(f)
	if t < 0 || t >= 18446744073709551616.0 {
		return 0, false
	}
	return uint64(t), true
}

// SatTruncToI32/U32/I64/U64 implement the non-trapping (saturating)
// conversions: NaN maps to 0, values below range clamp to the minimum,
// values above clamp to the maximum.
func SatTruncToI32(f float64) int32 {
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	switch {
	case t < math.MinInt32:
		return math.MinInt32
	case t > math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(t)
	}
}

func SatTruncToU32(f float64) uint32 {
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	switch {
	case t < 0:
		return 0
	case t > math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(t)
	}
}

func SatTruncToI64(f float64) int64 {
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	switch {
	case t < -9223372036854775808.0:
		return math.MinInt64
	case t >= 9223372036854775808.0:
		return math.MaxInt64
	default:
		return int64(t)
	}
}

func SatTruncToU64(f float64) uint64 {
	if math.IsNaN(f) {
		return 0
	}
	t := math.Trunc(f)
	switch {
	case t < 0:
		return 0
	case t >= 18446744073709551616.0:
		return math.MaxUint64
	default:
		return uint64(t)
	}
}
