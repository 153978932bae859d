package api

import "strings"

// Features is a bitset of optional Wasm proposals the engine recognizes:
// a uint64 with each bit an independent flag, starting at 1 (not 0, which
// can't be distinguished from "no flags set").
type Features uint64

const (
	// FeatureMutableGlobal is part of the MVP (despite being labeled a
	// "feature" in early Wasm drafts) and is always implied; it's listed
	// here so engines embedding this one can still gate on it explicitly.
	FeatureMutableGlobal Features = 1 << iota

	// FeatureSignExtensionOps enables i32.extend8_s, i32.extend16_s,
	// i64.extend{8,16,32}_s.
	FeatureSignExtensionOps

	// FeatureNonTrappingFloatToIntConversion enables the trunc_sat family.
	FeatureNonTrappingFloatToIntConversion

	// FeatureReferenceTypes enables funcref/externref, ref.null/ref.is_null
	// /ref.func, and table.get/set/grow/size/fill.
	FeatureReferenceTypes

	// FeatureBulkMemoryOperations enables memory.{init,copy,fill},
	// data.drop, table.{init,copy}, elem.drop.
	FeatureBulkMemoryOperations
)

// FeaturesMVP is the Wasm 1.0 baseline with none of the four named
// extensions enabled.
const FeaturesMVP Features = FeatureMutableGlobal

// AllFeatures enables every extension this engine recognizes beyond the
// MVP baseline. It is not applied by default: NewEngine uses exactly the
// feature set it is given.
const AllFeatures Features = FeatureMutableGlobal |
	FeatureSignExtensionOps |
	FeatureNonTrappingFloatToIntConversion |
	FeatureReferenceTypes |
	FeatureBulkMemoryOperations

// Get reports whether f is set.
func (fs Features) Get(f Features) bool { return fs&f != 0 }

// Set returns fs with f set to on.
func (fs Features) Set(f Features, on bool) Features {
	if on {
		return fs | f
	}
	return fs &^ f
}

var namedFeatures = []struct {
	bit  Features
	name string
}{
	{FeatureMutableGlobal, "mutable-global"},
	{FeatureSignExtensionOps, "sign-extension-ops"},
	{FeatureNonTrappingFloatToIntConversion, "nontrapping-float-to-int-conversion"},
	{FeatureReferenceTypes, "reference-types"},
	{FeatureBulkMemoryOperations, "bulk-memory-operations"},
}

// String renders the set bits as a comma-separated, stable-ordered list.
func (fs Features) String() string {
	var b strings.Builder
	first := true
	for _, nf := range namedFeatures {
		if fs.Get(nf.bit) {
			if !first {
				b.WriteByte(',')
			}
			b.WriteString(nf.name)
			first = false
		}
	}
	return b.String()
}
