package orchestrator

import (
	"fmt"

	"github.com/wasp-engine/wasp/api"
)

// checkFeatures rejects a lowered function body that uses an instruction
// from an extension the runtime was configured without. Gating happens
// once, at instantiation; the stepper itself never consults the feature
// set.
func checkFeatures(code []api.Instr, fs api.Features) error {
	for _, in := range code {
		var need api.Features
		var name string
		switch in.Op {
		case api.OpSignExtend:
			need, name = api.FeatureSignExtensionOps, "sign-extension-ops"
		case api.OpTruncSatFromF:
			need, name = api.FeatureNonTrappingFloatToIntConversion, "nontrapping-float-to-int-conversion"
		case api.OpRefNull, api.OpRefIsNull, api.OpRefFunc,
			api.OpTableGet, api.OpTableSet, api.OpTableSize, api.OpTableGrow, api.OpTableFill:
			need, name = api.FeatureReferenceTypes, "reference-types"
		case api.OpMemoryInit, api.OpDataDrop, api.OpMemoryCopy, api.OpMemoryFill,
			api.OpTableInit, api.OpTableCopy, api.OpElemDrop:
			need, name = api.FeatureBulkMemoryOperations, "bulk-memory-operations"
		default:
			continue
		}
		if !fs.Get(need) {
			return fmt.Errorf("%v requires feature %q, which is disabled", in.Op, name)
		}
	}
	return nil
}
