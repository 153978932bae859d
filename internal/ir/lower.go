// Package ir implements instruction lowering: flattening structured
// control flow (Block/Loop/If/Else/End) into a linear instruction stream
// with precomputed relative jump offsets, so the stepper in
// internal/interpreter never recurses into a block's body. A single linear
// pass resolves every block/else/end position before a function ever runs.
package ir

import (
	"fmt"

	"github.com/wasp-engine/wasp/api"
)

// Lower flattens one function body into its final executable form: Block,
// Loop and If instructions get their EndOffset (and, for If, ElseOffset)
// filled in, and any Else instruction is rewritten in place to OpElseJump.
// A synthetic Return is appended so a body that falls off its last
// instruction still unwinds its frame. The returned slice has the same layout
// (same length, same opcodes at the same index) as the input plus that one
// trailing instruction — nothing is inserted or deleted, so offsets are
// simple index arithmetic.
func Lower(body api.Expr) ([]api.Instr, error) {
	out := make([]api.Instr, len(body.Instrs), len(body.Instrs)+1)
	copy(out, body.Instrs)

	type open struct {
		index  int // index of the Block/Loop/If instruction.
		isIf   bool
		elseAt int // index of this If's Else instruction, or -1.
	}
	var opens []open

	for i := range out {
		switch out[i].Op {
		case api.OpBlock, api.OpLoop:
			opens = append(opens, open{index: i, elseAt: -1})
		case api.OpIf:
			opens = append(opens, open{index: i, isIf: true, elseAt: -1})
		case api.OpElse:
			if len(opens) == 0 || !opens[len(opens)-1].isIf {
				return nil, fmt.Errorf("ir: else without matching if at instruction %d", i)
			}
			opens[len(opens)-1].elseAt = i
		case api.OpEnd:
			if len(opens) == 0 {
				return nil, fmt.Errorf("ir: unmatched end at instruction %d", i)
			}
			n := len(opens) - 1
			o := opens[n]
			opens = opens[:n]

			exit := i + 1 // one past this End: where both fallthrough and any branch-out land.
			out[o.index].EndOffset = exit - o.index

			if o.isIf {
				if o.elseAt >= 0 {
					out[o.index].ElseOffset = o.elseAt + 1 - o.index
					out[o.elseAt].Op = api.OpElseJump
					out[o.elseAt].EndOffset = exit - o.elseAt
				} else {
					out[o.index].ElseOffset = -1
				}
			}
		}
	}
	if len(opens) != 0 {
		return nil, fmt.Errorf("ir: %d unclosed block(s) at end of function body", len(opens))
	}

	out = append(out, api.Instr{Op: api.OpReturn})
	return out, nil
}
