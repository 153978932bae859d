package interpreter

import (
	"github.com/wasp-engine/wasp/api"
	"github.com/wasp-engine/wasp/internal/wasm"
)

// Label is a pending structured-control-flow scope: the branch arity, the
// operand stack depth at push time, the continuation program counter, and
// whether branching here re-enters (loop) or exits (block/if).
type Label struct {
	N           int
	StackOffset int
	Pc          int
	Cont        bool // true for Loop: branching here re-enters the loop rather than exiting it.
}

// Frame is one call's activation record: result arity, owning instance,
// locals, the operand stack depth at entry, and the caller's resume point.
type Frame struct {
	N            int
	InstanceAddr wasm.Addr
	Locals       []api.Value
	StackOffset  int
	LabelBase    int // len(labels) at push time; a branch index reaching past this unwinds the frame instead.
	CallerPC     int
}

// Stack is the three-layered operand/control/call stack: one flat operand
// Values slice shared across the whole call, plus a Labels stack
// (structured-control scopes) and a Frames stack (call activations), each
// storing an offset into Values rather than owning a private slice.
type Stack struct {
	Values []api.Value
	Labels []Label
	Frames []Frame
}

func NewStack() *Stack { return &Stack{} }

func (s *Stack) PushValue(v api.Value) { s.Values = append(s.Values, v) }

func (s *Stack) PopValue() api.Value {
	n := len(s.Values) - 1
	v := s.Values[n]
	s.Values = s.Values[:n]
	return v
}

func (s *Stack) PopValues(n int) []api.Value {
	at := len(s.Values) - n
	vs := append([]api.Value(nil), s.Values[at:]...)
	s.Values = s.Values[:at]
	return vs
}

func (s *Stack) PushValues(vs []api.Value) { s.Values = append(s.Values, vs...) }

func (s *Stack) TopValue() api.Value { return s.Values[len(s.Values)-1] }

func (s *Stack) PushLabel(l Label) { s.Labels = append(s.Labels, l) }

func (s *Stack) PopLabel() Label {
	n := len(s.Labels) - 1
	l := s.Labels[n]
	s.Labels = s.Labels[:n]
	return l
}

func (s *Stack) PushFrame(f Frame) { s.Frames = append(s.Frames, f) }

func (s *Stack) TopFrame() *Frame { return &s.Frames[len(s.Frames)-1] }

func (s *Stack) PopFrame() Frame {
	n := len(s.Frames) - 1
	f := s.Frames[n]
	s.Frames = s.Frames[:n]
	return f
}

// unwindTo discards every value above keep, then restores the top arity
// values, so a label or frame exit preserves exactly its declared results.
func (s *Stack) unwindTo(keep int, arity int) {
	results := s.PopValues(arity)
	s.Values = s.Values[:keep]
	s.PushValues(results)
}

// Jump is the control-transfer primitive: Br(l), BrIf(l) when taken, and
// BrTable's chosen target all reduce to this. It pops l+1 labels (popping
// through to, and including, the l-th one counting from the top) and
// resumes at that label's continuation pc, truncating the operand stack to
// the label's snapshot depth plus its arity of results.
//
// If l reaches past every label belonging to the current frame, the branch
// unwinds the frame itself — an implicit return, delegated to Return.
func (s *Stack) Jump(l uint32) (pc int, returned bool) {
	frame := s.TopFrame()
	available := len(s.Labels) - frame.LabelBase
	if int(l) >= available {
		return s.Return()
	}
	target := len(s.Labels) - 1 - int(l)
	lbl := s.Labels[target]
	s.Labels = s.Labels[:target]
	s.unwindTo(lbl.StackOffset, lbl.N)
	return lbl.Pc, false
}

// Return is the frame-unwind half of control transfer: discard every label
// belonging to the current frame, preserve its top n result values, pop
// the frame, and resume at the caller's saved pc. returned is always true,
// including when the very last frame is popped; callers check
// len(s.Frames) to learn whether the whole call is finished, since Jump's
// own "returned" result is only ever used to mean "treat this as Return."
func (s *Stack) Return() (pc int, returned bool) {
	frame := s.PopFrame()
	s.Labels = s.Labels[:frame.LabelBase]
	s.unwindTo(frame.StackOffset, frame.N)
	return frame.CallerPC, true
}
