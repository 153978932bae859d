package wasm

import "github.com/wasp-engine/wasp/api"

// FuncInst is a function as stored centrally in the Store: either a
// module-defined ("inner") function, or a host-backed one. IsHost selects
// which half of the struct is live.
type FuncInst struct {
	Type api.FuncType

	IsHost     bool
	HostModule string // valid when IsHost: the import module name, routes to a registered api.HostEnv.
	HostName   string // valid when IsHost.

	InstanceAddr Addr            // valid when !IsHost; patched by PatchInnerFunc once the owning Instance exists.
	Start        int             // PC of the function's first lowered instruction.
	Locals       []api.ValueType // additional (non-parameter) local declarations.
}

// GlobalInst is a global variable.
type GlobalInst struct {
	Type  api.GlobalType
	Value api.Value
}

// TableInst is a table: a growable sequence of references.
type TableInst struct {
	Type     api.TableType
	Elements []api.Ref
}

// ElemInst is an element segment's runtime form. Dropped element segments
// remain as allocated slots but empty.
type ElemInst struct {
	Type     api.RefType
	Elements []api.Ref // nil after ElemDrop.
}

// DataInst is a passive data segment's runtime form. Dropped passive data
// is removed from the Store.
type DataInst struct {
	Data []byte
}

// Store holds every kind of runtime-mutable object, addressed by stable
// slot indices.
type Store struct {
	funcs     slots[FuncInst]
	globals   slots[GlobalInst]
	tables    slots[TableInst]
	elems     slots[ElemInst]
	mems      slots[MemInst]
	datas     slots[DataInst]
	instances slots[Instance]
}

// NewStore returns an empty Store.
func NewStore() *Store { return &Store{} }

// --- funcs ---

func (s *Store) AllocateHostFunc(t api.FuncType, module, name string) Addr {
	return s.funcs.push(FuncInst{Type: t, IsHost: true, HostModule: module, HostName: name})
}

// AllocateInnerFunc reserves a FuncInst slot for a module-defined function
// before its owning Instance (and therefore its InstanceAddr) exists;
// PatchInnerFunc fills in InstanceAddr and Start once lowering and
// instantiation have produced them.
func (s *Store) AllocateInnerFunc(t api.FuncType, locals []api.ValueType) Addr {
	return s.funcs.push(FuncInst{Type: t, Locals: locals})
}

func (s *Store) PatchInnerFunc(addr Addr, instanceAddr Addr, start int) {
	f := s.funcs.get(addr)
	f.InstanceAddr = instanceAddr
	f.Start = start
}

func (s *Store) Func(addr Addr) *FuncInst { return s.funcs.get(addr) }

func (s *Store) ReleaseFuncs(addrs []Addr) {
	for _, a := range addrs {
		s.funcs.remove(a)
	}
}

// --- globals ---

func (s *Store) AllocateGlobal(t api.GlobalType, v api.Value) Addr {
	return s.globals.push(GlobalInst{Type: t, Value: v})
}

func (s *Store) Global(addr Addr) *GlobalInst { return s.globals.get(addr) }

func (s *Store) ReleaseGlobals(addrs []Addr) {
	for _, a := range addrs {
		s.globals.remove(a)
	}
}

// --- tables ---

func (s *Store) AllocateTable(t api.TableType) Addr {
	elems := make([]api.Ref, t.Limits.Min)
	for i := range elems {
		elems[i] = api.NullRef
	}
	return s.tables.push(TableInst{Type: t, Elements: elems})
}

func (s *Store) Table(addr Addr) *TableInst { return s.tables.get(addr) }

func (s *Store) ReleaseTables(addrs []Addr) {
	for _, a := range addrs {
		s.tables.remove(a)
	}
}

// --- elems ---

// AllocateElem stores an element segment's (already constant-evaluated)
// references. Used for passive segments and, for bookkeeping symmetry with
// Instance.ElemAddrs, for active and declarative ones too — active ones
// are additionally copied into their target table by the caller, and
// declarative ones are allocated pre-dropped.
func (s *Store) AllocateElem(t api.RefType, refs []api.Ref) Addr {
	return s.elems.push(ElemInst{Type: t, Elements: refs})
}

func (s *Store) Elem(addr Addr) *ElemInst { return s.elems.get(addr) }

// DropElem empties an element instance's references, leaving the slot
// allocated.
func (s *Store) DropElem(addr Addr) { s.elems.get(addr).Elements = nil }

func (s *Store) ReleaseElems(addrs []Addr) {
	for _, a := range addrs {
		s.elems.remove(a)
	}
}

// --- mems ---

func (s *Store) AllocateMem(t api.MemoryType) Addr {
	return s.mems.push(*NewMemInst(t))
}

func (s *Store) Mem(addr Addr) *MemInst { return s.mems.get(addr) }

func (s *Store) ReleaseMems(addrs []Addr) {
	for _, a := range addrs {
		s.mems.remove(a)
	}
}

// --- datas ---

func (s *Store) AllocateData(data []byte) Addr {
	return s.datas.push(DataInst{Data: data})
}

func (s *Store) Data(addr Addr) *DataInst { return s.datas.get(addr) }

// DataOK is Data for instructions that must treat an already-dropped
// segment as zero-length rather than as a programming error: memory.init
// traps only if it reads past the (now empty) segment, and a second
// data.drop is a no-op.
func (s *Store) DataOK(addr Addr) (*DataInst, bool) { return s.datas.getOK(addr) }

// DropData removes a passive data instance from the Store entirely, unlike
// DropElem which only empties the slot.
func (s *Store) DropData(addr Addr) { s.datas.remove(addr) }

func (s *Store) ReleaseDatas(addrs []Addr) {
	for _, a := range addrs {
		s.datas.remove(a)
	}
}

// --- instances ---

// AllocateInstance gives inst a stable Store address so an Inner FuncInst
// can name its owner without holding a Go pointer: func -> instance ->
// func is expressed through Store addresses, never direct pointers, so
// either side can be released without the other noticing a cycle.
func (s *Store) AllocateInstance(inst Instance) Addr { return s.instances.push(inst) }

func (s *Store) Instance(addr Addr) *Instance { return s.instances.get(addr) }

func (s *Store) ReleaseInstance(addr Addr) { s.instances.remove(addr) }
