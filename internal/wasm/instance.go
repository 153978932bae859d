package wasm

import "github.com/wasp-engine/wasp/api"

// Instance is a module's logical-index-to-Store-address binding table. It
// is itself addressed by a Store-stable Addr so an Inner FuncInst can
// reference its owner without holding a Go pointer cycle.
type Instance struct {
	Name string

	FuncAddrs   []Addr
	GlobalAddrs []Addr
	TableAddrs  []Addr
	ElemAddrs   []Addr
	DataAddrs   []Addr
	MemAddr     *Addr // nil if the module declares no memory.

	// Imported entries sit at the front of each address list; only the
	// addresses past them were contributed by this instance and may be freed
	// on Release. Releasing an import's address would invalidate the
	// exporting instance.
	ImportedFuncs   int
	ImportedGlobals int
	ImportedTables  int
	MemImported     bool

	Types         []api.FuncType // the module's type section, needed to resolve BlockType.TypeIdx and CallIndirect signatures.
	StartFuncAddr *Addr          // the start function, if the module declares one.

	Exports []api.Export
}

// Export resolves a named export of the given kind to its Store address,
// for cross-module linking.
func (inst *Instance) Export(name string, kind api.ExternKind) (Addr, bool) {
	for _, e := range inst.Exports {
		if e.Name != name || e.Desc.Kind != kind {
			continue
		}
		switch kind {
		case api.ExternKindFunc:
			return inst.FuncAddrs[e.Desc.Index], true
		case api.ExternKindTable:
			return inst.TableAddrs[e.Desc.Index], true
		case api.ExternKindGlobal:
			return inst.GlobalAddrs[e.Desc.Index], true
		case api.ExternKindMemory:
			if inst.MemAddr == nil {
				return 0, false
			}
			return *inst.MemAddr, true
		}
	}
	return 0, false
}

// ExportedFunc resolves an export by name to a Store function address, or
// ok=false if no such function export exists.
func (inst *Instance) ExportedFunc(name string) (Addr, bool) {
	return inst.Export(name, api.ExternKindFunc)
}

// Release returns every address this Instance contributed back to the
// Store's free lists. Addresses resolved from imports belong to their
// exporting instance (or the host registry) and stay live.
func (inst *Instance) Release(store *Store) {
	store.ReleaseFuncs(inst.FuncAddrs[inst.ImportedFuncs:])
	store.ReleaseGlobals(inst.GlobalAddrs[inst.ImportedGlobals:])
	store.ReleaseTables(inst.TableAddrs[inst.ImportedTables:])
	store.ReleaseElems(inst.ElemAddrs)
	store.ReleaseDatas(inst.DataAddrs)
	if inst.MemAddr != nil && !inst.MemImported {
		store.ReleaseMems([]Addr{*inst.MemAddr})
	}
}
