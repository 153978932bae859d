package wasp

import "github.com/wasp-engine/wasp/api"

// ModuleImporter is a ready-to-use, in-memory api.Importer: a name→Module
// cache populated programmatically. Since the binary decoder is out of
// scope for this engine, ModuleImporter is populated by the embedder ahead
// of time via Add rather than from a file path — the embedder already has
// the decoded api.Module in hand.
type ModuleImporter struct {
	modules map[string]*api.Module
}

// NewModuleImporter returns an empty ModuleImporter.
func NewModuleImporter() *ModuleImporter {
	return &ModuleImporter{modules: map[string]*api.Module{}}
}

// Add registers mod under modname, overwriting any previous entry. Since
// Import must be idempotent per module, callers should Add a given name at
// most once per Engine's lifetime.
func (mi *ModuleImporter) Add(modname string, mod *api.Module) *ModuleImporter {
	mi.modules[modname] = mod
	return mi
}

// Import implements api.Importer.
func (mi *ModuleImporter) Import(modname string) (*api.Module, bool) {
	m, ok := mi.modules[modname]
	return m, ok
}

var _ api.Importer = (*ModuleImporter)(nil)
