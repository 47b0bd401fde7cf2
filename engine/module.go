package engine

import (
	"context"
	"slices"
	"sort"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-sandbox/transcoder"
	"github.com/wippyai/wasm-sandbox/wasm"
)

// ExportKind names what an export refers to.
type ExportKind string

const (
	ExportFunction ExportKind = "function"
	ExportMemory   ExportKind = "memory"
	ExportGlobal   ExportKind = "global"
	ExportTable    ExportKind = "table"
)

// ExportDescriptor describes one export. Params and Results are set for
// functions only.
type ExportDescriptor struct {
	Name    string            `json:"name"`
	Kind    ExportKind        `json:"kind"`
	Params  []transcoder.Kind `json:"params,omitempty"`
	Results []transcoder.Kind `json:"results,omitempty"`
}

// Module is an immutable compiled artifact. It may back any number of
// instances and must outlive all of them.
type Module struct {
	compiled    wazero.CompiledModule
	exports     []ExportDescriptor
	imports     []string
	importsWASI bool
}

func newModule(compiled wazero.CompiledModule, raw []wasm.Export) *Module {
	m := &Module{compiled: compiled}

	seen := make(map[string]bool)
	for _, def := range compiled.ImportedFunctions() {
		mod, _, ok := def.Import()
		if !ok || seen[mod] {
			continue
		}
		seen[mod] = true
		if mod == WASIModuleName {
			m.importsWASI = true
			continue
		}
		m.imports = append(m.imports, mod)
	}
	sort.Strings(m.imports)

	funcs := compiled.ExportedFunctions()
	m.exports = make([]ExportDescriptor, 0, len(raw))
	for _, e := range raw {
		d := ExportDescriptor{Name: e.Name}
		switch e.Kind {
		case wasm.KindFunc:
			d.Kind = ExportFunction
			if def, ok := funcs[e.Name]; ok {
				d.Params = transcoder.Kinds(def.ParamTypes())
				d.Results = transcoder.Kinds(def.ResultTypes())
			}
		case wasm.KindMemory:
			d.Kind = ExportMemory
		case wasm.KindGlobal:
			d.Kind = ExportGlobal
		case wasm.KindTable:
			d.Kind = ExportTable
		default:
			// tags and future kinds are not addressable from the host
			continue
		}
		m.exports = append(m.exports, d)
	}
	return m
}

// Exports lists the module's exports in declaration order. The returned
// slice is a copy.
func (m *Module) Exports() []ExportDescriptor {
	out := make([]ExportDescriptor, len(m.exports))
	copy(out, m.exports)
	return out
}

// HostImports lists the non-WASI module names whose functions the module
// imports, sorted.
func (m *Module) HostImports() []string {
	return slices.Clone(m.imports)
}

// ImportsWASI reports whether instantiation links the WASI host module.
func (m *Module) ImportsWASI() bool {
	return m.importsWASI
}

// MemoryMax returns the declared maximum of the exported memory in pages.
func (m *Module) MemoryMax() (uint32, bool) {
	for _, def := range m.compiled.ExportedMemories() {
		return def.Max()
	}
	return 0, false
}

// Close releases the compiled code. Instances must be closed first.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}
