package wasm

import "slices"

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (f FuncType) equal(o FuncType) bool {
	return slices.Equal(f.Params, o.Params) && slices.Equal(f.Results, o.Results)
}

type importEntry struct {
	module  string
	name    string
	typeIdx uint32
}

type funcEntry struct {
	typeIdx uint32
	locals  []ValType
	body    *Expr
}

type globalEntry struct {
	typ     ValType
	mutable bool
	init    *Expr
}

type limits struct {
	min uint32
	max *uint32
}

type dataEntry struct {
	offset uint32
	bytes  []byte
}

// Builder assembles a core module binary. Function imports must be declared
// before any defined function since imports occupy the low function indices.
type Builder struct {
	types    []FuncType
	imports  []importEntry
	funcs    []funcEntry
	tables   []limits
	memories []limits
	globals  []globalEntry
	exports  []Export
	start    *uint32
	data     []dataEntry
}

// NewBuilder returns an empty module builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Max is a helper for optional limit maxima.
func Max(n uint32) *uint32 {
	return &n
}

func (b *Builder) typeIndex(ft FuncType) uint32 {
	for i, t := range b.types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	b.types = append(b.types, ft)
	return uint32(len(b.types) - 1)
}

// ImportFunc declares a function import and returns its function index.
func (b *Builder) ImportFunc(module, name string, ft FuncType) uint32 {
	if len(b.funcs) > 0 {
		panic("wasm: function imports must be declared before defined functions")
	}
	b.imports = append(b.imports, importEntry{module: module, name: name, typeIdx: b.typeIndex(ft)})
	return uint32(len(b.imports) - 1)
}

// Func defines a function and returns its function index. The trailing end
// opcode is appended automatically.
func (b *Builder) Func(ft FuncType, locals []ValType, body *Expr) uint32 {
	if body == nil {
		body = Code()
	}
	b.funcs = append(b.funcs, funcEntry{typeIdx: b.typeIndex(ft), locals: locals, body: body})
	return uint32(len(b.imports) + len(b.funcs) - 1)
}

// Memory defines a linear memory with limits in pages.
func (b *Builder) Memory(min uint32, max *uint32) uint32 {
	b.memories = append(b.memories, limits{min: min, max: max})
	return uint32(len(b.memories) - 1)
}

// Table defines a funcref table.
func (b *Builder) Table(min uint32, max *uint32) uint32 {
	b.tables = append(b.tables, limits{min: min, max: max})
	return uint32(len(b.tables) - 1)
}

// Global defines a global initialized by a constant expression.
func (b *Builder) Global(t ValType, mutable bool, init *Expr) uint32 {
	if init == nil {
		init = zeroConst(t)
	}
	b.globals = append(b.globals, globalEntry{typ: t, mutable: mutable, init: init})
	return uint32(len(b.globals) - 1)
}

// Export adds an export entry.
func (b *Builder) Export(name string, kind byte, idx uint32) *Builder {
	b.exports = append(b.exports, Export{Name: name, Kind: kind, Index: idx})
	return b
}

// Start sets the start function.
func (b *Builder) Start(fn uint32) *Builder {
	b.start = &fn
	return b
}

// Data adds an active data segment for memory 0.
func (b *Builder) Data(offset uint32, bytes []byte) *Builder {
	b.data = append(b.data, dataEntry{offset: offset, bytes: bytes})
	return b
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	out := &buffer{}
	out.writeBytes([]byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00})

	if len(b.types) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(b.types)))
		for _, ft := range b.types {
			sec.appendByte(funcTypeMarker)
			sec.writeU32(uint32(len(ft.Params)))
			for _, p := range ft.Params {
				sec.appendByte(byte(p))
			}
			sec.writeU32(uint32(len(ft.Results)))
			for _, r := range ft.Results {
				sec.appendByte(byte(r))
			}
		}
		out.writeSection(SectionType, sec)
	}

	if len(b.imports) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(b.imports)))
		for _, imp := range b.imports {
			sec.writeName(imp.module)
			sec.writeName(imp.name)
			sec.appendByte(KindFunc)
			sec.writeU32(imp.typeIdx)
		}
		out.writeSection(SectionImport, sec)
	}

	if len(b.funcs) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(b.funcs)))
		for _, f := range b.funcs {
			sec.writeU32(f.typeIdx)
		}
		out.writeSection(SectionFunction, sec)
	}

	if len(b.tables) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(b.tables)))
		for _, t := range b.tables {
			sec.appendByte(byte(ValFuncRef))
			sec.writeLimits(t.min, t.max)
		}
		out.writeSection(SectionTable, sec)
	}

	if len(b.memories) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(b.memories)))
		for _, m := range b.memories {
			sec.writeLimits(m.min, m.max)
		}
		out.writeSection(SectionMemory, sec)
	}

	if len(b.globals) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(b.globals)))
		for _, g := range b.globals {
			sec.appendByte(byte(g.typ))
			if g.mutable {
				sec.appendByte(0x01)
			} else {
				sec.appendByte(0x00)
			}
			sec.writeBytes(g.init.buf.bytes)
			sec.appendByte(OpEnd)
		}
		out.writeSection(SectionGlobal, sec)
	}

	if len(b.exports) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(b.exports)))
		for _, e := range b.exports {
			sec.writeName(e.Name)
			sec.appendByte(e.Kind)
			sec.writeU32(e.Index)
		}
		out.writeSection(SectionExport, sec)
	}

	if b.start != nil {
		sec := &buffer{}
		sec.writeU32(*b.start)
		out.writeSection(SectionStart, sec)
	}

	if len(b.funcs) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(b.funcs)))
		for _, f := range b.funcs {
			body := &buffer{}
			encodeLocals(body, f.locals)
			body.writeBytes(f.body.buf.bytes)
			body.appendByte(OpEnd)
			sec.writeU32(uint32(len(body.bytes)))
			sec.writeBytes(body.bytes)
		}
		out.writeSection(SectionCode, sec)
	}

	if len(b.data) > 0 {
		sec := &buffer{}
		sec.writeU32(uint32(len(b.data)))
		for _, d := range b.data {
			sec.writeU32(0) // active, memory 0
			sec.appendByte(OpI32Const)
			sec.writeI64(int64(int32(d.offset)))
			sec.appendByte(OpEnd)
			sec.writeU32(uint32(len(d.bytes)))
			sec.writeBytes(d.bytes)
		}
		out.writeSection(SectionData, sec)
	}

	return out.bytes
}

// encodeLocals run-length groups consecutive locals of the same type.
func encodeLocals(buf *buffer, locals []ValType) {
	type group struct {
		n uint32
		t ValType
	}
	var groups []group
	for _, l := range locals {
		if n := len(groups); n > 0 && groups[n-1].t == l {
			groups[n-1].n++
			continue
		}
		groups = append(groups, group{n: 1, t: l})
	}
	buf.writeU32(uint32(len(groups)))
	for _, g := range groups {
		buf.writeU32(g.n)
		buf.appendByte(byte(g.t))
	}
}
