// Package testbed holds fixture modules and end-to-end tests that exercise
// the sandbox through its public surface.
//
// Fixtures are assembled with wasm.Builder so tests do not depend on
// checked-in binaries or an external toolchain.
package testbed

import "github.com/wippyai/wasm-sandbox/wasm"

const wasiModule = "wasi_snapshot_preview1"

var (
	i32  = wasm.ValI32
	i64  = wasm.ValI64
	f32  = wasm.ValF32
	f64  = wasm.ValF64
	none []wasm.ValType
)

func sig(params []wasm.ValType, results ...wasm.ValType) wasm.FuncType {
	return wasm.FuncType{Params: params, Results: results}
}

func vals(v ...wasm.ValType) []wasm.ValType { return v }

// Arithmetic exports pure numeric functions:
//
//	add(i32, i32) i32         multiply(i32, i32) i32
//	add64(i64, i64) i64       addf32(f32, f32) f32
//	addf64(f64, f64) f64      div(i32, i32) i32 (traps on zero)
//	answer() i32              noop()
//	trap() (unreachable)      recurse() (exhausts the stack)
func Arithmetic() []byte {
	b := wasm.NewBuilder()
	export := func(name string, ft wasm.FuncType, body *wasm.Expr) uint32 {
		idx := b.Func(ft, nil, body)
		b.Export(name, wasm.KindFunc, idx)
		return idx
	}

	export("add", sig(vals(i32, i32), i32), wasm.Code().LocalGet(0).LocalGet(1).I32Add())
	export("multiply", sig(vals(i32, i32), i32), wasm.Code().LocalGet(0).LocalGet(1).I32Mul())
	export("add64", sig(vals(i64, i64), i64), wasm.Code().LocalGet(0).LocalGet(1).I64Add())
	export("addf32", sig(vals(f32, f32), f32), wasm.Code().LocalGet(0).LocalGet(1).F32Add())
	export("addf64", sig(vals(f64, f64), f64), wasm.Code().LocalGet(0).LocalGet(1).F64Add())
	export("div", sig(vals(i32, i32), i32), wasm.Code().LocalGet(0).LocalGet(1).I32DivS())
	export("answer", sig(none, i32), wasm.Code().I32Const(42))
	export("noop", sig(none), nil)
	export("trap", sig(none), wasm.Code().Unreachable())

	// recurse calls itself unconditionally; its index is the next function slot.
	next := uint32(9)
	export("recurse", sig(none), wasm.Code().Call(next))
	return b.Bytes()
}

// Memory exports a linear memory with the given limits in pages, plus:
//
//	set_value(ptr, val i32)  stores val at ptr
//	get_value(ptr i32) i32   loads from ptr (traps when out of bounds)
//	grow(delta i32) i32      memory.grow, returns previous pages or -1
//	size() i32               memory.size in pages
//	bump() i32               increments the exported global "counter"
//
// The module also exports a mutable i32 global "counter" and a funcref
// table "table" so export introspection sees every kind.
func Memory(minPages uint32, maxPages *uint32) []byte {
	b := wasm.NewBuilder()
	mem := b.Memory(minPages, maxPages)
	counter := b.Global(i32, true, wasm.Code().I32Const(0))
	tbl := b.Table(1, nil)

	set := b.Func(sig(vals(i32, i32)), nil, wasm.Code().LocalGet(0).LocalGet(1).I32Store(0))
	get := b.Func(sig(vals(i32), i32), nil, wasm.Code().LocalGet(0).I32Load(0))
	grow := b.Func(sig(vals(i32), i32), nil, wasm.Code().LocalGet(0).MemoryGrow())
	size := b.Func(sig(none, i32), nil, wasm.Code().MemorySize())
	bump := b.Func(sig(none, i32), nil, wasm.Code().
		GlobalGet(counter).I32Const(1).I32Add().GlobalSet(counter).GlobalGet(counter))

	b.Export("memory", wasm.KindMemory, mem).
		Export("counter", wasm.KindGlobal, counter).
		Export("table", wasm.KindTable, tbl).
		Export("set_value", wasm.KindFunc, set).
		Export("get_value", wasm.KindFunc, get).
		Export("grow", wasm.KindFunc, grow).
		Export("size", wasm.KindFunc, size).
		Export("bump", wasm.KindFunc, bump)
	return b.Bytes()
}

// Spin exports spin(), which never returns, and answer() i32.
func Spin() []byte {
	b := wasm.NewBuilder()
	spin := b.Func(sig(none), nil, wasm.Code().Loop().Br(0).End())
	answer := b.Func(sig(none, i32), nil, wasm.Code().I32Const(42))
	b.Export("spin", wasm.KindFunc, spin).Export("answer", wasm.KindFunc, answer)
	return b.Bytes()
}

// StartTrap has a start function that traps during instantiation.
func StartTrap() []byte {
	b := wasm.NewBuilder()
	start := b.Func(sig(none), nil, wasm.Code().Unreachable())
	b.Start(start)
	return b.Bytes()
}

// Reactor exports _initialize, which sets the global read by initialized().
func Reactor() []byte {
	b := wasm.NewBuilder()
	flag := b.Global(i32, true, wasm.Code().I32Const(0))
	initFn := b.Func(sig(none), nil, wasm.Code().I32Const(1).GlobalSet(flag))
	read := b.Func(sig(none, i32), nil, wasm.Code().GlobalGet(flag))
	b.Export("_initialize", wasm.KindFunc, initFn).Export("initialized", wasm.KindFunc, read)
	return b.Bytes()
}

// UnresolvedImport imports a host function nobody provides.
func UnresolvedImport() []byte {
	b := wasm.NewBuilder()
	imp := b.ImportFunc("env", "missing", sig(none))
	run := b.Func(sig(none), nil, wasm.Code().Call(imp))
	b.Export("run", wasm.KindFunc, run)
	return b.Bytes()
}

// Scratch addresses used by the WASI fixtures.
const (
	PathOffset   = 256  // where callers write path bytes
	DataOffset   = 512  // where callers write file content for write_file
	fdSlot       = 1024 // path_open result
	iovSlot      = 1032 // one iovec {buf, len}
	countSlot    = 1040 // nread / nwritten result
	ReadOffset   = 2048 // read_file destination buffer
	ReadCapacity = 1024
)

const (
	lookupSymlinkFollow = 1
	oflagCreat          = 1
	oflagTrunc          = 8
	rightFdRead         = 1 << 1
	rightFdWrite        = 1 << 6
)

// FileIO imports WASI filesystem calls and exports:
//
//	read_file(path_ptr, path_len i32) i32
//	write_file(path_ptr, path_len, data_ptr, data_len i32) i32
//	argc() i32, envc() i32
//
// The path is resolved against the first preopen (fd 3). Results are the
// byte count on success or the negated WASI errno on failure. read_file
// places file content at ReadOffset.
func FileIO() []byte {
	b := wasm.NewBuilder()
	pathOpen := b.ImportFunc(wasiModule, "path_open",
		sig(vals(i32, i32, i32, i32, i32, i64, i64, i32, i32), i32))
	fdRead := b.ImportFunc(wasiModule, "fd_read", sig(vals(i32, i32, i32, i32), i32))
	fdWrite := b.ImportFunc(wasiModule, "fd_write", sig(vals(i32, i32, i32, i32), i32))
	fdClose := b.ImportFunc(wasiModule, "fd_close", sig(vals(i32), i32))
	argsSizes := b.ImportFunc(wasiModule, "args_sizes_get", sig(vals(i32, i32), i32))
	envSizes := b.ImportFunc(wasiModule, "environ_sizes_get", sig(vals(i32, i32), i32))

	mem := b.Memory(1, nil)

	// failOn returns -errno from the enclosing function when local errno is non-zero.
	failOn := func(e *wasm.Expr, errno uint32) *wasm.Expr {
		return e.LocalTee(errno).If().I32Const(0).LocalGet(errno).I32Sub().Return().End()
	}

	// read_file locals: 0 path_ptr, 1 path_len, 2 errno
	read := wasm.Code().
		I32Const(3).I32Const(lookupSymlinkFollow).LocalGet(0).LocalGet(1).
		I32Const(0).I64Const(rightFdRead).I64Const(0).I32Const(0).I32Const(fdSlot).
		Call(pathOpen)
	failOn(read, 2)
	read.I32Const(iovSlot).I32Const(ReadOffset).I32Store(0).
		I32Const(iovSlot + 4).I32Const(ReadCapacity).I32Store(0).
		I32Const(fdSlot).I32Load(0).I32Const(iovSlot).I32Const(1).I32Const(countSlot).
		Call(fdRead)
	failOn(read, 2)
	read.I32Const(fdSlot).I32Load(0).Call(fdClose).Drop().
		I32Const(countSlot).I32Load(0)
	readFn := b.Func(sig(vals(i32, i32), i32), vals(i32), read)

	// write_file locals: 0 path_ptr, 1 path_len, 2 data_ptr, 3 data_len, 4 errno
	write := wasm.Code().
		I32Const(3).I32Const(lookupSymlinkFollow).LocalGet(0).LocalGet(1).
		I32Const(oflagCreat|oflagTrunc).I64Const(rightFdRead|rightFdWrite).I64Const(0).I32Const(0).I32Const(fdSlot).
		Call(pathOpen)
	failOn(write, 4)
	write.I32Const(iovSlot).LocalGet(2).I32Store(0).
		I32Const(iovSlot + 4).LocalGet(3).I32Store(0).
		I32Const(fdSlot).I32Load(0).I32Const(iovSlot).I32Const(1).I32Const(countSlot).
		Call(fdWrite)
	failOn(write, 4)
	write.I32Const(fdSlot).I32Load(0).Call(fdClose).Drop().
		I32Const(countSlot).I32Load(0)
	writeFn := b.Func(sig(vals(i32, i32, i32, i32), i32), vals(i32), write)

	argc := b.Func(sig(none, i32), nil, wasm.Code().
		I32Const(countSlot).I32Const(countSlot+4).Call(argsSizes).Drop().
		I32Const(countSlot).I32Load(0))
	envc := b.Func(sig(none, i32), nil, wasm.Code().
		I32Const(countSlot).I32Const(countSlot+4).Call(envSizes).Drop().
		I32Const(countSlot).I32Load(0))

	b.Export("memory", wasm.KindMemory, mem).
		Export("read_file", wasm.KindFunc, readFn).
		Export("write_file", wasm.KindFunc, writeFn).
		Export("argc", wasm.KindFunc, argc).
		Export("envc", wasm.KindFunc, envc)
	return b.Bytes()
}

// Greeter writes "hello\n" to stdout from hello() and calls proc_exit(code)
// from exit(code).
func Greeter() []byte {
	b := wasm.NewBuilder()
	fdWrite := b.ImportFunc(wasiModule, "fd_write", sig(vals(i32, i32, i32, i32), i32))
	procExit := b.ImportFunc(wasiModule, "proc_exit", sig(vals(i32)))
	mem := b.Memory(1, nil)
	b.Data(DataOffset, []byte("hello\n"))

	hello := b.Func(sig(none, i32), nil, wasm.Code().
		I32Const(iovSlot).I32Const(DataOffset).I32Store(0).
		I32Const(iovSlot+4).I32Const(6).I32Store(0).
		I32Const(1).I32Const(iovSlot).I32Const(1).I32Const(countSlot).Call(fdWrite))
	exit := b.Func(sig(vals(i32)), nil, wasm.Code().LocalGet(0).Call(procExit))

	b.Export("memory", wasm.KindMemory, mem).
		Export("hello", wasm.KindFunc, hello).
		Export("exit", wasm.KindFunc, exit)
	return b.Bytes()
}
