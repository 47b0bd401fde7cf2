// Package wasm provides the small slice of the WebAssembly binary format the
// sandbox needs outside the engine itself.
//
// Compilation and validation are delegated to wazero. This package covers
// what wazero does not expose:
//
//   - CheckHeader rejects non-wasm input before it reaches the compiler
//   - ParseExports lists every export with its kind, including globals and
//     tables that wazero's CompiledModule does not enumerate
//   - Builder assembles core modules from Go code, used by tests, examples
//     and the testbed fixtures
//
// # Building a module
//
//	b := wasm.NewBuilder()
//	add := b.Func(wasm.FuncType{
//		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
//		Results: []wasm.ValType{wasm.ValI32},
//	}, nil, wasm.Code().LocalGet(0).LocalGet(1).I32Add())
//	b.Export("add", wasm.KindFunc, add)
//	bin := b.Bytes()
package wasm
