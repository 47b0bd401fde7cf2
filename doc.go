// Package wasmsandbox embeds a WebAssembly engine behind a small,
// capability-scoped API: compile untrusted modules, instantiate them with
// explicitly granted directories, call their exports and inspect their
// linear memory.
//
// # Architecture Overview
//
//	wasmsandbox/         Root package with the linear memory interfaces
//	├── runtime/         Handle registry: compile, instantiate, call, memory, futures
//	├── engine/          wazero integration: compilation, instances, traps, host modules
//	├── wasi/            Capability builder: os.Root preopens, env, argv, stdio
//	├── transcoder/      Tagged wasm values, inference and the JSON/CLI codecs
//	├── wasm/            Binary helpers: header checks, export parsing, module builder
//	├── errors/          Error taxonomy with stable numeric codes
//	├── testbed/         Fixture modules and end-to-end tests
//	└── cmd/run/         Command line runner and interactive export browser
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	mod, err := rt.Compile(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg := wasi.NewConfig().WithPreopen("/data", hostDir)
//	inst, err := rt.Instantiate(ctx, mod, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Drop(ctx, inst)
//
//	out, err := rt.Call(ctx, inst, "multiply", 6, 7)
//	fmt.Println(out) // [i32:42]
//
// # Errors
//
// Every failure is an *errors.Error whose Code is stable across releases:
//
//	if errors.CodeOf(err) == errors.CodeModuleInUse {
//	    // drop the instances first
//	}
//
// # Memory Model
//
// Linear memory only grows. Each instance owns its memory; two instances of
// one module never observe each other's writes. Growth is bounded by the
// module's declared maximum and by runtime.WithMemoryLimitPages.
package wasmsandbox
