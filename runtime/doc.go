// Package runtime is the embedding surface of the sandbox: a registry of
// compiled modules and live instances addressed by opaque handles.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, runtime.WithCallTimeout(time.Second))
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
//	// nil grants nothing: no files, no env, no args
//	inst, err := rt.Instantiate(ctx, mod, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Drop(ctx, inst)
//
//	out, err := rt.Call(ctx, inst, "multiply", 6, 7)
//	fmt.Println(out) // [i32:42]
//
// # Handles
//
// ModuleHandle and InstanceHandle are plain integers. They are never reused
// within a Runtime, and once dropped every operation on them fails with
// InvalidModuleHandle or InvalidInstanceHandle. A module cannot be dropped
// while instances created from it are alive (ModuleInUse).
//
// Identical bytecode is compiled once. Each Compile still returns its own
// handle; the shared artifact is released with the last handle.
//
// # Capabilities
//
// Filesystem access is granted per instance through wasi.Config preopens.
// Each preopen is an os.Root directory handle, so guest paths cannot climb
// out of it with ".." or symlinks:
//
//	cfg := wasi.NewConfig().
//	    WithPreopen("/data", "/srv/tenant-a").
//	    WithEnv("MODE", "batch")
//	inst, err := rt.Instantiate(ctx, mod, cfg)
//
// # Values
//
// Call accepts transcoder.Value for exact typing or bare Go numbers, which
// are inferred and widened only when no precision is lost. Results are
// always tagged values.
//
// # Host Functions
//
//	rt.RegisterFunc("env", "log_i32", func(ctx context.Context, v int32) {
//	    log.Println(v)
//	})
//
// or implement Host to register every exported method of a struct. A
// namespace is frozen once a module importing it has been instantiated.
//
// # Thread Safety
//
// Runtime is safe for concurrent use. Calls and memory operations on one
// instance are serialized; different instances run in parallel. The context
// passed to Call bounds only the wait for the instance. A running call ends
// by returning, trapping, or exhausting the WithCallTimeout budget, which
// terminates the instance.
//
// The Async variants run the operation on a worker goroutine and return a
// Future; WithMaxConcurrency bounds the workers.
package runtime
