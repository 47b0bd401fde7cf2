// Package engine is the thin layer over wazero that the runtime package
// builds on. It knows nothing about handles or registries.
//
// # Types
//
//	Engine   - owns one wazero runtime, compiles and instantiates
//	Module   - compiled, immutable artifact with its export descriptors
//	Instance - one execution context: memory, globals, capabilities
//	Memory   - bounds-checked accessor over an instance's linear memory
//
// # Instantiation
//
// Instances are anonymous, so a single Module backs any number of them,
// each with private memory. The WASI host module is linked the first time a
// module importing wasi_snapshot_preview1 is instantiated. After the start
// section, an exported _initialize runs so reactor modules are ready to
// call. Capability grants come from a wasi.Context, which the instance then
// owns.
//
// # Termination
//
// The runtime is created with close-on-context-done, so a call whose
// context expires is stopped and its instance terminated. Terminate does
// the same from another goroutine. Terminated instances reject further
// calls with CallError but can still be closed and inspected.
//
// # Thread Safety
//
// Engine and Module are safe for concurrent use. Instance is not; the
// runtime package serializes access per instance.
package engine
