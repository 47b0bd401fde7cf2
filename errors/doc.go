// Package errors provides structured error types for the wasm-sandbox library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Every Kind maps to a fixed numeric Code so hosts can switch on
// failures without parsing messages:
//
//	compile_error 1, instantiate_error 2, call_error 3, export_not_found 4,
//	invalid_module_handle 5, invalid_instance_handle 6, memory_error 7,
//	type_mismatch 8, io_error 9, permission_denied 10, wasi_error 11,
//	resource_limit_exceeded 12, module_in_use 13
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
//		Path("add", "0").
//		Detail("cannot pass f64 1.5 as i32").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ExportNotFound("run")
//	err := errors.OutOfBounds(65530, 16, 65536)
//
// Kind sentinels work with the standard library:
//
//	if errors.Is(err, wserrors.ErrMemory) { ... }
//
// An *Error marshals to JSON as {"code": n, "kind": "...", "message": "..."}.
package errors
