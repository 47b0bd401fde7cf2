// Package transcoder converts values across the host/guest call boundary.
//
// Core wasm functions take and return the four number types. A Value is a
// tagged union over them:
//
//	transcoder.I32(5)  transcoder.I64(5)  transcoder.F32(1.5)  transcoder.F64(1.5)
//
// Hosts may also pass bare Go numbers, which are inferred:
//
//	Host value                    Inferred
//	──────────────────────────────────────
//	integral, fits in 32 bits     i32
//	integral, otherwise           i64
//	non-integral (or NaN/Inf)     f64
//
// # Reconciliation
//
// When a function's signature is known, Lower reconciles each argument with
// its parameter type:
//
//   - explicit values must match exactly, otherwise type_mismatch
//   - inferred values are widened only when the conversion is exact
//     (i32 to i64, integers to floats within the float's mantissa,
//     f64 to f32 when representable)
//
// # Wire forms
//
//	JSON:  {"type": "i64", "value": 5}    bare JSON numbers are inferred
//	CLI:   i64:5   f32:1.5   42
package transcoder
