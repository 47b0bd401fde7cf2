package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseCompile     Phase = "compile"     // bytecode validation and compilation
	PhaseLoad        Phase = "load"        // reading module bytes
	PhaseInstantiate Phase = "instantiate" // linking and start functions
	PhaseCall        Phase = "call"        // export invocation
	PhaseMemory      Phase = "memory"      // linear memory access
	PhaseMarshal     Phase = "marshal"     // value conversion across the boundary
	PhaseCapability  Phase = "capability"  // WASI capability construction
	PhaseRegistry    Phase = "registry"    // handle lookup and bookkeeping
)

// Kind categorizes the error. Every kind maps to a fixed numeric code
// that is stable across releases.
type Kind string

const (
	KindCompile               Kind = "compile_error"
	KindInstantiate           Kind = "instantiate_error"
	KindCall                  Kind = "call_error"
	KindExportNotFound        Kind = "export_not_found"
	KindInvalidModuleHandle   Kind = "invalid_module_handle"
	KindInvalidInstanceHandle Kind = "invalid_instance_handle"
	KindMemory                Kind = "memory_error"
	KindTypeMismatch          Kind = "type_mismatch"
	KindIO                    Kind = "io_error"
	KindPermissionDenied      Kind = "permission_denied"
	KindWasi                  Kind = "wasi_error"
	KindResourceLimitExceeded Kind = "resource_limit_exceeded"
	KindModuleInUse           Kind = "module_in_use"
)

// Code is the numeric form of a Kind.
type Code int

const (
	CodeUnknown               Code = 0
	CodeCompile               Code = 1
	CodeInstantiate           Code = 2
	CodeCall                  Code = 3
	CodeExportNotFound        Code = 4
	CodeInvalidModuleHandle   Code = 5
	CodeInvalidInstanceHandle Code = 6
	CodeMemory                Code = 7
	CodeTypeMismatch          Code = 8
	CodeIO                    Code = 9
	CodePermissionDenied      Code = 10
	CodeWasi                  Code = 11
	CodeResourceLimitExceeded Code = 12
	CodeModuleInUse           Code = 13
)

var kindCodes = map[Kind]Code{
	KindCompile:               CodeCompile,
	KindInstantiate:           CodeInstantiate,
	KindCall:                  CodeCall,
	KindExportNotFound:        CodeExportNotFound,
	KindInvalidModuleHandle:   CodeInvalidModuleHandle,
	KindInvalidInstanceHandle: CodeInvalidInstanceHandle,
	KindMemory:                CodeMemory,
	KindTypeMismatch:          CodeTypeMismatch,
	KindIO:                    CodeIO,
	KindPermissionDenied:      CodePermissionDenied,
	KindWasi:                  CodeWasi,
	KindResourceLimitExceeded: CodeResourceLimitExceeded,
	KindModuleInUse:           CodeModuleInUse,
}

// Code returns the fixed numeric code for k, or CodeUnknown.
func (k Kind) Code() Code {
	return kindCodes[k]
}

// Kind returns the kind for a numeric code, or "" for unknown codes.
func (c Code) Kind() Kind {
	for k, code := range kindCodes {
		if code == c {
			return k
		}
	}
	return ""
}

// Error is the structured error type returned by every public operation
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Code returns the numeric code of the error's kind
func (e *Error) Code() Code {
	return e.Kind.Code()
}

// Message returns the human-readable part of the error without the phase prefix
func (e *Error) Message() string {
	msg := e.Detail
	if e.Cause != nil {
		if msg == "" {
			return e.Cause.Error()
		}
		msg += ": " + e.Cause.Error()
	}
	if msg == "" {
		return string(e.Kind)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a phase
// matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

type wireError struct {
	Code    Code   `json:"code"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// MarshalJSON encodes the error as {code, kind, message} for the host boundary
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireError{Code: e.Code(), Kind: e.Kind, Message: e.Message()})
}

// Sentinels for errors.Is checks against a kind
var (
	ErrCompile               = &Error{Kind: KindCompile}
	ErrInstantiate           = &Error{Kind: KindInstantiate}
	ErrCall                  = &Error{Kind: KindCall}
	ErrExportNotFound        = &Error{Kind: KindExportNotFound}
	ErrInvalidModuleHandle   = &Error{Kind: KindInvalidModuleHandle}
	ErrInvalidInstanceHandle = &Error{Kind: KindInvalidInstanceHandle}
	ErrMemory                = &Error{Kind: KindMemory}
	ErrTypeMismatch          = &Error{Kind: KindTypeMismatch}
	ErrIO                    = &Error{Kind: KindIO}
	ErrPermissionDenied      = &Error{Kind: KindPermissionDenied}
	ErrWasi                  = &Error{Kind: KindWasi}
	ErrResourceLimitExceeded = &Error{Kind: KindResourceLimitExceeded}
	ErrModuleInUse           = &Error{Kind: KindModuleInUse}
)

// CodeOf returns the numeric code carried by err, or CodeUnknown when err
// is not (and does not wrap) an *Error.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code()
	}
	return CodeUnknown
}

// KindOf returns the kind carried by err, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the path (export name, guest path, ...)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Compile creates a compilation error
func Compile(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCompile,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiate,
		Detail: detail,
		Cause:  cause,
	}
}

// Trap creates a call error for a guest trap or exit
func Trap(export string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindCall,
		Path:   []string{export},
		Detail: "guest trapped",
		Cause:  cause,
	}
}

// ExportNotFound creates an error for a missing or non-function export
func ExportNotFound(name string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindExportNotFound,
		Path:   []string{name},
		Detail: fmt.Sprintf("export %q not found", name),
	}
}

// InvalidModuleHandle creates an error for an unknown or dropped module handle
func InvalidModuleHandle(h uint64) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindInvalidModuleHandle,
		Detail: fmt.Sprintf("module handle %d is not registered", h),
		Value:  h,
	}
}

// InvalidInstanceHandle creates an error for an unknown or dropped instance handle
func InvalidInstanceHandle(h uint64) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindInvalidInstanceHandle,
		Detail: fmt.Sprintf("instance handle %d is not registered", h),
		Value:  h,
	}
}

// OutOfBounds creates a memory error for an access past the end of linear memory
func OutOfBounds(offset uint64, length uint64, size uint64) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindMemory,
		Detail: fmt.Sprintf("access [%d, %d) out of bounds (memory size %d)", offset, offset+length, size),
		Value:  offset,
	}
}

// Memory creates a generic memory error
func Memory(detail string, args ...any) *Error {
	return New(PhaseMemory, KindMemory).Detail(detail, args...).Build()
}

// TypeMismatch creates a marshaling error for a value that cannot be passed
// as the expected wasm type
func TypeMismatch(path []string, detail string, args ...any) *Error {
	return New(PhaseMarshal, KindTypeMismatch).Path(path...).Detail(detail, args...).Build()
}

// IO creates an I/O error
func IO(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindIO,
		Detail: detail,
		Cause:  cause,
	}
}

// PermissionDenied creates an error for an access outside granted capabilities
func PermissionDenied(phase Phase, what string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPermissionDenied,
		Detail: what,
		Cause:  cause,
	}
}

// Wasi creates a capability construction error
func Wasi(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseCapability,
		Kind:   KindWasi,
		Detail: detail,
		Cause:  cause,
	}
}

// ResourceLimit creates an error for an exhausted execution or memory budget
func ResourceLimit(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindResourceLimitExceeded,
		Detail: detail,
		Cause:  cause,
	}
}

// ModuleInUse creates an error for dropping a module that live instances reference
func ModuleInUse(h uint64, instances int) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindModuleInUse,
		Detail: fmt.Sprintf("module %d is referenced by %d instance(s)", h, instances),
		Value:  h,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
