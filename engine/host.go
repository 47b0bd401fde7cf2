package engine

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-sandbox/errors"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	moduleType  = reflect.TypeOf((*api.Module)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// hostFunc is a Go function adapted to the wasm calling convention.
type hostFunc struct {
	fn      reflect.Value
	withCtx bool
	withMod bool
	params  []reflect.Type
	results []reflect.Type
	withErr bool

	paramTypes  []api.ValueType
	resultTypes []api.ValueType
}

// ValidateHostFunc reports whether fn can be exposed to guests. Accepted
// shapes are
//
//	func([context.Context,] [api.Module,] args...) ([results...,] [error])
//
// where args and results are int32, uint32, int64, uint64, float32 or
// float64 (or types derived from them). A non-nil error traps the guest.
func ValidateHostFunc(fn any) error {
	_, err := adaptHostFunc(fn)
	return err
}

func adaptHostFunc(fn any) (*hostFunc, error) {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, errors.New(errors.PhaseRegistry, errors.KindTypeMismatch).
			Detail("host handler must be a function, got %T", fn).Build()
	}
	rt := rv.Type()
	if rt.IsVariadic() {
		return nil, errors.New(errors.PhaseRegistry, errors.KindTypeMismatch).
			Detail("host handler %s must not be variadic", rt).Build()
	}

	h := &hostFunc{fn: rv}
	in := 0
	if in < rt.NumIn() && rt.In(in) == contextType {
		h.withCtx = true
		in++
	}
	if in < rt.NumIn() && rt.In(in) == moduleType {
		h.withMod = true
		in++
	}
	for ; in < rt.NumIn(); in++ {
		vt, ok := hostValueType(rt.In(in))
		if !ok {
			return nil, errors.New(errors.PhaseRegistry, errors.KindTypeMismatch).
				Detail("host handler %s: parameter %d has unsupported type %s", rt, in, rt.In(in)).Build()
		}
		h.params = append(h.params, rt.In(in))
		h.paramTypes = append(h.paramTypes, vt)
	}

	out := rt.NumOut()
	if out > 0 && rt.Out(out-1) == errorType {
		h.withErr = true
		out--
	}
	for i := 0; i < out; i++ {
		vt, ok := hostValueType(rt.Out(i))
		if !ok {
			return nil, errors.New(errors.PhaseRegistry, errors.KindTypeMismatch).
				Detail("host handler %s: result %d has unsupported type %s", rt, i, rt.Out(i)).Build()
		}
		h.results = append(h.results, rt.Out(i))
		h.resultTypes = append(h.resultTypes, vt)
	}
	return h, nil
}

func hostValueType(t reflect.Type) (api.ValueType, bool) {
	switch t.Kind() {
	case reflect.Int32, reflect.Uint32:
		return api.ValueTypeI32, true
	case reflect.Int64, reflect.Uint64:
		return api.ValueTypeI64, true
	case reflect.Float32:
		return api.ValueTypeF32, true
	case reflect.Float64:
		return api.ValueTypeF64, true
	}
	return 0, false
}

func decodeHost(t reflect.Type, raw uint64) reflect.Value {
	var v reflect.Value
	switch t.Kind() {
	case reflect.Int32:
		v = reflect.ValueOf(api.DecodeI32(raw))
	case reflect.Uint32:
		v = reflect.ValueOf(api.DecodeU32(raw))
	case reflect.Int64:
		v = reflect.ValueOf(int64(raw))
	case reflect.Uint64:
		v = reflect.ValueOf(raw)
	case reflect.Float32:
		v = reflect.ValueOf(api.DecodeF32(raw))
	default:
		v = reflect.ValueOf(api.DecodeF64(raw))
	}
	return v.Convert(t)
}

func encodeHost(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int32:
		return api.EncodeI32(int32(v.Int()))
	case reflect.Uint32:
		return api.EncodeU32(uint32(v.Uint()))
	case reflect.Int64:
		return api.EncodeI64(v.Int())
	case reflect.Uint64:
		return v.Uint()
	case reflect.Float32:
		return api.EncodeF32(float32(v.Float()))
	default:
		return api.EncodeF64(v.Float())
	}
}

func (h *hostFunc) call(ctx context.Context, mod api.Module, stack []uint64) {
	args := make([]reflect.Value, 0, len(h.params)+2)
	if h.withCtx {
		args = append(args, reflect.ValueOf(&ctx).Elem())
	}
	if h.withMod {
		args = append(args, reflect.ValueOf(&mod).Elem())
	}
	for i, t := range h.params {
		args = append(args, decodeHost(t, stack[i]))
	}

	out := h.fn.Call(args)
	if h.withErr {
		if err, _ := out[len(out)-1].Interface().(error); err != nil {
			// wazero converts the panic into an error for the caller
			panic(err)
		}
	}
	for i := range h.results {
		stack[i] = encodeHost(out[i])
	}
}

// LinkHost instantiates a host module named namespace exposing funcs to
// guests. A namespace can be linked once per engine.
func (e *Engine) LinkHost(ctx context.Context, namespace string, funcs map[string]any) error {
	if e.runtime.Module(namespace) != nil {
		return fmt.Errorf("host module %q already linked", namespace)
	}

	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)

	builder := e.runtime.NewHostModuleBuilder(namespace)
	for _, name := range names {
		h, err := adaptHostFunc(funcs[name])
		if err != nil {
			return err
		}
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(h.call), h.paramTypes, h.resultTypes).
			WithName(name).
			Export(name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("link host module %q: %w", namespace, err)
	}
	e.logger.Debug("host module linked", zap.String("namespace", namespace), zap.Int("funcs", len(names)))
	return nil
}
