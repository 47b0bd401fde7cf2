package transcoder

import (
	stderrors "errors"
	"strconv"

	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/wasm-sandbox/errors"
)

// Lower converts host arguments into wazero stack values for a function with
// the given parameter types. Each argument may be a Value or a bare Go
// number. Errors are type_mismatch with the export name and argument index
// as path.
func Lower(export string, args []any, params []api.ValueType) ([]uint64, error) {
	if len(args) != len(params) {
		return nil, errors.TypeMismatch([]string{export},
			"expects %d argument(s), got %d", len(params), len(args))
	}

	stack := make([]uint64, len(params))
	for i, arg := range args {
		target, ok := KindOf(params[i])
		if !ok {
			return nil, errors.TypeMismatch(argPath(export, i),
				"parameter type %s is not supported", api.ValueTypeName(params[i]))
		}
		v, err := Infer(arg)
		if err != nil {
			return nil, withPath(err, export, i)
		}
		raw, err := Coerce(v, target)
		if err != nil {
			return nil, withPath(err, export, i)
		}
		stack[i] = raw
	}
	return stack, nil
}

// Lift converts wazero results into explicit values.
func Lift(export string, raw []uint64, results []api.ValueType) ([]Value, error) {
	if len(raw) < len(results) {
		return nil, errors.TypeMismatch([]string{export},
			"expected %d result(s), got %d", len(results), len(raw))
	}
	out := make([]Value, len(results))
	for i, t := range results {
		k, ok := KindOf(t)
		if !ok {
			return nil, errors.TypeMismatch([]string{export, "result", strconv.Itoa(i)},
				"result type %s is not supported", api.ValueTypeName(t))
		}
		out[i] = FromRaw(k, raw[i])
	}
	return out, nil
}

func argPath(export string, i int) []string {
	return []string{export, strconv.Itoa(i)}
}

func withPath(err error, export string, i int) error {
	var e *errors.Error
	if stderrors.As(err, &e) && len(e.Path) == 0 {
		e.Path = argPath(export, i)
	}
	return err
}
