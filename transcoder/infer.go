package transcoder

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/wippyai/wasm-sandbox/errors"
)

const twoTo63 = 9223372036854775808.0

// Infer maps an untagged host number to a wasm value: integral values that
// fit in 32 bits become i32, other integral values i64, everything else f64.
// f32 is never inferred. A Value passes through unchanged.
func Infer(x any) (Value, error) {
	switch v := x.(type) {
	case Value:
		return v, nil
	case int:
		return inferInt(int64(v)), nil
	case int8:
		return inferInt(int64(v)), nil
	case int16:
		return inferInt(int64(v)), nil
	case int32:
		return inferInt(int64(v)), nil
	case int64:
		return inferInt(v), nil
	case uint:
		return inferUint(uint64(v))
	case uint8:
		return inferInt(int64(v)), nil
	case uint16:
		return inferInt(int64(v)), nil
	case uint32:
		return inferInt(int64(v)), nil
	case uint64:
		return inferUint(v)
	case float32:
		return inferFloat(float64(v)), nil
	case float64:
		return inferFloat(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return inferInt(n), nil
		}
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return Value{}, errors.TypeMismatch(nil, "%q is not a number", string(v))
		}
		return inferFloat(f), nil
	case nil:
		return Value{}, errors.TypeMismatch(nil, "nil is not a wasm value")
	default:
		return Value{}, errors.TypeMismatch(nil, "%T is not a wasm number", x)
	}
}

func inferInt(n int64) Value {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return Value{kind: KindI32, bits: uint64(uint32(int32(n)))}
	}
	return Value{kind: KindI64, bits: uint64(n)}
}

func inferUint(n uint64) (Value, error) {
	if n > math.MaxInt64 {
		return Value{}, errors.TypeMismatch(nil, "%d overflows i64", n)
	}
	return inferInt(int64(n)), nil
}

func inferFloat(f float64) Value {
	if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Trunc(f) == f && f >= -twoTo63 && f < twoTo63 {
		return inferInt(int64(f))
	}
	return Value{kind: KindF64, bits: math.Float64bits(f)}
}

// Coerce returns the raw encoding of v as the target kind. Explicit values
// must already carry the target tag. Inferred values are converted only
// when no information is lost.
func Coerce(v Value, target Kind) (uint64, error) {
	if v.kind == target {
		return v.bits, nil
	}
	if v.explicit {
		return 0, errors.TypeMismatch(nil, "cannot pass %s %s as %s", v.kind, v, target)
	}

	switch v.kind {
	case KindI32:
		n := int64(v.I32())
		switch target {
		case KindI64:
			return uint64(n), nil
		case KindF64:
			return math.Float64bits(float64(n)), nil
		case KindF32:
			if f := float32(n); int64(f) == n {
				return uint64(math.Float32bits(f)), nil
			}
		}
	case KindI64:
		n := v.I64()
		switch target {
		case KindF64:
			if f := float64(n); f < twoTo63 && int64(f) == n {
				return math.Float64bits(f), nil
			}
		case KindF32:
			if f := float32(n); float64(f) < twoTo63 && int64(f) == n {
				return uint64(math.Float32bits(f)), nil
			}
		}
	case KindF64:
		x := v.F64()
		if target == KindF32 {
			if f := float32(x); float64(f) == x || math.IsNaN(x) {
				return uint64(math.Float32bits(f)), nil
			}
		}
	}
	return 0, errors.TypeMismatch(nil, "cannot pass %s without loss as %s", v, target)
}
