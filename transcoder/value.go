package transcoder

import (
	"fmt"
	"math"
	"strconv"

	"github.com/tetratelabs/wazero/api"
)

// Kind is a core wasm number type. Values share the binary-format encoding
// so they convert directly to and from api.ValueType.
type Kind byte

const (
	KindI32 Kind = Kind(api.ValueTypeI32)
	KindI64 Kind = Kind(api.ValueTypeI64)
	KindF32 Kind = Kind(api.ValueTypeF32)
	KindF64 Kind = Kind(api.ValueTypeF64)
)

func (k Kind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	default:
		return fmt.Sprintf("kind(0x%02x)", byte(k))
	}
}

// Valid reports whether k is one of the four number types.
func (k Kind) Valid() bool {
	switch k {
	case KindI32, KindI64, KindF32, KindF64:
		return true
	}
	return false
}

// ParseKind parses "i32", "i64", "f32" or "f64".
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "i32":
		return KindI32, true
	case "i64":
		return KindI64, true
	case "f32":
		return KindF32, true
	case "f64":
		return KindF64, true
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown value kind %q", b)
	}
	*k = parsed
	return nil
}

// KindOf converts a wazero value type. Reference types are not supported at
// the call boundary.
func KindOf(t api.ValueType) (Kind, bool) {
	k := Kind(t)
	return k, k.Valid()
}

// Kinds converts a wazero signature.
func Kinds(ts []api.ValueType) []Kind {
	out := make([]Kind, len(ts))
	for i, t := range ts {
		out[i] = Kind(t)
	}
	return out
}

// Value is a tagged wasm number. Values built with I32, I64, F32 or F64 are
// explicit: their tag is authoritative at the call boundary. Values produced
// by Infer carry a guessed tag and may be widened losslessly to fit a
// parameter.
type Value struct {
	kind     Kind
	bits     uint64
	explicit bool
}

// I32 returns an explicit i32 value.
func I32(v int32) Value {
	return Value{kind: KindI32, bits: uint64(uint32(v)), explicit: true}
}

// I64 returns an explicit i64 value.
func I64(v int64) Value {
	return Value{kind: KindI64, bits: uint64(v), explicit: true}
}

// F32 returns an explicit f32 value.
func F32(v float32) Value {
	return Value{kind: KindF32, bits: uint64(math.Float32bits(v)), explicit: true}
}

// F64 returns an explicit f64 value.
func F64(v float64) Value {
	return Value{kind: KindF64, bits: math.Float64bits(v), explicit: true}
}

// FromRaw lifts a wazero stack slot of the given kind into an explicit value.
func FromRaw(k Kind, raw uint64) Value {
	switch k {
	case KindI32, KindF32:
		raw = uint64(uint32(raw))
	}
	return Value{kind: k, bits: raw, explicit: true}
}

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// Explicit reports whether the tag was chosen by the caller rather than inferred.
func (v Value) Explicit() bool { return v.explicit }

// Raw returns the wazero stack encoding of the value.
func (v Value) Raw() uint64 { return v.bits }

func (v Value) I32() int32   { return int32(uint32(v.bits)) }
func (v Value) I64() int64   { return int64(v.bits) }
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) F64() float64 { return math.Float64frombits(v.bits) }

// Interface returns the value as its natural Go type.
func (v Value) Interface() any {
	switch v.kind {
	case KindI32:
		return v.I32()
	case KindI64:
		return v.I64()
	case KindF32:
		return v.F32()
	case KindF64:
		return v.F64()
	}
	return nil
}

// Equal compares tag and bit pattern. Explicitness is ignored.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.bits == o.bits
}

func (v Value) String() string {
	switch v.kind {
	case KindI32:
		return "i32:" + strconv.FormatInt(int64(v.I32()), 10)
	case KindI64:
		return "i64:" + strconv.FormatInt(v.I64(), 10)
	case KindF32:
		return "f32:" + strconv.FormatFloat(float64(v.F32()), 'g', -1, 32)
	case KindF64:
		return "f64:" + strconv.FormatFloat(v.F64(), 'g', -1, 64)
	}
	return "invalid"
}
