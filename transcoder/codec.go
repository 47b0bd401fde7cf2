package transcoder

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-sandbox/errors"
)

type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes v as {"type": "i32", "value": 5}. Non-finite floats
// are encoded as the strings "NaN", "+Inf" and "-Inf".
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.kind.Valid() {
		return nil, errors.TypeMismatch(nil, "cannot encode invalid value")
	}
	var num string
	switch v.kind {
	case KindI32:
		num = strconv.FormatInt(int64(v.I32()), 10)
	case KindI64:
		num = strconv.FormatInt(v.I64(), 10)
	case KindF32:
		num = formatFloat(float64(v.F32()), 32)
	case KindF64:
		num = formatFloat(v.F64(), 64)
	}
	return json.Marshal(wireValue{Type: v.kind.String(), Value: json.RawMessage(num)})
}

func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return `"NaN"`
	case math.IsInf(f, 1):
		return `"+Inf"`
	case math.IsInf(f, -1):
		return `"-Inf"`
	}
	return strconv.FormatFloat(f, 'g', -1, bitSize)
}

// UnmarshalJSON decodes the tagged form. Decoded values are explicit.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
			Detail("invalid tagged value").Cause(err).Build()
	}
	kind, ok := ParseKind(w.Type)
	if !ok {
		return errors.TypeMismatch(nil, "unknown value type %q", w.Type)
	}
	raw := strings.Trim(string(w.Value), `"`)
	parsed, err := parseTagged(kind, raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func parseTagged(kind Kind, s string) (Value, error) {
	switch kind {
	case KindI32:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return Value{}, errors.TypeMismatch(nil, "%q is not an i32", s)
		}
		return I32(int32(n)), nil
	case KindI64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, errors.TypeMismatch(nil, "%q is not an i64", s)
		}
		return I64(n), nil
	case KindF32:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Value{}, errors.TypeMismatch(nil, "%q is not an f32", s)
		}
		return F32(float32(f)), nil
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, errors.TypeMismatch(nil, "%q is not an f64", s)
		}
		return F64(f), nil
	}
}

// DecodeArgs decodes a JSON array of arguments. Objects are tagged values;
// bare numbers are left for inference.
func DecodeArgs(data []byte) ([]any, error) {
	var items []json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
			Detail("arguments must be a JSON array").Cause(err).Build()
	}

	args := make([]any, len(items))
	for i, item := range items {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var v Value
			if err := json.Unmarshal(trimmed, &v); err != nil {
				return nil, withPath(err, "args", i)
			}
			args[i] = v
			continue
		}
		var n json.Number
		d := json.NewDecoder(bytes.NewReader(trimmed))
		d.UseNumber()
		if err := d.Decode(&n); err != nil {
			return nil, errors.TypeMismatch(argPath("args", i), "%s is not a number", string(trimmed))
		}
		args[i] = n
	}
	return args, nil
}

// ParseArg parses the command-line form of an argument: "i64:5", "f32:1.5",
// or a bare number subject to inference.
func ParseArg(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if prefix, rest, found := strings.Cut(s, ":"); found {
		kind, ok := ParseKind(prefix)
		if !ok {
			return Value{}, errors.TypeMismatch(nil, "unknown value type %q", prefix)
		}
		return parseTagged(kind, rest)
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return Value{}, errors.TypeMismatch(nil, "%q is not a number", s)
	}
	return Infer(json.Number(s))
}
