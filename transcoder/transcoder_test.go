package transcoder

import (
	"encoding/json"
	stderrors "errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-sandbox/errors"
)

func TestInfer(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind Kind
		want any
	}{
		{"small int", 5, KindI32, int32(5)},
		{"negative int", -7, KindI32, int32(-7)},
		{"max i32", int64(math.MaxInt32), KindI32, int32(math.MaxInt32)},
		{"min i32", int64(math.MinInt32), KindI32, int32(math.MinInt32)},
		{"past i32", int64(math.MaxInt32) + 1, KindI64, int64(math.MaxInt32) + 1},
		{"uint32 max", uint32(math.MaxUint32), KindI64, int64(math.MaxUint32)},
		{"integral float", 3.0, KindI32, int32(3)},
		{"large integral float", 1e12, KindI64, int64(1e12)},
		{"fraction", 1.5, KindF64, 1.5},
		{"float32 fraction", float32(0.25), KindF64, 0.25},
		{"json int", json.Number("12"), KindI32, int32(12)},
		{"json exp", json.Number("1e3"), KindI32, int32(1000)},
		{"json float", json.Number("2.5"), KindF64, 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Infer(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.want, v.Interface())
			assert.False(t, v.Explicit())
		})
	}
}

func TestInfer_NeverF32(t *testing.T) {
	for _, in := range []any{float32(1.25), 1.25, math.Inf(1), math.NaN()} {
		v, err := Infer(in)
		require.NoError(t, err)
		assert.NotEqual(t, KindF32, v.Kind(), "input %v", in)
	}
}

func TestInfer_Rejects(t *testing.T) {
	for _, in := range []any{"5", true, nil, []int{1}, uint64(math.MaxUint64)} {
		_, err := Infer(in)
		require.Error(t, err, "input %v", in)
		assert.True(t, stderrors.Is(err, errors.ErrTypeMismatch))
	}
}

func TestInfer_PassesValuesThrough(t *testing.T) {
	v, err := Infer(F32(1.5))
	require.NoError(t, err)
	assert.True(t, v.Explicit())
	assert.Equal(t, KindF32, v.Kind())
}

func TestCoerce(t *testing.T) {
	mustInfer := func(x any) Value {
		v, err := Infer(x)
		require.NoError(t, err)
		return v
	}

	tests := []struct {
		name    string
		in      Value
		target  Kind
		wantErr bool
		check   func(t *testing.T, raw uint64)
	}{
		{"inferred i32 to i64", mustInfer(-3), KindI64, false, func(t *testing.T, raw uint64) {
			assert.Equal(t, int64(-3), int64(raw))
		}},
		{"inferred i32 to f64", mustInfer(7), KindF64, false, func(t *testing.T, raw uint64) {
			assert.Equal(t, 7.0, api.DecodeF64(raw))
		}},
		{"inferred i32 to f32 exact", mustInfer(1 << 24), KindF32, false, func(t *testing.T, raw uint64) {
			assert.Equal(t, float32(1<<24), api.DecodeF32(raw))
		}},
		{"inferred i32 to f32 inexact", mustInfer(1<<24 + 1), KindF32, true, nil},
		{"inferred i64 to f64 exact", mustInfer(int64(1) << 40), KindF64, false, nil},
		{"inferred i64 to f64 inexact", mustInfer(int64(1)<<53 + 1), KindF64, true, nil},
		{"inferred i64 to i32", mustInfer(int64(1) << 40), KindI32, true, nil},
		{"inferred f64 to f32 exact", mustInfer(0.5), KindF32, false, func(t *testing.T, raw uint64) {
			assert.Equal(t, float32(0.5), api.DecodeF32(raw))
		}},
		{"inferred f64 to f32 inexact", mustInfer(0.1), KindF32, true, nil},
		{"inferred f64 to i32", mustInfer(1.5), KindI32, true, nil},
		{"explicit match", I64(9), KindI64, false, func(t *testing.T, raw uint64) {
			assert.Equal(t, uint64(9), raw)
		}},
		{"explicit i32 to i64", I32(9), KindI64, true, nil},
		{"explicit f64 to f32", F64(0.5), KindF32, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Coerce(tt.in, tt.target)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.CodeTypeMismatch, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, raw)
			}
		})
	}
}

func TestLower(t *testing.T) {
	params := []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64}

	stack, err := Lower("mix", []any{-1, 2, F32(1.5), 0.25}, params)
	require.NoError(t, err)
	require.Len(t, stack, 4)
	assert.Equal(t, int32(-1), api.DecodeI32(stack[0]))
	assert.Equal(t, int64(2), int64(stack[1]))
	assert.Equal(t, float32(1.5), api.DecodeF32(stack[2]))
	assert.Equal(t, 0.25, api.DecodeF64(stack[3]))
}

func TestLower_Errors(t *testing.T) {
	params := []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}

	_, err := Lower("add", []any{1}, params)
	require.Error(t, err)
	assert.Equal(t, errors.CodeTypeMismatch, errors.CodeOf(err))

	_, err = Lower("add", []any{1, 1.5}, params)
	require.Error(t, err)
	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, []string{"add", "1"}, e.Path)

	_, err = Lower("add", []any{I64(1), 2}, params)
	require.Error(t, err)
	assert.Equal(t, errors.CodeTypeMismatch, errors.CodeOf(err))

	_, err = Lower("ref", []any{1}, []api.ValueType{api.ValueTypeExternref})
	require.Error(t, err)
}

func TestLift(t *testing.T) {
	raw := []uint64{api.EncodeI32(-5), api.EncodeF64(2.5)}
	vals, err := Lift("f", raw, []api.ValueType{api.ValueTypeI32, api.ValueTypeF64})
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.True(t, vals[0].Equal(I32(-5)))
	assert.True(t, vals[1].Equal(F64(2.5)))
	assert.True(t, vals[0].Explicit())

	empty, err := Lift("noop", nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestFromRaw_MasksHighBits(t *testing.T) {
	v := FromRaw(KindI32, 0xFFFFFFFF_00000007)
	assert.Equal(t, int32(7), v.I32())
	assert.Equal(t, uint64(7), v.Raw())
}

func TestValueJSON(t *testing.T) {
	tests := []struct {
		v    Value
		json string
	}{
		{I32(-5), `{"type":"i32","value":-5}`},
		{I64(math.MaxInt64), `{"type":"i64","value":9223372036854775807}`},
		{F32(1.5), `{"type":"f32","value":1.5}`},
		{F64(0.1), `{"type":"f64","value":0.1}`},
		{F64(math.Inf(-1)), `{"type":"f64","value":"-Inf"}`},
	}
	for _, tt := range tests {
		t.Run(tt.v.String(), func(t *testing.T) {
			data, err := json.Marshal(tt.v)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(data))

			var back Value
			require.NoError(t, json.Unmarshal(data, &back))
			assert.True(t, back.Equal(tt.v), "got %s", back)
		})
	}

	var nan Value
	require.NoError(t, json.Unmarshal([]byte(`{"type":"f64","value":"NaN"}`), &nan))
	assert.True(t, math.IsNaN(nan.F64()))
}

func TestValueJSON_Rejects(t *testing.T) {
	for _, in := range []string{
		`{"type":"i32","value":4294967296}`,
		`{"type":"u8","value":1}`,
		`{"type":"i64","value":1.5}`,
		`[1]`,
	} {
		var v Value
		err := json.Unmarshal([]byte(in), &v)
		require.Error(t, err, in)
	}
}

func TestDecodeArgs(t *testing.T) {
	args, err := DecodeArgs([]byte(`[5, {"type":"i64","value":5}, 2.5]`))
	require.NoError(t, err)
	require.Len(t, args, 3)

	stack, err := Lower("f", args, []api.ValueType{api.ValueTypeI64, api.ValueTypeI64, api.ValueTypeF64})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stack[0])
	assert.Equal(t, uint64(5), stack[1])
	assert.Equal(t, 2.5, api.DecodeF64(stack[2]))

	_, err = DecodeArgs([]byte(`{"not":"array"}`))
	require.Error(t, err)
	_, err = DecodeArgs([]byte(`["five"]`))
	require.Error(t, err)
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		in       string
		want     Value
		explicit bool
	}{
		{"i32:7", I32(7), true},
		{"i64:-9", I64(-9), true},
		{"f32:1.5", F32(1.5), true},
		{"f64:2", F64(2), true},
		{"42", I32(42), false},
		{"5000000000", I64(5000000000), false},
		{"0.5", F64(0.5), false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := ParseArg(tt.in)
			require.NoError(t, err)
			assert.True(t, v.Equal(tt.want), "got %s", v)
			assert.Equal(t, tt.explicit, v.Explicit())
		})
	}

	for _, bad := range []string{"x", "u32:1", "i32:1.5", "i32:99999999999"} {
		_, err := ParseArg(bad)
		assert.Error(t, err, bad)
	}
}
