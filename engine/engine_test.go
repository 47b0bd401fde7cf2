package engine

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/testbed"
	"github.com/wippyai/wasm-sandbox/transcoder"
	"github.com/wippyai/wasm-sandbox/wasi"
	"github.com/wippyai/wasm-sandbox/wasm"
)

func newEngine(t *testing.T, cfg *Config) *Engine {
	t.Helper()
	ctx := context.Background()
	e, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(ctx) })
	return e
}

func instantiate(t *testing.T, e *Engine, bin []byte, wctx *wasi.Context) *Instance {
	t.Helper()
	ctx := context.Background()
	m, err := e.Compile(ctx, bin)
	require.NoError(t, err)
	inst, err := e.Instantiate(ctx, m, wctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close(ctx) })
	return inst
}

func TestCompile_Invalid(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not wasm")},
		{"bad version", []byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00}},
		{"truncated body", append(testbed.Arithmetic()[:20:20], 0xff)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := e.Compile(ctx, tt.data)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.Equal(t, errors.CodeCompile, errors.CodeOf(err))
		})
	}
}

func TestModule_Exports(t *testing.T) {
	e := newEngine(t, nil)
	m, err := e.Compile(context.Background(), testbed.Memory(1, wasm.Max(4)))
	require.NoError(t, err)

	byName := make(map[string]ExportDescriptor)
	for _, d := range m.Exports() {
		byName[d.Name] = d
	}
	assert.Equal(t, ExportMemory, byName["memory"].Kind)
	assert.Equal(t, ExportGlobal, byName["counter"].Kind)
	assert.Equal(t, ExportTable, byName["table"].Kind)

	set := byName["set_value"]
	assert.Equal(t, ExportFunction, set.Kind)
	assert.Equal(t, []transcoder.Kind{transcoder.KindI32, transcoder.KindI32}, set.Params)
	assert.Empty(t, set.Results)

	maxPages, ok := m.MemoryMax()
	assert.True(t, ok)
	assert.Equal(t, uint32(4), maxPages)
	assert.False(t, m.ImportsWASI())
}

func TestInstance_Call(t *testing.T) {
	e := newEngine(t, nil)
	inst := instantiate(t, e, testbed.Arithmetic(), nil)
	ctx := context.Background()

	out, err := inst.Call(ctx, "multiply", 6, 7)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int32(42), out[0].I32())

	out, err = inst.Call(ctx, "add64", int64(math.MaxInt32)+1, 1)
	require.NoError(t, err)
	assert.Equal(t, transcoder.I64(math.MaxInt32+2), out[0])

	out, err = inst.Call(ctx, "addf32", transcoder.F32(1.5), transcoder.F32(2.25))
	require.NoError(t, err)
	assert.Equal(t, float32(3.75), out[0].F32())

	out, err = inst.Call(ctx, "noop")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestInstance_CallErrors(t *testing.T) {
	e := newEngine(t, nil)
	inst := instantiate(t, e, testbed.Arithmetic(), nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		export string
		args   []any
		code   errors.Code
	}{
		{"missing export", "nope", nil, errors.CodeExportNotFound},
		{"arity", "add", []any{1}, errors.CodeTypeMismatch},
		{"explicit kind", "add", []any{transcoder.I64(1), 2}, errors.CodeTypeMismatch},
		{"unreachable", "trap", nil, errors.CodeCall},
		{"divide by zero", "div", []any{1, 0}, errors.CodeCall},
		{"stack exhaustion", "recurse", nil, errors.CodeCall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := inst.Call(ctx, tt.export, tt.args...)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}

	// traps leave the instance usable
	out, err := inst.Call(ctx, "answer")
	require.NoError(t, err)
	assert.Equal(t, int32(42), out[0].I32())
	assert.False(t, inst.Terminated())
}

func TestInstance_Deadline(t *testing.T) {
	e := newEngine(t, nil)
	inst := instantiate(t, e, testbed.Spin(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := inst.Call(ctx, "spin")
	require.Error(t, err)
	assert.Equal(t, errors.CodeResourceLimitExceeded, errors.CodeOf(err))
	assert.True(t, inst.Terminated())

	_, err = inst.Call(context.Background(), "answer")
	require.Error(t, err)
	assert.Equal(t, errors.CodeCall, errors.CodeOf(err))
}

func TestInstance_Terminate(t *testing.T) {
	e := newEngine(t, nil)
	inst := instantiate(t, e, testbed.Spin(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := inst.Call(context.Background(), "spin")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, inst.Terminate(context.Background()))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, errors.CodeCall, errors.CodeOf(err))
	case <-time.After(5 * time.Second):
		t.Fatal("spin was not interrupted")
	}
}

func TestInstantiate_Failures(t *testing.T) {
	e := newEngine(t, nil)
	ctx := context.Background()

	for name, bin := range map[string][]byte{
		"start trap":        testbed.StartTrap(),
		"unresolved import": testbed.UnresolvedImport(),
	} {
		t.Run(name, func(t *testing.T) {
			m, err := e.Compile(ctx, bin)
			require.NoError(t, err)
			inst, err := e.Instantiate(ctx, m, nil)
			require.Error(t, err)
			assert.Nil(t, inst)
			assert.Equal(t, errors.CodeInstantiate, errors.CodeOf(err))
		})
	}
}

func TestInstantiate_RunsInitialize(t *testing.T) {
	e := newEngine(t, nil)
	inst := instantiate(t, e, testbed.Reactor(), nil)

	out, err := inst.Call(context.Background(), "initialized")
	require.NoError(t, err)
	assert.Equal(t, int32(1), out[0].I32())
}

func TestMemory(t *testing.T) {
	e := newEngine(t, nil)
	inst := instantiate(t, e, testbed.Memory(1, wasm.Max(2)), nil)
	mem := inst.Memory()
	require.NotNil(t, mem)

	assert.Equal(t, uint32(1), mem.Pages())
	assert.Equal(t, uint32(wasm.PageSize), mem.Size())

	require.NoError(t, mem.Write(100, []byte{1, 2, 3}))
	got, err := mem.Read(100, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	// reads are copies
	got[0] = 9
	again, _ := mem.Read(100, 1)
	assert.Equal(t, byte(1), again[0])

	require.NoError(t, mem.WriteU32(8, 12345))
	v, err := mem.ReadU32(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(12345), v)

	require.NoError(t, mem.WriteU64(16, math.MaxUint64))
	v64, err := mem.ReadU64(16)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), v64)

	_, err = mem.Read(wasm.PageSize-2, 4)
	assert.Equal(t, errors.CodeMemory, errors.CodeOf(err))
	assert.Equal(t, errors.CodeMemory, errors.CodeOf(mem.Write(math.MaxUint32, []byte{1})))
	_, err = mem.ReadU32(wasm.PageSize - 3)
	assert.Equal(t, errors.CodeMemory, errors.CodeOf(err))

	prev, err := mem.Grow(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), prev)
	assert.Equal(t, uint32(2), mem.Pages())

	_, err = mem.Grow(1)
	require.Error(t, err)
	assert.Equal(t, errors.CodeMemory, errors.CodeOf(err))
	assert.Equal(t, uint32(2), mem.Pages())
}

func TestMemoryLimitPages(t *testing.T) {
	e := newEngine(t, &Config{MemoryLimitPages: 2})
	inst := instantiate(t, e, testbed.Memory(1, nil), nil)

	_, err := inst.Memory().Grow(4)
	require.Error(t, err)
	assert.Equal(t, errors.CodeMemory, errors.CodeOf(err))

	_, err = New(context.Background(), &Config{MemoryLimitPages: wasm.MaxPages + 1})
	require.Error(t, err)
}

func TestNoMemoryExport(t *testing.T) {
	e := newEngine(t, nil)
	inst := instantiate(t, e, testbed.Arithmetic(), nil)
	assert.True(t, inst.Memory() == nil)

	b := wasm.NewBuilder()
	b.Memory(1, nil)
	fn := b.Func(wasm.FuncType{}, nil, wasm.Code())
	b.Export("run", wasm.KindFunc, fn)
	private := instantiate(t, e, b.Bytes(), nil)
	assert.True(t, private.Memory() == nil, "declared but unexported memory must stay private")
}

func TestMemoryExportedUnderOtherName(t *testing.T) {
	e := newEngine(t, nil)
	b := wasm.NewBuilder()
	mem := b.Memory(1, nil)
	b.Export("heap", wasm.KindMemory, mem)
	inst := instantiate(t, e, b.Bytes(), nil)

	require.NotNil(t, inst.Memory())
	assert.Equal(t, uint32(1), inst.Memory().Pages())
}

func TestWASI_Stdout(t *testing.T) {
	e := newEngine(t, nil)
	var out bytes.Buffer
	wctx, err := wasi.Build(nil, wasi.WithStdout(&out))
	require.NoError(t, err)

	inst := instantiate(t, e, testbed.Greeter(), wctx)
	assert.True(t, inst.Module().ImportsWASI())

	res, err := inst.Call(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, int32(0), res[0].I32())
	assert.Equal(t, "hello\n", out.String())

	_, err = inst.Call(context.Background(), "exit", 3)
	require.Error(t, err)
	assert.Equal(t, errors.CodeCall, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "code 3")
	assert.True(t, inst.Terminated())
}

func TestCompilationCacheDir(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, &Config{CacheDir: dir})
	_, err := e.Compile(context.Background(), testbed.Arithmetic())
	require.NoError(t, err)
}
