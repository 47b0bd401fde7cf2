package runtime

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/testbed"
	"github.com/wippyai/wasm-sandbox/wasi"
)

// fileGuest wraps an instance of the FileIO fixture.
type fileGuest struct {
	t    *testing.T
	r    *Runtime
	inst InstanceHandle
}

func newFileGuest(t *testing.T, r *Runtime, cfg *wasi.Config) *fileGuest {
	t.Helper()
	ctx := context.Background()
	m, err := r.Compile(ctx, testbed.FileIO())
	require.NoError(t, err)
	inst, err := r.Instantiate(ctx, m, cfg)
	require.NoError(t, err)
	return &fileGuest{t: t, r: r, inst: inst}
}

// read returns the file content, or the negated errno the guest saw.
func (g *fileGuest) read(path string) ([]byte, int32) {
	g.t.Helper()
	ctx := context.Background()
	require.NoError(g.t, g.r.WriteMemory(ctx, g.inst, testbed.PathOffset, []byte(path)))
	out, err := g.r.Call(ctx, g.inst, "read_file", testbed.PathOffset, len(path))
	require.NoError(g.t, err)
	n := out[0].I32()
	if n < 0 {
		return nil, n
	}
	data, err := g.r.ReadMemory(ctx, g.inst, testbed.ReadOffset, uint32(n))
	require.NoError(g.t, err)
	return data, 0
}

func (g *fileGuest) write(path string, data []byte) int32 {
	g.t.Helper()
	ctx := context.Background()
	require.NoError(g.t, g.r.WriteMemory(ctx, g.inst, testbed.PathOffset, []byte(path)))
	require.NoError(g.t, g.r.WriteMemory(ctx, g.inst, testbed.DataOffset, data))
	out, err := g.r.Call(ctx, g.inst, "write_file", testbed.PathOffset, len(path), testbed.DataOffset, len(data))
	require.NoError(g.t, err)
	return out[0].I32()
}

func (g *fileGuest) count(export string) int32 {
	g.t.Helper()
	out, err := g.r.Call(context.Background(), g.inst, export)
	require.NoError(g.t, err)
	return out[0].I32()
}

// sandboxDirs creates base/data/hello.txt and base/secret.txt and returns
// the data directory.
func sandboxDirs(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	data := filepath.Join(base, "data")
	require.NoError(t, os.Mkdir(data, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(data, "hello.txt"), []byte("hello from the host"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(data, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(data, "nested", "deep.txt"), []byte("deep"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "secret.txt"), []byte("top secret"), 0o600))
	return data
}

func TestCapabilities_PreopenAccess(t *testing.T) {
	r := newRuntime(t)
	dir := sandboxDirs(t)
	g := newFileGuest(t, r, wasi.NewConfig().WithPreopen("/data", dir))

	data, errno := g.read("hello.txt")
	require.Zero(t, errno)
	assert.Equal(t, "hello from the host", string(data))

	data, errno = g.read("nested/deep.txt")
	require.Zero(t, errno)
	assert.Equal(t, "deep", string(data))

	// traversal that stays inside the grant is fine
	data, errno = g.read("nested/../hello.txt")
	require.Zero(t, errno)
	assert.Equal(t, "hello from the host", string(data))

	assert.Equal(t, int32(len("written")), g.write("out.txt", []byte("written")))
	onHost, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "written", string(onHost))

	mounts, err := r.Mounts(g.inst)
	require.NoError(t, err)
	require.Len(t, mounts, 1)
	assert.Equal(t, "/data", mounts[0].GuestPath)
	assert.Equal(t, dir, mounts[0].HostPath)
	assert.False(t, mounts[0].ReadOnly)
}

func TestCapabilities_EscapeDenied(t *testing.T) {
	r := newRuntime(t)
	dir := sandboxDirs(t)
	g := newFileGuest(t, r, wasi.NewConfig().WithPreopen("/data", dir))

	for _, path := range []string{
		"../secret.txt",
		"nested/../../secret.txt",
		"/etc/passwd",
		"missing.txt",
	} {
		t.Run(path, func(t *testing.T) {
			data, errno := g.read(path)
			assert.Negative(t, errno)
			assert.Nil(t, data)
		})
	}

	assert.Negative(t, g.write("../planted.txt", []byte("x")))
	_, err := os.Stat(filepath.Join(filepath.Dir(dir), "planted.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestCapabilities_SymlinkEscapeDenied(t *testing.T) {
	r := newRuntime(t)
	dir := sandboxDirs(t)
	if err := os.Symlink(filepath.Join(filepath.Dir(dir), "secret.txt"), filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	g := newFileGuest(t, r, wasi.NewConfig().WithPreopen("/data", dir))

	data, errno := g.read("link.txt")
	assert.Negative(t, errno)
	assert.Nil(t, data)
}

func TestCapabilities_DenyByDefault(t *testing.T) {
	r := newRuntime(t)
	sandboxDirs(t)
	g := newFileGuest(t, r, nil)

	_, errno := g.read("hello.txt")
	assert.Negative(t, errno)
	assert.Zero(t, g.count("argc"))
	assert.Zero(t, g.count("envc"))

	mounts, err := r.Mounts(g.inst)
	require.NoError(t, err)
	assert.Empty(t, mounts)
}

func TestCapabilities_ReadOnly(t *testing.T) {
	r := newRuntime(t)
	dir := sandboxDirs(t)
	g := newFileGuest(t, r, wasi.NewConfig().WithReadOnlyPreopen("/data", dir))

	data, errno := g.read("hello.txt")
	require.Zero(t, errno)
	assert.Equal(t, "hello from the host", string(data))

	assert.Negative(t, g.write("out.txt", []byte("nope")))
	_, err := os.Stat(filepath.Join(dir, "out.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestCapabilities_EnvAndArgs(t *testing.T) {
	r := newRuntime(t)
	cfg := wasi.NewConfig().
		WithArgs("guest", "--flag").
		WithEnv("A", "1").
		WithEnv("B", "2").
		WithEnv("C", "3")
	g := newFileGuest(t, r, cfg)

	assert.Equal(t, int32(2), g.count("argc"))
	assert.Equal(t, int32(3), g.count("envc"))
}

func TestCapabilities_InvalidConfig(t *testing.T) {
	r := newRuntime(t)
	ctx := context.Background()
	m, err := r.Compile(ctx, testbed.FileIO())
	require.NoError(t, err)

	tests := map[string]*wasi.Config{
		"missing host dir": wasi.NewConfig().WithPreopen("/data", filepath.Join(t.TempDir(), "absent")),
		"relative guest":   wasi.NewConfig().WithPreopen("data", t.TempDir()),
		"env key with '='": wasi.NewConfig().WithEnv("A=B", "x"),
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := r.Instantiate(ctx, m, cfg)
			require.Error(t, err)
			assert.Equal(t, errors.CodeWasi, errors.CodeOf(err))
		})
	}

	// failed instantiations leave no reference behind
	assert.NoError(t, r.DropModule(ctx, m))
}

func TestCapabilities_Stdout(t *testing.T) {
	r := newRuntime(t)
	ctx := context.Background()
	m, err := r.Compile(ctx, testbed.Greeter())
	require.NoError(t, err)

	var out bytes.Buffer
	inst, err := r.Instantiate(ctx, m, nil, wasi.WithStdout(&out))
	require.NoError(t, err)

	res, err := r.Call(ctx, inst, "hello")
	require.NoError(t, err)
	assert.Equal(t, int32(0), res[0].I32())
	assert.Equal(t, "hello\n", out.String())

	// without a writer the output is discarded
	quiet, err := r.Instantiate(ctx, m, nil)
	require.NoError(t, err)
	_, err = r.Call(ctx, quiet, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.String())
}

func TestCapabilities_ProcExit(t *testing.T) {
	r := newRuntime(t)
	ctx := context.Background()
	m, err := r.Compile(ctx, testbed.Greeter())
	require.NoError(t, err)
	inst, err := r.Instantiate(ctx, m, nil)
	require.NoError(t, err)

	_, err = r.Call(ctx, inst, "exit", 7)
	require.Error(t, err)
	assert.Equal(t, errors.CodeCall, errors.CodeOf(err))

	// the guest is gone but the handle stays valid until dropped
	_, err = r.Call(ctx, inst, "hello")
	assert.Equal(t, errors.CodeCall, errors.CodeOf(err))
	assert.NoError(t, r.Drop(ctx, inst))
}

func TestCapabilities_Isolated(t *testing.T) {
	r := newRuntime(t)
	a := sandboxDirs(t)
	b := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(b, "hello.txt"), []byte("other"), 0o644))

	ga := newFileGuest(t, r, wasi.NewConfig().WithPreopen("/data", a))
	gb := newFileGuest(t, r, wasi.NewConfig().WithPreopen("/data", b))

	data, errno := ga.read("hello.txt")
	require.Zero(t, errno)
	assert.Equal(t, "hello from the host", string(data))

	data, errno = gb.read("hello.txt")
	require.Zero(t, errno)
	assert.Equal(t, "other", string(data))

	_, errno = gb.read("nested/deep.txt")
	assert.Negative(t, errno)
}
