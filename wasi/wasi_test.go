package wasi

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	experimentalsys "github.com/tetratelabs/wazero/experimental/sys"

	"github.com/wippyai/wasm-sandbox/errors"
)

func TestConfig_Validate(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"nil", nil, false},
		{"empty", NewConfig(), false},
		{"valid", NewConfig().WithPreopen("/data", dir).WithEnv("K", "V").WithArgs("prog"), false},
		{"relative guest path", NewConfig().WithPreopen("data", dir), true},
		{"empty host path", NewConfig().WithPreopen("/data", ""), true},
		{"env key with equals", NewConfig().WithEnv("A=B", "v"), true},
		{"empty env key", NewConfig().WithEnv("", "v"), true},
		{"duplicate after clean", NewConfig().WithPreopen("/data", dir).WithPreopen("/data/", dir), true},
		{"read-only not a preopen", &Config{ReadOnly: []string{"/ro"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, errors.CodeWasi, errors.CodeOf(err))
		})
	}
}

func TestConfig_Clone(t *testing.T) {
	orig := NewConfig().WithPreopen("/a", "/tmp").WithEnv("K", "V").WithArgs("x")
	cp := orig.Clone()
	cp.Preopens["/b"] = "/tmp"
	cp.Env["K"] = "changed"
	cp.Args[0] = "y"

	assert.Len(t, orig.Preopens, 1)
	assert.Equal(t, "V", orig.Env["K"])
	assert.Equal(t, "x", orig.Args[0])
	assert.Nil(t, (*Config)(nil).Clone())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	doc := "preopens:\n  /data: " + dir + "\nreadOnly: [/data]\nenv:\n  MODE: batch\nargs: [prog, -v]\ninheritStdout: true\n"

	cfg, err := LoadConfig(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Preopens["/data"])
	assert.Equal(t, []string{"/data"}, cfg.ReadOnly)
	assert.Equal(t, "batch", cfg.Env["MODE"])
	assert.Equal(t, []string{"prog", "-v"}, cfg.Args)
	assert.True(t, cfg.InheritStdout)
	assert.False(t, cfg.InheritStdin)

	jsonDoc := `{"preopens": {"/data": "` + dir + `"}, "inheritStderr": true}`
	cfg, err = LoadConfig(strings.NewReader(jsonDoc))
	require.NoError(t, err)
	assert.True(t, cfg.InheritStderr)

	empty, err := LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Preopens)

	_, err = LoadConfig(strings.NewReader("preopen:\n  /x: /y\n"))
	require.Error(t, err, "unknown keys are rejected")
	assert.Equal(t, errors.CodeWasi, errors.CodeOf(err))
}

func TestBuild_NilGrantsNothing(t *testing.T) {
	c, err := Build(nil)
	require.NoError(t, err)
	defer c.Close()

	assert.Empty(t, c.Mounts())
	assert.Empty(t, c.env)
	assert.Empty(t, c.args)
	assert.Nil(t, c.stdin)
	assert.Nil(t, c.stdout)
	assert.Nil(t, c.stderr)
}

func TestBuild_MissingHostDir(t *testing.T) {
	cfg := NewConfig().
		WithPreopen("/a", t.TempDir()).
		WithPreopen("/b", filepath.Join(t.TempDir(), "missing"))

	_, err := Build(cfg)
	require.Error(t, err)
	assert.Equal(t, errors.CodeWasi, errors.CodeOf(err))
}

func TestBuild_HostPathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := Build(NewConfig().WithPreopen("/f", file))
	require.Error(t, err)
	assert.Equal(t, errors.CodeWasi, errors.CodeOf(err))
}

func TestBuild_Grants(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	var out bytes.Buffer
	cfg := NewConfig().
		WithPreopen("/zeta", a).
		WithReadOnlyPreopen("/alpha", b).
		WithEnv("B", "2").WithEnv("A", "1").
		WithArgs("prog", "arg")

	c, err := Build(cfg, WithStdout(&out))
	require.NoError(t, err)
	defer c.Close()

	mounts := c.Mounts()
	require.Len(t, mounts, 2)
	assert.Equal(t, "/alpha", mounts[0].GuestPath)
	assert.True(t, mounts[0].ReadOnly)
	assert.Equal(t, "/zeta", mounts[1].GuestPath)
	assert.False(t, mounts[1].ReadOnly)

	assert.Equal(t, [][2]string{{"A", "1"}, {"B", "2"}}, c.env)
	assert.Equal(t, []string{"prog", "arg"}, c.args)
	assert.Same(t, &out, c.stdout)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")
}

func newRootFS(t *testing.T) (*RootFS, string) {
	t.Helper()
	dir := t.TempDir()
	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })
	return NewRootFS(root), dir
}

func TestRootFS_Read(t *testing.T) {
	fs, dir := newRootFS(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "hello.txt"), []byte("hi there"), 0o644))

	f, errno := fs.OpenFile("sub/hello.txt", experimentalsys.O_RDONLY, 0)
	require.Zero(t, errno)
	defer f.Close()

	buf := make([]byte, 32)
	n, errno := f.Read(buf)
	require.Zero(t, errno)
	assert.Equal(t, "hi there", string(buf[:n]))

	st, errno := fs.Stat("/sub/hello.txt")
	require.Zero(t, errno)
	assert.Equal(t, int64(8), st.Size)

	d, errno := fs.OpenFile(".", experimentalsys.O_RDONLY|experimentalsys.O_DIRECTORY, 0)
	require.Zero(t, errno)
	isDir, errno := d.IsDir()
	require.Zero(t, errno)
	assert.True(t, isDir)
	_ = d.Close()
}

func TestRootFS_Write(t *testing.T) {
	fs, dir := newRootFS(t)

	f, errno := fs.OpenFile("out.txt", experimentalsys.O_RDWR|experimentalsys.O_CREAT|experimentalsys.O_TRUNC, 0o600)
	require.Zero(t, errno)
	n, errno := f.Write([]byte("written"))
	require.Zero(t, errno)
	assert.Equal(t, 7, n)
	require.Zero(t, f.Close())

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "written", string(data))

	require.Zero(t, fs.Mkdir("made", 0o755))
	require.Zero(t, fs.Rename("out.txt", "made/moved.txt"))
	assert.FileExists(t, filepath.Join(dir, "made", "moved.txt"))
	assert.Equal(t, experimentalsys.ENOTDIR, fs.Rmdir("made/moved.txt"))
	assert.Equal(t, experimentalsys.EISDIR, fs.Unlink("made"))
	require.Zero(t, fs.Unlink("made/moved.txt"))
	require.Zero(t, fs.Rmdir("made"))
}

func TestRootFS_Escapes(t *testing.T) {
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0o600))

	fs, dir := newRootFS(t)
	require.NoError(t, os.Symlink(secret, filepath.Join(dir, "link")))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "dirlink")))

	tests := []struct {
		name string
		path string
		flag experimentalsys.Oflag
	}{
		{"dotdot", "../" + filepath.Base(outside) + "/secret.txt", experimentalsys.O_RDONLY},
		{"symlink to file", "link", experimentalsys.O_RDONLY},
		{"symlink to dir", "dirlink/secret.txt", experimentalsys.O_RDONLY},
		{"write through symlink", "dirlink/new.txt", experimentalsys.O_RDWR | experimentalsys.O_CREAT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, errno := fs.OpenFile(tt.path, tt.flag, 0o600)
			if f != nil {
				_ = f.Close()
			}
			assert.NotZero(t, errno, "opening %q must fail", tt.path)
		})
	}
	assert.NoFileExists(t, filepath.Join(outside, "new.txt"))

	_, errno := fs.Stat("dirlink/secret.txt")
	assert.NotZero(t, errno)

	_, errno = fs.OpenFile("link", experimentalsys.O_RDONLY|experimentalsys.O_NOFOLLOW, 0)
	assert.Equal(t, experimentalsys.ELOOP, errno)
}

func TestReadOnlyMount(t *testing.T) {
	dir := t.TempDir()
	c, err := Build(NewConfig().WithReadOnlyPreopen("/ro", dir))
	require.NoError(t, err)
	defer c.Close()

	fs := c.mounts[0].fs
	_, errno := fs.OpenFile("new.txt", experimentalsys.O_RDWR|experimentalsys.O_CREAT, 0o600)
	assert.NotZero(t, errno)
	assert.NoFileExists(t, filepath.Join(dir, "new.txt"))
	assert.Equal(t, experimentalsys.EROFS, fs.Mkdir("d", 0o755))
}
