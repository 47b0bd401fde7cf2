package wasi

import (
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	experimentalsys "github.com/tetratelabs/wazero/experimental/sys"
	"github.com/tetratelabs/wazero/experimental/sysfs"
	"go.uber.org/multierr"

	"github.com/wippyai/wasm-sandbox/errors"
)

// Mount is one granted directory.
type Mount struct {
	GuestPath string
	HostPath  string
	ReadOnly  bool
}

type mount struct {
	Mount
	root *os.Root
	fs   experimentalsys.FS
}

// Context holds the live capability handles for one instance. It is built
// from a Config and must be closed when the instance is dropped.
type Context struct {
	mounts []mount
	env    [][2]string
	args   []string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	closeOnce sync.Once
	closeErr  error
}

// Option overrides stream wiring when building a Context.
type Option func(*Context)

// WithStdin feeds r to the guest's stdin.
func WithStdin(r io.Reader) Option {
	return func(c *Context) { c.stdin = r }
}

// WithStdout captures the guest's stdout.
func WithStdout(w io.Writer) Option {
	return func(c *Context) { c.stdout = w }
}

// WithStderr captures the guest's stderr.
func WithStderr(w io.Writer) Option {
	return func(c *Context) { c.stderr = w }
}

// Build validates cfg and opens every preopen as an os.Root. A nil cfg
// yields a context with no grants. On failure nothing stays open.
func Build(cfg *Config, opts ...Option) (*Context, error) {
	c := &Context{}
	if cfg == nil {
		for _, opt := range opts {
			opt(c)
		}
		return c, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	guests := make([]string, 0, len(cfg.Preopens))
	for g := range cfg.Preopens {
		guests = append(guests, g)
	}
	// fd 3 onwards follow sorted guest path order
	sort.Strings(guests)

	readOnly := make(map[string]bool, len(cfg.ReadOnly))
	for _, ro := range cfg.ReadOnly {
		readOnly[path.Clean(ro)] = true
	}

	for _, g := range guests {
		host := cfg.Preopens[g]
		root, err := os.OpenRoot(host)
		if err != nil {
			_ = c.Close()
			return nil, errors.Wasi(fmt.Sprintf("open preopen %q -> %q", g, host), err)
		}
		clean := path.Clean(g)
		var fs experimentalsys.FS = NewRootFS(root)
		if readOnly[clean] {
			fs = &sysfs.ReadFS{FS: fs}
		}
		c.mounts = append(c.mounts, mount{
			Mount: Mount{GuestPath: clean, HostPath: host, ReadOnly: readOnly[clean]},
			root:  root,
			fs:    fs,
		})
	}

	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.env = append(c.env, [2]string{k, cfg.Env[k]})
	}
	c.args = slices.Clone(cfg.Args)

	if cfg.InheritStdin {
		c.stdin = os.Stdin
	}
	if cfg.InheritStdout {
		c.stdout = os.Stdout
	}
	if cfg.InheritStderr {
		c.stderr = os.Stderr
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mounts lists granted directories in fd order.
func (c *Context) Mounts() []Mount {
	out := make([]Mount, len(c.mounts))
	for i, m := range c.mounts {
		out[i] = m.Mount
	}
	return out
}

// Apply adds the context's grants to a module config. Anything not granted
// stays at wazero's defaults: empty stdin, discarded output, no filesystem.
func (c *Context) Apply(mc wazero.ModuleConfig) wazero.ModuleConfig {
	if len(c.args) > 0 {
		mc = mc.WithArgs(c.args...)
	}
	for _, kv := range c.env {
		mc = mc.WithEnv(kv[0], kv[1])
	}
	if c.stdin != nil {
		mc = mc.WithStdin(c.stdin)
	}
	if c.stdout != nil {
		mc = mc.WithStdout(c.stdout)
	}
	if c.stderr != nil {
		mc = mc.WithStderr(c.stderr)
	}
	if len(c.mounts) > 0 {
		fsc := wazero.NewFSConfig()
		for _, m := range c.mounts {
			fsc = fsc.(sysfs.FSConfig).WithSysFSMount(m.fs, m.GuestPath)
		}
		mc = mc.WithFSConfig(fsc)
	}
	return mc
}

// Close releases every root handle. It is safe to call more than once.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		for _, m := range c.mounts {
			c.closeErr = multierr.Append(c.closeErr, m.root.Close())
		}
	})
	return c.closeErr
}
