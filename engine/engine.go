package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/wasi"
	"github.com/wippyai/wasm-sandbox/wasm"
)

// WASIModuleName is the import namespace linked on demand.
const WASIModuleName = wasi_snapshot_preview1.ModuleName

// reactorInit runs after the start section when a module exports it.
const reactorInit = "_initialize"

// Engine owns a wazero runtime and compiles and instantiates modules on it.
type Engine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	logger  *zap.Logger

	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages caps every instance's memory in 64KiB pages.
	// 0 means wazero's default (65536 pages = 4GiB).
	MemoryLimitPages uint32

	// CacheDir persists compiled machine code across processes. Empty keeps
	// the cache in memory for the lifetime of the engine.
	CacheDir string

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	EnableThreads bool

	Logger *zap.Logger
}

// New creates an engine. Guest execution is interruptible: cancelling the
// context passed to a call or closing the instance terminates it.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitPages > 0 {
		if cfg.MemoryLimitPages > wasm.MaxPages {
			return nil, fmt.Errorf("memory limit %d pages exceeds %d", cfg.MemoryLimitPages, wasm.MaxPages)
		}
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.EnableThreads {
		runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, errors.IO(fmt.Sprintf("open compilation cache %q", cfg.CacheDir), err)
		}
		cache = c
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = Logger()
	}
	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cache:   cache,
		logger:  logger.Named("engine"),
	}, nil
}

// Compile validates and compiles bytecode ahead of time. Failures are
// CompileError and leave nothing behind.
func (e *Engine) Compile(ctx context.Context, data []byte) (*Module, error) {
	if err := wasm.CheckHeader(data); err != nil {
		return nil, errors.Compile("invalid module header", err)
	}
	compiled, err := e.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.Compile("compile failed", err)
	}
	exports, err := wasm.ParseExports(data)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Compile("read export section", err)
	}

	m := newModule(compiled, exports)
	e.logger.Debug("module compiled",
		zap.Int("size", len(data)),
		zap.Int("exports", len(exports)),
		zap.Bool("wasi", m.importsWASI))
	return m, nil
}

// InitWASI instantiates the WASI host module for this engine's runtime.
// Safe for concurrent calls; only the first one links it.
func (e *Engine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}
	if e.runtime.Module(WASIModuleName) == nil {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
			return fmt.Errorf("instantiate WASI: %w", err)
		}
		e.logger.Debug("wasi linked")
	}
	e.wasiInitDone.Store(true)
	return nil
}

// Instantiate builds a fresh instance of m with its own memory and globals.
// Capabilities come from wctx; a nil wctx grants nothing. The instance takes
// ownership of wctx and closes it with the instance, including on failure.
//
// The start section and an exported _initialize both run here. A trap in
// either is an InstantiateError and no instance is returned.
func (e *Engine) Instantiate(ctx context.Context, m *Module, wctx *wasi.Context) (*Instance, error) {
	if m.importsWASI {
		if err := e.InitWASI(ctx); err != nil {
			closeQuietly(wctx)
			return nil, errors.Instantiation("link "+WASIModuleName, err)
		}
	}

	mc := wazero.NewModuleConfig().
		WithName(""). // anonymous so one module backs many instances
		WithStartFunctions(reactorInit).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader)
	if wctx != nil {
		mc = wctx.Apply(mc)
	}

	mod, err := e.runtime.InstantiateModule(ctx, m.compiled, mc)
	if err != nil {
		closeQuietly(wctx)
		return nil, errors.Instantiation("instantiate failed", err)
	}

	inst := &Instance{
		module: m,
		mod:    mod,
		wasi:   wctx,
		logger: e.logger,
		funcs:  make(map[string]api.Function),
	}
	if mem := exportedMemory(mod); mem != nil {
		inst.memory = &Memory{mem: mem}
	}
	return inst, nil
}

// Close tears down the runtime, every module compiled on it and the
// compilation cache.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		err = multierr.Append(err, e.cache.Close(ctx))
	}
	return err
}

func closeQuietly(wctx *wasi.Context) {
	if wctx != nil {
		_ = wctx.Close()
	}
}
