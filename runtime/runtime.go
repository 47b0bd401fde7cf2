package runtime

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/wasm-sandbox/engine"
	"github.com/wippyai/wasm-sandbox/errors"
)

// Runtime is an explicit, self-contained registry of modules and instances.
// Each Runtime owns its engine; nothing is shared between Runtimes.
type Runtime struct {
	engine  *engine.Engine
	logger  *zap.Logger
	cfg     config
	reg     *registry
	hosts   *hostRegistry
	metrics *metrics

	reader  FileReader
	dirs    *dirReader
	flights singleflight.Group
	workers *semaphore.Weighted

	closed bool // guarded by reg.mu
}

// New creates a Runtime.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m := newMetrics()
	if cfg.registerer != nil {
		if err := m.register(cfg.registerer); err != nil {
			return nil, errors.Wrap(errors.PhaseRegistry, errors.KindIO, err, "register metrics")
		}
	}

	r := &Runtime{
		logger:  cfg.logger,
		cfg:     cfg,
		reg:     newRegistry(),
		hosts:   newHostRegistry(),
		metrics: m,
		reader:  cfg.reader,
	}
	if cfg.maxConcurrency > 0 {
		r.workers = semaphore.NewWeighted(cfg.maxConcurrency)
	}
	if r.reader == nil {
		if len(cfg.moduleDirs) > 0 {
			dirs, err := openDirReader(cfg.moduleDirs)
			if err != nil {
				return nil, err
			}
			r.dirs = dirs
			r.reader = dirs
		} else {
			r.reader = hostReader{}
		}
	}

	eng, err := engine.New(ctx, &engine.Config{
		MemoryLimitPages: cfg.memoryLimitPages,
		CacheDir:         cfg.cacheDir,
		EnableThreads:    cfg.enableThreads,
		Logger:           cfg.logger,
	})
	if err != nil {
		if r.dirs != nil {
			_ = r.dirs.Close()
		}
		return nil, err
	}
	r.engine = eng

	r.logger.Debug("runtime created",
		zap.Uint32("memory_limit_pages", cfg.memoryLimitPages),
		zap.Duration("call_timeout", cfg.callTimeout),
		zap.String("cache_dir", cfg.cacheDir))
	return r, nil
}

// Close terminates every instance, releases every module and shuts the
// engine down. Handles are invalid afterwards.
func (r *Runtime) Close(ctx context.Context) error {
	r.reg.mu.Lock()
	if r.closed {
		r.reg.mu.Unlock()
		return nil
	}
	r.closed = true
	instances := r.reg.instances
	artifacts := r.reg.artifacts
	r.reg.instances = make(map[InstanceHandle]*instanceEntry)
	r.reg.modules = make(map[ModuleHandle]*moduleEntry)
	r.reg.artifacts = make(map[string]*artifact)
	r.reg.mu.Unlock()

	var err error
	for _, e := range instances {
		e.dropped.Store(true)
		err = multierr.Append(err, e.inst.Terminate(ctx))
		err = multierr.Append(err, e.inst.Close(ctx))
	}
	for _, a := range artifacts {
		a.closed = true
		err = multierr.Append(err, a.module.Close(ctx))
	}
	if r.dirs != nil {
		err = multierr.Append(err, r.dirs.Close())
	}
	err = multierr.Append(err, r.engine.Close(ctx))

	r.metrics.instances.Set(0)
	r.metrics.modules.Set(0)
	r.metrics.artifacts.Set(0)
	r.logger.Debug("runtime closed", zap.Int("instances", len(instances)), zap.Int("artifacts", len(artifacts)))
	return err
}

func (r *Runtime) instance(h InstanceHandle) (*instanceEntry, error) {
	r.reg.mu.RLock()
	e, ok := r.reg.instances[h]
	r.reg.mu.RUnlock()
	if !ok {
		return nil, errors.InvalidInstanceHandle(uint64(h))
	}
	return e, nil
}

// acquire takes the instance's execution lock. The wait honors ctx and a
// wait that ends early is a CallError wrapping ctx.Err(); the guest's own
// budget is not involved. The handle is re-checked once the lock is held
// since a drop may have won.
func (r *Runtime) acquire(ctx context.Context, h InstanceHandle) (*instanceEntry, error) {
	e, err := r.instance(h)
	if err != nil {
		return nil, err
	}
	if err := e.lock.Acquire(ctx, 1); err != nil {
		return nil, errors.New(errors.PhaseCall, errors.KindCall).
			Path(h.String()).Detail("gave up waiting for the instance lock").Cause(err).Build()
	}
	if e.dropped.Load() {
		e.lock.Release(1)
		return nil, errors.InvalidInstanceHandle(uint64(h))
	}
	return e, nil
}
