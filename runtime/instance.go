package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/wasi"
)

// Instantiate creates an isolated instance of a module. With a nil cfg the
// instance gets no capabilities at all. opts wire host streams into the
// capability context.
//
// Fails with InvalidModuleHandle, WasiError when the capability context
// cannot be built, or InstantiateError on link failures and start traps.
// On failure nothing is registered and every opened handle is released.
func (r *Runtime) Instantiate(ctx context.Context, h ModuleHandle, cfg *wasi.Config, opts ...wasi.Option) (InstanceHandle, error) {
	// Reserving a reference up front keeps DropModule from racing the
	// instantiation below.
	r.reg.mu.Lock()
	m, ok := r.reg.modules[h]
	if !ok {
		r.reg.mu.Unlock()
		return 0, errors.InvalidModuleHandle(uint64(h))
	}
	m.instances++
	r.reg.mu.Unlock()

	unreserve := func() {
		r.reg.mu.Lock()
		m.instances--
		r.reg.mu.Unlock()
	}

	if err := r.hosts.link(ctx, r.engine, m.artifact.module.HostImports()); err != nil {
		unreserve()
		return 0, err
	}

	var wctx *wasi.Context
	if cfg != nil || len(opts) > 0 {
		var err error
		if wctx, err = wasi.Build(cfg, opts...); err != nil {
			unreserve()
			return 0, err
		}
	}

	inst, err := r.engine.Instantiate(ctx, m.artifact.module, wctx)
	if err != nil {
		unreserve()
		r.logger.Debug("instantiate failed", zap.Stringer("module", h), zap.Error(err))
		return 0, err
	}

	r.reg.mu.Lock()
	if r.closed {
		r.reg.mu.Unlock()
		_ = inst.Close(ctx)
		return 0, errors.Instantiation("runtime is closed", nil)
	}
	e := r.reg.addInstance(h, inst)
	r.reg.mu.Unlock()

	r.metrics.instances.Inc()
	r.logger.Debug("instance created",
		zap.Stringer("module", h),
		zap.Stringer("instance", e.handle),
		zap.Int("mounts", len(inst.Mounts())))
	return e.handle, nil
}

// Drop destroys an instance and invalidates its handle. The handle stops
// resolving immediately. If a call is in flight, Drop waits for it; when
// ctx ends first the instance is terminated, which makes the call fail,
// and Drop completes once it unwinds.
func (r *Runtime) Drop(ctx context.Context, h InstanceHandle) error {
	r.reg.mu.Lock()
	e, ok := r.reg.instances[h]
	if !ok {
		r.reg.mu.Unlock()
		return errors.InvalidInstanceHandle(uint64(h))
	}
	delete(r.reg.instances, h)
	e.dropped.Store(true)
	r.reg.mu.Unlock()

	if err := e.lock.Acquire(ctx, 1); err != nil {
		r.logger.Warn("terminating busy instance", zap.Stringer("instance", h))
		_ = e.inst.Terminate(context.WithoutCancel(ctx))
		_ = e.lock.Acquire(context.Background(), 1)
	}
	err := e.inst.Close(context.WithoutCancel(ctx))
	e.lock.Release(1)

	r.reg.mu.Lock()
	if m, ok := r.reg.modules[e.module]; ok {
		m.instances--
	}
	r.reg.mu.Unlock()

	r.metrics.instances.Dec()
	r.logger.Debug("instance dropped", zap.Stringer("instance", h))
	return err
}

// Exports lists the instance's exports with function signatures. It has no
// side effects on the instance.
func (r *Runtime) Exports(h InstanceHandle) ([]ExportDescriptor, error) {
	e, err := r.instance(h)
	if err != nil {
		return nil, err
	}
	return e.inst.Module().Exports(), nil
}

// Mounts lists the directories granted to an instance in fd order.
func (r *Runtime) Mounts(h InstanceHandle) ([]wasi.Mount, error) {
	e, err := r.instance(h)
	if err != nil {
		return nil, err
	}
	return e.inst.Mounts(), nil
}
