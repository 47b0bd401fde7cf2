package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-sandbox/engine"
	"github.com/wippyai/wasm-sandbox/errors"
)

// ExportDescriptor describes one export of a module or instance.
type ExportDescriptor = engine.ExportDescriptor

// Compile validates and compiles bytecode and registers it under a new
// handle. Identical bytecode compiled twice shares one artifact; each call
// still gets its own handle. Fails with CompileError and registers nothing.
func (r *Runtime) Compile(ctx context.Context, data []byte) (ModuleHandle, error) {
	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])

	for {
		r.reg.mu.Lock()
		if r.closed {
			r.reg.mu.Unlock()
			return 0, errors.Compile("runtime is closed", nil)
		}
		if a, ok := r.reg.artifacts[key]; ok {
			e := r.reg.addModule(a)
			r.reg.mu.Unlock()
			r.metrics.compiles.WithLabelValues("cached").Inc()
			r.metrics.modules.Inc()
			r.logger.Debug("module cache hit", zap.Stringer("module", e.handle), zap.String("sha256", key[:12]))
			return e.handle, nil
		}
		r.reg.mu.Unlock()

		v, err, _ := r.flights.Do(key, func() (any, error) {
			m, err := r.engine.Compile(ctx, data)
			if err != nil {
				return nil, err
			}
			return &artifact{key: key, module: m}, nil
		})
		if err != nil {
			r.metrics.compiles.WithLabelValues("error").Inc()
			r.logger.Debug("compile failed", zap.Error(err))
			return 0, err
		}
		a := v.(*artifact)

		r.reg.mu.Lock()
		if r.closed {
			r.reg.mu.Unlock()
			return 0, errors.Compile("runtime is closed", nil)
		}
		if cur, ok := r.reg.artifacts[key]; ok {
			a = cur
		} else if a.closed {
			// dropped by a sharer of the same flight before we registered
			r.reg.mu.Unlock()
			continue
		} else {
			r.reg.artifacts[key] = a
			r.metrics.artifacts.Inc()
		}
		e := r.reg.addModule(a)
		r.reg.mu.Unlock()

		r.metrics.compiles.WithLabelValues("compiled").Inc()
		r.metrics.modules.Inc()
		r.logger.Debug("module compiled", zap.Stringer("module", e.handle), zap.String("sha256", key[:12]))
		return e.handle, nil
	}
}

// CompileFromPath reads bytecode through the configured FileReader and
// compiles it. Read failures are IoError; paths outside the configured
// module directories are PermissionDenied.
func (r *Runtime) CompileFromPath(ctx context.Context, path string) (ModuleHandle, error) {
	data, err := r.reader.ReadFile(ctx, path)
	if err != nil {
		if errors.CodeOf(err) == errors.CodePermissionDenied {
			return 0, err
		}
		return 0, errors.New(errors.PhaseLoad, errors.KindIO).
			Path(path).Detail("read module").Cause(err).Build()
	}
	return r.Compile(ctx, data)
}

// DropModule unregisters a module handle. It fails with ModuleInUse while
// instances created from the handle are alive; drop those first. The
// compiled artifact is released once no handle refers to it.
func (r *Runtime) DropModule(ctx context.Context, h ModuleHandle) error {
	r.reg.mu.Lock()
	e, ok := r.reg.modules[h]
	if !ok {
		r.reg.mu.Unlock()
		return errors.InvalidModuleHandle(uint64(h))
	}
	if e.instances > 0 {
		n := e.instances
		r.reg.mu.Unlock()
		return errors.ModuleInUse(uint64(h), n)
	}
	delete(r.reg.modules, h)

	var err error
	release := r.reg.release(e.artifact)
	if release {
		// closed under the lock so a concurrent compile of the same bytes
		// cannot pick up the artifact being torn down
		err = e.artifact.module.Close(ctx)
	}
	r.reg.mu.Unlock()

	r.metrics.modules.Dec()
	if release {
		r.metrics.artifacts.Dec()
	}
	r.logger.Debug("module dropped", zap.Stringer("module", h), zap.Bool("released", release))
	return err
}

// ModuleExports lists a module's exports without instantiating it.
func (r *Runtime) ModuleExports(h ModuleHandle) ([]ExportDescriptor, error) {
	r.reg.mu.RLock()
	e, ok := r.reg.modules[h]
	r.reg.mu.RUnlock()
	if !ok {
		return nil, errors.InvalidModuleHandle(uint64(h))
	}
	return e.artifact.module.Exports(), nil
}
