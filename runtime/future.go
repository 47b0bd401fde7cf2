package runtime

import (
	"context"

	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/transcoder"
	"github.com/wippyai/wasm-sandbox/wasi"
)

// Future is the pending result of an operation running on a worker
// goroutine.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is ready or ctx ends. Abandoning a future
// does not stop the operation.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// spawn runs fn on a worker, bounded by WithMaxConcurrency. Waiting for a
// worker slot honors ctx.
func spawn[T any](r *Runtime, ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if r.workers != nil {
			if err := r.workers.Acquire(ctx, 1); err != nil {
				f.err = errors.ResourceLimit(errors.PhaseRegistry, "no worker available", err)
				return
			}
			defer r.workers.Release(1)
		}
		f.val, f.err = fn(ctx)
	}()
	return f
}

// CompileAsync is Compile on a worker.
func (r *Runtime) CompileAsync(ctx context.Context, data []byte) *Future[ModuleHandle] {
	return spawn(r, ctx, func(ctx context.Context) (ModuleHandle, error) {
		return r.Compile(ctx, data)
	})
}

// CompileFromPathAsync is CompileFromPath on a worker.
func (r *Runtime) CompileFromPathAsync(ctx context.Context, path string) *Future[ModuleHandle] {
	return spawn(r, ctx, func(ctx context.Context) (ModuleHandle, error) {
		return r.CompileFromPath(ctx, path)
	})
}

// InstantiateAsync is Instantiate on a worker.
func (r *Runtime) InstantiateAsync(ctx context.Context, h ModuleHandle, cfg *wasi.Config, opts ...wasi.Option) *Future[InstanceHandle] {
	return spawn(r, ctx, func(ctx context.Context) (InstanceHandle, error) {
		return r.Instantiate(ctx, h, cfg, opts...)
	})
}

// CallAsync is Call on a worker. Args are captured when CallAsync is
// invoked.
func (r *Runtime) CallAsync(ctx context.Context, h InstanceHandle, name string, args ...any) *Future[[]transcoder.Value] {
	args = append([]any(nil), args...)
	return spawn(r, ctx, func(ctx context.Context) ([]transcoder.Value, error) {
		return r.Call(ctx, h, name, args...)
	})
}
