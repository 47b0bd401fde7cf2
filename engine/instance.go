package engine

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/transcoder"
	"github.com/wippyai/wasm-sandbox/wasi"
)

// ExitCodeTerminated is the exit code used when the host force-closes an
// instance with a call in flight.
const ExitCodeTerminated uint32 = 0xfffffffe

// Instance is a live execution context. It is not reentrant: callers must
// serialize Call and memory access on one instance.
type Instance struct {
	module *Module
	mod    api.Module
	memory *Memory
	wasi   *wasi.Context
	logger *zap.Logger

	funcs    map[string]api.Function
	stackBuf []uint64

	// terminated is set once the guest exited or was stopped; the
	// instance can no longer run code.
	terminated atomic.Bool
	exitCode   atomic.Uint32

	closeOnce sync.Once
	closeErr  error
}

// Module returns the artifact this instance was built from.
func (i *Instance) Module() *Module {
	return i.module
}

// Memory returns the exported memory, or nil when the module has none.
func (i *Instance) Memory() *Memory {
	return i.memory
}

// Mounts lists the directories granted to this instance.
func (i *Instance) Mounts() []wasi.Mount {
	if i.wasi == nil {
		return nil
	}
	return i.wasi.Mounts()
}

// Terminated reports whether the instance can no longer run code.
func (i *Instance) Terminated() bool {
	return i.terminated.Load()
}

func (i *Instance) function(name string) (api.Function, error) {
	if fn, ok := i.funcs[name]; ok {
		return fn, nil
	}
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return nil, errors.ExportNotFound(name)
	}
	i.funcs[name] = fn
	return fn, nil
}

// Call invokes an exported function. Arguments are transcoder.Value or bare
// Go numbers and are checked against the signature before anything runs.
// A trap is a CallError and never yields results. When ctx ends during the
// call the guest is stopped, the instance is terminated and the error is
// ResourceLimitExceeded.
func (i *Instance) Call(ctx context.Context, name string, args ...any) ([]transcoder.Value, error) {
	fn, err := i.function(name)
	if err != nil {
		return nil, err
	}
	if i.terminated.Load() {
		return nil, i.terminatedError(name)
	}

	def := fn.Definition()
	params, results := def.ParamTypes(), def.ResultTypes()
	lowered, err := transcoder.Lower(name, args, params)
	if err != nil {
		return nil, err
	}

	n := max(len(params), len(results))
	if cap(i.stackBuf) < n {
		i.stackBuf = make([]uint64, n)
	}
	stack := i.stackBuf[:n]
	copy(stack, lowered)

	if err := fn.CallWithStack(ctx, stack); err != nil {
		return nil, i.classify(name, err)
	}
	return transcoder.Lift(name, stack[:len(results)], results)
}

// classify maps a wazero call failure onto the error taxonomy and records
// termination when the module was closed underneath the call.
func (i *Instance) classify(export string, err error) error {
	var exitErr *sys.ExitError
	if !stderrors.As(err, &exitErr) {
		i.logger.Debug("trap", zap.String("export", export), zap.Error(err))
		return errors.Trap(export, err)
	}

	// wazero closes the module on every exit path
	alreadyTerminated := i.terminated.Swap(true)
	if !alreadyTerminated {
		i.exitCode.Store(exitErr.ExitCode())
	}

	switch exitErr.ExitCode() {
	case sys.ExitCodeDeadlineExceeded:
		i.logger.Warn("execution budget exhausted", zap.String("export", export))
		return errors.ResourceLimit(errors.PhaseCall, "execution budget exhausted in "+export, err)
	case sys.ExitCodeContextCanceled:
		return errors.ResourceLimit(errors.PhaseCall, "execution cancelled in "+export, err)
	case ExitCodeTerminated:
		return errors.New(errors.PhaseCall, errors.KindCall).
			Path(export).Detail("instance terminated by host").Cause(err).Build()
	default:
		return errors.New(errors.PhaseCall, errors.KindCall).
			Path(export).Detail("guest exited with code %d", exitErr.ExitCode()).Cause(err).Build()
	}
}

func (i *Instance) terminatedError(export string) error {
	return errors.New(errors.PhaseCall, errors.KindCall).
		Path(export).Detail("instance terminated (exit code %d)", i.exitCode.Load()).Build()
}

// Terminate stops any code running in the instance. The in-flight call, if
// any, fails with a CallError once it unwinds.
func (i *Instance) Terminate(ctx context.Context) error {
	if i.terminated.Swap(true) {
		return nil
	}
	i.exitCode.Store(ExitCodeTerminated)
	return i.mod.CloseWithExitCode(ctx, ExitCodeTerminated)
}

// Close releases the instance and its capability handles. Safe to call more
// than once.
func (i *Instance) Close(ctx context.Context) error {
	i.closeOnce.Do(func() {
		i.terminated.Store(true)
		i.closeErr = i.mod.Close(ctx)
		if i.wasi != nil {
			i.closeErr = multierr.Append(i.closeErr, i.wasi.Close())
		}
	})
	return i.closeErr
}
