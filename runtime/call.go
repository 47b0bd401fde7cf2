package runtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-sandbox/transcoder"
)

// Call invokes an exported function on an instance.
//
// Each argument is either a transcoder.Value, whose tag is authoritative,
// or a bare Go number. Bare integers within int32 range are inferred as
// i32, other integers as i64, and non-integral numbers as f64; an inferred
// value is widened to the parameter type only when the conversion is
// exact, otherwise the call fails with TypeMismatch before any guest code
// runs. Results come back as explicit values, empty for void functions.
//
// Calls on one instance are serialized; ctx only bounds the wait for the
// instance. Once running, a call ends by returning, trapping (CallError) or
// exhausting the execution budget (ResourceLimitExceeded, which also
// terminates the instance).
func (r *Runtime) Call(ctx context.Context, h InstanceHandle, name string, args ...any) ([]transcoder.Value, error) {
	e, err := r.acquire(ctx, h)
	if err != nil {
		return nil, err
	}
	defer e.lock.Release(1)

	callCtx := context.WithoutCancel(ctx)
	if r.cfg.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, r.cfg.callTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := e.inst.Call(callCtx, name, args...)
	r.metrics.observeCall(name, start, err)
	if err != nil {
		r.logger.Debug("call failed",
			zap.Stringer("instance", h),
			zap.String("export", name),
			zap.Error(err))
		return nil, err
	}
	return out, nil
}
