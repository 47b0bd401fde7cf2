package runtime

import (
	"context"

	wasmsandbox "github.com/wippyai/wasm-sandbox"
	"github.com/wippyai/wasm-sandbox/errors"
)

// withMemory runs fn under the instance lock with its exported memory.
func (r *Runtime) withMemory(ctx context.Context, h InstanceHandle, fn func(wasmsandbox.GrowableMemory) error) error {
	e, err := r.acquire(ctx, h)
	if err != nil {
		return err
	}
	defer e.lock.Release(1)

	mem := e.inst.Memory()
	if mem == nil {
		return errors.Memory("%s has no memory export", h)
	}
	return fn(mem)
}

// ReadMemory copies length bytes from the instance's memory. Ranges past
// the current size fail with MemoryError.
func (r *Runtime) ReadMemory(ctx context.Context, h InstanceHandle, offset, length uint32) ([]byte, error) {
	var out []byte
	err := r.withMemory(ctx, h, func(m wasmsandbox.GrowableMemory) error {
		var err error
		out, err = m.Read(offset, length)
		return err
	})
	return out, err
}

// WriteMemory copies data into the instance's memory at offset.
func (r *Runtime) WriteMemory(ctx context.Context, h InstanceHandle, offset uint32, data []byte) error {
	return r.withMemory(ctx, h, func(m wasmsandbox.GrowableMemory) error {
		return m.Write(offset, data)
	})
}

// MemorySize returns the current memory size in 64KiB pages.
func (r *Runtime) MemorySize(ctx context.Context, h InstanceHandle) (uint32, error) {
	var pages uint32
	err := r.withMemory(ctx, h, func(m wasmsandbox.GrowableMemory) error {
		pages = m.Pages()
		return nil
	})
	return pages, err
}

// GrowMemory adds pages and returns the size before growth. Growing past
// the module's declared maximum or the runtime limit fails with
// MemoryError and leaves the memory unchanged.
func (r *Runtime) GrowMemory(ctx context.Context, h InstanceHandle, pages uint32) (uint32, error) {
	var prev uint32
	err := r.withMemory(ctx, h, func(m wasmsandbox.GrowableMemory) error {
		var err error
		prev, err = m.Grow(pages)
		return err
	})
	if err == nil {
		r.metrics.memoryPages.Add(float64(pages))
	}
	return prev, err
}

// ReadU32 reads a little-endian uint32.
func (r *Runtime) ReadU32(ctx context.Context, h InstanceHandle, offset uint32) (uint32, error) {
	var v uint32
	err := r.withMemory(ctx, h, func(m wasmsandbox.GrowableMemory) error {
		var err error
		v, err = m.ReadU32(offset)
		return err
	})
	return v, err
}

// WriteU32 writes a little-endian uint32.
func (r *Runtime) WriteU32(ctx context.Context, h InstanceHandle, offset, v uint32) error {
	return r.withMemory(ctx, h, func(m wasmsandbox.GrowableMemory) error {
		return m.WriteU32(offset, v)
	})
}

// ReadU64 reads a little-endian uint64.
func (r *Runtime) ReadU64(ctx context.Context, h InstanceHandle, offset uint32) (uint64, error) {
	var v uint64
	err := r.withMemory(ctx, h, func(m wasmsandbox.GrowableMemory) error {
		var err error
		v, err = m.ReadU64(offset)
		return err
	})
	return v, err
}

// WriteU64 writes a little-endian uint64.
func (r *Runtime) WriteU64(ctx context.Context, h InstanceHandle, offset uint32, v uint64) error {
	return r.withMemory(ctx, h, func(m wasmsandbox.GrowableMemory) error {
		return m.WriteU64(offset, v)
	})
}
