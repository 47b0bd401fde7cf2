package engine

import (
	"fmt"
	"maps"
	"slices"

	"github.com/tetratelabs/wazero/api"

	wasmsandbox "github.com/wippyai/wasm-sandbox"
	"github.com/wippyai/wasm-sandbox/errors"
	"github.com/wippyai/wasm-sandbox/wasm"
)

// Memory is a bounds-checked view of an instance's linear memory. Every
// access is checked against the current size; nothing is clamped.
type Memory struct {
	mem api.Memory
}

var _ wasmsandbox.GrowableMemory = (*Memory)(nil)

// defaultMemoryExport is preferred when a module exports several memories.
const defaultMemoryExport = "memory"

// exportedMemory returns the memory the module exports, or nil. A memory
// that is declared but not exported stays private to the guest.
func exportedMemory(mod api.Module) api.Memory {
	defs := mod.ExportedMemoryDefinitions()
	if len(defs) == 0 {
		return nil
	}
	if _, ok := defs[defaultMemoryExport]; ok {
		return mod.ExportedMemory(defaultMemoryExport)
	}
	return mod.ExportedMemory(slices.Sorted(maps.Keys(defs))[0])
}

func (m *Memory) check(offset uint32, length uint64) error {
	size := uint64(m.mem.Size())
	if uint64(offset)+length > size {
		return errors.OutOfBounds(uint64(offset), length, size)
	}
	return nil
}

// Read copies length bytes starting at offset.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	if err := m.check(offset, uint64(length)); err != nil {
		return nil, err
	}
	view, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(uint64(offset), uint64(length), uint64(m.mem.Size()))
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// Write copies data into memory at offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint64(len(data))); err != nil {
		return err
	}
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(uint64(offset), uint64(len(data)), uint64(m.mem.Size()))
	}
	return nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(uint64(offset), 4, uint64(m.mem.Size()))
	}
	return v, nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(uint64(offset), 8, uint64(m.mem.Size()))
	}
	return v, nil
}

func (m *Memory) WriteU32(offset uint32, v uint32) error {
	if !m.mem.WriteUint32Le(offset, v) {
		return errors.OutOfBounds(uint64(offset), 4, uint64(m.mem.Size()))
	}
	return nil
}

func (m *Memory) WriteU64(offset uint32, v uint64) error {
	if !m.mem.WriteUint64Le(offset, v) {
		return errors.OutOfBounds(uint64(offset), 8, uint64(m.mem.Size()))
	}
	return nil
}

// Size returns the byte length of the memory.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// Pages returns the current size in 64KiB pages.
func (m *Memory) Pages() uint32 {
	return uint32(uint64(m.mem.Size()) / wasm.PageSize)
}

// Grow adds delta pages and returns the previous size in pages. Growth past
// the declared maximum or the engine limit is a MemoryError and leaves the
// memory unchanged.
func (m *Memory) Grow(delta uint32) (uint32, error) {
	prev, ok := m.mem.Grow(delta)
	if !ok {
		max := "the engine limit"
		if n, declared := m.mem.Definition().Max(); declared {
			max = formatPages(n)
		}
		return 0, errors.Memory("cannot grow %d page(s) from %d: exceeds %s", delta, m.Pages(), max)
	}
	return prev, nil
}

func formatPages(n uint32) string {
	if n == 1 {
		return "declared maximum of 1 page"
	}
	return fmt.Sprintf("declared maximum of %d pages", n)
}
