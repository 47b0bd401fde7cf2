package wasmsandbox

// Memory represents an instance's linear memory. Accesses past the current
// size fail; nothing is clamped.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// GrowableMemory is linear memory the host may grow in 64KiB pages.
type GrowableMemory interface {
	Memory
	MemorySizer
	Pages() uint32
	Grow(deltaPages uint32) (previousPages uint32, err error)
}
