package wasm

import (
	"errors"
	"fmt"
)

// ErrInvalidHeader is returned when data does not start with the wasm magic and version.
var ErrInvalidHeader = errors.New("wasm: invalid module header")

// Export is one entry of a module's export section.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// KindName returns the external kind name used in export descriptors.
func KindName(kind byte) string {
	switch kind {
	case KindFunc:
		return "function"
	case KindTable:
		return "table"
	case KindMemory:
		return "memory"
	case KindGlobal:
		return "global"
	case KindTag:
		return "tag"
	default:
		return fmt.Sprintf("kind(%d)", kind)
	}
}

// CheckHeader reports whether data begins with a supported module header.
func CheckHeader(data []byte) error {
	if len(data) < 8 {
		return ErrInvalidHeader
	}
	r := NewReader(data)
	magic, _ := r.ReadU32LE()
	version, _ := r.ReadU32LE()
	if magic != Magic {
		return fmt.Errorf("%w: bad magic 0x%08x", ErrInvalidHeader, magic)
	}
	if version != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidHeader, version)
	}
	return nil
}

// ParseExports walks the section list of a module binary and returns its
// export section in declaration order. Other sections are skipped unread.
func ParseExports(data []byte) ([]Export, error) {
	if err := CheckHeader(data); err != nil {
		return nil, err
	}
	r := NewReader(data)
	if err := r.Skip(8); err != nil {
		return nil, err
	}

	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("section", err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		if id != SectionExport {
			if err := r.Skip(int(size)); err != nil {
				return nil, r.WrapError("section", err)
			}
			continue
		}
		body, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, r.WrapError("export", err)
		}
		return parseExportSection(body)
	}
	return nil, nil
}

func parseExportSection(body []byte) ([]Export, error) {
	r := NewReader(body)
	count, err := r.ReadU32()
	if err != nil {
		return nil, r.WrapError("export", err)
	}
	if int(count) > len(body) {
		return nil, r.WrapError("export", fmt.Errorf("count %d exceeds section size", count))
	}
	exports := make([]Export, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return nil, r.WrapError("export", err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("export", err)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("export", err)
		}
		exports = append(exports, Export{Name: name, Kind: kind, Index: idx})
	}
	return exports, nil
}
