package wasm

import (
	"encoding/binary"
	"math"
)

type buffer struct {
	bytes []byte
}

func (b *buffer) appendByte(v byte) {
	b.bytes = append(b.bytes, v)
}

func (b *buffer) writeBytes(v []byte) {
	b.bytes = append(b.bytes, v...)
}

// writeU32 writes unsigned LEB128 encoding.
func (b *buffer) writeU32(v uint32) {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			byt |= 0x80
		}
		b.appendByte(byt)
		if v == 0 {
			break
		}
	}
}

// writeI64 writes signed LEB128 encoding. i32 immediates use it too.
func (b *buffer) writeI64(v int64) {
	for {
		byt := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && byt&0x40 == 0) || (v == -1 && byt&0x40 != 0) {
			b.appendByte(byt)
			break
		}
		b.appendByte(byt | 0x80)
	}
}

func (b *buffer) writeF32(v float32) {
	b.bytes = binary.LittleEndian.AppendUint32(b.bytes, math.Float32bits(v))
}

func (b *buffer) writeF64(v float64) {
	b.bytes = binary.LittleEndian.AppendUint64(b.bytes, math.Float64bits(v))
}

func (b *buffer) writeName(s string) {
	b.writeU32(uint32(len(s)))
	b.bytes = append(b.bytes, s...)
}

func (b *buffer) writeLimits(min uint32, max *uint32) {
	if max != nil {
		b.appendByte(0x01)
		b.writeU32(min)
		b.writeU32(*max)
	} else {
		b.appendByte(0x00)
		b.writeU32(min)
	}
}

func (b *buffer) writeSection(id byte, content *buffer) {
	b.appendByte(id)
	b.writeU32(uint32(len(content.bytes)))
	b.writeBytes(content.bytes)
}
