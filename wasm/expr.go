package wasm

// Expr accumulates an instruction sequence. Methods append one instruction
// and return the receiver so bodies read top to bottom.
type Expr struct {
	buf buffer
}

// Code starts an empty instruction sequence.
func Code() *Expr {
	return &Expr{}
}

// Bytes returns the encoded instructions.
func (e *Expr) Bytes() []byte {
	return e.buf.bytes
}

// Op appends a bare opcode with no immediates.
func (e *Expr) Op(op byte) *Expr {
	e.buf.appendByte(op)
	return e
}

func (e *Expr) opU32(op byte, imm uint32) *Expr {
	e.buf.appendByte(op)
	e.buf.writeU32(imm)
	return e
}

func (e *Expr) memarg(op byte, align, offset uint32) *Expr {
	e.buf.appendByte(op)
	e.buf.writeU32(align)
	e.buf.writeU32(offset)
	return e
}

func (e *Expr) Unreachable() *Expr { return e.Op(OpUnreachable) }
func (e *Expr) Nop() *Expr         { return e.Op(OpNop) }
func (e *Expr) Drop() *Expr        { return e.Op(OpDrop) }
func (e *Expr) Return() *Expr      { return e.Op(OpReturn) }
func (e *Expr) End() *Expr         { return e.Op(OpEnd) }
func (e *Expr) Else() *Expr        { return e.Op(OpElse) }

// Block opens a block with no result.
func (e *Expr) Block() *Expr {
	e.buf.appendByte(OpBlock)
	e.buf.appendByte(BlockVoid)
	return e
}

// Loop opens a loop with no result.
func (e *Expr) Loop() *Expr {
	e.buf.appendByte(OpLoop)
	e.buf.appendByte(BlockVoid)
	return e
}

// If opens an if with no result.
func (e *Expr) If() *Expr {
	e.buf.appendByte(OpIf)
	e.buf.appendByte(BlockVoid)
	return e
}

func (e *Expr) Br(depth uint32) *Expr   { return e.opU32(OpBr, depth) }
func (e *Expr) BrIf(depth uint32) *Expr { return e.opU32(OpBrIf, depth) }
func (e *Expr) Call(fn uint32) *Expr    { return e.opU32(OpCall, fn) }

func (e *Expr) LocalGet(idx uint32) *Expr  { return e.opU32(OpLocalGet, idx) }
func (e *Expr) LocalSet(idx uint32) *Expr  { return e.opU32(OpLocalSet, idx) }
func (e *Expr) LocalTee(idx uint32) *Expr  { return e.opU32(OpLocalTee, idx) }
func (e *Expr) GlobalGet(idx uint32) *Expr { return e.opU32(OpGlobalGet, idx) }
func (e *Expr) GlobalSet(idx uint32) *Expr { return e.opU32(OpGlobalSet, idx) }

func (e *Expr) I32Load(offset uint32) *Expr   { return e.memarg(OpI32Load, 2, offset) }
func (e *Expr) I64Load(offset uint32) *Expr   { return e.memarg(OpI64Load, 3, offset) }
func (e *Expr) F64Load(offset uint32) *Expr   { return e.memarg(OpF64Load, 3, offset) }
func (e *Expr) I32Load8U(offset uint32) *Expr { return e.memarg(OpI32Load8U, 0, offset) }
func (e *Expr) I32Store(offset uint32) *Expr  { return e.memarg(OpI32Store, 2, offset) }
func (e *Expr) I64Store(offset uint32) *Expr  { return e.memarg(OpI64Store, 3, offset) }
func (e *Expr) F64Store(offset uint32) *Expr  { return e.memarg(OpF64Store, 3, offset) }
func (e *Expr) I32Store8(offset uint32) *Expr { return e.memarg(OpI32Store8, 0, offset) }

// MemorySize pushes the size of memory 0 in pages.
func (e *Expr) MemorySize() *Expr {
	e.buf.appendByte(OpMemorySize)
	e.buf.appendByte(0x00)
	return e
}

// MemoryGrow grows memory 0 by the popped page count.
func (e *Expr) MemoryGrow() *Expr {
	e.buf.appendByte(OpMemoryGrow)
	e.buf.appendByte(0x00)
	return e
}

func (e *Expr) I32Const(v int32) *Expr {
	e.buf.appendByte(OpI32Const)
	e.buf.writeI64(int64(v))
	return e
}

func (e *Expr) I64Const(v int64) *Expr {
	e.buf.appendByte(OpI64Const)
	e.buf.writeI64(v)
	return e
}

func (e *Expr) F32Const(v float32) *Expr {
	e.buf.appendByte(OpF32Const)
	e.buf.writeF32(v)
	return e
}

func (e *Expr) F64Const(v float64) *Expr {
	e.buf.appendByte(OpF64Const)
	e.buf.writeF64(v)
	return e
}

func (e *Expr) I32Eqz() *Expr  { return e.Op(OpI32Eqz) }
func (e *Expr) I32Eq() *Expr   { return e.Op(OpI32Eq) }
func (e *Expr) I32Ne() *Expr   { return e.Op(OpI32Ne) }
func (e *Expr) I32LtU() *Expr  { return e.Op(OpI32LtU) }
func (e *Expr) I32Add() *Expr  { return e.Op(OpI32Add) }
func (e *Expr) I32Sub() *Expr  { return e.Op(OpI32Sub) }
func (e *Expr) I32Mul() *Expr  { return e.Op(OpI32Mul) }
func (e *Expr) I32DivS() *Expr { return e.Op(OpI32DivS) }
func (e *Expr) I32DivU() *Expr { return e.Op(OpI32DivU) }
func (e *Expr) I64Add() *Expr  { return e.Op(OpI64Add) }
func (e *Expr) I64Sub() *Expr  { return e.Op(OpI64Sub) }
func (e *Expr) I64Mul() *Expr  { return e.Op(OpI64Mul) }
func (e *Expr) I64DivS() *Expr { return e.Op(OpI64DivS) }
func (e *Expr) F32Add() *Expr  { return e.Op(OpF32Add) }
func (e *Expr) F32Mul() *Expr  { return e.Op(OpF32Mul) }
func (e *Expr) F64Add() *Expr  { return e.Op(OpF64Add) }
func (e *Expr) F64Mul() *Expr  { return e.Op(OpF64Mul) }

func zeroConst(t ValType) *Expr {
	switch t {
	case ValI64:
		return Code().I64Const(0)
	case ValF32:
		return Code().F32Const(0)
	case ValF64:
		return Code().F64Const(0)
	default:
		return Code().I32Const(0)
	}
}
