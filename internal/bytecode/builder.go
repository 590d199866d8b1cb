package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Builder assembles an instruction sequence that will be placed at a known
// absolute offset, so that branches can be encoded relative to their final
// position.
type Builder struct {
	base int
	code []byte
}

// NewBuilder starts a sequence that will be written at offset base.
func NewBuilder(base int) *Builder {
	return &Builder{base: base, code: make([]byte, 0, 32)}
}

// PC returns the absolute offset of the next emitted byte.
func (b *Builder) PC() int {
	return b.base + len(b.code)
}

// Len returns the number of bytes emitted so far.
func (b *Builder) Len() int {
	return len(b.code)
}

// Bytes returns the emitted bytes.
func (b *Builder) Bytes() []byte {
	return b.code
}

// Emit appends op and its raw operands and returns the opcode's offset.
func (b *Builder) Emit(op Opcode, operands ...byte) int {
	pc := b.PC()
	b.code = append(b.code, byte(op))
	b.code = append(b.code, operands...)
	return pc
}

// EmitU16 appends op with a single big-endian 16-bit operand.
func (b *Builder) EmitU16(op Opcode, v uint16) int {
	return b.Emit(op, byte(v>>8), byte(v))
}

// Load pushes a local slot using the shortest encoding.
func (b *Builder) Load(slot LocalSlot) int {
	k := Opcode(slot.Kind)
	switch {
	case slot.Index < 4:
		return b.Emit(Iload0 + k*4 + Opcode(slot.Index))
	case slot.Index <= math.MaxUint8:
		return b.Emit(Iload+k, byte(slot.Index))
	default:
		pc := b.Emit(Wide, byte(Iload+k))
		b.code = binary.BigEndian.AppendUint16(b.code, slot.Index)
		return pc
	}
}

// Int pushes an int constant using the shortest encoding.
func (b *Builder) Int(v int) int {
	switch {
	case v >= -1 && v <= 5:
		return b.Emit(IconstM1 + Opcode(v+1))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return b.Emit(Bipush, byte(int8(v)))
	default:
		return b.Emit(Sipush, byte(uint16(int16(v))>>8), byte(int16(v)))
	}
}

// Bool pushes 1 for true and 0 for false.
func (b *Builder) Bool(v bool) int {
	if v {
		return b.Emit(Iconst1)
	}
	return b.Emit(Iconst0)
}

// Invoke emits a method call through constant pool entry index.
func (b *Builder) Invoke(op Opcode, index uint16) int {
	if op == Invokeinterface || op == Invokedynamic {
		return b.Emit(op, byte(index>>8), byte(index), 0, 0)
	}
	return b.EmitU16(op, index)
}

// Branch emits a 16-bit branch to the absolute offset target.
func (b *Builder) Branch(op Opcode, target int) (int, error) {
	if !op.IsBranch() {
		return 0, fmt.Errorf("%s is not a 16-bit branch", op)
	}
	pc := b.PC()
	rel := target - pc
	if rel < math.MinInt16 || rel > math.MaxInt16 {
		return 0, fmt.Errorf("branch from %d to %d does not fit in 16 bits", pc, target)
	}
	return b.EmitU16(op, uint16(int16(rel))), nil
}

// PadTo appends nops until the sequence is length bytes long.
func (b *Builder) PadTo(length int) {
	for len(b.code) < length {
		b.code = append(b.code, byte(Nop))
	}
}
