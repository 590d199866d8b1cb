package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Instruction is a decoded view of one instruction. It is only valid until
// the byte range it was decoded from is overwritten.
type Instruction struct {
	Index    int    // position in a front-to-back decode of the method
	Offset   uint32 // absolute offset of the first byte (the wide prefix, if any)
	Opcode   Opcode // for wide instructions, the modified opcode
	Wide     bool
	Operands []byte
	Length   uint16
}

// End returns the offset of the byte following the instruction.
func (in Instruction) End() uint32 {
	return in.Offset + uint32(in.Length)
}

// U16 reads a big-endian operand at byte i of the operands.
func (in Instruction) U16(i int) (uint16, bool) {
	if i < 0 || i+2 > len(in.Operands) {
		return 0, false
	}
	return binary.BigEndian.Uint16(in.Operands[i:]), true
}

// PoolIndex returns the constant pool index referenced by a field or method
// instruction.
func (in Instruction) PoolIndex() (uint16, bool) {
	if !in.Opcode.IsMemberRef() || in.Wide {
		return 0, false
	}
	return in.U16(0)
}

func (in Instruction) String() string {
	name := in.Opcode.String()
	if in.Wide {
		name = "wide " + name
	}
	if len(in.Operands) == 0 {
		return fmt.Sprintf("%04x %s", in.Offset, name)
	}
	return fmt.Sprintf("%04x %s % x", in.Offset, name, in.Operands)
}

// decodeOne decodes the instruction at off without checking that off is an
// instruction boundary.
func decodeOne(code []byte, off int) (Instruction, error) {
	if off < 0 || off >= len(code) {
		return Instruction{}, fmt.Errorf("%w: offset %d outside code of %d bytes", ErrDecode, off, len(code))
	}
	op := Opcode(code[off])
	info := opcodeTable[op]
	if !info.Valid {
		return Instruction{}, fmt.Errorf("%w: undefined opcode 0x%02x at offset %d", ErrDecode, byte(op), off)
	}

	in := Instruction{Offset: uint32(off), Opcode: op}
	size := 1 + info.OperandLen
	operandStart := off + 1

	switch op {
	case Wide:
		if off+1 >= len(code) {
			return Instruction{}, fmt.Errorf("%w: truncated wide at offset %d", ErrDecode, off)
		}
		mod := Opcode(code[off+1])
		if !wideable(mod) {
			return Instruction{}, fmt.Errorf("%w: wide cannot modify %s at offset %d", ErrDecode, mod, off)
		}
		in.Opcode = mod
		in.Wide = true
		operandStart = off + 2
		size = 4
		if mod == Iinc {
			size = 6
		}

	case Tableswitch:
		pad := switchPadding(off)
		base := off + 1 + pad
		if base+12 > len(code) {
			return Instruction{}, fmt.Errorf("%w: truncated tableswitch at offset %d", ErrDecode, off)
		}
		low := int32(binary.BigEndian.Uint32(code[base+4:]))
		high := int32(binary.BigEndian.Uint32(code[base+8:]))
		if high < low {
			return Instruction{}, fmt.Errorf("%w: tableswitch at offset %d has high %d < low %d", ErrDecode, off, high, low)
		}
		size = 1 + pad + 12 + 4*int(int64(high)-int64(low)+1)

	case Lookupswitch:
		pad := switchPadding(off)
		base := off + 1 + pad
		if base+8 > len(code) {
			return Instruction{}, fmt.Errorf("%w: truncated lookupswitch at offset %d", ErrDecode, off)
		}
		npairs := int32(binary.BigEndian.Uint32(code[base+4:]))
		if npairs < 0 {
			return Instruction{}, fmt.Errorf("%w: lookupswitch at offset %d has %d pairs", ErrDecode, off, npairs)
		}
		size = 1 + pad + 8 + 8*int(npairs)
	}

	if size <= 0 || off+size > len(code) {
		return Instruction{}, fmt.Errorf("%w: %s at offset %d runs past end of code", ErrDecode, op, off)
	}
	in.Operands = code[operandStart : off+size]
	in.Length = uint16(size)
	return in, nil
}

// switchPadding returns the number of alignment bytes after a switch opcode
// at off. Alignment is relative to the start of the method's code.
func switchPadding(off int) int {
	return (4 - (off+1)%4) % 4
}
