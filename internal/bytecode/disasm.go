package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Describer resolves constant pool indices for listings.
type Describer interface {
	Describe(index uint16) string
}

// Line is one disassembled instruction with its annotations.
type Line struct {
	Inst        Instruction
	Mnemonic    string
	Operands    string
	Annotations []string
}

// String formats the line with annotations starting at a fixed column.
func (l Line) String() string {
	addr := fmt.Sprintf("%04x", l.Inst.Offset)
	base := fmt.Sprintf("%-6s %-16s %-12s", addr, l.Mnemonic, l.Operands)
	if len(l.Annotations) > 0 {
		return fmt.Sprintf("%s ; %s", base, strings.Join(l.Annotations, ", "))
	}
	return strings.TrimRight(base, " ")
}

// Listing disassembles the whole method. pool may be nil.
func Listing(code []byte, pool Describer) ([]Line, error) {
	list, err := NewStream(code).Instructions()
	if err != nil {
		return nil, err
	}
	lines := make([]Line, 0, len(list))
	for _, in := range list {
		lines = append(lines, describe(in, pool))
	}
	return lines, nil
}

// Disassemble returns a textual listing, one instruction per line.
func Disassemble(code []byte, pool Describer) (string, error) {
	lines, err := Listing(code, pool)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.String())
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func describe(in Instruction, pool Describer) Line {
	l := Line{Inst: in, Mnemonic: in.Opcode.String()}
	if in.Wide {
		l.Mnemonic = "wide " + l.Mnemonic
	}
	ops := in.Operands

	switch {
	case in.Opcode.IsMemberRef(), in.Opcode == New, in.Opcode == Checkcast,
		in.Opcode == LdcW, in.Opcode == Ldc2W, in.Opcode == 0xbd, in.Opcode == 0xc1, in.Opcode == 0xc5:
		idx := binary.BigEndian.Uint16(ops)
		l.Operands = fmt.Sprintf("#%d", idx)
		if pool != nil {
			l.Annotations = append(l.Annotations, pool.Describe(idx))
		}
	case in.Opcode == Ldc:
		l.Operands = fmt.Sprintf("#%d", ops[0])
		if pool != nil {
			l.Annotations = append(l.Annotations, pool.Describe(uint16(ops[0])))
		}
	case in.Opcode.IsBranch():
		target, _ := BranchTargetOf(in)
		l.Operands = fmt.Sprintf("%04x", int(target))
	case in.Opcode == GotoW || in.Opcode == JsrW:
		rel := int32(binary.BigEndian.Uint32(ops))
		l.Operands = fmt.Sprintf("%04x", int64(in.Offset)+int64(rel))
	case in.Opcode == Iinc:
		if in.Wide {
			l.Operands = fmt.Sprintf("%d, %d", binary.BigEndian.Uint16(ops), int16(binary.BigEndian.Uint16(ops[2:])))
		} else {
			l.Operands = fmt.Sprintf("%d, %d", ops[0], int8(ops[1]))
		}
	case in.Opcode == Bipush:
		l.Operands = fmt.Sprintf("%d", int8(ops[0]))
	case in.Opcode == Sipush:
		l.Operands = fmt.Sprintf("%d", int16(binary.BigEndian.Uint16(ops)))
	case in.Opcode == Tableswitch || in.Opcode == Lookupswitch:
		pad := switchPadding(int(in.Offset))
		def := int32(binary.BigEndian.Uint32(ops[pad:]))
		l.Operands = fmt.Sprintf("default %04x", int64(in.Offset)+int64(def))
		l.Annotations = append(l.Annotations, fmt.Sprintf("%d bytes", in.Length))
	case in.Wide:
		l.Operands = fmt.Sprintf("%d", binary.BigEndian.Uint16(ops))
	case len(ops) == 1:
		l.Operands = fmt.Sprintf("%d", ops[0])
	}
	return l
}
