package bytecode

import (
	"encoding/binary"
	"fmt"
)

// SlotKind is the primitive kind a load or store moves through a local slot.
type SlotKind int

const (
	SlotInt SlotKind = iota
	SlotLong
	SlotFloat
	SlotDouble
	SlotRef
)

func (k SlotKind) String() string {
	switch k {
	case SlotInt:
		return "int"
	case SlotLong:
		return "long"
	case SlotFloat:
		return "float"
	case SlotDouble:
		return "double"
	case SlotRef:
		return "reference"
	default:
		return fmt.Sprintf("SlotKind(%d)", int(k))
	}
}

// LocalSlot is an index into the method's local variable frame.
type LocalSlot struct {
	Index uint16
	Kind  SlotKind
}

func (l LocalSlot) String() string {
	return fmt.Sprintf("%s#%d", l.Kind, l.Index)
}

// BranchTarget is an absolute offset within the method.
type BranchTarget int

type localOp struct {
	kind     SlotKind
	store    bool
	implicit int // slot encoded in the opcode, or -1
}

var localOps = map[Opcode]localOp{}

func init() {
	kinds := []SlotKind{SlotInt, SlotLong, SlotFloat, SlotDouble, SlotRef}
	for i, k := range kinds {
		localOps[Iload+Opcode(i)] = localOp{kind: k, implicit: -1}
		localOps[Istore+Opcode(i)] = localOp{kind: k, store: true, implicit: -1}
		for n := 0; n < 4; n++ {
			localOps[Iload0+Opcode(i*4+n)] = localOp{kind: k, implicit: n}
			localOps[Istore0+Opcode(i*4+n)] = localOp{kind: k, store: true, implicit: n}
		}
	}
}

// IsLoad reports whether op pushes a local variable of kind k.
func IsLoad(op Opcode, k SlotKind) bool {
	info, ok := localOps[op]
	return ok && !info.store && info.kind == k
}

// IsStore reports whether op pops into a local variable of kind k.
func IsStore(op Opcode, k SlotKind) bool {
	info, ok := localOps[op]
	return ok && info.store && info.kind == k
}

// LocalSlotOf reads the local variable slot of a load or store of kind k.
func LocalSlotOf(in Instruction, k SlotKind) (LocalSlot, error) {
	info, ok := localOps[in.Opcode]
	if !ok {
		return LocalSlot{}, fmt.Errorf("%w: %s at offset %d is not a local variable access", ErrUnexpectedOperandEncoding, in.Opcode, in.Offset)
	}
	if info.kind != k {
		return LocalSlot{}, fmt.Errorf("%w: %s at offset %d accesses a %s slot, want %s", ErrUnexpectedOperandEncoding, in.Opcode, in.Offset, info.kind, k)
	}

	switch {
	case info.implicit >= 0:
		if in.Wide || len(in.Operands) != 0 {
			return LocalSlot{}, fmt.Errorf("%w: %s at offset %d carries %d operand bytes", ErrUnexpectedOperandEncoding, in.Opcode, in.Offset, len(in.Operands))
		}
		return LocalSlot{Index: uint16(info.implicit), Kind: k}, nil
	case in.Wide:
		if len(in.Operands) != 2 {
			return LocalSlot{}, fmt.Errorf("%w: wide %s at offset %d carries %d operand bytes", ErrUnexpectedOperandEncoding, in.Opcode, in.Offset, len(in.Operands))
		}
		return LocalSlot{Index: binary.BigEndian.Uint16(in.Operands), Kind: k}, nil
	default:
		if len(in.Operands) != 1 {
			return LocalSlot{}, fmt.Errorf("%w: %s at offset %d carries %d operand bytes", ErrUnexpectedOperandEncoding, in.Opcode, in.Offset, len(in.Operands))
		}
		return LocalSlot{Index: uint16(in.Operands[0]), Kind: k}, nil
	}
}

// BranchTargetOf resolves the absolute target of a 16-bit branch.
func BranchTargetOf(in Instruction) (BranchTarget, error) {
	if !in.Opcode.IsBranch() || in.Wide || len(in.Operands) != 2 {
		return 0, fmt.Errorf("%w: %s at offset %d is not a 16-bit branch", ErrUnexpectedOperandEncoding, in.Opcode, in.Offset)
	}
	rel := int16(binary.BigEndian.Uint16(in.Operands))
	return BranchTarget(int(in.Offset) + int(rel)), nil
}

// JumpTargets returns every offset in can transfer control to other than
// the next instruction. It covers 16-bit branches, goto_w, jsr_w and both
// switches; anything else has no targets.
func JumpTargets(in Instruction) []BranchTarget {
	if in.Wide {
		return nil
	}
	base := int(in.Offset)
	rel := func(b []byte) BranchTarget {
		return BranchTarget(base + int(int32(binary.BigEndian.Uint32(b))))
	}
	switch {
	case in.Opcode.IsBranch():
		if t, err := BranchTargetOf(in); err == nil {
			return []BranchTarget{t}
		}
		return nil
	case in.Opcode == GotoW || in.Opcode == JsrW:
		if len(in.Operands) != 4 {
			return nil
		}
		return []BranchTarget{rel(in.Operands)}
	case in.Opcode == Tableswitch:
		ops := in.Operands[switchPadding(base):]
		targets := []BranchTarget{rel(ops)}
		for i := 12; i+4 <= len(ops); i += 4 {
			targets = append(targets, rel(ops[i:]))
		}
		return targets
	case in.Opcode == Lookupswitch:
		ops := in.Operands[switchPadding(base):]
		targets := []BranchTarget{rel(ops)}
		for i := 8; i+8 <= len(ops); i += 8 {
			targets = append(targets, rel(ops[i+4:]))
		}
		return targets
	}
	return nil
}
