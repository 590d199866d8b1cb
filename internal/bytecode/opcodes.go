// Package bytecode decodes, walks, edits and assembles JVM method code.
//
// A Stream borrows the raw code bytes of a single method. Instructions are
// decoded on demand, front to back, so that an offset is only accepted if a
// clean decode from offset 0 lands on it. Writes never change the length of
// the buffer; offsets outside an overwritten range keep their meaning.
package bytecode

import "fmt"

// Opcode is a single JVM opcode byte.
type Opcode byte

const (
	Nop        Opcode = 0x00
	AconstNull Opcode = 0x01
	IconstM1   Opcode = 0x02
	Iconst0    Opcode = 0x03
	Iconst1    Opcode = 0x04
	Iconst2    Opcode = 0x05
	Iconst3    Opcode = 0x06
	Iconst4    Opcode = 0x07
	Iconst5    Opcode = 0x08
	Fconst0    Opcode = 0x0b
	Fconst1    Opcode = 0x0c
	Fconst2    Opcode = 0x0d
	Bipush     Opcode = 0x10
	Sipush     Opcode = 0x11
	Ldc        Opcode = 0x12
	LdcW       Opcode = 0x13
	Ldc2W      Opcode = 0x14

	Iload  Opcode = 0x15
	Lload  Opcode = 0x16
	Fload  Opcode = 0x17
	Dload  Opcode = 0x18
	Aload  Opcode = 0x19
	Iload0 Opcode = 0x1a
	Lload0 Opcode = 0x1e
	Fload0 Opcode = 0x22
	Dload0 Opcode = 0x26
	Aload0 Opcode = 0x2a

	Istore  Opcode = 0x36
	Lstore  Opcode = 0x37
	Fstore  Opcode = 0x38
	Dstore  Opcode = 0x39
	Astore  Opcode = 0x3a
	Istore0 Opcode = 0x3b
	Lstore0 Opcode = 0x3f
	Fstore0 Opcode = 0x43
	Dstore0 Opcode = 0x47
	Astore0 Opcode = 0x4b

	Pop   Opcode = 0x57
	Dup   Opcode = 0x59
	Iadd  Opcode = 0x60
	Fadd  Opcode = 0x62
	Fmul  Opcode = 0x6a
	Fdiv  Opcode = 0x6e
	Irem  Opcode = 0x70
	Iinc  Opcode = 0x84
	I2f   Opcode = 0x86
	F2i   Opcode = 0x8b
	Fcmpl Opcode = 0x95
	Fcmpg Opcode = 0x96

	Ifeq     Opcode = 0x99
	Ifne     Opcode = 0x9a
	Iflt     Opcode = 0x9b
	Ifge     Opcode = 0x9c
	Ifgt     Opcode = 0x9d
	Ifle     Opcode = 0x9e
	IfIcmpeq Opcode = 0x9f
	IfIcmpne Opcode = 0xa0
	IfIcmplt Opcode = 0xa1
	IfIcmpge Opcode = 0xa2
	IfIcmpgt Opcode = 0xa3
	IfIcmple Opcode = 0xa4
	IfAcmpeq Opcode = 0xa5
	IfAcmpne Opcode = 0xa6
	Goto     Opcode = 0xa7
	Jsr      Opcode = 0xa8
	Ret      Opcode = 0xa9

	Tableswitch  Opcode = 0xaa
	Lookupswitch Opcode = 0xab

	Ireturn Opcode = 0xac
	Freturn Opcode = 0xae
	Areturn Opcode = 0xb0
	Return  Opcode = 0xb1

	Getstatic       Opcode = 0xb2
	Putstatic       Opcode = 0xb3
	Getfield        Opcode = 0xb4
	Putfield        Opcode = 0xb5
	Invokevirtual   Opcode = 0xb6
	Invokespecial   Opcode = 0xb7
	Invokestatic    Opcode = 0xb8
	Invokeinterface Opcode = 0xb9
	Invokedynamic   Opcode = 0xba
	New             Opcode = 0xbb
	Athrow          Opcode = 0xbf
	Checkcast       Opcode = 0xc0
	Wide            Opcode = 0xc4
	Ifnull          Opcode = 0xc6
	Ifnonnull       Opcode = 0xc7
	GotoW           Opcode = 0xc8
	JsrW            Opcode = 0xc9
)

// variableLength marks opcodes whose size depends on their position or prefix.
const variableLength = -1

// OpcodeInfo describes the fixed encoding properties of an opcode.
type OpcodeInfo struct {
	Name       string
	OperandLen int // bytes after the opcode, or variableLength
	Valid      bool
}

var opcodeTable [256]OpcodeInfo

func def(op Opcode, name string, operands int) {
	opcodeTable[op] = OpcodeInfo{Name: name, OperandLen: operands, Valid: true}
}

func defRange(first Opcode, operands int, names ...string) {
	for i, name := range names {
		def(first+Opcode(i), name, operands)
	}
}

func init() {
	defRange(0x00, 0,
		"nop", "aconst_null", "iconst_m1", "iconst_0", "iconst_1", "iconst_2", "iconst_3",
		"iconst_4", "iconst_5", "lconst_0", "lconst_1", "fconst_0", "fconst_1", "fconst_2",
		"dconst_0", "dconst_1")
	def(Bipush, "bipush", 1)
	def(Sipush, "sipush", 2)
	def(Ldc, "ldc", 1)
	def(LdcW, "ldc_w", 2)
	def(Ldc2W, "ldc2_w", 2)
	defRange(Iload, 1, "iload", "lload", "fload", "dload", "aload")
	defRange(0x1a, 0,
		"iload_0", "iload_1", "iload_2", "iload_3",
		"lload_0", "lload_1", "lload_2", "lload_3",
		"fload_0", "fload_1", "fload_2", "fload_3",
		"dload_0", "dload_1", "dload_2", "dload_3",
		"aload_0", "aload_1", "aload_2", "aload_3",
		"iaload", "laload", "faload", "daload", "aaload", "baload", "caload", "saload")
	defRange(Istore, 1, "istore", "lstore", "fstore", "dstore", "astore")
	defRange(0x3b, 0,
		"istore_0", "istore_1", "istore_2", "istore_3",
		"lstore_0", "lstore_1", "lstore_2", "lstore_3",
		"fstore_0", "fstore_1", "fstore_2", "fstore_3",
		"dstore_0", "dstore_1", "dstore_2", "dstore_3",
		"astore_0", "astore_1", "astore_2", "astore_3",
		"iastore", "lastore", "fastore", "dastore", "aastore", "bastore", "castore", "sastore",
		"pop", "pop2", "dup", "dup_x1", "dup_x2", "dup2", "dup2_x1", "dup2_x2", "swap",
		"iadd", "ladd", "fadd", "dadd", "isub", "lsub", "fsub", "dsub",
		"imul", "lmul", "fmul", "dmul", "idiv", "ldiv", "fdiv", "ddiv",
		"irem", "lrem", "frem", "drem", "ineg", "lneg", "fneg", "dneg",
		"ishl", "lshl", "ishr", "lshr", "iushr", "lushr", "iand", "land",
		"ior", "lor", "ixor", "lxor")
	def(Iinc, "iinc", 2)
	defRange(0x85, 0,
		"i2l", "i2f", "i2d", "l2i", "l2f", "l2d", "f2i", "f2l", "f2d", "d2i", "d2l", "d2f",
		"i2b", "i2c", "i2s", "lcmp", "fcmpl", "fcmpg", "dcmpl", "dcmpg")
	defRange(Ifeq, 2,
		"ifeq", "ifne", "iflt", "ifge", "ifgt", "ifle",
		"if_icmpeq", "if_icmpne", "if_icmplt", "if_icmpge", "if_icmpgt", "if_icmple",
		"if_acmpeq", "if_acmpne", "goto", "jsr")
	def(Ret, "ret", 1)
	def(Tableswitch, "tableswitch", variableLength)
	def(Lookupswitch, "lookupswitch", variableLength)
	defRange(Ireturn, 0, "ireturn", "lreturn", "freturn", "dreturn", "areturn", "return")
	defRange(Getstatic, 2,
		"getstatic", "putstatic", "getfield", "putfield",
		"invokevirtual", "invokespecial", "invokestatic")
	def(Invokeinterface, "invokeinterface", 4)
	def(Invokedynamic, "invokedynamic", 4)
	def(New, "new", 2)
	def(0xbc, "newarray", 1)
	def(0xbd, "anewarray", 2)
	def(0xbe, "arraylength", 0)
	def(Athrow, "athrow", 0)
	def(Checkcast, "checkcast", 2)
	def(0xc1, "instanceof", 2)
	def(0xc2, "monitorenter", 0)
	def(0xc3, "monitorexit", 0)
	def(Wide, "wide", variableLength)
	def(0xc5, "multianewarray", 3)
	def(Ifnull, "ifnull", 2)
	def(Ifnonnull, "ifnonnull", 2)
	def(GotoW, "goto_w", 4)
	def(JsrW, "jsr_w", 4)
}

// Info returns the encoding properties of op.
func Info(op Opcode) OpcodeInfo {
	return opcodeTable[op]
}

// String returns the JVM mnemonic.
func (op Opcode) String() string {
	if info := opcodeTable[op]; info.Valid {
		return info.Name
	}
	return fmt.Sprintf("op(0x%02x)", byte(op))
}

// IsInvoke reports whether op references a method through the constant pool.
func (op Opcode) IsInvoke() bool {
	return op >= Invokevirtual && op <= Invokedynamic
}

// IsMemberRef reports whether op's first operand is a constant pool index of
// a field or method reference.
func (op Opcode) IsMemberRef() bool {
	return op >= Getstatic && op <= Invokedynamic
}

// IsBranch reports whether op is a branch with a signed 16-bit offset.
func (op Opcode) IsBranch() bool {
	return (op >= Ifeq && op <= Jsr) || op == Ifnull || op == Ifnonnull
}

// IsConditional reports whether op is a two-way branch.
func (op Opcode) IsConditional() bool {
	return op.IsBranch() && op != Goto && op != Jsr
}

// wideable lists the opcodes that may follow a wide prefix.
func wideable(op Opcode) bool {
	switch {
	case op >= Iload && op <= Aload:
		return true
	case op >= Istore && op <= Astore:
		return true
	case op == Ret, op == Iinc:
		return true
	}
	return false
}
