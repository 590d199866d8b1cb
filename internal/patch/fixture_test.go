package patch

import (
	"testing"

	"timerfix/internal/bytecode"
	"timerfix/internal/classfile"
	"timerfix/internal/config"
)

const (
	flatteningClass = "com/wurmonline/server/behaviours/Flattening"
	flattenDesc     = "(JLcom/wurmonline/server/creatures/Creature;Lcom/wurmonline/server/items/Item;IIIIIIFLcom/wurmonline/server/behaviours/Action;)Z"
)

// flattenShape parameterises a synthetic flatten method body.
type flattenShape struct {
	typeSlot, insta, counter, act uint16
	extra1, extra2                int // nops inside each checked block
	noSecondBlock                 bool
	noSeparator                   bool
	// strayAccessor puts an unrelated accessor call between the first
	// block and the separator.
	strayAccessor bool
}

func defaultShape() flattenShape {
	return flattenShape{typeSlot: 7, insta: 8, counter: 11, act: 12}
}

// flattenFixture is a class holding a method shaped like the stock
// Flattening.flatten, with the offsets a correct pass must find.
type flattenFixture struct {
	cf      *classfile.ClassFile
	method  *classfile.Member
	code    *classfile.Code
	region1 Region
	region2 Region
	target1 int
	target2 int
	// strayJump is the offset of the branch closing the stray accessor
	// check, if there is one.
	strayJump int
}

func buildFlatten(t *testing.T, s flattenShape) *flattenFixture {
	t.Helper()
	cf, err := classfile.New(flatteningClass, "java/lang/Object")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ref := func(class, name, desc string) uint16 {
		i, err := cf.Pool.AddMethodref(class, name, desc)
		if err != nil {
			t.Fatalf("AddMethodref failed: %v", err)
		}
		return i
	}
	decodeType := ref("com/wurmonline/server/behaviours/Terraforming", "decodeType", "(I)B")
	currentSecond := ref("com/wurmonline/server/behaviours/Action", "currentSecond", "()I")
	setTimeLeft := ref("com/wurmonline/server/behaviours/Action", "setTimeLeft", "(I)V")
	sendActionControl := ref("com/wurmonline/server/creatures/Creature", "sendActionControl", "(Ljava/lang/String;ZI)V")

	slot := func(i uint16, k bytecode.SlotKind) bytecode.LocalSlot {
		return bytecode.LocalSlot{Index: i, Kind: k}
	}
	f := &flattenFixture{cf: cf}
	b := bytecode.NewBuilder(0)

	b.Load(slot(5, bytecode.SlotInt))
	b.Invoke(bytecode.Invokestatic, decodeType)
	storeInt(b, s.typeSlot)

	// if (act.currentSecond() == 1 && insta == 0 && counter != 0f) { first tick }
	b.Load(slot(s.act, bytecode.SlotRef))
	f.region1.Start = b.Invoke(bytecode.Invokevirtual, currentSecond)
	b.Emit(bytecode.Iconst1)
	j1 := forwardJump(b, bytecode.IfIcmpne)
	b.Load(slot(s.insta, bytecode.SlotInt))
	b.Load(slot(s.counter, bytecode.SlotFloat))
	b.Emit(bytecode.Fconst0)
	b.Emit(bytecode.Fcmpl)
	b.PadTo(b.Len() + s.extra1)
	j2 := forwardJump(b, bytecode.Ifne)
	f.region1.End = b.PC()
	b.Emit(bytecode.Iinc, 9, 1)
	f.target1 = b.PC()
	j1()
	j2()

	if s.strayAccessor {
		// if (act.currentSecond() == 0) act.setTimeLeft(100)
		b.Load(slot(s.act, bytecode.SlotRef))
		b.Invoke(bytecode.Invokevirtual, currentSecond)
		f.strayJump = b.PC()
		j := forwardJump(b, bytecode.Ifne)
		b.Load(slot(s.act, bytecode.SlotRef))
		b.Int(100)
		b.Invoke(bytecode.Invokevirtual, setTimeLeft)
		j()
	}

	if !s.noSeparator {
		// performer.sendActionControl(null, true, 100)
		b.Load(slot(1, bytecode.SlotRef))
		b.Emit(bytecode.AconstNull)
		b.Int(1)
		b.Int(100)
		b.Invoke(bytecode.Invokevirtual, sendActionControl)
	}

	// if (act.currentSecond() % 10 == 0 && insta == 0) { later tick }
	if !s.noSecondBlock {
		b.Load(slot(s.act, bytecode.SlotRef))
		f.region2.Start = b.Invoke(bytecode.Invokevirtual, currentSecond)
		b.Int(10)
		b.Emit(bytecode.Irem)
		j3 := forwardJump(b, bytecode.Ifeq)
		b.Load(slot(s.insta, bytecode.SlotInt))
		b.PadTo(b.Len() + s.extra2)
		j4 := forwardJump(b, bytecode.Ifeq)
		f.region2.End = b.PC()
		b.Emit(bytecode.Iinc, 9, 1)
		f.target2 = b.PC()
		j3()
		j4()
	}

	b.Load(slot(9, bytecode.SlotInt))
	b.Emit(bytecode.Ireturn)

	f.code = &classfile.Code{
		MaxStack:  4,
		MaxLocals: 400,
		Code:      b.Bytes(),
		ExceptionTable: []classfile.ExceptionHandler{
			{StartPC: 0, EndPC: uint16(f.region1.Start), HandlerPC: uint16(f.target1), CatchType: 0},
		},
	}
	f.method, err = cf.AddMethod(0x0009, "flatten", flattenDesc, f.code)
	if err != nil {
		t.Fatalf("AddMethod failed: %v", err)
	}
	return f
}

// storeInt emits the shortest istore for slot.
func storeInt(b *bytecode.Builder, slot uint16) {
	switch {
	case slot < 4:
		b.Emit(bytecode.Istore0 + bytecode.Opcode(slot))
	case slot <= 0xff:
		b.Emit(bytecode.Istore, byte(slot))
	default:
		b.Emit(bytecode.Wide, byte(bytecode.Istore), byte(slot>>8), byte(slot))
	}
}

// forwardJump emits op with a placeholder offset. Calling the returned func
// points it at the builder's current position.
func forwardJump(b *bytecode.Builder, op bytecode.Opcode) func() {
	pc := b.Emit(op, 0xff, 0xff)
	return func() {
		rel := int16(b.PC() - pc)
		i := pc - (b.PC() - b.Len())
		code := b.Bytes()
		code[i+1] = byte(uint16(rel) >> 8)
		code[i+2] = byte(rel)
	}
}

// testPass returns the pass the default configuration builds.
func testPass() *FlattenPass {
	p := NewFlattenPatcher(config.Default().Flatten, nil).pass
	return &p
}

// walk follows control flow from start until it leaves [start, stop),
// treating every call to hook as returning result. It returns the offset
// control left the range at and the instructions executed on the way.
func walk(t *testing.T, code []byte, start, stop int, hook uint16, result bool) (int, []bytecode.Instruction) {
	t.Helper()
	s := bytecode.NewStream(code)
	var cond bool
	var trace []bytecode.Instruction
	pc := start
	for pc >= start && pc < stop {
		in, err := s.DecodeAt(pc)
		if err != nil {
			t.Fatalf("walk: %v", err)
		}
		trace = append(trace, in)
		pc = int(in.End())
		switch in.Opcode {
		case bytecode.Invokestatic:
			if idx, _ := in.PoolIndex(); idx == hook {
				cond = result
			}
		case bytecode.Ifeq:
			if !cond {
				target, _ := bytecode.BranchTargetOf(in)
				pc = int(target)
			}
		}
		if len(trace) > len(code) {
			t.Fatal("walk: no progress")
		}
	}
	return pc, trace
}
