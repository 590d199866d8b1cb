package cmd

import (
	"archive/zip"
	"io"
	"os"
	"testing"

	charmlog "github.com/charmbracelet/log"

	"timerfix/internal/bytecode"
	"timerfix/internal/classfile"
)

const (
	flatteningEntry = "com/wurmonline/server/behaviours/Flattening.class"
	flattenDesc     = "(JLcom/wurmonline/server/creatures/Creature;Lcom/wurmonline/server/items/Item;IIIIIIFLcom/wurmonline/server/behaviours/Action;)Z"
)

// flatteningClass assembles a class whose flatten method has the two tick
// checks of the stock server, with type=7 insta=8 counter=11 act=12.
func flatteningClass(t *testing.T) []byte {
	t.Helper()
	cf, err := classfile.New("com/wurmonline/server/behaviours/Flattening", "java/lang/Object")
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
	sendActionControl := ref("com/wurmonline/server/creatures/Creature", "sendActionControl", "(Ljava/lang/String;ZI)V")

	local := func(i uint16, k bytecode.SlotKind) bytecode.LocalSlot {
		return bytecode.LocalSlot{Index: i, Kind: k}
	}
	b := bytecode.NewBuilder(0)
	b.Load(local(5, bytecode.SlotInt))
	b.Invoke(bytecode.Invokestatic, decodeType)
	b.Emit(bytecode.Istore, 7)

	b.Load(local(12, bytecode.SlotRef))
	b.Invoke(bytecode.Invokevirtual, currentSecond)
	b.Emit(bytecode.Iconst1)
	j1 := forwardJump(b, bytecode.IfIcmpne)
	b.Load(local(8, bytecode.SlotInt))
	b.Load(local(11, bytecode.SlotFloat))
	b.Emit(bytecode.Fconst0)
	b.Emit(bytecode.Fcmpl)
	j2 := forwardJump(b, bytecode.Ifne)
	b.Emit(bytecode.Iinc, 9, 1)
	j1()
	j2()

	b.Load(local(1, bytecode.SlotRef))
	b.Emit(bytecode.AconstNull)
	b.Int(1)
	b.Int(100)
	b.Invoke(bytecode.Invokevirtual, sendActionControl)

	b.Load(local(12, bytecode.SlotRef))
	b.Invoke(bytecode.Invokevirtual, currentSecond)
	b.Int(10)
	b.Emit(bytecode.Irem)
	j3 := forwardJump(b, bytecode.Ifeq)
	b.Load(local(8, bytecode.SlotInt))
	b.PadTo(b.Len() + 2)
	j4 := forwardJump(b, bytecode.Ifeq)
	b.Emit(bytecode.Iinc, 9, 1)
	j3()
	j4()

	b.Load(local(9, bytecode.SlotInt))
	b.Emit(bytecode.Ireturn)

	code := &classfile.Code{MaxStack: 4, MaxLocals: 13, Code: b.Bytes()}
	if _, err := cf.AddMethod(0x0009, "flatten", flattenDesc, code); err != nil {
		t.Fatalf("AddMethod failed: %v", err)
	}
	return cf.Bytes()
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

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "timerfix-cmd-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

// writeServerJar writes a jar holding the flattening class and a manifest.
func writeServerJar(t *testing.T, path string, class []byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for _, e := range []struct {
		name string
		data []byte
	}{
		{"META-INF/MANIFEST.MF", []byte("Manifest-Version: 1.0\n")},
		{flatteningEntry, class},
	} {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func flattenCode(t *testing.T, data []byte) *classfile.Code {
	t.Helper()
	cf, err := classfile.Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	m, err := cf.Method("flatten", flattenDesc)
	if err != nil {
		t.Fatalf("Method failed: %v", err)
	}
	code, err := cf.Code(m)
	if err != nil {
		t.Fatalf("Code failed: %v", err)
	}
	return code
}

func quietLogger() *charmlog.Logger {
	return charmlog.New(io.Discard)
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
