package patch

import (
	"fmt"

	"timerfix/internal/bytecode"
	"timerfix/internal/classfile"
)

// ConstantPool is what a pass needs from the class it patches.
type ConstantPool interface {
	Members() []classfile.MemberRef
	AddMethodref(class, name, desc string) (uint16, error)
}

// Symbol names a field or method. Empty Class or Descriptor match any value.
type Symbol struct {
	Class      string
	Name       string
	Descriptor string
}

func (s Symbol) matches(m classfile.MemberRef) bool {
	if m.Name != s.Name {
		return false
	}
	if s.Class != "" && m.Class != classfile.InternalName(s.Class) {
		return false
	}
	return s.Descriptor == "" || m.Descriptor == s.Descriptor
}

func (s Symbol) String() string {
	name := s.Name
	if s.Class != "" {
		name = classfile.DottedName(s.Class) + "." + name
	}
	return name + s.Descriptor
}

// Handle identifies a resolved symbol. The zero Handle is never valid.
type Handle int

// SymbolTable maps constant pool indices to the symbols they reference. It
// is built once per method body; predicates then compare handles.
type SymbolTable struct {
	symbols []Symbol
	refs    []map[uint16]struct{}
}

// ResolveSymbols resolves syms against the pool. Handles are assigned in
// argument order starting at 1.
func ResolveSymbols(pool ConstantPool, syms ...Symbol) *SymbolTable {
	t := &SymbolTable{
		symbols: syms,
		refs:    make([]map[uint16]struct{}, len(syms)),
	}
	for i := range t.refs {
		t.refs[i] = make(map[uint16]struct{})
	}
	for _, m := range pool.Members() {
		for i, s := range syms {
			if s.matches(m) {
				t.refs[i][m.Index] = struct{}{}
			}
		}
	}
	return t
}

// Handle returns the handle of s and whether the pool references it at all.
func (t *SymbolTable) Handle(s Symbol) (Handle, bool) {
	for i, sym := range t.symbols {
		if sym == s {
			return Handle(i + 1), len(t.refs[i]) > 0
		}
	}
	return 0, false
}

// Symbol returns the symbol behind h.
func (t *SymbolTable) Symbol(h Handle) Symbol {
	if h <= 0 || int(h) > len(t.symbols) {
		return Symbol{}
	}
	return t.symbols[h-1]
}

// Refers reports whether pool entry index resolves to h.
func (t *SymbolTable) Refers(index uint16, h Handle) bool {
	if h <= 0 || int(h) > len(t.refs) {
		return false
	}
	_, ok := t.refs[h-1][index]
	return ok
}

// CallTo matches an instruction with opcode op that references h.
func (t *SymbolTable) CallTo(op bytecode.Opcode, h Handle) Predicate {
	return func(in bytecode.Instruction) bool {
		if in.Opcode != op {
			return false
		}
		idx, ok := in.PoolIndex()
		return ok && t.Refers(idx, h)
	}
}

// must returns the handle of s or an ErrAnchorNotFound naming it.
func (t *SymbolTable) must(s Symbol) (Handle, error) {
	h, ok := t.Handle(s)
	if !ok {
		return 0, fmt.Errorf("%w: no reference to %s", ErrAnchorNotFound, s)
	}
	return h, nil
}
