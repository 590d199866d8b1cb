package patch

import (
	"errors"

	"timerfix/internal/bytecode"
)

// Predicate decides whether an instruction is the one being looked for.
type Predicate func(bytecode.Instruction) bool

// Op matches any of the given opcodes. Wide forms match their base opcode.
func Op(ops ...bytecode.Opcode) Predicate {
	return func(in bytecode.Instruction) bool {
		for _, op := range ops {
			if in.Opcode == op {
				return true
			}
		}
		return false
	}
}

// Load matches every encoding of a load of kind k.
func Load(k bytecode.SlotKind) Predicate {
	return func(in bytecode.Instruction) bool {
		return bytecode.IsLoad(in.Opcode, k)
	}
}

// Store matches every encoding of a store of kind k.
func Store(k bytecode.SlotKind) Predicate {
	return func(in bytecode.Instruction) bool {
		return bytecode.IsStore(in.Opcode, k)
	}
}

// Scanner searches forward through a method. It never moves backwards over
// an instruction it has already returned.
type Scanner struct {
	c *bytecode.Cursor
}

func NewScanner(c *bytecode.Cursor) *Scanner {
	return &Scanner{c: c}
}

// Pos returns the offset the next search starts at.
func (s *Scanner) Pos() int {
	return s.c.Pos()
}

// FindNext returns the next instruction matching pred. found is false when
// the method ends first; err is only set for decode failures.
func (s *Scanner) FindNext(pred Predicate) (in bytecode.Instruction, found bool, err error) {
	return s.findNext(pred, nil)
}

// findNext is FindNext with a callback for every instruction passed over.
func (s *Scanner) findNext(pred Predicate, visit func(bytecode.Instruction)) (bytecode.Instruction, bool, error) {
	for {
		in, err := s.c.Next()
		if errors.Is(err, bytecode.ErrEndOfStream) {
			return bytecode.Instruction{}, false, nil
		}
		if err != nil {
			return bytecode.Instruction{}, false, err
		}
		if pred(in) {
			return in, true, nil
		}
		if visit != nil {
			visit(in)
		}
	}
}

// StoreMatch is a call whose result is stored straight into a local.
type StoreMatch struct {
	Call  bytecode.Instruction
	Store bytecode.Instruction
}

// FindStore finds the next instruction matching call that is immediately
// followed by one matching store. A follower that is not a store is consumed
// and never examined as a call.
func (s *Scanner) FindStore(call, store Predicate) (StoreMatch, bool, error) {
	for {
		c, found, err := s.FindNext(call)
		if err != nil || !found {
			return StoreMatch{}, false, err
		}
		if !s.c.HasNext() {
			return StoreMatch{}, false, nil
		}
		next, err := s.c.Next()
		if err != nil {
			return StoreMatch{}, false, err
		}
		if store(next) {
			return StoreMatch{Call: c, Store: next}, true, nil
		}
	}
}

// BlockPattern describes a block that starts at an anchor instruction and
// ends with a conditional branch.
type BlockPattern struct {
	Anchor Predicate
	// Receiver, if set, records the last matching instruction before the
	// anchor.
	Receiver Predicate
	// Loads are matched in order after the anchor, each being the next
	// matching instruction after the previous one.
	Loads []Predicate
	// Branch closes the block once SkipBranches earlier matches were passed.
	Branch       Predicate
	SkipBranches int
}

// Block is a matched BlockPattern.
type Block struct {
	Receiver *bytecode.Instruction
	Anchor   bytecode.Instruction
	Loads    []bytecode.Instruction
	Skipped  []bytecode.Instruction
	Branch   bytecode.Instruction
}

// Region is the byte span from the anchor to the end of the closing branch.
func (b Block) Region() Region {
	return Region{Start: int(b.Anchor.Offset), End: int(b.Branch.End())}
}

// FindBlock finds the next block matching p.
func (s *Scanner) FindBlock(p BlockPattern) (Block, bool, error) {
	var blk Block
	var visit func(bytecode.Instruction)
	if p.Receiver != nil {
		visit = func(in bytecode.Instruction) {
			if p.Receiver(in) {
				r := in
				blk.Receiver = &r
			}
		}
	}

	anchor, found, err := s.findNext(p.Anchor, visit)
	if err != nil || !found {
		return Block{}, false, err
	}
	blk.Anchor = anchor

	for _, load := range p.Loads {
		in, found, err := s.FindNext(load)
		if err != nil || !found {
			return Block{}, false, err
		}
		blk.Loads = append(blk.Loads, in)
	}

	for i := 0; i < p.SkipBranches; i++ {
		in, found, err := s.FindNext(p.Branch)
		if err != nil || !found {
			return Block{}, false, err
		}
		blk.Skipped = append(blk.Skipped, in)
	}

	branch, found, err := s.FindNext(p.Branch)
	if err != nil || !found {
		return Block{}, false, err
	}
	blk.Branch = branch
	return blk, true, nil
}
