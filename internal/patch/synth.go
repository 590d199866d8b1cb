package patch

import (
	"fmt"

	"timerfix/internal/bytecode"
)

// Binding is the set of locals passed to the hook. It is captured once per
// method and copied into every region of that method.
type Binding struct {
	// Receiver is the reference the anchor call was made on. The hook call
	// consumes it straight from the operand stack, so it is never loaded.
	Receiver *bytecode.LocalSlot

	Insta   bytecode.LocalSlot
	Counter bytecode.LocalSlot
	Type    bytecode.LocalSlot
}

func (b Binding) String() string {
	act := "none"
	if b.Receiver != nil {
		act = fmt.Sprint(b.Receiver.Index)
	}
	return fmt.Sprintf("act=%s insta=%d counter=%d type=%d", act, b.Insta.Index, b.Counter.Index, b.Type.Index)
}

// hookStackDepth is how many values the synthesized sequence pushes on top
// of the receiver before the call.
const hookStackDepth = 4

// Synthesizer builds replacement sequences that call the hook at constant
// pool index Hook.
type Synthesizer struct {
	Hook uint16
}

// Build returns a sequence of exactly r.Len() bytes for placement at r.Start:
//
//	<load insta> <load counter> <load type> iconst_<first> invokestatic Hook
//	ifeq target
//	nop...
func (s Synthesizer) Build(b Binding, first bool, target bytecode.BranchTarget, r Region) ([]byte, error) {
	bld := bytecode.NewBuilder(r.Start)
	bld.Load(b.Insta)
	bld.Load(b.Counter)
	bld.Load(b.Type)
	bld.Bool(first)
	bld.Invoke(bytecode.Invokestatic, s.Hook)

	const branchLen = 3
	if need := bld.Len() + branchLen; need > r.Len() {
		return nil, fmt.Errorf("%w: replacement needs %d bytes, region %s has %d", ErrRegionOverflow, need, r, r.Len())
	}
	if _, err := bld.Branch(bytecode.Ifeq, int(target)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegionOverflow, err)
	}
	bld.PadTo(r.Len())
	return bld.Bytes(), nil
}
