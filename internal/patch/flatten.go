package patch

import (
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/log"

	"timerfix/internal/bytecode"
	"timerfix/internal/classfile"
)

// State is a step of the flatten pass over one method.
type State int

const (
	ScanningStore State = iota
	BoundType
	ScanningBlock1
	Patched1
	ScanningBlock2
	Patched2
	Done
	Failed
)

var stateNames = [...]string{
	ScanningStore:  "scanning store",
	BoundType:      "bound type",
	ScanningBlock1: "scanning block 1",
	Patched1:       "patched 1",
	ScanningBlock2: "scanning block 2",
	Patched2:       "patched 2",
	Done:           "done",
	Failed:         "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// FlattenPass rewrites the two tick checks of the terraforming action so
// that both ask Hook whether the tick should proceed.
type FlattenPass struct {
	Hook     Symbol // static predicate called from both regions
	Classify Symbol // call whose stored result is the type slot
	Accessor Symbol // time accessor that opens each checked block
	// Separator, if set, is a call that must be passed between the first and
	// second block.
	Separator Symbol
	Logger    *log.Logger
}

// PatchedRegion records one rewritten region.
type PatchedRegion struct {
	Region Region                `json:"region"`
	Target bytecode.BranchTarget `json:"target"`
	First  bool                  `json:"first"`
}

// Result describes a successful pass.
type Result struct {
	Binding Binding
	Hook    uint16
	Regions []PatchedRegion
	Trace   []State
}

type flattenRun struct {
	p        *FlattenPass
	logger   *log.Logger
	state    State
	trace    []State
	stream   *bytecode.Stream
	handlers []classfile.ExceptionHandler
	scanner  *Scanner
	symbols  *SymbolTable
	synth    Synthesizer
}

func (r *flattenRun) enter(s State) {
	r.state = s
	r.trace = append(r.trace, s)
	r.logger.Debug("flatten", "state", s, "pos", r.scanner.Pos())
}

func (r *flattenRun) fail(err error) error {
	at := r.state
	r.state = Failed
	r.trace = append(r.trace, Failed)
	return &PassError{State: at, Err: err}
}

// Run patches code in place. The rewrite is done on a private copy and only
// copied into code once both regions are patched, so code is untouched on
// error. A hook Methodref may still have been added to pool.
func (p *FlattenPass) Run(code *classfile.Code, pool ConstantPool) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	scratch := append([]byte(nil), code.Code...)
	stream := bytecode.NewStream(scratch)
	r := &flattenRun{
		p:        p,
		logger:   logger,
		stream:   stream,
		handlers: code.ExceptionTable,
		scanner:  NewScanner(stream.NewCursor()),
		symbols:  ResolveSymbols(pool, p.Classify, p.Accessor, p.Separator),
	}
	r.trace = []State{ScanningStore}

	if err := stream.Verify(); err != nil {
		return nil, r.fail(err)
	}

	typeSlot, err := r.bindType()
	if err != nil {
		return nil, r.fail(err)
	}
	r.enter(BoundType)

	r.enter(ScanningBlock1)
	blk, err := r.block(BlockPattern{
		Receiver: Load(bytecode.SlotRef),
		Loads:    []Predicate{Load(bytecode.SlotInt), Load(bytecode.SlotFloat)},
		Branch:   Op(bytecode.Ifne),
	})
	if err != nil {
		return nil, r.fail(err)
	}
	binding := Binding{Type: typeSlot}
	if binding.Insta, err = bytecode.LocalSlotOf(blk.Loads[0], bytecode.SlotInt); err != nil {
		return nil, r.fail(err)
	}
	if binding.Counter, err = bytecode.LocalSlotOf(blk.Loads[1], bytecode.SlotFloat); err != nil {
		return nil, r.fail(err)
	}
	if blk.Receiver != nil {
		act, err := bytecode.LocalSlotOf(*blk.Receiver, bytecode.SlotRef)
		if err != nil {
			return nil, r.fail(err)
		}
		binding.Receiver = &act
	}
	logger.Info("vars are " + binding.String())

	hook, err := pool.AddMethodref(p.Hook.Class, p.Hook.Name, p.Hook.Descriptor)
	if err != nil {
		return nil, r.fail(fmt.Errorf("add hook %s: %w", p.Hook, err))
	}
	r.synth = Synthesizer{Hook: hook}

	first, err := r.patch(blk, binding, true)
	if err != nil {
		return nil, r.fail(err)
	}
	r.enter(Patched1)

	r.enter(ScanningBlock2)
	if err := r.skipSeparator(); err != nil {
		return nil, r.fail(err)
	}
	blk, err = r.block(BlockPattern{
		Branch:       Op(bytecode.Ifeq),
		SkipBranches: 1,
	})
	if err != nil {
		return nil, r.fail(err)
	}
	second, err := r.patch(blk, binding, false)
	if err != nil {
		return nil, r.fail(err)
	}
	r.enter(Patched2)

	copy(code.Code, scratch)
	if int(code.MaxStack)+hookStackDepth > math.MaxUint16 {
		code.MaxStack = math.MaxUint16
	} else {
		code.MaxStack += hookStackDepth
	}
	r.enter(Done)

	return &Result{
		Binding: binding,
		Hook:    hook,
		Regions: []PatchedRegion{first, second},
		Trace:   r.trace,
	}, nil
}

// bindType finds the classification call and the int store right after it.
func (r *flattenRun) bindType() (bytecode.LocalSlot, error) {
	h, err := r.symbols.must(r.p.Classify)
	if err != nil {
		return bytecode.LocalSlot{}, err
	}
	m, found, err := r.scanner.FindStore(r.symbols.CallTo(bytecode.Invokestatic, h), Store(bytecode.SlotInt))
	if err != nil {
		return bytecode.LocalSlot{}, err
	}
	if !found {
		return bytecode.LocalSlot{}, fmt.Errorf("%w: no int store after call to %s", ErrAnchorNotFound, r.p.Classify)
	}
	return bytecode.LocalSlotOf(m.Store, bytecode.SlotInt)
}

// block finds the next accessor-anchored block described by p.
func (r *flattenRun) block(p BlockPattern) (Block, error) {
	h, err := r.symbols.must(r.p.Accessor)
	if err != nil {
		return Block{}, err
	}
	p.Anchor = r.symbols.CallTo(bytecode.Invokevirtual, h)
	blk, found, err := r.scanner.FindBlock(p)
	if err != nil {
		return Block{}, err
	}
	if !found {
		return Block{}, fmt.Errorf("%w: no %s block after offset %d", ErrAnchorNotFound, r.p.Accessor, r.scanner.Pos())
	}
	return blk, nil
}

// skipSeparator moves the scanner past the next call to the separator.
func (r *flattenRun) skipSeparator() error {
	if r.p.Separator.Name == "" {
		return nil
	}
	h, err := r.symbols.must(r.p.Separator)
	if err != nil {
		return err
	}
	in, found, err := r.scanner.FindNext(r.symbols.CallTo(bytecode.Invokevirtual, h))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no call to %s after offset %d", ErrAnchorNotFound, r.p.Separator, r.scanner.Pos())
	}
	r.logger.Debug("flatten", "separator", in.Offset)
	return nil
}

// checkIncoming rejects jumps and exception ranges from outside region that
// land strictly inside it.
func (r *flattenRun) checkIncoming(region Region) error {
	list, err := r.stream.Instructions()
	if err != nil {
		return err
	}
	for _, in := range list {
		if off := int(in.Offset); off >= region.Start && off < region.End {
			continue
		}
		for _, t := range bytecode.JumpTargets(in) {
			if region.Inside(int(t)) {
				return fmt.Errorf("%w: %s at %d jumps to %d inside region %s", ErrUnexpectedOperandEncoding, in.Opcode, in.Offset, t, region)
			}
		}
	}
	for i, h := range r.handlers {
		for _, pc := range []uint16{h.StartPC, h.EndPC, h.HandlerPC} {
			if region.Inside(int(pc)) {
				return fmt.Errorf("%w: exception handler %d refers to %d inside region %s", ErrUnexpectedOperandEncoding, i, pc, region)
			}
		}
	}
	return nil
}

// patch rewrites blk's region to call the hook with the given flag.
func (r *flattenRun) patch(blk Block, b Binding, first bool) (PatchedRegion, error) {
	target, err := bytecode.BranchTargetOf(blk.Branch)
	if err != nil {
		return PatchedRegion{}, err
	}
	region := blk.Region()
	if region.Inside(int(target)) || !r.stream.IsBoundary(int(target)) {
		return PatchedRegion{}, fmt.Errorf("%w: branch at %d targets %d, not a stable instruction boundary", ErrUnexpectedOperandEncoding, blk.Branch.Offset, target)
	}

	if err := r.checkIncoming(region); err != nil {
		return PatchedRegion{}, err
	}

	which := "second"
	if first {
		which = "first"
	}
	r.logger.Info(which+" check matched", "start", region.Start, "next", region.End, "endif", int(target))

	code, err := r.synth.Build(b, first, target, region)
	if err != nil {
		return PatchedRegion{}, err
	}
	if err := Apply(r.stream, region, code); err != nil {
		return PatchedRegion{}, err
	}
	return PatchedRegion{Region: region, Target: target, First: first}, nil
}
