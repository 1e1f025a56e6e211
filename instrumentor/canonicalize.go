package instrumentor

import (
	"github.com/hookweave/hookweave/common"
	"github.com/hookweave/hookweave/config"
	"github.com/hookweave/hookweave/ir"
)

// Canonicalizer normalizes a function's graph before any hooks are
// placed: calls that may raise get explicit exception edges, blocks
// are cut after calls, and blocks reached by several kinds of
// control transfer are split until every join block has predecessors
// of one kind.
type Canonicalizer struct {
	cfg *config.Config
}

func NewCanonicalizer(cfg *config.Config) *Canonicalizer {
	return &Canonicalizer{cfg: cfg}
}

// predClass buckets a predecessor edge by the kind of control
// transfer it represents.
type predClass int

const (
	classOther predClass = iota
	classInvoke
	classAlloc
	classFork
	classTaskFrameResume
	classJoin
	classJoinUnwind
	numPredClasses
)

// splitOrder is the fixed order in which homogeneous predecessor
// groups are carved off a mixed block.  Fork-kind predecessors are
// split last so the block that keeps the fork edges stays put.
var splitOrder = []predClass{
	classJoin, classJoinUnwind, classAlloc, classInvoke,
	classTaskFrameResume, classFork,
}

var classSuffix = map[predClass]string{
	classJoin: ".join", classJoinUnwind: ".juw", classAlloc: ".alloc",
	classInvoke: ".inv", classTaskFrameResume: ".tfr", classFork: ".fork",
}

func (c *Canonicalizer) classify(pred, dest *ir.Block) predClass {
	term := pred.Terminator()
	switch term.Op {
	case ir.OpFork, ir.OpTaskReturn, ir.OpTaskResume:
		return classFork
	case ir.OpTaskFrameResume:
		return classTaskFrameResume
	case ir.OpJoin:
		return classJoin
	case ir.OpJoinUnwind:
		if term.UnwindDest() == dest {
			return classJoinUnwind
		}
		return classJoin
	case ir.OpInvoke:
		if c.cfg.IsAllocFunction(term.Callee) {
			return classAlloc
		}
		return classInvoke
	}
	return classOther
}

// SetupBlocks splits every candidate join block until its remaining
// predecessors form one class.  Candidates are landing pads, invoke
// normal destinations, and join successors.
func (c *Canonicalizer) SetupBlocks(f *ir.Function) {
	candidates := make(map[*ir.Block]bool)
	for _, b := range f.Blocks {
		if b.LandingPad {
			candidates[b] = true
		}
		term := b.Terminator()
		if term == nil {
			continue
		}
		switch term.Op {
		case ir.OpInvoke:
			candidates[term.NormalDest()] = true
		case ir.OpJoin:
			candidates[term.Succs[0]] = true
		case ir.OpJoinUnwind:
			candidates[term.Succs[0]] = true
		}
	}

	// Candidate set first, then mutation: splitting adds blocks.
	var worklist []*ir.Block
	for _, b := range f.Blocks {
		if candidates[b] {
			worklist = append(worklist, b)
		}
	}
	for _, b := range worklist {
		c.setupBlock(b)
	}
}

func (c *Canonicalizer) setupBlock(b *ir.Block) {
	var buckets [numPredClasses][]*ir.Block
	for _, p := range b.Preds() {
		cls := c.classify(p, b)
		buckets[cls] = append(buckets[cls], p)
	}
	nonEmpty := 0
	for _, bucket := range buckets {
		if len(bucket) > 0 {
			nonEmpty++
		}
	}
	for _, cls := range splitOrder {
		if nonEmpty <= 1 {
			return
		}
		if len(buckets[cls]) == 0 {
			continue
		}
		ir.SplitPredecessors(b, buckets[cls], b.Name()+classSuffix[cls])
		nonEmpty--
	}
}

// SplitAtCalls cuts blocks after ordinary calls so each call ends its
// block.  Hook calls, intrinsic markers, and calls that cannot return
// are left alone.
func (c *Canonicalizer) SplitAtCalls(f *ir.Function) {
	work := make([]*ir.Block, len(f.Blocks))
	copy(work, f.Blocks)
	for len(work) > 0 {
		b := work[0]
		work = work[1:]
		for k, i := range b.Instrs {
			if i.Op != ir.OpCall || i.Intr != ir.IntrNone {
				continue
			}
			if i.IsHookCall(common.HookPrefix) || i.IsHookCall(common.RuntimePrefix) {
				continue
			}
			if !i.MayReturnNormally() {
				continue
			}
			if k == len(b.Instrs)-2 {
				// Already the last instruction before the terminator.
				continue
			}
			nb := ir.SplitBlockAfter(i, b.Name()+".call")
			work = append(work, nb)
			break
		}
	}
}

// PromoteCallsToInvokes rewrites ordinary calls into explicit
// exception-edge form in functions that may raise, so the
// instrumentation placed around them observes unwinds.  All promoted
// calls in a function share one cleanup landing pad that re-raises.
func (c *Canonicalizer) PromoteCallsToInvokes(f *ir.Function) {
	if !c.cfg.Options.CallsMayRaise || !f.MayRaise {
		return
	}
	var cleanup *ir.Block
	getCleanup := func() *ir.Block {
		if cleanup != nil {
			return cleanup
		}
		cleanup = f.NewBlock("hw.cleanup")
		cleanup.LandingPad = true
		marker := &ir.Instr{Op: ir.OpLandingPadMarker, Ty: ir.BytePtr}
		cleanup.InsertAtStart(marker)
		cleanup.SetTerminator(ir.NewResume(marker))
		return cleanup
	}

	work := make([]*ir.Block, len(f.Blocks))
	copy(work, f.Blocks)
	for len(work) > 0 {
		b := work[0]
		work = work[1:]
		for _, i := range b.Instrs {
			if i.Op != ir.OpCall || i.Intr != ir.IntrNone || i.CannotRaise {
				continue
			}
			if i.IsHookCall(common.HookPrefix) || i.IsHookCall(common.RuntimePrefix) {
				continue
			}
			cont := ir.SplitBlockAfter(i, b.Name()+".norm")
			work = append(work, cont)
			b.RemoveInstr(i)
			i.Op = ir.OpInvoke
			i.Succs = []*ir.Block{cont, getCleanup()}
			b.SetTerminator(i)
			break
		}
	}
}
