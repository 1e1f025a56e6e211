package instrumentor

import (
	"github.com/hookweave/hookweave/common"
	"github.com/hookweave/hookweave/ir"
	"github.com/hookweave/hookweave/loadtime"
)

// Hook symbols for loop events.
const (
	hookBeforeLoop    = common.HookPrefix + "before_loop"
	hookAfterLoop     = common.HookPrefix + "after_loop"
	hookLoopBodyEnter = common.HookPrefix + "loop_body_enter"
	hookLoopBodyExit  = common.HookPrefix + "loop_body_exit"
)

// LoopInstrumenter places the loop hooks of one function.
type LoopInstrumenter struct {
	tables *Tables
	hooks  *HookInserter
	lf     *ir.LoopForest
	ti     *ir.TaskInfo
}

func NewLoopInstrumenter(t *Tables, h *HookInserter, lf *ir.LoopForest, ti *ir.TaskInfo) *LoopInstrumenter {
	return &LoopInstrumenter{tables: t, hooks: h, lf: lf, ti: ti}
}

// Instrument walks the forest depth-first in preorder, so an outer
// loop's ID is always smaller than the IDs of the loops it contains.
func (li *LoopInstrumenter) Instrument() {
	for _, l := range li.lf.TopLevel {
		li.instrumentLoop(l)
	}
}

func (li *LoopInstrumenter) instrumentLoop(l *ir.Loop) {
	loopTable := li.tables.Cat(loadtime.CatLoop)
	exitTable := li.tables.Cat(loadtime.CatLoopExit)

	header := l.Header()
	id := loopTable.IDFor(l, recordForBlock(header))

	pre := l.Preheader()
	if pre == nil {
		var outside []*ir.Block
		for _, p := range header.Preds() {
			if !l.Contains(p) {
				outside = append(outside, p)
			}
		}
		pre = ir.SplitPredecessors(header, outside, header.Name()+".ph")
	}

	props := LoopProps{
		IsForkJoin:           li.ti.ParallelLoopTask(l) != nil,
		HasSingleExitingEdge: len(l.ExitingEdges()) == 1,
	}
	trip := li.tripCount(l)

	// Before-loop in the preheader, against the back edge of the
	// branch into the header.
	preTerm := pre.Terminator()
	gid := loopTable.GlobalID(pre, preTerm, id)
	li.hooks.CallBefore(preTerm, hookBeforeLoop, gid,
		ir.ConstInt(ir.I64, trip), ir.ConstInt(ir.I64, props.Encode()))

	// Body-entry at the top of the header covers the first iteration
	// and every back edge alike.
	hAnchor := firstAnchor(header)
	hgid := loopTable.GlobalID(header, hAnchor, id)
	li.hooks.CallBefore(hAnchor, hookLoopBodyEnter, hgid)

	// Body-exit on every exiting edge, after-loop once per distinct
	// exit block.  Latch-sourced exits are tagged as backedge exits.
	for _, e := range l.ExitingEdges() {
		from := e.Term.Block()
		exitID := exitTable.IDFor(e, recordFor(e.Term))
		eprops := LoopExitProps{IsBackedge: l.IsLatch(from)}
		egid := exitTable.GlobalID(from, e.Term, exitID)
		li.hooks.CallBefore(e.Term, hookLoopBodyExit, egid,
			ir.ConstInt(ir.I64, eprops.Encode()))
	}
	for _, exit := range l.ExitBlocks() {
		// One call per exit block.  When the exit is also reachable
		// from outside the loop, the in-loop edges are carved onto a
		// dedicated block first, so the hook cannot run on a path that
		// never entered the loop.
		dedicated := exit
		var inside []*ir.Block
		outside := 0
		for _, p := range exit.Preds() {
			if l.Contains(p) {
				inside = append(inside, p)
			} else {
				outside++
			}
		}
		if outside > 0 {
			dedicated = ir.SplitPredecessors(exit, inside, exit.Name()+".le")
		}
		xAnchor := firstAnchor(dedicated)
		xg := loopTable.GlobalID(dedicated, xAnchor, id)
		li.hooks.CallBefore(xAnchor, hookAfterLoop, xg,
			ir.ConstInt(ir.I64, props.Encode()))
	}

	// Subloops go last: their exiting edges may now target this loop's
	// dedicated exits, so a nested loop carves its own exit out of the
	// enclosing one and its after-loop hook runs first.
	for _, sub := range l.SubLoops() {
		li.instrumentLoop(sub)
	}
}

// firstAnchor returns the first instruction hooks may precede in b,
// or nil when insertion should go to the block start.
func firstAnchor(b *ir.Block) *ir.Instr {
	k := b.FirstNonPhi()
	if k < len(b.Instrs) {
		return b.Instrs[k]
	}
	return nil
}

// tripCount recovers the loop bound when the exit condition compares
// an induction variable against a loop-invariant limit: a header phi
// stepped by a constant, compared in the sole exiting block against a
// constant.  Everything else reports the unknown sentinel.
func (li *LoopInstrumenter) tripCount(l *ir.Loop) int64 {
	edges := l.ExitingEdges()
	if len(edges) != 1 {
		return -1
	}
	term := edges[0].Term
	if term.Op != ir.OpCondBr {
		return -1
	}
	cmp, ok := term.Args[0].(*ir.Instr)
	if !ok || cmp.Op != ir.OpICmp {
		return -1
	}
	iv, bound := cmp.Args[0], cmp.Args[1]
	limit, ok := bound.(*ir.Const)
	if !ok {
		return -1
	}
	phi, ok := iv.(*ir.Instr)
	if !ok || phi.Op != ir.OpPhi || phi.Block() != l.Header() {
		return -1
	}
	var start *ir.Const
	var step *ir.Const
	for _, in := range phi.Incoming {
		if !l.Contains(in.Pred) {
			start, _ = in.Val.(*ir.Const)
			continue
		}
		inc, ok := in.Val.(*ir.Instr)
		if !ok || inc.Op != ir.OpAdd || inc.Args[0] != iv {
			return -1
		}
		step, _ = inc.Args[1].(*ir.Const)
	}
	if start == nil || step == nil || step.Int == 0 {
		return -1
	}
	span := limit.Int - start.Int
	if span < 0 || span%step.Int != 0 {
		return -1
	}
	switch cmp.Pred {
	case ir.CmpLT, ir.CmpNE, ir.CmpGT:
		return span / step.Int
	case ir.CmpLE, ir.CmpGE:
		return span/step.Int + 1
	}
	return -1
}
