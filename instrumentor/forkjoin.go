package instrumentor

import (
	"github.com/hookweave/hookweave/common"
	"github.com/hookweave/hookweave/ir"
	"github.com/hookweave/hookweave/loadtime"
)

// Hook symbols for fork/join events.
const (
	hookFork         = common.HookPrefix + "fork"
	hookForkContinue = common.HookPrefix + "fork_continue"
	hookTaskEnter    = common.HookPrefix + "task_enter"
	hookTaskExit     = common.HookPrefix + "task_exit"
	hookBeforeJoin   = common.HookPrefix + "before_join"
	hookAfterJoin    = common.HookPrefix + "after_join"
)

// contKey distinguishes the normal and unwind continuations of a
// fork in the fork-continuation ID space.
type contKey struct {
	fork   *ir.Instr
	unwind bool
}

// ForkJoinInstrumenter places fork, task, and join hooks in one
// function.  Each sync scope gets one tracking flag, allocated in the
// entry block, that is raised at every fork of the scope and lowered
// again after the scope's joins complete; the join hooks report the
// flag so the analysis library can tell a join that actually waited
// from one that had nothing outstanding.
type ForkJoinInstrumenter struct {
	tables *Tables
	hooks  *HookInserter
	lf     *ir.LoopForest
	ti     *ir.TaskInfo
	fn     *ir.Function

	trackVars map[*ir.Region]*ir.Instr
}

func NewForkJoinInstrumenter(t *Tables, h *HookInserter, lf *ir.LoopForest,
	ti *ir.TaskInfo, fn *ir.Function) *ForkJoinInstrumenter {
	return &ForkJoinInstrumenter{
		tables: t, hooks: h, lf: lf, ti: ti, fn: fn,
		trackVars: make(map[*ir.Region]*ir.Instr),
	}
}

// NumSyncRegions returns how many distinct sync scopes received a
// tracking flag, for the function-entry property word.
func (fj *ForkJoinInstrumenter) NumSyncRegions() int { return len(fj.trackVars) }

// trackVar returns the sync scope's flag, allocating and zeroing it
// in the entry block on first use.
func (fj *ForkJoinInstrumenter) trackVar(r *ir.Region) *ir.Instr {
	if v, ok := fj.trackVars[r]; ok {
		return v
	}
	entry := fj.fn.Entry()
	v := ir.NewAlloca(ir.I32, nil)
	entry.InsertAtStart(v)
	entry.InsertAfter(ir.NewStore(ir.ConstInt(ir.I32, 0), v), v)
	fj.trackVars[r] = v
	return v
}

// Instrument places hooks for every fork and join in the function.
func (fj *ForkJoinInstrumenter) Instrument() {
	var forks, joins []*ir.Instr
	for _, b := range fj.fn.Blocks {
		t := b.Terminator()
		if t == nil {
			continue
		}
		switch t.Op {
		case ir.OpFork:
			forks = append(forks, t)
		case ir.OpJoin, ir.OpJoinUnwind:
			joins = append(joins, t)
		}
	}
	for _, f := range forks {
		fj.instrumentFork(f)
	}
	for _, j := range joins {
		fj.instrumentJoin(j)
	}
}

func (fj *ForkJoinInstrumenter) instrumentFork(fork *ir.Instr) {
	forkTable := fj.tables.Cat(loadtime.CatFork)
	taskTable := fj.tables.Cat(loadtime.CatTask)
	exitTable := fj.tables.Cat(loadtime.CatTaskExit)
	contTable := fj.tables.Cat(loadtime.CatForkCont)

	bb := fork.Block()
	task := fj.taskOfFork(fork)
	isLoopBody := fj.ti.SpawnsParallelLoopBody(fork, fj.lf)

	forkID := forkTable.IDFor(fork, recordFor(fork))
	taskID := taskTable.IDFor(task, recordForBlock(task.Entry))

	// Raise the scope flag, then announce the fork.
	bb.InsertBefore(ir.NewStore(ir.ConstInt(ir.I32, 1), fj.trackVar(fork.Region)), fork)
	fgid := forkTable.GlobalID(bb, fork, forkID)
	fj.hooks.CallBefore(fork, hookFork, fgid,
		ir.ConstInt(ir.I64, ForkProps{SpawnsLoopBody: isLoopBody}.Encode()))

	// Task entry, past any task-frame marker at the top of the
	// spawned block.
	spawned := task.Entry
	anchor := taskFrameAnchor(spawned)
	tgid := taskTable.GlobalID(spawned, anchor, taskID)
	tfgid := forkTable.GlobalID(spawned, anchor, forkID)
	fj.hooks.CallBefore(anchor, hookTaskEnter, tgid, tfgid,
		ir.ConstInt(ir.I64, TaskProps{IsParallelLoopBody: isLoopBody}.Encode()))

	exitProps := ir.ConstInt(ir.I64, TaskExitProps{IsParallelLoopBody: isLoopBody}.Encode())

	// Task exits the task owns outright.
	exits := append(fj.ti.TaskReturnBlocks(task), fj.ti.TaskResumeBlocks(task)...)
	for _, eb := range exits {
		term := eb.Terminator()
		exitID := exitTable.IDFor(term, recordFor(term))
		egid := exitTable.GlobalID(eb, term, exitID)
		etgid := taskTable.GlobalID(eb, term, taskID)
		efgid := forkTable.GlobalID(eb, term, forkID)
		fj.hooks.CallBefore(term, hookTaskExit, egid, etgid, efgid, exitProps)
	}

	// Exits through shared unwind groups.  Each resuming predecessor
	// gets its own exit ID; blocks no real predecessor feeds stay
	// silent.
	defaults := []ir.Value{
		ir.ConstInt(ir.I64, UnknownTargetID),
		ir.ConstInt(ir.I64, UnknownTargetID),
		ir.ConstInt(ir.I64, UnknownTargetID),
		exitProps,
	}
	fj.hooks.CallAtSharedExits(fj.ti, task, hookTaskExit, func(pred *ir.Block) []ir.Value {
		term := pred.Terminator()
		exitID := exitTable.IDFor(term, recordFor(term))
		return []ir.Value{
			exitTable.GlobalID(pred, term, exitID),
			taskTable.GlobalID(pred, term, taskID),
			forkTable.GlobalID(pred, term, forkID),
			exitProps,
		}
	}, defaults)

	// Continuation on the normal path.  The fork edge and the task's
	// normal returns are carved onto a dedicated block when any other
	// edge also targets the continuation, so the hook cannot run on a
	// path that bypassed the fork.  One call there covers the fork
	// edge and every task return.
	cont := fork.ContinueDest()
	owned := map[*ir.Block]bool{bb: true}
	for _, rb := range fj.ti.TaskReturnBlocks(task) {
		owned[rb] = true
	}
	var ins []*ir.Block
	foreign := false
	for _, p := range cont.Preds() {
		if owned[p] {
			ins = append(ins, p)
		} else {
			foreign = true
		}
	}
	if foreign {
		cont = ir.SplitPredecessors(cont, ins, cont.Name()+".fc")
	}
	contID := contTable.IDFor(contKey{fork: fork}, recordForBlock(cont))
	cAnchor := firstAnchor(cont)
	cgid := contTable.GlobalID(cont, cAnchor, contID)
	cfgid := forkTable.GlobalID(cont, cAnchor, forkID)
	fj.hooks.CallBefore(cAnchor, hookForkContinue, cgid, cfgid)

	// Continuation on the unwind path, merged per incoming edge.
	if u := fork.UnwindDest(); u != nil {
		ucID := contTable.IDFor(contKey{fork: fork, unwind: true}, recordForBlock(u))
		contDefaults := []ir.Value{
			ir.ConstInt(ir.I64, UnknownTargetID),
			ir.ConstInt(ir.I64, UnknownTargetID),
		}
		bind := func(pred *ir.Block, term *ir.Instr) {
			fj.hooks.CallAtSuccessor(u, pred, hookForkContinue,
				[]ir.Value{
					contTable.GlobalID(pred, term, ucID),
					forkTable.GlobalID(pred, term, forkID),
				}, contDefaults)
		}
		bind(bb, fork)
		for _, p := range u.Preds() {
			if p == bb {
				continue
			}
			pt := p.Terminator()
			if (pt.Op == ir.OpTaskResume || pt.Op == ir.OpTaskFrameResume) &&
				fj.ti.Encloses(task, p) {
				bind(p, pt)
			}
		}
	}
}

// taskOfFork finds the task node the fork spawned.
func (fj *ForkJoinInstrumenter) taskOfFork(fork *ir.Instr) *ir.Task {
	parent := fj.ti.TaskOf(fork.Block())
	for _, sub := range parent.SubTasks {
		if sub.Fork == fork {
			return sub
		}
	}
	return nil
}

// taskFrameAnchor returns the first instruction of b past phis and
// task-frame markers.
func taskFrameAnchor(b *ir.Block) *ir.Instr {
	k := b.FirstNonPhi()
	for k < len(b.Instrs) {
		i := b.Instrs[k]
		if i.Op == ir.OpCall &&
			(i.Intr == ir.IntrTaskFrameUse || i.Intr == ir.IntrTaskFrameCreate) {
			k++
			continue
		}
		return i
	}
	return b.Terminator()
}

func (fj *ForkJoinInstrumenter) instrumentJoin(join *ir.Instr) {
	joinTable := fj.tables.Cat(loadtime.CatJoin)
	bb := join.Block()
	joinID := joinTable.IDFor(join, recordFor(join))
	flag := fj.trackVar(join.Region)

	// Before-join reads the scope flag as of the join.
	loaded := ir.NewLoad(ir.I32, flag)
	bb.InsertBefore(loaded, join)
	gid := joinTable.GlobalID(bb, join, joinID)
	fj.hooks.CallBefore(join, hookBeforeJoin, gid, loaded)

	// After-join on every successor, then lower the flag on both the
	// normal and unwind paths so a later join of the same scope starts
	// clean.
	defaults := []ir.Value{ir.ConstInt(ir.I64, UnknownTargetID)}
	for _, succ := range join.Succs {
		sgid := joinTable.GlobalID(bb, join, joinID)
		node := fj.hooks.CallAtSuccessor(succ, bb, hookAfterJoin,
			[]ir.Value{sgid}, defaults)
		reset := ir.NewStore(ir.ConstInt(ir.I32, 0), flag)
		succ.InsertAfter(reset, node.Call)
	}
}
