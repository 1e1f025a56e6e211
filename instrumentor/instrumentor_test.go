package instrumentor

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/hookweave/hookweave/common"
	"github.com/hookweave/hookweave/config"
	"github.com/hookweave/hookweave/ir"
	"github.com/hookweave/hookweave/loadtime"
)

func countCalls(p *ir.Program, callee string) int {
	n := 0
	for _, f := range p.Funcs {
		for _, b := range f.Blocks {
			for _, i := range b.Instrs {
				if i.IsCallLike() && i.Callee == callee {
					n++
				}
			}
		}
	}
	return n
}

func runOn(t *testing.T, p *ir.Program) (*ModuleInstrumentor, *loadtime.UnitTables) {
	t.Helper()
	mi := CreateModuleInstrumentor(p, config.DefaultConfig(), nil, common.GetLogWriter())
	unit, err := mi.Run()
	qt.Assert(t, qt.IsNil(err))
	return mi, unit
}

// straightLine builds one function that loads a counter, stores it
// back, and calls a helper.
func straightLine() *ir.Program {
	p := ir.NewProgram("unit-a")
	g := p.GetOrInsertGlobal("counter", ir.I64)
	p.NewFunction("work", ir.VoidType) // declaration only

	f := p.NewFunction("main", ir.VoidType)
	entry := f.NewBlock("entry")
	ld := ir.NewLoad(ir.I64, g)
	ld.Align = 8
	entry.Append(ld)
	entry.Append(ir.NewStore(ld, g))
	entry.Append(ir.NewCall("work", ir.VoidType))
	entry.SetTerminator(ir.NewRet(nil))
	return p
}

func TestHookCountsAndDenseIDs(t *testing.T) {
	p := straightLine()
	mi, unit := runOn(t, p)

	qt.Assert(t, qt.Equals(countCalls(p, hookBeforeLoad), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookAfterLoad), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookBeforeStore), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookAfterStore), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookBeforeCall), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookAfterCall), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookFuncEntry), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookFuncExit), 1))
	// One block per block hook kind.
	nBlocks := len(p.Function("main").Blocks)
	qt.Assert(t, qt.Equals(countCalls(p, hookBlockEnter), nBlocks))
	qt.Assert(t, qt.Equals(countCalls(p, hookBlockExit), nBlocks))

	// IDs are dense from zero: the count equals the record count, and
	// the serialized table agrees.
	tb := mi.Tables()
	qt.Assert(t, qt.Equals(tb.Cat(loadtime.CatLoad).Count(), int64(1)))
	qt.Assert(t, qt.Equals(tb.Cat(loadtime.CatStore).Count(), int64(1)))
	qt.Assert(t, qt.Equals(tb.Cat(loadtime.CatCallsite).Count(), int64(1)))
	qt.Assert(t, qt.Equals(tb.Cat(loadtime.CatFuncEntry).Count(), int64(1)))
	qt.Assert(t, qt.Equals(int64(len(unit.Table(loadtime.CatBlock).Records)), tb.Cat(loadtime.CatBlock).Count()))
	qt.Assert(t, qt.Equals(len(unit.Sizes), nBlocks))

	// The constructor is registered ahead of ordinary ctors.
	qt.Assert(t, qt.Equals(len(p.Ctors), 1))
	qt.Assert(t, qt.Equals(p.Ctors[0].Priority, common.UnitCtorPriority))
	qt.Assert(t, qt.Equals(p.Ctors[0].Fn.Name(), common.UnitCtorName))

	// The callee's cross-unit ID cell exists and defaults to the
	// unknown sentinel.
	cell := p.Global(common.FuncIDVariablePrefix + "work")
	qt.Assert(t, qt.IsNotNil(cell))
	qt.Assert(t, qt.Equals(cell.InitInt, UnknownTargetID))
}

func TestGlobalIDNeverConstantFolded(t *testing.T) {
	p := straightLine()
	_, _ = runOn(t, p)

	// Every hook ID argument must be an add of a load of a base cell,
	// not a constant.
	for _, f := range p.Funcs {
		for _, b := range f.Blocks {
			for _, i := range b.Instrs {
				if !i.IsHookCall(common.HookPrefix) || len(i.Args) == 0 {
					continue
				}
				id, ok := i.Args[0].(*ir.Instr)
				qt.Assert(t, qt.IsTrue(ok), qt.Commentf("hook %s has constant ID", i.Callee))
				qt.Assert(t, qt.Equals(id.Op, ir.OpAdd))
				ld, ok := id.Args[0].(*ir.Instr)
				qt.Assert(t, qt.IsTrue(ok))
				qt.Assert(t, qt.Equals(ld.Op, ir.OpLoad))
			}
		}
	}
}

func TestSelectorOneCallPerBlockAndKind(t *testing.T) {
	p := ir.NewProgram("sel")
	f := p.NewFunction("g", ir.VoidType)
	entry := f.NewBlock("entry")
	left := f.NewBlock("left")
	right := f.NewBlock("right")
	merge := f.NewBlock("merge")
	entry.SetTerminator(ir.NewCondBr(ir.ConstInt(ir.I1, 1), left, right))
	left.SetTerminator(ir.NewBr(merge))
	right.SetTerminator(ir.NewBr(merge))
	merge.SetTerminator(ir.NewRet(nil))

	h := NewHookInserter(p)
	defaults := []ir.Value{ir.ConstInt(ir.I64, UnknownTargetID)}
	n1 := h.CallAtSuccessor(merge, left, "__hw_probe",
		[]ir.Value{ir.ConstInt(ir.I64, 7)}, defaults)
	n2 := h.CallAtSuccessor(merge, right, "__hw_probe",
		[]ir.Value{ir.ConstInt(ir.I64, 8)}, defaults)

	// Both callers share one node and one call.
	qt.Assert(t, qt.Equals(n1, n2))
	qt.Assert(t, qt.Equals(countCalls(p, "__hw_probe"), 1))
	// Binding count equals the in-degree.
	qt.Assert(t, qt.Equals(n1.BindingCount(), len(merge.Preds())))

	phi := n1.Phis[0]
	v1, _ := phi.IncomingFor(left)
	v2, _ := phi.IncomingFor(right)
	qt.Assert(t, qt.Equals(v1.(*ir.Const).Int, int64(7)))
	qt.Assert(t, qt.Equals(v2.(*ir.Const).Int, int64(8)))
	qt.Assert(t, qt.IsNil(ir.VerifyFunction(f)))
}

func TestNestedLoopIDsOuterBeforeInner(t *testing.T) {
	p := ir.NewProgram("loops")
	f := p.NewFunction("l", ir.VoidType)
	entry := f.NewBlock("entry")
	outerH := f.NewBlock("outer.h")
	innerH := f.NewBlock("inner.h")
	outerL := f.NewBlock("outer.latch")
	exit := f.NewBlock("exit")
	cond := ir.ConstInt(ir.I1, 1)
	entry.SetTerminator(ir.NewBr(outerH))
	outerH.SetTerminator(ir.NewBr(innerH))
	innerH.SetTerminator(ir.NewCondBr(cond, innerH, outerL))
	outerL.SetTerminator(ir.NewCondBr(cond, outerH, exit))
	exit.SetTerminator(ir.NewRet(nil))

	dt := ir.BuildDomTree(f)
	lf := ir.BuildLoopForest(f, dt)
	ti := ir.BuildTaskInfo(f)
	tables := NewTables(p)
	NewLoopInstrumenter(tables, NewHookInserter(p), lf, ti).Instrument()

	outer := lf.TopLevel[0]
	inner := outer.SubLoops()[0]
	loopTable := tables.Cat(loadtime.CatLoop)
	oid, ok := loopTable.Lookup(outer)
	qt.Assert(t, qt.IsTrue(ok))
	iid, ok := loopTable.Lookup(inner)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.IsTrue(oid < iid))

	// One before/after pair per loop, one body-exit per exiting edge.
	qt.Assert(t, qt.Equals(countCalls(p, hookBeforeLoop), 2))
	qt.Assert(t, qt.Equals(countCalls(p, hookLoopBodyEnter), 2))
	qt.Assert(t, qt.Equals(countCalls(p, hookLoopBodyExit), 2))
	qt.Assert(t, qt.IsNil(ir.VerifyFunction(f)))
}

func TestTripCountFromExitCondition(t *testing.T) {
	p := ir.NewProgram("trip")
	f := p.NewFunction("count", ir.VoidType)
	entry := f.NewBlock("entry")
	header := f.NewBlock("header")
	exit := f.NewBlock("exit")

	entry.SetTerminator(ir.NewBr(header))
	phi := ir.NewPhi(ir.I64)
	header.InsertAtStart(phi)
	inc := ir.NewAdd(ir.I64, phi, ir.ConstInt(ir.I64, 1))
	header.Append(inc)
	cmp := ir.NewICmp(ir.CmpLT, phi, ir.ConstInt(ir.I64, 10))
	header.Append(cmp)
	header.SetTerminator(ir.NewCondBr(cmp, header, exit))
	phi.AddIncoming(ir.ConstInt(ir.I64, 0), entry)
	phi.AddIncoming(inc, header)
	exit.SetTerminator(ir.NewRet(nil))

	dt := ir.BuildDomTree(f)
	lf := ir.BuildLoopForest(f, dt)
	ti := ir.BuildTaskInfo(f)
	li := NewLoopInstrumenter(NewTables(p), NewHookInserter(p), lf, ti)
	qt.Assert(t, qt.Equals(li.tripCount(lf.TopLevel[0]), int64(10)))
}

// forkJoinProgram spawns one task and joins it, with an unwind path
// out of the join.
func forkJoinProgram() (*ir.Program, *ir.Function) {
	p := ir.NewProgram("fj")
	f := p.NewFunction("spawner", ir.VoidType)
	entry := f.NewBlock("entry")
	spawned := f.NewBlock("spawned")
	cont := f.NewBlock("cont")
	done := f.NewBlock("done")
	pad := f.NewBlock("pad")
	pad.LandingPad = true

	r := &ir.Region{Nm: "sr0"}
	entry.SetTerminator(ir.NewFork(r, spawned, cont, nil))
	spawned.SetTerminator(ir.NewTaskReturn(r, cont))
	cont.SetTerminator(ir.NewJoinUnwind(r, done, pad))
	done.SetTerminator(ir.NewRet(nil))
	marker := &ir.Instr{Op: ir.OpLandingPadMarker, Ty: ir.BytePtr}
	pad.InsertAtStart(marker)
	pad.SetTerminator(ir.NewResume(marker))
	return p, f
}

func TestForkJoinTwoExitScenario(t *testing.T) {
	p, f := forkJoinProgram()
	_, _ = runOn(t, p)

	qt.Assert(t, qt.Equals(countCalls(p, hookFork), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookTaskEnter), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookTaskExit), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookForkContinue), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookBeforeJoin), 1))
	// The after-join hook fires on the normal and the unwind path.
	qt.Assert(t, qt.Equals(countCalls(p, hookAfterJoin), 2))

	// The scope flag: zeroed at entry, raised at the fork, and lowered
	// again on both join successors.
	var flag *ir.Instr
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			if i.Op == ir.OpAlloca {
				flag = i
			}
		}
	}
	qt.Assert(t, qt.IsNotNil(flag))
	zeroes, ones := 0, 0
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			if i.Op != ir.OpStore || i.Address() != ir.Value(flag) {
				continue
			}
			if c, ok := i.StoredValue().(*ir.Const); ok && c.Int == 1 {
				ones++
			} else {
				zeroes++
			}
		}
	}
	qt.Assert(t, qt.Equals(ones, 1))
	qt.Assert(t, qt.Equals(zeroes, 3)) // entry init plus both join successors

	// The unwind exit leaves the function through a resume, which the
	// exit hooks report as an unwind exit.
	qt.Assert(t, qt.Equals(countCalls(p, hookFuncExit), 2))
}

func TestReadBeforeWriteScan(t *testing.T) {
	p := ir.NewProgram("rbw")
	ga := p.GetOrInsertGlobal("a", ir.I64)
	gb := p.GetOrInsertGlobal("b", ir.I64)
	f := p.NewFunction("h", ir.VoidType)
	entry := f.NewBlock("entry")

	ld1 := ir.NewLoad(ir.I64, ga) // read, written later: read-before-write
	entry.Append(ld1)
	entry.Append(ir.NewStore(ld1, ga))
	ld2 := ir.NewLoad(ir.I64, ga) // read after the write
	entry.Append(ld2)
	ld3 := ir.NewLoad(ir.I64, gb) // never written here
	entry.Append(ld3)
	entry.SetTerminator(ir.NewRet(nil))

	rbw := readBeforeWrite([]*ir.Instr{ld1, ld2, ld3})
	qt.Assert(t, qt.IsTrue(rbw[ld1]))
	qt.Assert(t, qt.IsFalse(rbw[ld2]))
	qt.Assert(t, qt.IsFalse(rbw[ld3]))
}

func TestCanonicalizerHomogenizesJoinBlocks(t *testing.T) {
	p := ir.NewProgram("canon")
	f := p.NewFunction("m", ir.VoidType)
	entry := f.NewBlock("entry")
	a := f.NewBlock("a")
	b := f.NewBlock("b")
	c := f.NewBlock("c")
	target := f.NewBlock("target")
	pad := f.NewBlock("pad")
	pad.LandingPad = true

	entry.SetTerminator(ir.NewCondBr(ir.ConstInt(ir.I1, 1), a, b))
	// A join edge, an invoke normal edge, and a plain branch all meet
	// at target.
	r := &ir.Region{Nm: "sr0"}
	a.SetTerminator(ir.NewJoin(r, target))
	b.SetTerminator(ir.NewInvoke("work", ir.VoidType, target, pad))
	marker := &ir.Instr{Op: ir.OpLandingPadMarker, Ty: ir.BytePtr}
	pad.InsertAtStart(marker)
	pad.SetTerminator(ir.NewResume(marker))
	c.SetTerminator(ir.NewBr(target))
	target.SetTerminator(ir.NewRet(nil))

	canon := NewCanonicalizer(config.DefaultConfig())
	canon.SetupBlocks(f)

	// Every remaining non-ordinary predecessor class is alone.
	classes := make(map[predClass]int)
	for _, pr := range target.Preds() {
		classes[canon.classify(pr, target)]++
	}
	qt.Assert(t, qt.Equals(classes[classJoin], 0))
	qt.Assert(t, qt.Equals(classes[classInvoke], 0))
	qt.Assert(t, qt.IsNil(ir.VerifyFunction(f)))
}

func TestAllocAndFreeHooks(t *testing.T) {
	p := ir.NewProgram("alloc")
	f := p.NewFunction("m", ir.VoidType)
	entry := f.NewBlock("entry")

	slot := ir.NewAlloca(ir.I64, nil)
	entry.Append(slot)
	mall := ir.NewCall("malloc", ir.BytePtr, ir.ConstInt(ir.I64, 64))
	entry.Append(mall)
	entry.Append(ir.NewCall("free", ir.VoidType, mall))
	entry.SetTerminator(ir.NewRet(nil))

	_, _ = runOn(t, p)

	qt.Assert(t, qt.Equals(countCalls(p, hookBeforeLocalAlloc), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookAfterLocalAlloc), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookBeforeHeapAlloc), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookAfterHeapAlloc), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookBeforeFree), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookAfterFree), 1))
	// Allocator calls are not double-counted as ordinary callsites.
	qt.Assert(t, qt.Equals(countCalls(p, hookBeforeCall), 0))
}

func TestMemIntrinsicLowering(t *testing.T) {
	p := ir.NewProgram("intr")
	f := p.NewFunction("m", ir.VoidType)
	entry := f.NewBlock("entry")
	cp := ir.NewCall("llvm.memcpy", ir.VoidType)
	cp.Intr = ir.IntrMemCpy
	entry.Append(cp)
	entry.SetTerminator(ir.NewRet(nil))

	_, _ = runOn(t, p)

	// The intrinsic became a plain call and got callsite hooks.
	qt.Assert(t, qt.Equals(cp.Callee, "memcpy"))
	qt.Assert(t, qt.Equals(cp.Intr, ir.IntrNone))
	qt.Assert(t, qt.Equals(countCalls(p, hookBeforeCall), 1))
	qt.Assert(t, qt.Equals(countCalls(p, hookAfterCall), 1))
}

func TestRulesSuppressCallsiteHooks(t *testing.T) {
	p := straightLine()
	cfg := config.DefaultConfig()
	rule, err := config.NewRule("work", config.PointBeforeCall)
	qt.Assert(t, qt.IsNil(err))
	cfg.Rules.Deny = append(cfg.Rules.Deny, rule)

	mi := CreateModuleInstrumentor(p, cfg, nil, common.GetLogWriter())
	_, err = mi.Run()
	qt.Assert(t, qt.IsNil(err))

	qt.Assert(t, qt.Equals(countCalls(p, hookBeforeCall), 0))
	qt.Assert(t, qt.Equals(countCalls(p, hookAfterCall), 1))
}

func TestUnitTablesRoundTrip(t *testing.T) {
	p := straightLine()
	_, unit := runOn(t, p)

	data, err := unit.Marshal()
	qt.Assert(t, qt.IsNil(err))
	back, err := loadtime.UnmarshalUnitTables(data)
	qt.Assert(t, qt.IsNil(err))

	qt.Assert(t, qt.Equals(back.Unit, unit.Unit))
	qt.Assert(t, qt.Equals(back.InitFunc, unit.InitFunc))
	qt.Assert(t, qt.Equals(len(back.Categories), len(unit.Categories)))
	for i := range unit.Categories {
		qt.Assert(t, qt.Equals(back.Categories[i].Category, unit.Categories[i].Category))
		qt.Assert(t, qt.Equals(len(back.Categories[i].Records), len(unit.Categories[i].Records)))
	}
	qt.Assert(t, qt.DeepEquals(back.Sizes, unit.Sizes))

	// Record order follows ID order; the function-entry record names
	// the function.
	fe := back.Table(loadtime.CatFuncEntry)
	qt.Assert(t, qt.IsNotNil(fe))
	qt.Assert(t, qt.Equals(fe.Records[0].Name, "main"))
}

// reachableFrom walks successor edges from start, never entering
// excluded, and returns the visited set.
func reachableFrom(start, excluded *ir.Block) map[*ir.Block]bool {
	seen := map[*ir.Block]bool{start: true}
	stack := []*ir.Block{start}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		term := b.Terminator()
		if term == nil {
			continue
		}
		for _, s := range term.Succs {
			if s == excluded || seen[s] {
				continue
			}
			seen[s] = true
			stack = append(stack, s)
		}
	}
	return seen
}

func blockHasCall(b *ir.Block, callee string) bool {
	for _, i := range b.Instrs {
		if i.IsCallLike() && i.Callee == callee {
			return true
		}
	}
	return false
}

func TestAfterLoopHookNotOnBypassPaths(t *testing.T) {
	p := ir.NewProgram("bypass")
	f := p.NewFunction("maybe_loop", ir.VoidType)
	entry := f.NewBlock("entry")
	header := f.NewBlock("header")
	exit := f.NewBlock("exit")
	cond := ir.ConstInt(ir.I1, 1)
	entry.SetTerminator(ir.NewCondBr(cond, header, exit))
	header.SetTerminator(ir.NewCondBr(cond, header, exit))
	exit.SetTerminator(ir.NewRet(nil))

	_, _ = runOn(t, p)

	qt.Assert(t, qt.Equals(countCalls(p, hookAfterLoop), 1))

	// The branch around the loop must not pass the after-loop hook.
	for b := range reachableFrom(f.Entry(), header) {
		qt.Assert(t, qt.IsFalse(blockHasCall(b, hookAfterLoop)),
			qt.Commentf("after-loop hook in %s runs without the loop", b.Name()))
	}
	// Going through the loop still reaches it, exactly once.
	n := 0
	for b := range reachableFrom(f.Entry(), nil) {
		if blockHasCall(b, hookAfterLoop) {
			n++
		}
	}
	qt.Assert(t, qt.Equals(n, 1))
}

func TestForkContinueHookNotOnBypassPaths(t *testing.T) {
	p := ir.NewProgram("contbypass")
	f := p.NewFunction("maybe_spawn", ir.VoidType)
	entry := f.NewBlock("entry")
	forker := f.NewBlock("forker")
	spawned := f.NewBlock("spawned")
	cont := f.NewBlock("cont")
	done := f.NewBlock("done")

	r := &ir.Region{Nm: "sr0"}
	cond := ir.ConstInt(ir.I1, 1)
	entry.SetTerminator(ir.NewCondBr(cond, forker, cont))
	forker.SetTerminator(ir.NewFork(r, spawned, cont, nil))
	spawned.SetTerminator(ir.NewTaskReturn(r, cont))
	cont.SetTerminator(ir.NewJoin(r, done))
	done.SetTerminator(ir.NewRet(nil))

	_, _ = runOn(t, p)

	qt.Assert(t, qt.Equals(countCalls(p, hookForkContinue), 1))
	// The branch that skips the fork must not pass the continuation
	// hook; only the fork edge and the task return do.
	for b := range reachableFrom(f.Entry(), forker) {
		qt.Assert(t, qt.IsFalse(blockHasCall(b, hookForkContinue)),
			qt.Commentf("fork-continuation hook in %s runs without the fork", b.Name()))
	}
}

// sharedUnwindProgram spawns two tasks of one scope whose exception
// paths meet in a single landing pad.
func sharedUnwindProgram() (*ir.Program, *ir.Block) {
	p := ir.NewProgram("shared")
	f := p.NewFunction("spawner2", ir.VoidType)
	entry := f.NewBlock("entry")
	s1 := f.NewBlock("spawned1")
	cont1 := f.NewBlock("cont1")
	s2 := f.NewBlock("spawned2")
	cont2 := f.NewBlock("cont2")
	done := f.NewBlock("done")
	pad := f.NewBlock("pad")
	pad.LandingPad = true

	r := &ir.Region{Nm: "sr0"}
	entry.SetTerminator(ir.NewFork(r, s1, cont1, pad))
	s1.SetTerminator(ir.NewTaskReturn(r, cont1))
	cont1.SetTerminator(ir.NewFork(r, s2, cont2, pad))
	s2.SetTerminator(ir.NewTaskResume(r, nil, pad))
	cont2.SetTerminator(ir.NewJoin(r, done))
	done.SetTerminator(ir.NewRet(nil))
	marker := &ir.Instr{Op: ir.OpLandingPadMarker, Ty: ir.BytePtr}
	pad.InsertAtStart(marker)
	pad.SetTerminator(ir.NewResume(marker))
	return p, pad
}

func TestSharedUnwindTaskExitSelector(t *testing.T) {
	p, pad := sharedUnwindProgram()
	mi, _ := runOn(t, p)

	qt.Assert(t, qt.Equals(countCalls(p, hookFork), 2))
	qt.Assert(t, qt.Equals(countCalls(p, hookTaskEnter), 2))
	// One exit per task return and resume, plus one merged call in the
	// shared pad.
	qt.Assert(t, qt.Equals(countCalls(p, hookTaskExit), 3))

	node := mi.Hooks().Selector(pad, hookTaskExit)
	qt.Assert(t, qt.IsNotNil(node))
	qt.Assert(t, qt.Equals(node.BindingCount(), len(pad.Preds())))

	// Only the resuming task feeds real arguments into the pad; the
	// fork unwind edges read the defaults.
	var resume *ir.Block
	for _, b := range p.Function("spawner2").Blocks {
		if tm := b.Terminator(); tm != nil && tm.Op == ir.OpTaskResume {
			resume = b
		}
	}
	qt.Assert(t, qt.IsNotNil(resume))
	v, ok := node.Phis[0].IncomingFor(resume)
	qt.Assert(t, qt.IsTrue(ok))
	rv, ok := v.(*ir.Instr)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(rv.Op, ir.OpAdd))
	for _, in := range node.Phis[0].Incoming {
		if in.Pred == resume {
			continue
		}
		c, ok := in.Val.(*ir.Const)
		qt.Assert(t, qt.IsTrue(ok))
		qt.Assert(t, qt.Equals(c.Int, int64(UnknownTargetID)))
	}

	// Exit IDs are per terminator: the task return and the resume.
	qt.Assert(t, qt.Equals(mi.Tables().Cat(loadtime.CatTaskExit).Count(), int64(2)))

	// Both continuations carry a continuation hook, and the shared pad
	// merges one from both forks' unwind edges and the resume.
	qt.Assert(t, qt.Equals(countCalls(p, hookForkContinue), 3))
	cnode := mi.Hooks().Selector(pad, hookForkContinue)
	qt.Assert(t, qt.IsNotNil(cnode))
	qt.Assert(t, qt.Equals(cnode.BindingCount(), len(pad.Preds())))
}

func TestUnsizedAllocaGetsNoID(t *testing.T) {
	p := ir.NewProgram("bits")
	f := p.NewFunction("b", ir.VoidType)
	entry := f.NewBlock("entry")
	entry.Append(ir.NewAlloca(ir.I1, nil))
	entry.SetTerminator(ir.NewRet(nil))

	mi, _ := runOn(t, p)

	qt.Assert(t, qt.Equals(countCalls(p, hookBeforeLocalAlloc), 0))
	qt.Assert(t, qt.Equals(mi.Tables().Cat(loadtime.CatLocalAlloc).Count(), int64(0)))
}
