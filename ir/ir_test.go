package ir

import (
	"testing"

	"github.com/go-quicktest/qt"
)

// diamond builds
//
//	entry -> left, right -> merge
//
// with a phi in merge selecting 1 or 2.
func diamond() (*Function, *Block, *Block, *Block, *Block) {
	p := NewProgram("test")
	f := p.NewFunction("diamond", VoidType)
	entry := f.NewBlock("entry")
	left := f.NewBlock("left")
	right := f.NewBlock("right")
	merge := f.NewBlock("merge")

	cond := ConstInt(I1, 1)
	entry.SetTerminator(NewCondBr(cond, left, right))
	left.SetTerminator(NewBr(merge))
	right.SetTerminator(NewBr(merge))

	phi := NewPhi(I32)
	phi.AddIncoming(ConstInt(I32, 1), left)
	phi.AddIncoming(ConstInt(I32, 2), right)
	merge.InsertAtStart(phi)
	merge.SetTerminator(NewRet(nil))
	return f, entry, left, right, merge
}

func TestEdgeMaintenance(t *testing.T) {
	_, entry, left, right, merge := diamond()
	qt.Assert(t, qt.Equals(len(merge.Preds()), 2))
	qt.Assert(t, qt.IsTrue(merge.HasPred(left)))
	qt.Assert(t, qt.IsTrue(merge.HasPred(right)))
	qt.Assert(t, qt.Equals(left.UniquePredecessor(), entry))
	qt.Assert(t, qt.IsNil(merge.UniquePredecessor()))
}

func TestSplitBlockAfter(t *testing.T) {
	f, entry, left, _, merge := diamond()
	call := NewCall("work", VoidType)
	left.Append(call)

	nb := SplitBlockAfter(call, "left.split")
	qt.Assert(t, qt.Equals(call.Block(), left))
	qt.Assert(t, qt.Equals(left.Terminator().Op, OpBr))
	qt.Assert(t, qt.Equals(left.Succs()[0], nb))
	qt.Assert(t, qt.Equals(nb.Succs()[0], merge))

	// merge's phi now names the split-off block.
	phi := merge.Phis()[0]
	v, ok := phi.IncomingFor(nb)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(v.(*Const).Int, int64(1)))
	_, stale := phi.IncomingFor(left)
	qt.Assert(t, qt.IsFalse(stale))

	qt.Assert(t, qt.IsNil(VerifyFunction(f)))
	_ = entry
}

func TestSplitPredecessorsMergesPhis(t *testing.T) {
	f, _, left, right, merge := diamond()
	nb := SplitPredecessors(merge, []*Block{left, right}, "merge.pre")

	qt.Assert(t, qt.Equals(merge.UniquePredecessor(), nb))
	qt.Assert(t, qt.Equals(len(nb.Preds()), 2))

	// Differing incomings become a phi in the split-off block.
	np := nb.Phis()
	qt.Assert(t, qt.Equals(len(np), 1))
	qt.Assert(t, qt.Equals(len(np[0].Incoming), 2))
	mv, ok := merge.Phis()[0].IncomingFor(nb)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(mv.(Value), Value(np[0])))

	qt.Assert(t, qt.IsNil(VerifyFunction(f)))
}

func TestSplitPredecessorsKeepsUnreachable(t *testing.T) {
	p := NewProgram("test")
	f := p.NewFunction("dead", VoidType)
	entry := f.NewBlock("entry")
	a := f.NewBlock("a")
	b := f.NewBlock("b")
	dead := f.NewBlock("dead")

	entry.SetTerminator(NewCondBr(ConstInt(I1, 0), a, b))
	a.SetTerminator(NewBr(dead))
	b.SetTerminator(NewBr(dead))
	dead.SetTerminator(NewUnreachable())

	nb := SplitPredecessors(dead, []*Block{a}, "dead.split")
	qt.Assert(t, qt.Equals(nb.Terminator().Op, OpUnreachable))
	qt.Assert(t, qt.Equals(len(nb.Succs()), 0))
	qt.Assert(t, qt.IsNil(VerifyFunction(f)))
}

func TestSplitEdge(t *testing.T) {
	f, entry, left, _, _ := diamond()
	mid := SplitEdge(entry.Terminator(), 0, "crit")
	qt.Assert(t, qt.Equals(entry.Succs()[0], mid))
	qt.Assert(t, qt.Equals(mid.Succs()[0], left))
	qt.Assert(t, qt.Equals(left.UniquePredecessor(), mid))
	qt.Assert(t, qt.IsNil(VerifyFunction(f)))
}

func TestDominators(t *testing.T) {
	_, entry, left, right, merge := diamond()
	dt := BuildDomTree(entry.Parent())

	qt.Assert(t, qt.IsTrue(dt.Dominates(entry, merge)))
	qt.Assert(t, qt.IsFalse(dt.Dominates(left, merge)))
	qt.Assert(t, qt.IsFalse(dt.Dominates(right, merge)))
	qt.Assert(t, qt.Equals(dt.IDom(merge), entry))
	qt.Assert(t, qt.Equals(dt.IDom(left), entry))
	qt.Assert(t, qt.IsNil(dt.IDom(entry)))
}

// nestedLoops builds an outer loop around an inner loop:
//
//	entry -> outer.h -> inner.h -> inner.h | outer.latch -> outer.h | exit
func nestedLoops() (*Function, *Block, *Block) {
	p := NewProgram("test")
	f := p.NewFunction("loops", VoidType)
	entry := f.NewBlock("entry")
	outerH := f.NewBlock("outer.h")
	innerH := f.NewBlock("inner.h")
	outerL := f.NewBlock("outer.latch")
	exit := f.NewBlock("exit")

	cond := ConstInt(I1, 1)
	entry.SetTerminator(NewBr(outerH))
	outerH.SetTerminator(NewBr(innerH))
	innerH.SetTerminator(NewCondBr(cond, innerH, outerL))
	outerL.SetTerminator(NewCondBr(cond, outerH, exit))
	exit.SetTerminator(NewRet(nil))
	return f, outerH, innerH
}

func TestLoopForest(t *testing.T) {
	f, outerH, innerH := nestedLoops()
	dt := BuildDomTree(f)
	lf := BuildLoopForest(f, dt)

	qt.Assert(t, qt.Equals(len(lf.TopLevel), 1))
	outer := lf.TopLevel[0]
	qt.Assert(t, qt.Equals(outer.Header(), outerH))
	qt.Assert(t, qt.Equals(len(outer.SubLoops()), 1))
	inner := outer.SubLoops()[0]
	qt.Assert(t, qt.Equals(inner.Header(), innerH))
	qt.Assert(t, qt.Equals(inner.Depth(), 2))

	qt.Assert(t, qt.Equals(lf.LoopOf(innerH), inner))
	qt.Assert(t, qt.IsTrue(outer.Contains(innerH)))
	qt.Assert(t, qt.IsFalse(inner.Contains(outerH)))

	qt.Assert(t, qt.Equals(len(inner.Latches()), 1))
	qt.Assert(t, qt.Equals(inner.Latches()[0], innerH))

	// entry ends in an unconditional branch, so it doubles as the
	// outer preheader.
	qt.Assert(t, qt.Equals(outer.Preheader(), f.Entry()))
	qt.Assert(t, qt.Equals(inner.Preheader(), outerH))

	qt.Assert(t, qt.Equals(len(inner.ExitBlocks()), 1))
}

// forkJoin builds a function that spawns one task and joins it:
//
//	entry --fork--> spawned --taskreturn--> cont --join--> done
func forkJoin() (*Function, *Region, *Block, *Block) {
	p := NewProgram("test")
	f := p.NewFunction("spawner", VoidType)
	entry := f.NewBlock("entry")
	spawned := f.NewBlock("spawned")
	cont := f.NewBlock("cont")
	done := f.NewBlock("done")

	r := &Region{Nm: "sr0"}
	entry.SetTerminator(NewFork(r, spawned, cont, nil))
	spawned.SetTerminator(NewTaskReturn(r, cont))
	cont.SetTerminator(NewJoin(r, done))
	done.SetTerminator(NewRet(nil))
	return f, r, spawned, cont
}

func TestTaskForest(t *testing.T) {
	f, _, spawned, cont := forkJoin()
	ti := BuildTaskInfo(f)

	qt.Assert(t, qt.IsTrue(ti.Root.IsRoot()))
	qt.Assert(t, qt.Equals(len(ti.Root.SubTasks), 1))
	child := ti.Root.SubTasks[0]
	qt.Assert(t, qt.Equals(child.Entry, spawned))
	qt.Assert(t, qt.Equals(ti.TaskOf(spawned), child))
	qt.Assert(t, qt.Equals(ti.TaskOf(cont), ti.Root))
	qt.Assert(t, qt.IsTrue(ti.SimplyEncloses(child, spawned)))

	rets := ti.TaskReturnBlocks(child)
	qt.Assert(t, qt.Equals(len(rets), 1))
	qt.Assert(t, qt.Equals(rets[0], spawned))
	qt.Assert(t, qt.Equals(len(ti.TaskResumeBlocks(child)), 0))
}

func TestSharedUnwindDetection(t *testing.T) {
	p := NewProgram("test")
	f := p.NewFunction("nested", VoidType)
	entry := f.NewBlock("entry")
	s1 := f.NewBlock("spawned1")
	cont1 := f.NewBlock("cont1")
	s2 := f.NewBlock("spawned2")
	cont2 := f.NewBlock("cont2")
	pad := f.NewBlock("pad")
	pad.LandingPad = true
	out := f.NewBlock("out")
	out.LandingPad = true
	done := f.NewBlock("done")

	r := &Region{Nm: "sr0"}
	entry.SetTerminator(NewFork(r, s1, cont1, pad))
	s1.SetTerminator(NewTaskResume(r, nil, pad))
	cont1.SetTerminator(NewFork(r, s2, cont2, pad))
	s2.SetTerminator(NewTaskResume(r, nil, pad))
	cont2.SetTerminator(NewRet(nil))
	pad.InsertAtStart(&Instr{Op: OpLandingPadMarker, Ty: BytePtr})
	pad.SetTerminator(NewBr(out))
	out.SetTerminator(NewResume(nil))
	done.SetTerminator(NewRet(nil))

	ti := BuildTaskInfo(f)
	// Two distinct tasks raise into pad, so it and its dominated
	// successor form a shared group owned by the root scope.
	qt.Assert(t, qt.IsTrue(ti.IsShared(pad)))
	qt.Assert(t, qt.IsTrue(ti.IsShared(out)))
	qt.Assert(t, qt.Equals(ti.TaskOf(pad), ti.Root))

	entries := ti.SharedExitEntries(ti.Root)
	qt.Assert(t, qt.Equals(len(entries), 1))
	qt.Assert(t, qt.Equals(entries[0], pad))
}

func TestVerifyCatchesBrokenPhi(t *testing.T) {
	f, _, left, _, merge := diamond()
	merge.Phis()[0].RemoveIncoming(left)
	err := VerifyFunction(f)
	qt.Assert(t, qt.IsNotNil(err))
	qt.Assert(t, qt.StringContains(err.Error(), "missing incoming"))
}

func TestJSONRoundTrip(t *testing.T) {
	p := NewProgram("unit.json")
	g := p.GetOrInsertGlobal("counter", I64)
	f := p.NewFunction("main", I32, &Param{Nm: "argc", Ty: I32})
	entry := f.NewBlock("entry")
	body := f.NewBlock("body")
	exit := f.NewBlock("exit")

	ld := NewLoad(I64, g)
	ld.Align = 8
	ld.Loc = Loc{File: "main.c", Dir: "/src", Line: 3, Col: 5}
	entry.Append(ld)
	entry.SetTerminator(NewBr(body))

	add := NewAdd(I64, ld, ConstInt(I64, 1))
	body.Append(add)
	body.Append(NewStore(add, g))
	body.SetTerminator(NewCondBr(ConstInt(I1, 0), body, exit))

	exit.SetTerminator(NewRet(ConstInt(I32, 0)))

	data, err := MarshalProgram(p)
	qt.Assert(t, qt.IsNil(err))

	back, err := UnmarshalProgram(data)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(back.Name, "unit.json"))

	bf := back.Function("main")
	qt.Assert(t, qt.IsNotNil(bf))
	qt.Assert(t, qt.Equals(len(bf.Blocks), 3))
	qt.Assert(t, qt.IsNil(VerifyFunction(bf)))

	bld := bf.Entry().Instrs[0]
	qt.Assert(t, qt.Equals(bld.Op, OpLoad))
	qt.Assert(t, qt.Equals(bld.Align, 8))
	qt.Assert(t, qt.Equals(bld.Loc.Line, 3))
	qt.Assert(t, qt.Equals(bld.Address().(*Global).Nm, "counter"))

	// The loop back edge survives, so analyses rebuilt from the decoded
	// form see the same shape.
	dt := BuildDomTree(bf)
	lfst := BuildLoopForest(bf, dt)
	qt.Assert(t, qt.Equals(len(lfst.TopLevel), 1))
}
