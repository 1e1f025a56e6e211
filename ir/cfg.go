package ir

// Graph edit operations.  All of them keep predecessor lists and phi
// incoming edges consistent, so passes can interleave analysis and
// mutation without a repair step.

// ReplaceSuccessor redirects the idx-th successor of term to newSucc.
// Phi bindings in the old successor that came from term's block are
// dropped; newSucc gains no bindings, the caller supplies them.
func ReplaceSuccessor(term *Instr, idx int, newSucc *Block) {
	from := term.block
	old := term.Succs[idx]
	term.Succs[idx] = newSucc
	// The old successor may still be reached by another successor slot
	// of the same terminator.
	still := false
	for _, s := range term.Succs {
		if s == old {
			still = true
		}
	}
	if !still {
		old.removePred(from)
		for _, phi := range old.Phis() {
			phi.RemoveIncoming(from)
		}
	}
	if !newSucc.HasPred(from) {
		newSucc.addPred(from)
	}
}

// SplitBlockAfter cuts the block holding anchor right after anchor.
// Everything following anchor, the terminator included, moves to a new
// block; the original block falls through with an unconditional
// branch.  Successor phi bindings follow the terminator.  Returns the
// new block.
func SplitBlockAfter(anchor *Instr, name string) *Block {
	bb := anchor.block
	fn := bb.fn
	k := bb.indexOf(anchor)
	if k < 0 {
		panic("ir: split anchor not in a block")
	}

	nb := fn.insertBlockAfter(bb, name)
	tail := bb.Instrs[k+1:]
	bb.Instrs = bb.Instrs[:k+1 : k+1]

	for _, i := range tail {
		i.block = nb
	}
	nb.Instrs = append(nb.Instrs, tail...)

	// Successor edges now leave nb instead of bb.
	if t := nb.Terminator(); t != nil {
		for _, s := range t.Succs {
			s.removePred(bb)
			if !s.HasPred(nb) {
				s.addPred(nb)
			}
			for _, phi := range s.Phis() {
				phi.redirectIncoming(bb, nb)
			}
		}
	}
	bb.SetTerminator(NewBr(nb))
	return nb
}

// SplitEdge splits the edge from term's idx-th successor slot,
// interposing a fresh block that branches unconditionally to the old
// destination.  Phi bindings in the destination are redirected to the
// new block.  Used to give a critical edge its own insertion point.
func SplitEdge(term *Instr, idx int, name string) *Block {
	from := term.block
	dest := term.Succs[idx]
	mid := from.fn.insertBlockAfter(from, name)

	term.Succs[idx] = mid
	mid.addPred(from)
	// Drop from's edge to dest unless another slot still targets it.
	still := false
	for _, s := range term.Succs {
		if s == dest {
			still = true
		}
	}
	if !still {
		dest.removePred(from)
	}

	mid.SetTerminator(NewBr(dest))
	for _, phi := range dest.Phis() {
		v, ok := phi.IncomingFor(from)
		if !ok {
			continue
		}
		if !still {
			phi.RemoveIncoming(from)
		}
		phi.AddIncoming(v, mid)
	}
	return mid
}

// SplitPredecessors carves the given predecessors of bb off onto a
// fresh block that branches to bb.  Phi bindings from the moved
// predecessors are merged into new phis in the split-off block.  If bb
// is a landing pad, the split-off block becomes one too and receives
// its own exception marker.  Returns the new block.
//
// If bb consists solely of an unreachable terminator, the new block
// gets its own unreachable terminator instead of a branch, so the
// moved predecessors keep their dead-end shape.
func SplitPredecessors(bb *Block, preds []*Block, name string) *Block {
	fn := bb.fn
	nb := fn.insertBlockAfter(bb, name)
	nb.LandingPad = bb.LandingPad

	moved := make(map[*Block]bool, len(preds))
	for _, p := range preds {
		moved[p] = true
	}

	// Redirect every terminator edge from a moved predecessor.
	for _, p := range preds {
		t := p.Terminator()
		for idx, s := range t.Succs {
			if s == bb {
				t.Succs[idx] = nb
			}
		}
		bb.removePred(p)
		if !nb.HasPred(p) {
			nb.addPred(p)
		}
	}

	if bb.LandingPad {
		marker := &Instr{Op: OpLandingPadMarker, Ty: BytePtr}
		nb.insertAt(0, marker)
	}

	onlyUnreachable := len(bb.Instrs) == 1 && bb.Instrs[0].Op == OpUnreachable ||
		(bb.LandingPad && len(bb.Instrs) == 2 &&
			bb.Instrs[0].Op == OpLandingPadMarker && bb.Instrs[1].Op == OpUnreachable)

	// Merge phi bindings for the moved edges.
	for _, phi := range bb.Phis() {
		var ins []PhiIncoming
		for _, in := range phi.Incoming {
			if moved[in.Pred] {
				ins = append(ins, in)
			}
		}
		if len(ins) == 0 {
			continue
		}
		for _, in := range ins {
			phi.RemoveIncoming(in.Pred)
		}
		if onlyUnreachable {
			continue
		}
		same := ins[0].Val
		for _, in := range ins[1:] {
			if in.Val != same {
				same = nil
				break
			}
		}
		var merged Value
		if same != nil {
			merged = same
		} else {
			np := NewPhi(phi.Ty)
			for _, in := range ins {
				np.AddIncoming(in.Val, in.Pred)
			}
			nb.insertAt(nb.FirstNonPhi(), np)
			merged = np
		}
		phi.AddIncoming(merged, nb)
	}

	if onlyUnreachable {
		nb.SetTerminator(NewUnreachable())
	} else {
		nb.SetTerminator(NewBr(bb))
	}
	return nb
}

// RemoveBlock unlinks an unreachable block from the function.  Its
// successor edges and phi bindings are unwired first.
func RemoveBlock(bb *Block) {
	fn := bb.fn
	if t := bb.Terminator(); t != nil {
		for _, s := range t.Succs {
			s.removePred(bb)
			for _, phi := range s.Phis() {
				phi.RemoveIncoming(bb)
			}
		}
	}
	for k, x := range fn.Blocks {
		if x == bb {
			fn.Blocks = append(fn.Blocks[:k], fn.Blocks[k+1:]...)
			break
		}
	}
	bb.fn = nil
}
