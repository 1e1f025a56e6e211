package ir

// Block is a straight-line sequence of instructions ending in exactly
// one terminator.  Predecessor lists are maintained eagerly by the
// edit operations in this package; code outside the package mutates
// the graph only through those operations.
type Block struct {
	Nm         string
	LandingPad bool
	id         int
	fn         *Function
	Instrs     []*Instr
	preds      []*Block

	// Weight is an optional externally supplied cost estimate used by
	// size accounting; zero means none was provided.
	Weight int
}

func (b *Block) Name() string        { return b.Nm }
func (b *Block) ID() int             { return b.id }
func (b *Block) Parent() *Function   { return b.fn }
func (b *Block) ShortString() string { return "^" + b.Nm }

// Terminator returns the block's final instruction, or nil while the
// block is still under construction.
func (b *Block) Terminator() *Instr {
	if n := len(b.Instrs); n > 0 && b.Instrs[n-1].IsTerminator() {
		return b.Instrs[n-1]
	}
	return nil
}

// Preds returns the predecessor list.  Callers must not mutate it.
func (b *Block) Preds() []*Block { return b.preds }

// Succs returns the terminator's successor list, empty when the block
// has no terminator yet.
func (b *Block) Succs() []*Block {
	if t := b.Terminator(); t != nil {
		return t.Succs
	}
	return nil
}

// UniquePredecessor returns the sole predecessor, or nil when the
// block has zero or several.
func (b *Block) UniquePredecessor() *Block {
	if len(b.preds) == 1 {
		return b.preds[0]
	}
	return nil
}

// HasPred reports whether p currently branches to b.
func (b *Block) HasPred(p *Block) bool {
	for _, q := range b.preds {
		if q == p {
			return true
		}
	}
	return false
}

func (b *Block) addPred(p *Block) { b.preds = append(b.preds, p) }

func (b *Block) removePred(p *Block) {
	for k, q := range b.preds {
		if q == p {
			b.preds = append(b.preds[:k], b.preds[k+1:]...)
			return
		}
	}
}

// indexOf returns the position of i within the block, or -1.
func (b *Block) indexOf(i *Instr) int {
	for k, x := range b.Instrs {
		if x == i {
			return k
		}
	}
	return -1
}

// Next returns the instruction following i in the block, or nil when
// i is last or absent.
func (b *Block) Next(i *Instr) *Instr {
	k := b.indexOf(i)
	if k < 0 || k+1 >= len(b.Instrs) {
		return nil
	}
	return b.Instrs[k+1]
}

// FirstNonPhi returns the index of the first instruction that is
// neither a phi nor the landing-pad marker.  Insertions "at block
// start" land here so merges stay at the top of the block.
func (b *Block) FirstNonPhi() int {
	for k, x := range b.Instrs {
		if x.Op != OpPhi && x.Op != OpLandingPadMarker {
			return k
		}
	}
	return len(b.Instrs)
}

// Phis returns the block's phi instructions.
func (b *Block) Phis() []*Instr {
	var out []*Instr
	for _, x := range b.Instrs {
		if x.Op == OpPhi {
			out = append(out, x)
		} else if x.Op != OpLandingPadMarker {
			break
		}
	}
	return out
}

func (b *Block) insertAt(k int, i *Instr) {
	i.block = b
	i.num = b.fn.nextNum()
	b.Instrs = append(b.Instrs, nil)
	copy(b.Instrs[k+1:], b.Instrs[k:])
	b.Instrs[k] = i
}

// Append adds a non-terminator instruction at the end of the block,
// before the terminator if one is already present.
func (b *Block) Append(i *Instr) *Instr {
	if i.IsTerminator() {
		b.SetTerminator(i)
		return i
	}
	if t := b.Terminator(); t != nil {
		b.insertAt(len(b.Instrs)-1, i)
	} else {
		b.insertAt(len(b.Instrs), i)
	}
	return i
}

// InsertBefore places i immediately before anchor, which must belong
// to this block.
func (b *Block) InsertBefore(i *Instr, anchor *Instr) *Instr {
	k := b.indexOf(anchor)
	if k < 0 {
		panic("ir: anchor not in block " + b.Nm)
	}
	b.insertAt(k, i)
	return i
}

// InsertAfter places i immediately after anchor.
func (b *Block) InsertAfter(i *Instr, anchor *Instr) *Instr {
	k := b.indexOf(anchor)
	if k < 0 {
		panic("ir: anchor not in block " + b.Nm)
	}
	b.insertAt(k+1, i)
	return i
}

// InsertAtStart places i after any phis and landing-pad marker.
func (b *Block) InsertAtStart(i *Instr) *Instr {
	b.insertAt(b.FirstNonPhi(), i)
	return i
}

// SetTerminator installs t as the block's terminator, wiring successor
// predecessor lists.  Any previous terminator is unwired first.
func (b *Block) SetTerminator(t *Instr) {
	if old := b.Terminator(); old != nil {
		for _, s := range old.Succs {
			s.removePred(b)
		}
		b.Instrs = b.Instrs[:len(b.Instrs)-1]
		old.block = nil
	}
	t.block = b
	t.num = b.fn.nextNum()
	b.Instrs = append(b.Instrs, t)
	for _, s := range t.Succs {
		s.addPred(b)
	}
}

// RemoveInstr deletes a non-terminator instruction from the block.
func (b *Block) RemoveInstr(i *Instr) {
	k := b.indexOf(i)
	if k < 0 {
		return
	}
	b.Instrs = append(b.Instrs[:k], b.Instrs[k+1:]...)
	i.block = nil
}
