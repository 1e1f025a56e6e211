package ir

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Loop is a natural loop: a header block plus every block that can
// reach a back edge into the header without leaving through it.
type Loop struct {
	header *Block
	blocks mapset.Set[*Block]
	parent *Loop
	subs   []*Loop
}

func (l *Loop) Header() *Block { return l.header }

func (l *Loop) Parent() *Loop { return l.parent }

func (l *Loop) SubLoops() []*Loop { return l.subs }

// Contains reports whether b belongs to the loop body, header
// included, sub-loops included.
func (l *Loop) Contains(b *Block) bool { return l.blocks.Contains(b) }

// Blocks returns the loop's body set.  Callers must not mutate it.
func (l *Loop) Blocks() mapset.Set[*Block] { return l.blocks }

// Depth is 1 for top-level loops.
func (l *Loop) Depth() int {
	d := 0
	for x := l; x != nil; x = x.parent {
		d++
	}
	return d
}

// Latches returns the in-loop predecessors of the header, i.e. the
// sources of the loop's back edges.
func (l *Loop) Latches() []*Block {
	var out []*Block
	for _, p := range l.header.preds {
		if l.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}

// IsLatch reports whether b is the source of a back edge of l.
func (l *Loop) IsLatch(b *Block) bool {
	if !l.Contains(b) {
		return false
	}
	for _, s := range b.Succs() {
		if s == l.header {
			return true
		}
	}
	return false
}

// Preheader returns the unique out-of-loop predecessor of the header
// when it exists and ends in an unconditional branch; nil otherwise.
// Callers that need a preheader create one via SplitPredecessors.
func (l *Loop) Preheader() *Block {
	var cand *Block
	for _, p := range l.header.preds {
		if l.Contains(p) {
			continue
		}
		if cand != nil {
			return nil
		}
		cand = p
	}
	if cand == nil {
		return nil
	}
	if t := cand.Terminator(); t == nil || t.Op != OpBr {
		return nil
	}
	return cand
}

// ExitingEdges returns every (terminator, successor index) pair that
// leaves the loop.
type ExitEdge struct {
	Term *Instr
	Idx  int
}

func (l *Loop) ExitingEdges() []ExitEdge {
	var out []ExitEdge
	for _, b := range l.header.fn.Blocks {
		if !l.Contains(b) {
			continue
		}
		t := b.Terminator()
		if t == nil {
			continue
		}
		for idx, s := range t.Succs {
			if !l.Contains(s) {
				out = append(out, ExitEdge{Term: t, Idx: idx})
			}
		}
	}
	return out
}

// ExitBlocks returns the distinct out-of-loop successors, in layout
// order for determinism.
func (l *Loop) ExitBlocks() []*Block {
	seen := mapset.NewThreadUnsafeSet[*Block]()
	for b := range l.blocks.Iter() {
		t := b.Terminator()
		if t == nil {
			continue
		}
		for _, s := range t.Succs {
			if !l.Contains(s) {
				seen.Add(s)
			}
		}
	}
	var out []*Block
	for _, b := range l.header.fn.Blocks {
		if seen.Contains(b) {
			out = append(out, b)
		}
	}
	return out
}

// LoopForest holds every natural loop of a function and the innermost
// loop of each block.
type LoopForest struct {
	TopLevel []*Loop
	inner    map[*Block]*Loop
}

// LoopOf returns the innermost loop containing b, or nil.
func (lf *LoopForest) LoopOf(b *Block) *Loop { return lf.inner[b] }

// BuildLoopForest discovers the natural loops of f.  Back edges are
// edges whose destination dominates their source; loops sharing a
// header are merged, and nesting follows body containment.
func BuildLoopForest(f *Function, dt *DomTree) *LoopForest {
	lf := &LoopForest{inner: make(map[*Block]*Loop)}
	byHeader := make(map[*Block]*Loop)
	var headers []*Block

	for _, b := range ReversePostorder(f) {
		t := b.Terminator()
		if t == nil {
			continue
		}
		for _, h := range t.Succs {
			if !dt.Dominates(h, b) {
				continue
			}
			l := byHeader[h]
			if l == nil {
				l = &Loop{header: h, blocks: mapset.NewThreadUnsafeSet[*Block]()}
				l.blocks.Add(h)
				byHeader[h] = l
				headers = append(headers, h)
			}
			// Walk backwards from the latch collecting the body.
			stack := []*Block{b}
			for len(stack) > 0 {
				x := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if l.blocks.Contains(x) {
					continue
				}
				l.blocks.Add(x)
				for _, p := range x.preds {
					if dt.IsReachable(p) {
						stack = append(stack, p)
					}
				}
			}
		}
	}

	// Nest loops: the parent of L is the smallest other loop whose body
	// contains L's header.
	for _, h := range headers {
		l := byHeader[h]
		var parent *Loop
		for _, h2 := range headers {
			o := byHeader[h2]
			if o == l || !o.blocks.Contains(h) {
				continue
			}
			if parent == nil || parent.blocks.Contains(o.header) {
				parent = o
			}
		}
		l.parent = parent
		if parent != nil {
			parent.subs = append(parent.subs, l)
		} else {
			lf.TopLevel = append(lf.TopLevel, l)
		}
	}

	// Innermost loop per block: the containing loop of greatest depth.
	for _, h := range headers {
		l := byHeader[h]
		for b := range l.blocks.Iter() {
			cur := lf.inner[b]
			if cur == nil || l.Depth() > cur.Depth() {
				lf.inner[b] = l
			}
		}
	}
	return lf
}
