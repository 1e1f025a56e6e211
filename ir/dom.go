package ir

// DomTree is the dominator tree of a function, built with the classic
// iterative intersection algorithm over reverse postorder.
type DomTree struct {
	fn    *Function
	idom  map[*Block]*Block
	depth map[*Block]int
	// post assigns postorder numbers to reachable blocks; a block
	// absent from the map is unreachable from the entry.
	post map[*Block]int
}

// Postorder returns the blocks reachable from the entry in depth-first
// postorder.
func Postorder(f *Function) []*Block {
	var order []*Block
	seen := make(map[*Block]bool, len(f.Blocks))
	var walk func(b *Block)
	walk = func(b *Block) {
		seen[b] = true
		for _, s := range b.Succs() {
			if !seen[s] {
				walk(s)
			}
		}
		order = append(order, b)
	}
	if len(f.Blocks) > 0 {
		walk(f.Entry())
	}
	return order
}

// ReversePostorder returns the blocks reachable from the entry in
// reverse postorder.
func ReversePostorder(f *Function) []*Block {
	po := Postorder(f)
	for i, j := 0, len(po)-1; i < j; i, j = i+1, j-1 {
		po[i], po[j] = po[j], po[i]
	}
	return po
}

// BuildDomTree computes the dominator tree of f.
func BuildDomTree(f *Function) *DomTree {
	dt := &DomTree{
		fn:    f,
		idom:  make(map[*Block]*Block),
		depth: make(map[*Block]int),
		post:  make(map[*Block]int),
	}
	po := Postorder(f)
	for n, b := range po {
		dt.post[b] = n
	}
	if len(po) == 0 {
		return dt
	}
	entry := f.Entry()
	dt.idom[entry] = entry

	rpo := make([]*Block, len(po))
	for i, b := range po {
		rpo[len(po)-1-i] = b
	}

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == entry {
				continue
			}
			var newIdom *Block
			for _, p := range b.preds {
				if _, ok := dt.idom[p]; !ok {
					continue
				}
				if newIdom == nil {
					newIdom = p
				} else {
					newIdom = dt.intersect(p, newIdom)
				}
			}
			if newIdom != nil && dt.idom[b] != newIdom {
				dt.idom[b] = newIdom
				changed = true
			}
		}
	}

	dt.depth[entry] = 0
	for _, b := range rpo {
		if b == entry {
			continue
		}
		dt.depth[b] = dt.depth[dt.idom[b]] + 1
	}
	return dt
}

func (dt *DomTree) intersect(a, b *Block) *Block {
	for a != b {
		for dt.post[a] < dt.post[b] {
			a = dt.idom[a]
		}
		for dt.post[b] < dt.post[a] {
			b = dt.idom[b]
		}
	}
	return a
}

// IDom returns the immediate dominator of b; the entry block and
// unreachable blocks have none.
func (dt *DomTree) IDom(b *Block) *Block {
	if b == dt.fn.Entry() {
		return nil
	}
	return dt.idom[b]
}

// IsReachable reports whether b is reachable from the entry.
func (dt *DomTree) IsReachable(b *Block) bool {
	_, ok := dt.post[b]
	return ok
}

// Dominates reports whether a dominates b.  Every block dominates
// itself.  Unreachable blocks dominate nothing and are dominated by
// nothing.
func (dt *DomTree) Dominates(a, b *Block) bool {
	if !dt.IsReachable(a) || !dt.IsReachable(b) {
		return false
	}
	for dt.depth[b] > dt.depth[a] {
		b = dt.idom[b]
	}
	return a == b
}
