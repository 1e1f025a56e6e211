package instrumentor

import (
	"github.com/hookweave/hookweave/common"
	"github.com/hookweave/hookweave/ir"
)

// HookInserter places hook calls and owns the selector nodes that
// merge per-edge hook arguments at control-flow joins.
type HookInserter struct {
	prog      *ir.Program
	selectors map[selKey]*SelectorNode
}

type selKey struct {
	block *ir.Block
	hook  string
}

// SelectorNode merges the hook arguments flowing into one block for
// one hook kind.  It owns exactly one hook call; callers arriving
// later only rebind the argument values for their own edge.  Each
// argument position lowers to one merge (phi) instruction.
type SelectorNode struct {
	Call *ir.Instr
	Phis []*ir.Instr
}

// BindingCount returns the number of predecessor edges the node
// currently merges.  It always equals the block's in-degree.
func (n *SelectorNode) BindingCount() int {
	if len(n.Phis) == 0 {
		return len(n.Call.Block().Preds())
	}
	return len(n.Phis[0].Incoming)
}

// mergedArgs returns the values the node's call reads, which a
// downstream shared block uses as its inherited bindings.
func (n *SelectorNode) mergedArgs() []ir.Value {
	out := make([]ir.Value, len(n.Phis))
	for i, phi := range n.Phis {
		out[i] = phi
	}
	return out
}

func NewHookInserter(p *ir.Program) *HookInserter {
	return &HookInserter{prog: p, selectors: make(map[selKey]*SelectorNode)}
}

// declare makes sure the hook symbol exists as a declaration.
func (h *HookInserter) declare(hook string) {
	h.prog.GetOrInsertFunction(hook, ir.VoidType)
}

// CallBefore places a hook call immediately before anchor.
func (h *HookInserter) CallBefore(anchor *ir.Instr, hook string, args ...ir.Value) *ir.Instr {
	h.declare(hook)
	call := ir.NewCall(hook, ir.VoidType, args...)
	call.Loc = anchor.Loc
	anchor.Block().InsertBefore(call, anchor)
	return call
}

// CallAfter places a hook call immediately after anchor, which must
// not be a terminator; calls after terminators go through
// CallAtSuccessor.
func (h *HookInserter) CallAfter(anchor *ir.Instr, hook string, args ...ir.Value) *ir.Instr {
	h.declare(hook)
	call := ir.NewCall(hook, ir.VoidType, args...)
	call.Loc = anchor.Loc
	anchor.Block().InsertAfter(call, anchor)
	return call
}

// CallAtStart places a hook call after the block's merges and marker.
func (h *HookInserter) CallAtStart(b *ir.Block, hook string, args ...ir.Value) *ir.Instr {
	h.declare(hook)
	call := ir.NewCall(hook, ir.VoidType, args...)
	b.InsertAtStart(call)
	return call
}

// Selector returns the node for (succ, hook), or nil if no call has
// been placed there.
func (h *HookInserter) Selector(succ *ir.Block, hook string) *SelectorNode {
	return h.selectors[selKey{block: succ, hook: hook}]
}

// CallAtSuccessor places hook in succ with the given arguments bound
// to the edge from `from`, merging with whatever other edges have
// already bound arguments there.  The first caller for a (succ, hook)
// pair creates the merges and the single hook call; every edge not
// yet bound reads the defaults.  args and defaults must have equal
// length and per-position types.
func (h *HookInserter) CallAtSuccessor(succ, from *ir.Block, hook string,
	args, defaults []ir.Value) *SelectorNode {

	key := selKey{block: succ, hook: hook}
	if node, ok := h.selectors[key]; ok {
		for i, phi := range node.Phis {
			phi.SetIncoming(from, args[i])
		}
		return node
	}

	h.declare(hook)
	node := &SelectorNode{Phis: make([]*ir.Instr, len(args))}
	callArgs := make([]ir.Value, len(args))
	for i := range args {
		phi := ir.NewPhi(args[i].Type())
		for _, p := range succ.Preds() {
			if p == from {
				phi.AddIncoming(args[i], p)
			} else {
				phi.AddIncoming(defaults[i], p)
			}
		}
		succ.InsertAtStart(phi)
		node.Phis[i] = phi
		callArgs[i] = phi
	}
	node.Call = ir.NewCall(hook, ir.VoidType, callArgs...)
	succ.InsertAtStart(node.Call)
	h.selectors[key] = node
	return node
}

// CallAtSharedExits walks the shared unwind groups reachable from
// task and places hook at every group block that a real predecessor
// feeds.  Each group is traversed post-order from its entry and
// replayed in reverse, so by the time a block is seeded from an
// already-visited shared predecessor, that predecessor's merged
// bindings exist.  argsFor supplies the per-edge arguments for a
// non-shared predecessor; blocks fed only by defaults get no call.
func (h *HookInserter) CallAtSharedExits(ti *ir.TaskInfo, task *ir.Task, hook string,
	argsFor func(pred *ir.Block) []ir.Value, defaults []ir.Value) {

	visited := make(map[*ir.Block]*SelectorNode)
	for _, entry := range ti.SharedExitEntries(task) {
		po := sharedPostorder(ti, entry)
		for i := len(po) - 1; i >= 0; i-- {
			b := po[i]
			for _, p := range b.Preds() {
				if !ti.IsShared(p) {
					if ti.Encloses(task, p) {
						visited[b] = h.CallAtSuccessor(b, p, hook, argsFor(p), defaults)
					}
					continue
				}
				if node, ok := visited[p]; ok {
					visited[b] = h.CallAtSuccessor(b, p, hook, node.mergedArgs(), defaults)
				}
			}
		}
	}
}

// sharedPostorder walks the shared subgraph starting at entry.
func sharedPostorder(ti *ir.TaskInfo, entry *ir.Block) []*ir.Block {
	var order []*ir.Block
	seen := map[*ir.Block]bool{entry: true}
	var walk func(b *ir.Block)
	walk = func(b *ir.Block) {
		for _, s := range b.Succs() {
			if ti.IsShared(s) && !seen[s] {
				seen[s] = true
				walk(s)
			}
		}
		order = append(order, b)
	}
	walk(entry)
	return order
}

// IsInstrumentable reports whether a function should receive hooks at
// all: it must have a body, not be a hook or runtime symbol, and not
// live in a constructor-like section.
func IsInstrumentable(f *ir.Function) bool {
	if f.IsDeclaration() {
		return false
	}
	if f.Section == ".text.startup" {
		return false
	}
	name := f.Name()
	for _, prefix := range []string{common.HookPrefix, common.RuntimePrefix} {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			return false
		}
	}
	return true
}
