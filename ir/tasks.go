package ir

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Task is one node of a function's task forest.  The root task covers
// the serial body of the function; every fork instruction spawns a
// child task rooted at the fork's spawned block.
type Task struct {
	Fork     *Instr // nil for the root task
	Entry    *Block
	Parent   *Task
	SubTasks []*Task
	blocks   mapset.Set[*Block]
	depth    int
}

// Region returns the sync scope of the fork that created the task.
func (t *Task) Region() *Region {
	if t.Fork == nil {
		return nil
	}
	return t.Fork.Region
}

// IsRoot reports whether this is the function's serial root task.
func (t *Task) IsRoot() bool { return t.Fork == nil }

// TaskInfo is the task forest of a function plus the shared-unwind
// classification of its blocks.
type TaskInfo struct {
	Root   *Task
	fn     *Function
	taskOf map[*Block]*Task
	shared mapset.Set[*Block]
}

// TaskOf returns the innermost task owning b.  Blocks on a shared
// unwind path are owned by the task whose scope the path unwinds
// through; IsShared distinguishes them.
func (ti *TaskInfo) TaskOf(b *Block) *Task { return ti.taskOf[b] }

// IsShared reports whether b sits on an exception path reached from
// more than one task and therefore belongs to no single strand of
// execution.
func (ti *TaskInfo) IsShared(b *Block) bool { return ti.shared.Contains(b) }

// Encloses reports whether b is owned by t or by one of t's
// descendants.
func (t *Task) encloses(x *Task) bool {
	for ; x != nil; x = x.Parent {
		if x == t {
			return true
		}
	}
	return false
}

func (ti *TaskInfo) Encloses(t *Task, b *Block) bool {
	o := ti.taskOf[b]
	return o != nil && t.encloses(o)
}

// SimplyEncloses reports whether b is owned by t itself and is not on
// a shared unwind path.
func (ti *TaskInfo) SimplyEncloses(t *Task, b *Block) bool {
	return ti.taskOf[b] == t && !ti.IsShared(b)
}

// unwindEdge reports whether the edge from p's terminator slot idx is
// an exception edge.
func unwindEdge(t *Instr, idx int) bool {
	switch t.Op {
	case OpInvoke:
		return idx == 1
	case OpFork:
		return idx == 2
	case OpJoinUnwind:
		return idx == 1
	case OpTaskResume, OpTaskFrameResume:
		return true
	}
	return false
}

// BuildTaskInfo computes the task forest of f.
func BuildTaskInfo(f *Function) *TaskInfo {
	ti := &TaskInfo{
		fn:     f,
		taskOf: make(map[*Block]*Task),
		shared: mapset.NewThreadUnsafeSet[*Block](),
	}
	if len(f.Blocks) == 0 {
		return ti
	}
	ti.Root = &Task{Entry: f.Entry(), blocks: mapset.NewThreadUnsafeSet[*Block]()}

	// Outer-first traversal.  Each task claims the blocks reachable
	// from its entry without crossing a task boundary: spawned blocks
	// start subtasks, and task-return/task-resume edges leave the task.
	queue := []*Task{ti.Root}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		stack := []*Block{t.Entry}
		for len(stack) > 0 {
			b := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, claimed := ti.taskOf[b]; claimed {
				continue
			}
			ti.taskOf[b] = t
			t.blocks.Add(b)
			term := b.Terminator()
			if term == nil {
				continue
			}
			switch term.Op {
			case OpFork:
				sub := &Task{
					Fork:   term,
					Entry:  term.SpawnedDest(),
					Parent: t,
					blocks: mapset.NewThreadUnsafeSet[*Block](),
					depth:  t.depth + 1,
				}
				t.SubTasks = append(t.SubTasks, sub)
				queue = append(queue, sub)
				stack = append(stack, term.ContinueDest())
				if u := term.UnwindDest(); u != nil {
					stack = append(stack, u)
				}
			case OpTaskReturn, OpTaskResume, OpTaskFrameResume:
				// Successor belongs to the parent scope.
			default:
				stack = append(stack, term.Succs...)
			}
		}
	}
	// Blocks reachable only through task-exit edges are owned by the
	// nearest scope that encloses every thrower into them.
	for changed := true; changed; {
		changed = false
		for _, b := range f.Blocks {
			if _, claimed := ti.taskOf[b]; claimed {
				continue
			}
			var owner *Task
			any := false
			for _, p := range b.preds {
				pt, ok := ti.taskOf[p]
				if !ok {
					continue
				}
				switch p.Terminator().Op {
				case OpTaskReturn, OpTaskResume, OpTaskFrameResume:
					if pt.Parent != nil {
						pt = pt.Parent
					}
				}
				if !any {
					owner, any = pt, true
				} else {
					owner = commonAncestor(owner, pt)
				}
			}
			if any {
				ti.taskOf[b] = owner
				owner.blocks.Add(b)
				changed = true
			}
		}
	}

	ti.computeShared()
	return ti
}

func commonAncestor(a, b *Task) *Task {
	for a.depth > b.depth {
		a = a.Parent
	}
	for b.depth > a.depth {
		b = b.Parent
	}
	for a != b {
		a, b = a.Parent, b.Parent
	}
	return a
}

// computeShared marks the blocks on exception paths fed by more than
// one task, then grows the group over blocks all of whose
// predecessors are already in it.
func (ti *TaskInfo) computeShared() {
	for _, b := range ti.fn.Blocks {
		sources := mapset.NewThreadUnsafeSet[*Task]()
		for _, p := range b.preds {
			term := p.Terminator()
			for idx, s := range term.Succs {
				if s == b && unwindEdge(term, idx) {
					if t, ok := ti.taskOf[p]; ok {
						sources.Add(t)
					}
				}
			}
		}
		if sources.Cardinality() >= 2 {
			ti.shared.Add(b)
		}
	}
	for changed := true; changed; {
		changed = false
		for _, b := range ti.fn.Blocks {
			if ti.shared.Contains(b) || len(b.preds) == 0 {
				continue
			}
			all := true
			for _, p := range b.preds {
				if !ti.shared.Contains(p) {
					all = false
					break
				}
			}
			if all {
				ti.shared.Add(b)
				changed = true
			}
		}
	}
}

// TaskReturnBlocks returns the blocks of t that exit normally to the
// fork's continuation, in layout order.
func (ti *TaskInfo) TaskReturnBlocks(t *Task) []*Block {
	var out []*Block
	for _, b := range ti.fn.Blocks {
		if ti.SimplyEncloses(t, b) && b.Terminator() != nil && b.Terminator().Op == OpTaskReturn {
			out = append(out, b)
		}
	}
	return out
}

// TaskResumeBlocks returns the blocks of t that exit by re-raising, in
// layout order, excluding shared blocks: resumes inside a shared group
// are handled through the group's merge protocol.
func (ti *TaskInfo) TaskResumeBlocks(t *Task) []*Block {
	var out []*Block
	for _, b := range ti.fn.Blocks {
		if !ti.SimplyEncloses(t, b) {
			continue
		}
		if term := b.Terminator(); term != nil &&
			(term.Op == OpTaskResume || term.Op == OpTaskFrameResume) {
			out = append(out, b)
		}
	}
	return out
}

// SharedExitEntries returns the entry blocks of shared unwind groups
// reachable from t: shared blocks with at least one non-shared
// predecessor enclosed by t.
func (ti *TaskInfo) SharedExitEntries(t *Task) []*Block {
	var out []*Block
	for _, b := range ti.fn.Blocks {
		if !ti.IsShared(b) {
			continue
		}
		for _, p := range b.preds {
			if !ti.IsShared(p) && ti.Encloses(t, p) {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// ParallelLoopTask returns the task spawned by l's header when l has
// the shape of a parallel loop: the header forks the body and the
// continuation is the loop latch.  Returns nil otherwise.
func (ti *TaskInfo) ParallelLoopTask(l *Loop) *Task {
	term := l.Header().Terminator()
	if term == nil || term.Op != OpFork {
		return nil
	}
	cont := term.ContinueDest()
	if !l.Contains(cont) || !l.IsLatch(cont) {
		return nil
	}
	for _, sub := range ti.taskOf[l.Header()].SubTasks {
		if sub.Fork == term {
			return sub
		}
	}
	return nil
}

// SpawnsParallelLoopBody reports whether fork creates the body task of
// a parallel loop.
func (ti *TaskInfo) SpawnsParallelLoopBody(fork *Instr, lf *LoopForest) bool {
	l := lf.LoopOf(fork.Block())
	if l == nil || l.Header() != fork.Block() {
		return false
	}
	pt := ti.ParallelLoopTask(l)
	return pt != nil && pt.Fork == fork
}
