package instrumentor

import (
	"github.com/hookweave/hookweave/common"
	"github.com/hookweave/hookweave/config"
	"github.com/hookweave/hookweave/ir"
	"github.com/hookweave/hookweave/loadtime"
	"github.com/hookweave/hookweave/toolmod"
	"github.com/pkg/errors"
)

// Hook symbols for function and block boundaries.
const (
	hookFuncEntry  = common.HookPrefix + "func_entry"
	hookFuncExit   = common.HookPrefix + "func_exit"
	hookBlockEnter = common.HookPrefix + "block_enter"
	hookBlockExit  = common.HookPrefix + "block_exit"
)

// ModuleInstrumentor drives instrumentation of one unit.
type ModuleInstrumentor struct {
	prog     *ir.Program
	cfg      *config.Config
	manifest *toolmod.Manifest
	log      *common.LogWriter

	tables *Tables
	hooks  *HookInserter
	canon  *Canonicalizer
	mem    *MemoryInstrumenter
}

// CreateModuleInstrumentor wires up a driver for prog.  manifest may
// be nil when no tool module is being linked.
func CreateModuleInstrumentor(prog *ir.Program, cfg *config.Config,
	manifest *toolmod.Manifest, log *common.LogWriter) *ModuleInstrumentor {

	tables := NewTables(prog)
	hooks := NewHookInserter(prog)
	return &ModuleInstrumentor{
		prog:     prog,
		cfg:      cfg,
		manifest: manifest,
		log:      log,
		tables:   tables,
		hooks:    hooks,
		canon:    NewCanonicalizer(cfg),
		mem:      NewMemoryInstrumenter(tables, hooks, log),
	}
}

// Tables exposes the unit's tables, for emission and inspection.
func (m *ModuleInstrumentor) Tables() *Tables { return m.tables }

// Hooks exposes the inserter, mainly for tests asserting on selector
// nodes.
func (m *ModuleInstrumentor) Hooks() *HookInserter { return m.hooks }

// Run instruments every eligible function, emits the unit tables, and
// verifies the result.  Any returned error is fatal to the run.
func (m *ModuleInstrumentor) Run() (*loadtime.UnitTables, error) {
	if m.manifest != nil {
		if err := toolmod.CheckConflicts(m.prog, m.manifest); err != nil {
			return nil, err
		}
	}

	for _, f := range m.prog.DefinedFunctions() {
		if !IsInstrumentable(f) {
			continue
		}
		m.instrumentFunction(f)
	}

	unit := EmitUnit(m.prog, m.tables)

	if err := ir.VerifyProgram(m.prog); err != nil {
		return nil, errors.Wrap(err, "verification after instrumentation")
	}
	if m.mem.AtomicsSkipped() > 0 {
		m.log.Warnf("%d atomic accesses were not instrumented", m.mem.AtomicsSkipped())
	}
	return unit, nil
}

// worklists is the one-pass classification of a function's
// instructions, taken before any mutation.
type worklists struct {
	accesses   []*ir.Instr
	calls      []*ir.Instr
	allocas    []*ir.Instr
	heapAllocs []*ir.Instr
	frees      []*ir.Instr
}

func (m *ModuleInstrumentor) classify(f *ir.Function) worklists {
	var w worklists
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			switch i.Op {
			case ir.OpLoad, ir.OpStore:
				w.accesses = append(w.accesses, i)
			case ir.OpAlloca:
				w.allocas = append(w.allocas, i)
			case ir.OpCall, ir.OpInvoke:
				if i.Intr != ir.IntrNone ||
					i.IsHookCall(common.HookPrefix) || i.IsHookCall(common.RuntimePrefix) {
					continue
				}
				switch {
				case m.cfg.IsAllocFunction(i.Callee):
					w.heapAllocs = append(w.heapAllocs, i)
				case m.cfg.IsFreeFunction(i.Callee):
					w.frees = append(w.frees, i)
				default:
					w.calls = append(w.calls, i)
				}
			}
		}
	}
	return w
}

func (m *ModuleInstrumentor) instrumentFunction(f *ir.Function) {
	if m.log.VerboseLevel(2) {
		m.log.Printf("instrumenting %s", f.Name())
	}
	opts := m.cfg.Options

	// Canonicalize before any numbering, so IDs land on the final
	// graph shape.
	m.canon.PromoteCallsToInvokes(f)
	m.canon.SplitAtCalls(f)
	m.canon.SetupBlocks(f)

	dt := ir.BuildDomTree(f)
	lf := ir.BuildLoopForest(f, dt)
	ti := ir.BuildTaskInfo(f)

	w := m.classify(f)

	fj := NewForkJoinInstrumenter(m.tables, m.hooks, lf, ti, f)
	if opts.ForkJoin &&
		m.cfg.Rules.Allows(f.Name(), config.PointFork) &&
		m.cfg.Rules.Allows(f.Name(), config.PointJoin) {
		fj.Instrument()
	}
	if opts.Loops {
		NewLoopInstrumenter(m.tables, m.hooks, lf, ti).Instrument()
	}
	if opts.MemoryAccesses {
		m.mem.Instrument(w.accesses)
	}
	if opts.MemIntrinsics {
		w.calls = append(w.calls, m.mem.LowerMemIntrinsics(f)...)
	}
	ci := NewCallInstrumenter(m.tables, m.hooks, m.cfg, m.prog)
	if opts.Calls {
		ci.Instrument(f, w.calls)
	}
	ai := NewAllocInstrumenter(m.tables, m.hooks, m.cfg, m.log)
	if opts.LocalAllocs {
		ai.InstrumentLocals(w.allocas)
	}
	if opts.HeapAllocs {
		ai.InstrumentHeap(w.heapAllocs, w.frees)
	}
	if opts.Interpose {
		ci.Interpose(w.calls)
	}

	// Block hooks go in after the per-instruction passes so they end
	// up outermost at each block boundary; function entry and exit go
	// in last and wrap everything.
	if opts.Blocks {
		m.instrumentBlocks(f)
	}
	if opts.FuncEntryExit {
		m.instrumentFunctionBoundaries(f, fj.NumSyncRegions(), len(ti.Root.SubTasks) > 0)
	}
}

func (m *ModuleInstrumentor) instrumentBlocks(f *ir.Function) {
	table := m.tables.Cat(loadtime.CatBlock)
	for _, b := range f.Blocks {
		id := table.IDFor(b, recordForBlock(b))
		m.tables.Sizes.Add(id, b)
		props := ir.ConstInt(ir.I64, BlockProps{IsLandingPad: b.LandingPad}.Encode())

		anchor := firstAnchor(b)
		gid := table.GlobalID(b, anchor, id)
		m.hooks.CallBefore(anchor, hookBlockEnter, gid, props)

		term := b.Terminator()
		xgid := table.GlobalID(b, term, id)
		m.hooks.CallBefore(term, hookBlockExit, xgid, props)
	}
}

func (m *ModuleInstrumentor) instrumentFunctionBoundaries(f *ir.Function, numSyncRegions int, maySpawn bool) {
	entryTable := m.tables.Cat(loadtime.CatFuncEntry)
	exitTable := m.tables.Cat(loadtime.CatFuncExit)
	funcID := entryTable.IDFor(f, recordForFunction(f))

	if m.cfg.Rules.Allows(f.Name(), config.PointFuncEntry) {
		props := FuncProps{
			NumSyncRegions: numSyncRegions,
			MaySpawn:       maySpawn,
			MayRaise:       f.MayRaise,
		}
		entry := f.Entry()
		anchor := firstAnchor(entry)
		gid := entryTable.GlobalID(entry, anchor, funcID)
		m.hooks.CallBefore(anchor, hookFuncEntry, gid, ir.ConstInt(ir.I64, props.Encode()))
	}

	if !m.cfg.Rules.Allows(f.Name(), config.PointFuncExit) {
		return
	}
	for _, b := range f.Blocks {
		term := b.Terminator()
		if term == nil {
			continue
		}
		var unwind bool
		switch term.Op {
		case ir.OpRet:
			unwind = false
		case ir.OpResume:
			unwind = true
		default:
			continue
		}
		exitID := exitTable.IDFor(term, recordFor(term))
		props := FuncExitProps{MaySpawn: maySpawn, UnwindExit: unwind}
		egid := exitTable.GlobalID(b, term, exitID)
		fgid := entryTable.GlobalID(b, term, funcID)
		m.hooks.CallBefore(term, hookFuncExit, egid, fgid, ir.ConstInt(ir.I64, props.Encode()))
	}
}
