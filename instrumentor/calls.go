package instrumentor

import (
	"github.com/hookweave/hookweave/common"
	"github.com/hookweave/hookweave/config"
	"github.com/hookweave/hookweave/ir"
	"github.com/hookweave/hookweave/loadtime"
)

// Hook symbols for callsite events.
const (
	hookBeforeCall = common.HookPrefix + "before_call"
	hookAfterCall  = common.HookPrefix + "after_call"
)

// CallInstrumenter places callsite hooks, maintains the per-callee
// function-ID globals, and applies interposition rewrites.
type CallInstrumenter struct {
	tables *Tables
	hooks  *HookInserter
	cfg    *config.Config
	prog   *ir.Program
}

func NewCallInstrumenter(t *Tables, h *HookInserter, cfg *config.Config, p *ir.Program) *CallInstrumenter {
	return &CallInstrumenter{tables: t, hooks: h, cfg: cfg, prog: p}
}

// funcIDGlobal returns the cross-unit cell holding the callee's
// function-entry ID.  Cells start at the unknown sentinel; the unit
// that defines the function stores the real ID from its generated
// initialization routine, so callsites in every unit agree.
func (ci *CallInstrumenter) funcIDGlobal(callee string) *ir.Global {
	g := ci.prog.GetOrInsertGlobal(common.FuncIDVariablePrefix+callee, ir.I64)
	g.InitInt = UnknownTargetID
	return g
}

// Instrument hooks every callsite in the worklist.  The callee name
// filters against the per-point rules; hook and runtime calls never
// reach the worklist.
func (ci *CallInstrumenter) Instrument(fn *ir.Function, calls []*ir.Instr) {
	for _, call := range calls {
		ci.instrumentCall(fn, call)
	}
}

func (ci *CallInstrumenter) instrumentCall(fn *ir.Function, call *ir.Instr) {
	table := ci.tables.Cat(loadtime.CatCallsite)
	bb := call.Block()
	props := CallProps{IsIndirect: call.IsIndirectCall()}

	id := table.IDFor(call, recordFor(call))
	propArg := ir.ConstInt(ir.I64, props.Encode())

	// The target's function ID: loaded from the cross-unit cell for a
	// named callee, the sentinel for an indirect one.
	var funcID ir.Value = ir.ConstInt(ir.I64, UnknownTargetID)
	if !call.IsIndirectCall() {
		ld := ir.NewLoad(ir.I64, ci.funcIDGlobal(call.Callee))
		bb.InsertBefore(ld, call)
		funcID = ld
	}

	if ci.allowed(fn, call, config.PointBeforeCall) {
		gid := table.GlobalID(bb, call, id)
		ci.hooks.CallBefore(call, hookBeforeCall, gid, funcID, propArg)
	}

	if !ci.allowed(fn, call, config.PointAfterCall) {
		return
	}
	switch call.Op {
	case ir.OpCall:
		if next := bb.Next(call); next != nil {
			gid := table.GlobalID(bb, next, id)
			ci.hooks.CallBefore(next, hookAfterCall, gid, funcID, propArg)
		}
	case ir.OpInvoke:
		// The after-hook must run on both destinations; each edge
		// binds its own ID materialization through the merge node.
		defaults := []ir.Value{
			ir.ConstInt(ir.I64, UnknownTargetID),
			ir.ConstInt(ir.I64, UnknownTargetID),
			propArg,
		}
		for _, dest := range call.Succs {
			gid := table.GlobalID(bb, call, id)
			ci.hooks.CallAtSuccessor(dest, bb, hookAfterCall,
				[]ir.Value{gid, funcID, propArg}, defaults)
		}
	}
}

func (ci *CallInstrumenter) allowed(fn *ir.Function, call *ir.Instr, pt config.Point) bool {
	// Rules key on the callee when it is named, else on the caller.
	name := call.Callee
	if name == "" {
		name = fn.Name()
	}
	return ci.cfg.Rules.Allows(name, pt)
}

// Interpose rewrites callsites of the configured functions to the
// generated thunk symbol, leaving the original callee untouched for
// calls arriving from uninstrumented code.
func (ci *CallInstrumenter) Interpose(calls []*ir.Instr) {
	for _, call := range calls {
		if call.IsIndirectCall() || !ci.cfg.ShouldInterpose(call.Callee) {
			continue
		}
		thunk := common.InterposePrefix + call.Callee
		ci.prog.GetOrInsertFunction(thunk, call.Ty)
		call.Callee = thunk
	}
}
