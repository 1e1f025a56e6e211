package instrumentor

import (
	"github.com/hookweave/hookweave/common"
	"github.com/hookweave/hookweave/ir"
	"github.com/hookweave/hookweave/loadtime"
)

// Hook symbols for memory events.
const (
	hookBeforeLoad  = common.HookPrefix + "before_load"
	hookAfterLoad   = common.HookPrefix + "after_load"
	hookBeforeStore = common.HookPrefix + "before_store"
	hookAfterStore  = common.HookPrefix + "after_store"
)

// Plain library routines the memory intrinsics are lowered to, so the
// callsite instrumentation observes them like any other call.
var intrinsicCallee = map[ir.Intrinsic]string{
	ir.IntrMemCpy:  "memcpy",
	ir.IntrMemMove: "memmove",
	ir.IntrMemSet:  "memset",
}

// MemoryInstrumenter places load/store hooks and lowers memory
// intrinsics in one function.
type MemoryInstrumenter struct {
	tables *Tables
	hooks  *HookInserter
	log    *common.LogWriter

	// atomicsSkipped counts accesses left uninstrumented because they
	// carry atomic ordering.
	atomicsSkipped int
}

func NewMemoryInstrumenter(t *Tables, h *HookInserter, log *common.LogWriter) *MemoryInstrumenter {
	return &MemoryInstrumenter{tables: t, hooks: h, log: log}
}

func (mi *MemoryInstrumenter) AtomicsSkipped() int { return mi.atomicsSkipped }

// Instrument hooks every whole-byte load and store in the worklist.
// The worklist is gathered before any mutation, so hook bookkeeping
// added along the way is never itself instrumented.
func (mi *MemoryInstrumenter) Instrument(accesses []*ir.Instr) {
	rbw := readBeforeWrite(accesses)
	for _, a := range accesses {
		mi.instrumentAccess(a, rbw[a])
	}
}

func (mi *MemoryInstrumenter) instrumentAccess(a *ir.Instr, isRBW bool) {
	size, ok := a.AccessType().ByteSize()
	if !ok {
		// Sub-byte and exotic widths are skipped, not failed.
		return
	}
	if a.Atomic {
		mi.atomicsSkipped++
		if mi.log.VerboseLevel(1) {
			mi.log.Printf("skipping atomic access in %s", a.Block().Parent().Name())
		}
		return
	}

	props := accessProps(a)
	props.ReadBeforeWrite = isRBW
	bb := a.Block()

	var table *IdentifierTable
	var before, after string
	if a.Op == ir.OpLoad {
		table = mi.tables.Cat(loadtime.CatLoad)
		before, after = hookBeforeLoad, hookAfterLoad
	} else {
		table = mi.tables.Cat(loadtime.CatStore)
		before, after = hookBeforeStore, hookAfterStore
	}
	id := table.IDFor(a, recordFor(a))

	addr := a.Address()
	if addr.Type() != ir.BytePtr {
		cast := ir.NewBitCast(ir.BytePtr, addr)
		bb.InsertBefore(cast, a)
		addr = cast
	}

	gid := table.GlobalID(bb, a, id)
	mi.hooks.CallBefore(a, before, gid, addr,
		ir.ConstInt(ir.I64, int64(size)), ir.ConstInt(ir.I64, props.Encode()))

	next := bb.Next(a)
	agid := table.GlobalID(bb, next, id)
	mi.hooks.CallBefore(next, after, agid, addr,
		ir.ConstInt(ir.I64, int64(size)), ir.ConstInt(ir.I64, props.Encode()))
}

// readBeforeWrite computes, with one reverse scan per block, which
// loads read a location the same block stores to later.  Walking
// backwards accumulates the stored-to addresses, so each load is
// answered the moment it is reached.
func readBeforeWrite(accesses []*ir.Instr) map[*ir.Instr]bool {
	blocks := make(map[*ir.Block]bool)
	for _, a := range accesses {
		blocks[a.Block()] = true
	}

	out := make(map[*ir.Instr]bool)
	for b := range blocks {
		storedAfter := make(map[ir.Value]bool)
		for k := len(b.Instrs) - 1; k >= 0; k-- {
			i := b.Instrs[k]
			switch i.Op {
			case ir.OpStore:
				storedAfter[i.Address()] = true
			case ir.OpLoad:
				out[i] = storedAfter[i.Address()]
			}
		}
	}
	return out
}

// LowerMemIntrinsics rewrites copy/move/fill intrinsics into plain
// calls to the matching library routine, so callsite hooks fire for
// them.  Returns the rewritten calls.
func (mi *MemoryInstrumenter) LowerMemIntrinsics(f *ir.Function) []*ir.Instr {
	var lowered []*ir.Instr
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			callee, ok := intrinsicCallee[i.Intr]
			if !ok || !i.IsCallLike() {
				continue
			}
			i.Callee = callee
			i.Intr = ir.IntrNone
			lowered = append(lowered, i)
		}
	}
	return lowered
}
