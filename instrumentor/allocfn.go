package instrumentor

import (
	"github.com/hookweave/hookweave/common"
	"github.com/hookweave/hookweave/config"
	"github.com/hookweave/hookweave/ir"
	"github.com/hookweave/hookweave/loadtime"
)

// Hook symbols for allocation events.
const (
	hookBeforeLocalAlloc = common.HookPrefix + "before_local_alloc"
	hookAfterLocalAlloc  = common.HookPrefix + "after_local_alloc"
	hookBeforeHeapAlloc  = common.HookPrefix + "before_heap_alloc"
	hookAfterHeapAlloc   = common.HookPrefix + "after_heap_alloc"
	hookBeforeFree       = common.HookPrefix + "before_free"
	hookAfterFree        = common.HookPrefix + "after_free"
)

// AllocInstrumenter places hooks on stack allocations, allocator
// calls, and deallocator calls.
type AllocInstrumenter struct {
	tables *Tables
	hooks  *HookInserter
	cfg    *config.Config
	log    *common.LogWriter
}

func NewAllocInstrumenter(t *Tables, h *HookInserter, cfg *config.Config, log *common.LogWriter) *AllocInstrumenter {
	return &AllocInstrumenter{tables: t, hooks: h, cfg: cfg, log: log}
}

// InstrumentLocals hooks the stack allocations in the worklist.
func (ai *AllocInstrumenter) InstrumentLocals(allocas []*ir.Instr) {
	table := ai.tables.Cat(loadtime.CatLocalAlloc)
	for _, a := range allocas {
		bb := a.Block()
		size := ai.allocaSize(a)
		if size == nil {
			// No ID either: the table only records entities that got
			// hooks.
			continue
		}
		id := table.IDFor(a, recordFor(a))
		props := AllocProps{IsStatic: bb == bb.Parent().Entry() && a.Count == nil}
		propArg := ir.ConstInt(ir.I64, props.Encode())

		gid := table.GlobalID(bb, a, id)
		ai.hooks.CallBefore(a, hookBeforeLocalAlloc, gid, size, propArg)

		next := bb.Next(a)
		addr := ir.NewBitCast(ir.BytePtr, a)
		bb.InsertBefore(addr, next)
		agid := table.GlobalID(bb, next, id)
		ai.hooks.CallBefore(next, hookAfterLocalAlloc, agid, addr, size, propArg)
	}
}

// allocaSize computes the allocation's byte size as a value usable at
// the alloca: a constant for fixed-size slots, a widening multiply
// for dynamic counts.  Nil means the element size is not whole-byte
// and the allocation is skipped.
func (ai *AllocInstrumenter) allocaSize(a *ir.Instr) ir.Value {
	elem, ok := a.ElemTy.ByteSize()
	if !ok {
		return nil
	}
	if a.Count == nil {
		return ir.ConstInt(ir.I64, int64(elem))
	}
	bb := a.Block()
	count := a.Count
	if count.Type() != ir.I64 {
		z := ir.NewZExt(ir.I64, count)
		bb.InsertBefore(z, a)
		count = z
	}
	mul := ir.NewMul(ir.I64, count, ir.ConstInt(ir.I64, int64(elem)))
	bb.InsertBefore(mul, a)
	return mul
}

// heapCallShape describes where an allocator keeps its size, count,
// alignment, and old-pointer arguments; -1 means not present.
type heapCallShape struct {
	size, count, align, oldPtr int
	argc                       int
}

var heapShapes = map[string]heapCallShape{
	"malloc":        {size: 0, count: -1, align: -1, oldPtr: -1, argc: 1},
	"calloc":        {size: 1, count: 0, align: -1, oldPtr: -1, argc: 2},
	"realloc":       {size: 1, count: -1, align: -1, oldPtr: 0, argc: 2},
	"aligned_alloc": {size: 1, count: -1, align: 0, oldPtr: -1, argc: 2},
	"_Znwm":         {size: 0, count: -1, align: -1, oldPtr: -1, argc: 1},
	"_Znam":         {size: 0, count: -1, align: -1, oldPtr: -1, argc: 1},
}

// InstrumentHeap hooks allocator and deallocator calls in the
// worklists.
func (ai *AllocInstrumenter) InstrumentHeap(allocs, frees []*ir.Instr) {
	for _, call := range allocs {
		ai.instrumentHeapAlloc(call)
	}
	for _, call := range frees {
		ai.instrumentFree(call)
	}
}

func (ai *AllocInstrumenter) instrumentHeapAlloc(call *ir.Instr) {
	shape, ok := heapShapes[call.Callee]
	args := call.CallArgs()
	if !ok || len(args) != shape.argc {
		// An allocator with an unexpected signature is left alone
		// rather than hooked with wrong operands.
		if ai.log.VerboseLevel(1) {
			ai.log.Printf("skipping allocator call %s with %d args", call.Callee, len(args))
		}
		return
	}
	table := ai.tables.Cat(loadtime.CatHeapAlloc)
	bb := call.Block()
	id := table.IDFor(call, recordFor(call))
	propArg := ir.ConstInt(ir.I64, AllocProps{}.Encode())

	pick := func(idx int, dflt int64) ir.Value {
		if idx < 0 {
			return ir.ConstInt(ir.I64, dflt)
		}
		return args[idx]
	}
	nullPtr := ir.ConstNull(ir.BytePtr)
	var oldPtr ir.Value = nullPtr
	if shape.oldPtr >= 0 {
		oldPtr = args[shape.oldPtr]
	}
	size := pick(shape.size, 0)
	count := pick(shape.count, 1)
	align := pick(shape.align, 0)

	gid := table.GlobalID(bb, call, id)
	ai.hooks.CallBefore(call, hookBeforeHeapAlloc, gid, size, count, align, oldPtr, propArg)

	switch call.Op {
	case ir.OpCall:
		next := bb.Next(call)
		agid := table.GlobalID(bb, next, id)
		ai.hooks.CallBefore(next, hookAfterHeapAlloc, agid, ir.Value(call), size, count, align, oldPtr, propArg)
	case ir.OpInvoke:
		// The returned pointer only exists on the normal path; the
		// unwind path reports null.
		defaults := []ir.Value{
			ir.ConstInt(ir.I64, UnknownTargetID), nullPtr,
			ir.ConstInt(ir.I64, 0), ir.ConstInt(ir.I64, 1),
			ir.ConstInt(ir.I64, 0), nullPtr, propArg,
		}
		ngid := table.GlobalID(bb, call, id)
		ai.hooks.CallAtSuccessor(call.NormalDest(), bb, hookAfterHeapAlloc,
			[]ir.Value{ngid, call, size, count, align, oldPtr, propArg}, defaults)
		ugid := table.GlobalID(bb, call, id)
		ai.hooks.CallAtSuccessor(call.UnwindDest(), bb, hookAfterHeapAlloc,
			[]ir.Value{ugid, nullPtr, size, count, align, oldPtr, propArg}, defaults)
	}
}

func (ai *AllocInstrumenter) instrumentFree(call *ir.Instr) {
	args := call.CallArgs()
	if len(args) != 1 {
		if ai.log.VerboseLevel(1) {
			ai.log.Printf("skipping deallocator call %s with %d args", call.Callee, len(args))
		}
		return
	}
	table := ai.tables.Cat(loadtime.CatFree)
	bb := call.Block()
	id := table.IDFor(call, recordFor(call))
	propArg := ir.ConstInt(ir.I64, 0)
	addr := args[0]

	gid := table.GlobalID(bb, call, id)
	ai.hooks.CallBefore(call, hookBeforeFree, gid, addr, propArg)

	switch call.Op {
	case ir.OpCall:
		next := bb.Next(call)
		agid := table.GlobalID(bb, next, id)
		ai.hooks.CallBefore(next, hookAfterFree, agid, addr, propArg)
	case ir.OpInvoke:
		defaults := []ir.Value{
			ir.ConstInt(ir.I64, UnknownTargetID),
			ir.ConstNull(ir.BytePtr), propArg,
		}
		ngid := table.GlobalID(bb, call, id)
		ai.hooks.CallAtSuccessor(call.NormalDest(), bb, hookAfterFree,
			[]ir.Value{ngid, addr, propArg}, defaults)
	}
}
