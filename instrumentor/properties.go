package instrumentor

import "github.com/hookweave/hookweave/ir"

// Hook property words.  Each hook kind carries a small bitfield of
// facts known statically about the program point; the layouts below
// are part of the hook ABI, low bits first.

// FuncProps accompanies function-entry hooks.
type FuncProps struct {
	NumSyncRegions int
	MaySpawn       bool
	MayRaise       bool
}

func (p FuncProps) Encode() int64 {
	v := int64(p.NumSyncRegions) & 0xff
	if p.MaySpawn {
		v |= 1 << 8
	}
	if p.MayRaise {
		v |= 1 << 9
	}
	return v
}

// FuncExitProps accompanies function-exit hooks.
type FuncExitProps struct {
	MaySpawn   bool
	UnwindExit bool
}

func (p FuncExitProps) Encode() int64 {
	var v int64
	if p.MaySpawn {
		v |= 1
	}
	if p.UnwindExit {
		v |= 1 << 1
	}
	return v
}

// BlockProps accompanies block-entry and block-exit hooks.
type BlockProps struct {
	IsLandingPad bool
}

func (p BlockProps) Encode() int64 {
	var v int64
	if p.IsLandingPad {
		v |= 1
	}
	return v
}

// CallProps accompanies callsite hooks.
type CallProps struct {
	IsIndirect bool
}

func (p CallProps) Encode() int64 {
	var v int64
	if p.IsIndirect {
		v |= 1
	}
	return v
}

// AccessProps accompanies load and store hooks.  Alignment is the
// byte alignment of the access, capped at 255.  ReadBeforeWrite is
// meaningful for loads only: the same block stores to the location
// after this read.
type AccessProps struct {
	Alignment       int
	IsVTableAccess  bool
	IsConstant      bool
	IsOnStack       bool
	MayBeCaptured   bool
	IsThreadLocal   bool
	ReadBeforeWrite bool
}

func (p AccessProps) Encode() int64 {
	a := p.Alignment
	if a > 255 {
		a = 255
	}
	v := int64(a)
	if p.IsVTableAccess {
		v |= 1 << 8
	}
	if p.IsConstant {
		v |= 1 << 9
	}
	if p.IsOnStack {
		v |= 1 << 10
	}
	if p.MayBeCaptured {
		v |= 1 << 11
	}
	if p.IsThreadLocal {
		v |= 1 << 12
	}
	if p.ReadBeforeWrite {
		v |= 1 << 13
	}
	return v
}

// LoopProps accompanies before-loop hooks.
type LoopProps struct {
	IsForkJoin           bool
	HasSingleExitingEdge bool
}

func (p LoopProps) Encode() int64 {
	var v int64
	if p.IsForkJoin {
		v |= 1
	}
	if p.HasSingleExitingEdge {
		v |= 1 << 1
	}
	return v
}

// LoopExitProps accompanies loop body-exit hooks.
type LoopExitProps struct {
	IsBackedge bool
}

func (p LoopExitProps) Encode() int64 {
	var v int64
	if p.IsBackedge {
		v |= 1
	}
	return v
}

// TaskProps accompanies task-entry hooks; TaskExitProps the exits.
type TaskProps struct {
	IsParallelLoopBody bool
}

func (p TaskProps) Encode() int64 {
	var v int64
	if p.IsParallelLoopBody {
		v |= 1
	}
	return v
}

type TaskExitProps struct {
	IsParallelLoopBody bool
}

func (p TaskExitProps) Encode() int64 {
	var v int64
	if p.IsParallelLoopBody {
		v |= 1
	}
	return v
}

// ForkProps accompanies fork hooks.
type ForkProps struct {
	SpawnsLoopBody bool
}

func (p ForkProps) Encode() int64 {
	var v int64
	if p.SpawnsLoopBody {
		v |= 1
	}
	return v
}

// AllocProps accompanies local- and heap-allocation hooks.
type AllocProps struct {
	IsStatic bool // allocation in the function entry block
}

func (p AllocProps) Encode() int64 {
	var v int64
	if p.IsStatic {
		v |= 1
	}
	return v
}

// accessProps computes the static property word for a load or store.
// Read-before-write is filled in separately by the per-block reverse
// scan.
func accessProps(i *ir.Instr) AccessProps {
	p := AccessProps{Alignment: i.Align}
	p.IsVTableAccess = i.VTableLoad
	p.IsThreadLocal = i.ThreadLocal
	switch addr := i.Address().(type) {
	case *ir.Global:
		p.IsConstant = addr.Constant
		p.IsThreadLocal = p.IsThreadLocal || addr.ThreadLocal
	case *ir.Param:
		p.MayBeCaptured = addr.Captured
	case *ir.Instr:
		if addr.Op == ir.OpAlloca {
			p.IsOnStack = true
			p.MayBeCaptured = mayBeCaptured(addr)
		}
	}
	return p
}

// mayBeCaptured reports whether the address of a stack slot escapes:
// it is passed to a call, stored somewhere, or flows into a cast or
// merge.  Address operands of loads and stores do not capture.
func mayBeCaptured(alloca *ir.Instr) bool {
	fn := alloca.Block().Parent()
	for _, b := range fn.Blocks {
		for _, i := range b.Instrs {
			switch i.Op {
			case ir.OpLoad:
				continue
			case ir.OpStore:
				if i.StoredValue() == ir.Value(alloca) {
					return true
				}
				continue
			}
			for _, a := range i.Args {
				if a == ir.Value(alloca) {
					return true
				}
			}
		}
	}
	return false
}
