package ir

import "strconv"

// Op enumerates instruction opcodes.  The set is the minimum the
// instrumentation passes need to see: memory operations, calls, a few
// scalar operations for synthesized arithmetic, and the terminators
// that shape ordinary and fork/join control flow.
type Op int

const (
	OpInvalid Op = iota

	// Ordinary instructions.
	OpPhi
	OpAlloca
	OpLoad
	OpStore
	OpCall
	OpAdd
	OpMul
	OpICmp
	OpZExt
	OpPtrToInt
	OpBitCast
	OpLandingPadMarker // first instruction of a landing pad, carries the exception value

	// Terminators.
	OpBr
	OpCondBr
	OpRet
	OpUnreachable
	OpResume
	OpInvoke
	OpFork
	OpTaskReturn
	OpTaskResume
	OpTaskFrameResume
	OpJoin
	OpJoinUnwind
)

var opNames = map[Op]string{
	OpPhi: "phi", OpAlloca: "alloca", OpLoad: "load", OpStore: "store",
	OpCall: "call", OpAdd: "add", OpMul: "mul", OpICmp: "icmp",
	OpZExt: "zext", OpPtrToInt: "ptrtoint", OpBitCast: "bitcast",
	OpLandingPadMarker: "landingpad",
	OpBr:               "br", OpCondBr: "condbr", OpRet: "ret",
	OpUnreachable: "unreachable", OpResume: "resume", OpInvoke: "invoke",
	OpFork: "fork", OpTaskReturn: "taskreturn", OpTaskResume: "taskresume",
	OpTaskFrameResume: "taskframeresume", OpJoin: "join",
	OpJoinUnwind: "joinunwind",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "op?"
}

// Intrinsic marks calls with semantics the instrumentor treats
// specially.  IntrNone is an ordinary call.
type Intrinsic int

const (
	IntrNone Intrinsic = iota
	IntrMemCpy
	IntrMemMove
	IntrMemSet
	IntrSyncRegionStart
	IntrTaskFrameCreate
	IntrTaskFrameUse
	IntrTaskFrameEnd
	IntrLifetimeStart
	IntrLifetimeEnd
)

// CmpPred is the predicate of an OpICmp instruction.
type CmpPred int

const (
	CmpEQ CmpPred = iota
	CmpNE
	CmpLT
	CmpLE
	CmpGT
	CmpGE
)

// Loc is a source position.  A zero Loc means the position is unknown.
type Loc struct {
	File string
	Dir  string
	Line int
	Col  int
}

// IsZero reports whether no source position was recorded.
func (l Loc) IsZero() bool { return l.File == "" && l.Line == 0 }

// PhiIncoming is one (value, predecessor) pair of a phi instruction.
type PhiIncoming struct {
	Val  Value
	Pred *Block
}

// Instr is a single instruction.  Which fields are meaningful depends
// on Op; constructors on Function produce well-formed instances.
type Instr struct {
	Op    Op
	Ty    *Type   // result type; VoidType when the instruction produces no value
	Args  []Value // operands; layout is per-op (see the constructors)
	Succs []*Block
	block *Block
	num   int // per-function numbering for diagnostics

	// Call and invoke fields.
	Callee      string // named callee; empty means indirect through Args[last]
	Intr        Intrinsic
	NoReturn    bool
	CannotRaise bool // callee declared incapable of raising

	// Memory operation fields.
	Align       int
	Atomic      bool
	VTableLoad  bool
	ThreadLocal bool

	// Alloca fields.
	ElemTy *Type
	Count  Value // nil means a single element

	// Phi incoming edges.
	Incoming []PhiIncoming

	// Fork/join sync scope.
	Region *Region

	// ICmp predicate.
	Pred CmpPred

	Loc Loc
}

func (i *Instr) Type() *Type { return i.Ty }

func (i *Instr) ShortString() string {
	return "%" + strconv.Itoa(i.num) + "." + i.Op.String()
}

// Block returns the block currently holding the instruction, or nil
// if it has not been inserted.
func (i *Instr) Block() *Block { return i.block }

// IsTerminator reports whether the opcode ends a block.
func (i *Instr) IsTerminator() bool { return i.Op >= OpBr }

// IsCallLike reports whether the instruction transfers control to a
// callee, with or without an exception edge.
func (i *Instr) IsCallLike() bool { return i.Op == OpCall || i.Op == OpInvoke }

// IsHookCall reports whether the instruction calls a symbol with the
// given reserved prefix.  Such calls are never instrumented again.
func (i *Instr) IsHookCall(prefix string) bool {
	return i.IsCallLike() && len(i.Callee) >= len(prefix) && i.Callee[:len(prefix)] == prefix
}

// IsIndirectCall reports whether the call target is a runtime value.
func (i *Instr) IsIndirectCall() bool { return i.IsCallLike() && i.Callee == "" }

// CalleeValue returns the indirect call target, or nil for a direct
// call.
func (i *Instr) CalleeValue() Value {
	if !i.IsIndirectCall() || len(i.Args) == 0 {
		return nil
	}
	return i.Args[len(i.Args)-1]
}

// CallArgs returns the arguments passed to the callee, excluding the
// indirect target operand if present.
func (i *Instr) CallArgs() []Value {
	if i.IsIndirectCall() && len(i.Args) > 0 {
		return i.Args[:len(i.Args)-1]
	}
	return i.Args
}

// MayReturnNormally reports whether control can resume after the call.
func (i *Instr) MayReturnNormally() bool { return i.IsCallLike() && !i.NoReturn }

// NormalDest returns the successor reached when an invoke returns
// normally, or nil for other instructions.
func (i *Instr) NormalDest() *Block {
	if i.Op == OpInvoke {
		return i.Succs[0]
	}
	return nil
}

// UnwindDest returns the successor reached when the instruction's
// callee or task raises, or nil when there is no exception edge.
func (i *Instr) UnwindDest() *Block {
	switch i.Op {
	case OpInvoke:
		return i.Succs[1]
	case OpFork:
		if len(i.Succs) == 3 {
			return i.Succs[2]
		}
	case OpJoinUnwind:
		return i.Succs[1]
	case OpTaskResume, OpTaskFrameResume:
		return i.Succs[0]
	}
	return nil
}

// SpawnedDest returns the entry block of the task a fork creates.
func (i *Instr) SpawnedDest() *Block {
	if i.Op == OpFork {
		return i.Succs[0]
	}
	return nil
}

// ContinueDest returns the block where the forking strand continues.
func (i *Instr) ContinueDest() *Block {
	if i.Op == OpFork {
		return i.Succs[1]
	}
	return nil
}

// AddIncoming appends a (value, predecessor) pair to a phi.
func (i *Instr) AddIncoming(v Value, pred *Block) {
	i.Incoming = append(i.Incoming, PhiIncoming{Val: v, Pred: pred})
}

// IncomingFor returns the value the phi selects for pred.
func (i *Instr) IncomingFor(pred *Block) (Value, bool) {
	for _, in := range i.Incoming {
		if in.Pred == pred {
			return in.Val, true
		}
	}
	return nil, false
}

// SetIncoming rebinds the value the phi selects for pred, adding the
// pair when pred has no binding yet.
func (i *Instr) SetIncoming(pred *Block, v Value) {
	for k := range i.Incoming {
		if i.Incoming[k].Pred == pred {
			i.Incoming[k].Val = v
			return
		}
	}
	i.AddIncoming(v, pred)
}

// RemoveIncoming deletes the pair for pred, if any.
func (i *Instr) RemoveIncoming(pred *Block) {
	for k := range i.Incoming {
		if i.Incoming[k].Pred == pred {
			i.Incoming = append(i.Incoming[:k], i.Incoming[k+1:]...)
			return
		}
	}
}

// redirectIncoming moves the binding for oldPred to newPred.
func (i *Instr) redirectIncoming(oldPred, newPred *Block) {
	for k := range i.Incoming {
		if i.Incoming[k].Pred == oldPred {
			i.Incoming[k].Pred = newPred
		}
	}
}

// StoredValue returns the value written by a store.
func (i *Instr) StoredValue() Value { return i.Args[0] }

// Address returns the memory address a load or store touches.
func (i *Instr) Address() Value {
	switch i.Op {
	case OpLoad:
		return i.Args[0]
	case OpStore:
		return i.Args[1]
	}
	return nil
}

// AccessType returns the type of the value moved by a load or store.
func (i *Instr) AccessType() *Type {
	switch i.Op {
	case OpLoad:
		return i.Ty
	case OpStore:
		return i.Args[0].Type()
	}
	return nil
}
