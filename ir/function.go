package ir

// Function is a function definition (Blocks non-empty) or a bare
// declaration (Blocks empty).  The first block is the entry.
type Function struct {
	Nm      string
	Params  []*Param
	RetTy   *Type
	Blocks  []*Block
	Loc     Loc
	Section string
	// MayRaise reports whether the producer believes calls inside the
	// function can raise exceptions that propagate.
	MayRaise bool

	nextBlockID int
	nextValNum  int
}

func (f *Function) Name() string { return f.Nm }

// IsDeclaration reports whether the function has no body.
func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

// Entry returns the function's entry block.
func (f *Function) Entry() *Block { return f.Blocks[0] }

// NewBlock appends a fresh empty block with the given name hint.
func (f *Function) NewBlock(name string) *Block {
	b := &Block{Nm: name, id: f.nextBlockID, fn: f}
	f.nextBlockID++
	f.Blocks = append(f.Blocks, b)
	return b
}

// insertBlockAfter places a fresh block right after anchor in layout
// order, keeping split-off blocks next to their originals.
func (f *Function) insertBlockAfter(anchor *Block, name string) *Block {
	b := &Block{Nm: name, id: f.nextBlockID, fn: f}
	f.nextBlockID++
	for k, x := range f.Blocks {
		if x == anchor {
			f.Blocks = append(f.Blocks, nil)
			copy(f.Blocks[k+2:], f.Blocks[k+1:])
			f.Blocks[k+1] = b
			return b
		}
	}
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Function) nextNum() int {
	f.nextValNum++
	return f.nextValNum
}

// Instruction constructors.  These build unattached instructions; the
// caller inserts them via the Block methods, or SetTerminator for the
// terminator forms.

func NewAlloca(elem *Type, count Value) *Instr {
	return &Instr{Op: OpAlloca, Ty: PointerTo(elem), ElemTy: elem, Count: count}
}

func NewLoad(ty *Type, addr Value) *Instr {
	return &Instr{Op: OpLoad, Ty: ty, Args: []Value{addr}}
}

func NewStore(val, addr Value) *Instr {
	return &Instr{Op: OpStore, Ty: VoidType, Args: []Value{val, addr}}
}

func NewCall(callee string, retTy *Type, args ...Value) *Instr {
	return &Instr{Op: OpCall, Ty: retTy, Callee: callee, Args: args}
}

func NewIndirectCall(target Value, retTy *Type, args ...Value) *Instr {
	return &Instr{Op: OpCall, Ty: retTy, Args: append(args, target)}
}

func NewAdd(ty *Type, a, b Value) *Instr {
	return &Instr{Op: OpAdd, Ty: ty, Args: []Value{a, b}}
}

func NewMul(ty *Type, a, b Value) *Instr {
	return &Instr{Op: OpMul, Ty: ty, Args: []Value{a, b}}
}

func NewICmp(pred CmpPred, a, b Value) *Instr {
	return &Instr{Op: OpICmp, Ty: I1, Pred: pred, Args: []Value{a, b}}
}

func NewZExt(ty *Type, v Value) *Instr {
	return &Instr{Op: OpZExt, Ty: ty, Args: []Value{v}}
}

func NewPtrToInt(v Value) *Instr {
	return &Instr{Op: OpPtrToInt, Ty: I64, Args: []Value{v}}
}

func NewBitCast(ty *Type, v Value) *Instr {
	return &Instr{Op: OpBitCast, Ty: ty, Args: []Value{v}}
}

func NewPhi(ty *Type) *Instr {
	return &Instr{Op: OpPhi, Ty: ty}
}

func NewBr(dest *Block) *Instr {
	return &Instr{Op: OpBr, Ty: VoidType, Succs: []*Block{dest}}
}

func NewCondBr(cond Value, then, els *Block) *Instr {
	return &Instr{Op: OpCondBr, Ty: VoidType, Args: []Value{cond}, Succs: []*Block{then, els}}
}

func NewRet(v Value) *Instr {
	t := &Instr{Op: OpRet, Ty: VoidType}
	if v != nil {
		t.Args = []Value{v}
	}
	return t
}

func NewUnreachable() *Instr {
	return &Instr{Op: OpUnreachable, Ty: VoidType}
}

func NewResume(exn Value) *Instr {
	t := &Instr{Op: OpResume, Ty: VoidType}
	if exn != nil {
		t.Args = []Value{exn}
	}
	return t
}

func NewInvoke(callee string, retTy *Type, normal, unwind *Block, args ...Value) *Instr {
	return &Instr{Op: OpInvoke, Ty: retTy, Callee: callee, Args: args,
		Succs: []*Block{normal, unwind}}
}

func NewFork(region *Region, spawned, cont, unwind *Block) *Instr {
	t := &Instr{Op: OpFork, Ty: VoidType, Region: region,
		Succs: []*Block{spawned, cont}}
	if unwind != nil {
		t.Succs = append(t.Succs, unwind)
	}
	return t
}

func NewTaskReturn(region *Region, cont *Block) *Instr {
	return &Instr{Op: OpTaskReturn, Ty: VoidType, Region: region, Succs: []*Block{cont}}
}

func NewTaskResume(region *Region, exn Value, unwind *Block) *Instr {
	t := &Instr{Op: OpTaskResume, Ty: VoidType, Region: region, Succs: []*Block{unwind}}
	if exn != nil {
		t.Args = []Value{exn}
	}
	return t
}

func NewTaskFrameResume(frame Value, exn Value, unwind *Block) *Instr {
	t := &Instr{Op: OpTaskFrameResume, Ty: VoidType, Succs: []*Block{unwind}}
	if frame != nil {
		t.Args = append(t.Args, frame)
	}
	if exn != nil {
		t.Args = append(t.Args, exn)
	}
	return t
}

func NewJoin(region *Region, dest *Block) *Instr {
	return &Instr{Op: OpJoin, Ty: VoidType, Region: region, Succs: []*Block{dest}}
}

func NewJoinUnwind(region *Region, normal, unwind *Block) *Instr {
	return &Instr{Op: OpJoinUnwind, Ty: VoidType, Region: region,
		Succs: []*Block{normal, unwind}}
}
