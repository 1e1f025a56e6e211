package ir

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// JSON codec for whole units.  The command-line front end reads a
// serialized unit, instruments it, and writes it back; tests use the
// codec for fixtures.  Instructions are referenced by a per-function
// numbering assigned during encoding, blocks by their index.

type jLoc struct {
	File string `json:"file,omitempty"`
	Dir  string `json:"dir,omitempty"`
	Line int    `json:"line,omitempty"`
	Col  int    `json:"col,omitempty"`
}

type jVal struct {
	Kind string `json:"k"`
	ID   int    `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
	Int  int64  `json:"int,omitempty"`
	Null bool   `json:"null,omitempty"`
	Name string `json:"name,omitempty"`
}

type jIncoming struct {
	Val  jVal `json:"val"`
	Pred int  `json:"pred"`
}

type jInstr struct {
	ID          int         `json:"id"`
	Op          string      `json:"op"`
	Type        string      `json:"type,omitempty"`
	Args        []jVal      `json:"args,omitempty"`
	Succs       []int       `json:"succs,omitempty"`
	Callee      string      `json:"callee,omitempty"`
	Intr        string      `json:"intr,omitempty"`
	NoReturn    bool        `json:"noReturn,omitempty"`
	CannotRaise bool        `json:"cannotRaise,omitempty"`
	Align       int         `json:"align,omitempty"`
	Atomic      bool        `json:"atomic,omitempty"`
	VTableLoad  bool        `json:"vtable,omitempty"`
	ThreadLocal bool        `json:"threadLocal,omitempty"`
	ElemType    string      `json:"elemType,omitempty"`
	Count       *jVal       `json:"count,omitempty"`
	Incoming    []jIncoming `json:"incoming,omitempty"`
	Region      string      `json:"region,omitempty"`
	Cmp         string      `json:"cmp,omitempty"`
	Loc         *jLoc       `json:"loc,omitempty"`
}

type jBlock struct {
	Name       string   `json:"name"`
	LandingPad bool     `json:"landingPad,omitempty"`
	Weight     int      `json:"weight,omitempty"`
	Instrs     []jInstr `json:"instrs"`
}

type jParam struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Captured bool   `json:"captured,omitempty"`
}

type jFunc struct {
	Name     string   `json:"name"`
	Ret      string   `json:"ret,omitempty"`
	Params   []jParam `json:"params,omitempty"`
	MayRaise bool     `json:"mayRaise,omitempty"`
	Section  string   `json:"section,omitempty"`
	Loc      *jLoc    `json:"loc,omitempty"`
	Blocks   []jBlock `json:"blocks"`
}

type jGlobal struct {
	Name        string `json:"name"`
	Elem        string `json:"elem"`
	Constant    bool   `json:"constant,omitempty"`
	ThreadLocal bool   `json:"threadLocal,omitempty"`
	InitInt     int64  `json:"init,omitempty"`
}

type jCtor struct {
	Priority int    `json:"priority"`
	Fn       string `json:"fn"`
}

type jProgram struct {
	Name    string    `json:"name"`
	Globals []jGlobal `json:"globals,omitempty"`
	Funcs   []jFunc   `json:"funcs"`
	Ctors   []jCtor   `json:"ctors,omitempty"`
}

var cmpNames = map[CmpPred]string{
	CmpEQ: "eq", CmpNE: "ne", CmpLT: "lt", CmpLE: "le", CmpGT: "gt", CmpGE: "ge",
}

var intrNames = map[Intrinsic]string{
	IntrMemCpy: "memcpy", IntrMemMove: "memmove", IntrMemSet: "memset",
	IntrSyncRegionStart: "syncregion", IntrTaskFrameCreate: "tfcreate",
	IntrTaskFrameUse: "tfuse", IntrTaskFrameEnd: "tfend",
	IntrLifetimeStart: "lifestart", IntrLifetimeEnd: "lifeend",
}

func typeString(t *Type) string {
	if t == nil {
		return ""
	}
	return t.String()
}

func parseType(s string) (*Type, error) {
	switch s {
	case "", "void":
		return VoidType, nil
	case "token":
		return TokenType, nil
	}
	if strings.HasSuffix(s, "*") {
		elem, err := parseType(strings.TrimSuffix(s, "*"))
		if err != nil {
			return nil, err
		}
		return PointerTo(elem), nil
	}
	if len(s) > 1 && (s[0] == 'i' || s[0] == 'f') {
		bits, err := strconv.Atoi(s[1:])
		if err != nil {
			return nil, errors.Wrapf(err, "bad type %q", s)
		}
		k := IntKind
		if s[0] == 'f' {
			k = FloatKind
		}
		switch {
		case k == IntKind && bits == 1:
			return I1, nil
		case k == IntKind && bits == 8:
			return I8, nil
		case k == IntKind && bits == 16:
			return I16, nil
		case k == IntKind && bits == 32:
			return I32, nil
		case k == IntKind && bits == 64:
			return I64, nil
		case k == FloatKind && bits == 32:
			return F32, nil
		case k == FloatKind && bits == 64:
			return F64, nil
		}
		return &Type{Kind: k, Bits: bits}, nil
	}
	return nil, errors.Errorf("bad type %q", s)
}

type encoder struct {
	ids map[*Instr]int
}

func (e *encoder) val(v Value) jVal {
	switch x := v.(type) {
	case *Const:
		return jVal{Kind: "const", Type: typeString(x.Ty), Int: x.Int, Null: x.IsNull}
	case *Global:
		return jVal{Kind: "global", Name: x.Nm}
	case *Param:
		return jVal{Kind: "param", Name: x.Nm}
	case *Region:
		return jVal{Kind: "region", Name: x.Nm}
	case *Instr:
		return jVal{Kind: "instr", ID: e.ids[x]}
	}
	return jVal{Kind: "?"}
}

func encodeLoc(l Loc) *jLoc {
	if l.IsZero() {
		return nil
	}
	return &jLoc{File: l.File, Dir: l.Dir, Line: l.Line, Col: l.Col}
}

// MarshalProgram serializes a unit to JSON.
func MarshalProgram(p *Program) ([]byte, error) {
	jp := jProgram{Name: p.Name}
	for _, g := range p.Globals {
		jp.Globals = append(jp.Globals, jGlobal{
			Name: g.Nm, Elem: typeString(g.Elem), Constant: g.Constant,
			ThreadLocal: g.ThreadLocal, InitInt: g.InitInt,
		})
	}
	for _, c := range p.Ctors {
		jp.Ctors = append(jp.Ctors, jCtor{Priority: c.Priority, Fn: c.Fn.Nm})
	}
	for _, f := range p.Funcs {
		jf := jFunc{
			Name: f.Nm, Ret: typeString(f.RetTy), MayRaise: f.MayRaise,
			Section: f.Section, Loc: encodeLoc(f.Loc),
		}
		for _, prm := range f.Params {
			jf.Params = append(jf.Params, jParam{
				Name: prm.Nm, Type: typeString(prm.Ty), Captured: prm.Captured,
			})
		}
		e := &encoder{ids: make(map[*Instr]int)}
		blockIdx := make(map[*Block]int, len(f.Blocks))
		n := 0
		for bi, b := range f.Blocks {
			blockIdx[b] = bi
			for _, i := range b.Instrs {
				e.ids[i] = n
				n++
			}
		}
		for _, b := range f.Blocks {
			jb := jBlock{Name: b.Nm, LandingPad: b.LandingPad, Weight: b.Weight}
			for _, i := range b.Instrs {
				ji := jInstr{
					ID: e.ids[i], Op: i.Op.String(), Type: typeString(i.Ty),
					Callee: i.Callee, NoReturn: i.NoReturn, CannotRaise: i.CannotRaise,
					Align: i.Align, Atomic: i.Atomic, VTableLoad: i.VTableLoad,
					ThreadLocal: i.ThreadLocal, Loc: encodeLoc(i.Loc),
				}
				if i.Ty.IsVoid() {
					ji.Type = ""
				}
				if i.Intr != IntrNone {
					ji.Intr = intrNames[i.Intr]
				}
				if i.Op == OpICmp {
					ji.Cmp = cmpNames[i.Pred]
				}
				if i.ElemTy != nil {
					ji.ElemType = typeString(i.ElemTy)
				}
				if i.Count != nil {
					cv := e.val(i.Count)
					ji.Count = &cv
				}
				if i.Region != nil {
					ji.Region = i.Region.Nm
				}
				for _, a := range i.Args {
					ji.Args = append(ji.Args, e.val(a))
				}
				for _, s := range i.Succs {
					ji.Succs = append(ji.Succs, blockIdx[s])
				}
				for _, in := range i.Incoming {
					ji.Incoming = append(ji.Incoming, jIncoming{
						Val: e.val(in.Val), Pred: blockIdx[in.Pred],
					})
				}
				jb.Instrs = append(jb.Instrs, ji)
			}
			jf.Blocks = append(jf.Blocks, jb)
		}
		jp.Funcs = append(jp.Funcs, jf)
	}
	return json.MarshalIndent(jp, "", "  ")
}

type decoder struct {
	p       *Program
	f       *Function
	instrs  map[int]*Instr
	blocks  []*Block
	regions map[string]*Region
	params  map[string]*Param
}

func (d *decoder) val(jv jVal) (Value, error) {
	switch jv.Kind {
	case "const":
		ty, err := parseType(jv.Type)
		if err != nil {
			return nil, err
		}
		if jv.Null {
			return ConstNull(ty), nil
		}
		return ConstInt(ty, jv.Int), nil
	case "global":
		g := d.p.Global(jv.Name)
		if g == nil {
			return nil, errors.Errorf("unknown global %q", jv.Name)
		}
		return g, nil
	case "param":
		p, ok := d.params[jv.Name]
		if !ok {
			return nil, errors.Errorf("unknown parameter %q in %s", jv.Name, d.f.Nm)
		}
		return p, nil
	case "region":
		return d.region(jv.Name), nil
	case "instr":
		i, ok := d.instrs[jv.ID]
		if !ok {
			return nil, errors.Errorf("unknown instruction reference %d in %s", jv.ID, d.f.Nm)
		}
		return i, nil
	}
	return nil, errors.Errorf("unknown value kind %q", jv.Kind)
}

func (d *decoder) region(name string) *Region {
	if r, ok := d.regions[name]; ok {
		return r
	}
	r := &Region{Nm: name}
	d.regions[name] = r
	return r
}

func decodeLoc(jl *jLoc) Loc {
	if jl == nil {
		return Loc{}
	}
	return Loc{File: jl.File, Dir: jl.Dir, Line: jl.Line, Col: jl.Col}
}

var opByName = func() map[string]Op {
	m := make(map[string]Op, len(opNames))
	for op, s := range opNames {
		m[s] = op
	}
	return m
}()

var cmpByName = func() map[string]CmpPred {
	m := make(map[string]CmpPred, len(cmpNames))
	for c, s := range cmpNames {
		m[s] = c
	}
	return m
}()

var intrByName = func() map[string]Intrinsic {
	m := make(map[string]Intrinsic, len(intrNames))
	for i, s := range intrNames {
		m[s] = i
	}
	return m
}()

// UnmarshalProgram parses a serialized unit.
func UnmarshalProgram(data []byte) (*Program, error) {
	var jp jProgram
	if err := json.Unmarshal(data, &jp); err != nil {
		return nil, errors.Wrap(err, "parsing unit")
	}
	p := NewProgram(jp.Name)
	for _, jg := range jp.Globals {
		elem, err := parseType(jg.Elem)
		if err != nil {
			return nil, err
		}
		p.Globals = append(p.Globals, &Global{
			Nm: jg.Name, Elem: elem, Constant: jg.Constant,
			ThreadLocal: jg.ThreadLocal, InitInt: jg.InitInt,
		})
	}

	for _, jf := range jp.Funcs {
		ret, err := parseType(jf.Ret)
		if err != nil {
			return nil, err
		}
		f := p.NewFunction(jf.Name, ret)
		f.MayRaise = jf.MayRaise
		f.Section = jf.Section
		f.Loc = decodeLoc(jf.Loc)
		d := &decoder{
			p: p, f: f,
			instrs:  make(map[int]*Instr),
			regions: make(map[string]*Region),
			params:  make(map[string]*Param),
		}
		for _, jprm := range jf.Params {
			ty, err := parseType(jprm.Type)
			if err != nil {
				return nil, err
			}
			prm := &Param{Nm: jprm.Name, Ty: ty, Captured: jprm.Captured}
			f.Params = append(f.Params, prm)
			d.params[jprm.Name] = prm
		}

		// First pass: blocks and instruction shells, so references can
		// point forward.
		for _, jb := range jf.Blocks {
			b := f.NewBlock(jb.Name)
			b.LandingPad = jb.LandingPad
			b.Weight = jb.Weight
			d.blocks = append(d.blocks, b)
			for _, ji := range jb.Instrs {
				op, ok := opByName[ji.Op]
				if !ok {
					return nil, errors.Errorf("unknown opcode %q in %s", ji.Op, f.Nm)
				}
				d.instrs[ji.ID] = &Instr{Op: op}
			}
		}

		// Second pass: fill in operands and attach to blocks.
		for bi, jb := range jf.Blocks {
			b := d.blocks[bi]
			for _, ji := range jb.Instrs {
				i := d.instrs[ji.ID]
				ty, err := parseType(ji.Type)
				if err != nil {
					return nil, err
				}
				i.Ty = ty
				i.Callee = ji.Callee
				i.NoReturn = ji.NoReturn
				i.CannotRaise = ji.CannotRaise
				i.Align = ji.Align
				i.Atomic = ji.Atomic
				i.VTableLoad = ji.VTableLoad
				i.ThreadLocal = ji.ThreadLocal
				i.Loc = decodeLoc(ji.Loc)
				if ji.Intr != "" {
					intr, ok := intrByName[ji.Intr]
					if !ok {
						return nil, errors.Errorf("unknown intrinsic %q", ji.Intr)
					}
					i.Intr = intr
				}
				if ji.Cmp != "" {
					pred, ok := cmpByName[ji.Cmp]
					if !ok {
						return nil, errors.Errorf("unknown compare %q", ji.Cmp)
					}
					i.Pred = pred
				}
				if ji.ElemType != "" {
					if i.ElemTy, err = parseType(ji.ElemType); err != nil {
						return nil, err
					}
				}
				if ji.Count != nil {
					if i.Count, err = d.val(*ji.Count); err != nil {
						return nil, err
					}
				}
				if ji.Region != "" {
					i.Region = d.region(ji.Region)
				}
				for _, ja := range ji.Args {
					a, err := d.val(ja)
					if err != nil {
						return nil, err
					}
					i.Args = append(i.Args, a)
				}
				for _, si := range ji.Succs {
					if si < 0 || si >= len(d.blocks) {
						return nil, errors.Errorf("successor index %d out of range in %s", si, f.Nm)
					}
					i.Succs = append(i.Succs, d.blocks[si])
				}
				for _, jin := range ji.Incoming {
					v, err := d.val(jin.Val)
					if err != nil {
						return nil, err
					}
					if jin.Pred < 0 || jin.Pred >= len(d.blocks) {
						return nil, errors.Errorf("phi predecessor index %d out of range", jin.Pred)
					}
					i.Incoming = append(i.Incoming, PhiIncoming{Val: v, Pred: d.blocks[jin.Pred]})
				}
				if i.IsTerminator() {
					b.SetTerminator(i)
				} else {
					b.Append(i)
				}
			}
		}
	}

	for _, jc := range jp.Ctors {
		fn := p.Function(jc.Fn)
		if fn == nil {
			return nil, errors.Errorf("ctor references unknown function %q", jc.Fn)
		}
		p.AddCtor(jc.Priority, fn)
	}
	return p, nil
}
