package ir

import "strconv"

// Value is anything an instruction can take as an operand: constants,
// globals, function parameters, sync regions, and the results of other
// instructions.
type Value interface {
	Type() *Type
	ShortString() string
}

// Const is an integer or null-pointer constant.
type Const struct {
	Ty     *Type
	Int    int64
	IsNull bool
}

// ConstInt returns an integer constant of the given type.
func ConstInt(ty *Type, v int64) *Const { return &Const{Ty: ty, Int: v} }

// ConstNull returns the null pointer of the given pointer type.
func ConstNull(ty *Type) *Const { return &Const{Ty: ty, IsNull: true} }

// Zero is the zero value of ty, usable as a hook-argument default.
func Zero(ty *Type) *Const {
	if ty.Kind == PointerKind {
		return ConstNull(ty)
	}
	return ConstInt(ty, 0)
}

func (c *Const) Type() *Type { return c.Ty }

func (c *Const) ShortString() string {
	if c.IsNull {
		return "null"
	}
	return strconv.FormatInt(c.Int, 10)
}

// Global is a module-level variable.  Its Type is a pointer to Elem,
// matching how instructions address it.
type Global struct {
	Nm          string
	Elem        *Type
	Constant    bool
	ThreadLocal bool
	// InitInt is the scalar initializer for integer globals; the base
	// cells the instrumentor emits start at zero and are written once
	// at load time.
	InitInt int64
}

func (g *Global) Type() *Type         { return PointerTo(g.Elem) }
func (g *Global) Name() string        { return g.Nm }
func (g *Global) ShortString() string { return "@" + g.Nm }

// Param is a function parameter.
type Param struct {
	Nm string
	Ty *Type
	// Captured is true when the address of the parameter's pointee may
	// escape, as recorded by the producer of the representation.
	Captured bool
}

func (p *Param) Type() *Type         { return p.Ty }
func (p *Param) ShortString() string { return "%" + p.Nm }

// Region identifies a sync scope.  Forks and joins carrying the same
// Region synchronize with each other.
type Region struct {
	Nm string
}

func (r *Region) Type() *Type         { return TokenType }
func (r *Region) ShortString() string { return "$" + r.Nm }
