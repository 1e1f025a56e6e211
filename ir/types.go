// Package ir holds the program representation consumed by the
// instrumentor: functions, blocks, instructions, and the analyses
// (dominators, natural loops, task forest) the instrumentation
// passes rely on.  The representation is deliberately small; it is
// the collaborator the instrumentor mutates, not the product.
package ir

import "strconv"

// TypeKind discriminates the small set of types the representation
// tracks.  Instrumentation only ever needs sizes and pointer-ness.
type TypeKind int

const (
	VoidKind TypeKind = iota
	IntKind
	FloatKind
	PointerKind
	// TokenKind types carry no runtime value; they tie fork and join
	// instructions to their sync scope.
	TokenKind
)

// Type describes a value's type.  Types are interned by the
// constructors below; pointer equality is meaningful.
type Type struct {
	Kind TypeKind
	Bits int
	Elem *Type
}

var (
	VoidType  = &Type{Kind: VoidKind}
	TokenType = &Type{Kind: TokenKind}
	I1        = &Type{Kind: IntKind, Bits: 1}
	I8        = &Type{Kind: IntKind, Bits: 8}
	I16       = &Type{Kind: IntKind, Bits: 16}
	I32       = &Type{Kind: IntKind, Bits: 32}
	I64       = &Type{Kind: IntKind, Bits: 64}
	F32       = &Type{Kind: FloatKind, Bits: 32}
	F64       = &Type{Kind: FloatKind, Bits: 64}
)

var (
	BytePtr = &Type{Kind: PointerKind, Bits: 64, Elem: I8}
	I32Ptr  = &Type{Kind: PointerKind, Bits: 64, Elem: I32}
	I64Ptr  = &Type{Kind: PointerKind, Bits: 64, Elem: I64}
)

// PointerTo returns a pointer type to elem.  The common cases are
// interned; the rest are allocated fresh, which is fine because type
// identity beyond the interned set is never relied upon.
func PointerTo(elem *Type) *Type {
	switch elem {
	case I8:
		return BytePtr
	case I32:
		return I32Ptr
	case I64:
		return I64Ptr
	}
	return &Type{Kind: PointerKind, Bits: 64, Elem: elem}
}

// ByteSize reports the number of whole bytes a value of this type
// occupies in memory.  The second result is false when the type has
// no size or a size that is not a whole number of bytes (e.g. i1),
// in which case the access is excluded from instrumentation rather
// than treated as an error.
func (t *Type) ByteSize() (int, bool) {
	switch t.Kind {
	case IntKind, FloatKind:
		if t.Bits%8 != 0 {
			return 0, false
		}
		return t.Bits / 8, true
	case PointerKind:
		return t.Bits / 8, true
	default:
		return 0, false
	}
}

// IsVoid reports whether the type carries no value.
func (t *Type) IsVoid() bool { return t == nil || t.Kind == VoidKind }

func (t *Type) String() string {
	switch t.Kind {
	case VoidKind:
		return "void"
	case TokenKind:
		return "token"
	case IntKind:
		return "i" + strconv.Itoa(t.Bits)
	case FloatKind:
		return "f" + strconv.Itoa(t.Bits)
	case PointerKind:
		if t.Elem != nil {
			return t.Elem.String() + "*"
		}
		return "ptr"
	}
	return "?"
}
