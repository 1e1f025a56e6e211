package ir

// Ctor registers a function to run before ordinary program code.
// Lower priority runs earlier, matching the usual constructor-table
// convention.
type Ctor struct {
	Priority int
	Fn       *Function
}

// Program is one independently instrumented unit: a set of functions
// and globals plus constructor registrations.
type Program struct {
	Name    string
	Funcs   []*Function
	Globals []*Global
	Ctors   []Ctor
}

// NewProgram returns an empty unit with the given name, normally the
// translation-unit path.
func NewProgram(name string) *Program {
	return &Program{Name: name}
}

// NewFunction creates and registers an empty function.
func (p *Program) NewFunction(name string, retTy *Type, params ...*Param) *Function {
	f := &Function{Nm: name, RetTy: retTy, Params: params}
	p.Funcs = append(p.Funcs, f)
	return f
}

// Function returns the named function, or nil.
func (p *Program) Function(name string) *Function {
	for _, f := range p.Funcs {
		if f.Nm == name {
			return f
		}
	}
	return nil
}

// Global returns the named global, or nil.
func (p *Program) Global(name string) *Global {
	for _, g := range p.Globals {
		if g.Nm == name {
			return g
		}
	}
	return nil
}

// GetOrInsertGlobal returns the named global, creating it with the
// given element type when absent.  An existing global is returned
// as-is; the instrumentor relies on this when several callsites share
// one function-ID cell.
func (p *Program) GetOrInsertGlobal(name string, elem *Type) *Global {
	if g := p.Global(name); g != nil {
		return g
	}
	g := &Global{Nm: name, Elem: elem}
	p.Globals = append(p.Globals, g)
	return g
}

// GetOrInsertFunction returns the named function, creating a bare
// declaration when absent.  Hook declarations are introduced this way.
func (p *Program) GetOrInsertFunction(name string, retTy *Type, params ...*Param) *Function {
	if f := p.Function(name); f != nil {
		return f
	}
	return p.NewFunction(name, retTy, params...)
}

// AddCtor registers fn to run at the given priority.
func (p *Program) AddCtor(priority int, fn *Function) {
	p.Ctors = append(p.Ctors, Ctor{Priority: priority, Fn: fn})
}

// DefinedFunctions returns the functions that have bodies.
func (p *Program) DefinedFunctions() []*Function {
	var out []*Function
	for _, f := range p.Funcs {
		if !f.IsDeclaration() {
			out = append(out, f)
		}
	}
	return out
}
