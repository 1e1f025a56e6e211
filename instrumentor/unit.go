package instrumentor

import (
	"github.com/hookweave/hookweave/common"
	"github.com/hookweave/hookweave/ir"
	"github.com/hookweave/hookweave/loadtime"
)

// EmitUnit finishes one unit: it synthesizes the function-ID
// initialization routine, the unit initialization routine, and the
// constructor that runs it before ordinary program code, and returns
// the serializable tables the load-time registry consumes.
func EmitUnit(prog *ir.Program, tables *Tables) *loadtime.UnitTables {
	fidFn := emitFuncIDInit(prog, tables)

	register := prog.GetOrInsertFunction(common.RuntimePrefix+"register_unit", ir.VoidType)

	initFn := prog.NewFunction(common.UnitInitFunction, ir.VoidType)
	entry := initFn.NewBlock("entry")
	entry.Append(ir.NewCall(register.Name(), ir.VoidType))
	entry.Append(ir.NewCall(fidFn.Name(), ir.VoidType))
	entry.SetTerminator(ir.NewRet(nil))

	ctor := prog.NewFunction(common.UnitCtorName, ir.VoidType)
	centry := ctor.NewBlock("entry")
	centry.Append(ir.NewCall(initFn.Name(), ir.VoidType))
	centry.SetTerminator(ir.NewRet(nil))
	prog.AddCtor(common.UnitCtorPriority, ctor)

	unit := &loadtime.UnitTables{
		Unit:     prog.Name,
		InitFunc: initFn.Name(),
		Sizes:    tables.Sizes.Entries(),
	}
	for _, c := range loadtime.Categories() {
		t := tables.Cat(c)
		unit.Categories = append(unit.Categories, loadtime.CategoryTable{
			Category: c.String(),
			BaseCell: t.BaseCell().Name(),
			Records:  t.Records(),
		})
	}
	return unit
}

// emitFuncIDInit builds the routine that publishes each defined
// function's global entry ID into its cross-unit cell.  The cells of
// functions defined elsewhere keep the unknown sentinel until their
// own unit runs.
func emitFuncIDInit(prog *ir.Program, tables *Tables) *ir.Function {
	entryTable := tables.Cat(loadtime.CatFuncEntry)
	fn := prog.NewFunction(common.HookPrefix+"init_func_ids", ir.VoidType)
	bb := fn.NewBlock("entry")
	bb.SetTerminator(ir.NewRet(nil))
	term := bb.Terminator()

	for _, f := range prog.DefinedFunctions() {
		id, ok := entryTable.Lookup(f)
		if !ok {
			continue
		}
		cell := prog.GetOrInsertGlobal(common.FuncIDVariablePrefix+f.Name(), ir.I64)
		cell.InitInt = UnknownTargetID
		gid := entryTable.GlobalID(bb, term, id)
		bb.InsertBefore(ir.NewStore(gid, cell), term)
	}
	return fn
}
