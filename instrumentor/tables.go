// Package instrumentor inserts analysis hook calls into a unit's
// control-flow representation.  IDs are dense and local to the unit;
// the matching global ID is materialized at each use site as an add
// against a per-category base cell that the load-time registry fills
// in, so units never coordinate during instrumentation.
package instrumentor

import (
	"github.com/hookweave/hookweave/common"
	"github.com/hookweave/hookweave/ir"
	"github.com/hookweave/hookweave/loadtime"
)

// UnknownTargetID is the sentinel reported when a callsite's target
// cannot be named, e.g. an indirect call.
const UnknownTargetID int64 = -1

// IdentifierTable hands out dense local IDs for one category and
// records the metadata that accompanies each ID.  Keys are the
// representation objects being numbered (instructions, blocks,
// functions); first use allocates the next ID, later uses return the
// same one.
type IdentifierTable struct {
	cat  loadtime.Category
	ids  map[any]int64
	recs []loadtime.Record
	base *ir.Global
}

// NewIdentifierTable creates the table and its base cell global in p.
func NewIdentifierTable(p *ir.Program, cat loadtime.Category) *IdentifierTable {
	base := p.GetOrInsertGlobal(common.HookPrefix+"base_"+cat.String(), ir.I64)
	return &IdentifierTable{
		cat:  cat,
		ids:  make(map[any]int64),
		base: base,
	}
}

func (t *IdentifierTable) Category() loadtime.Category { return t.cat }

// BaseCell returns the mutable global holding the unit's base ID for
// this category.
func (t *IdentifierTable) BaseCell() *ir.Global { return t.base }

// Count returns the number of IDs allocated so far.
func (t *IdentifierTable) Count() int64 { return int64(len(t.recs)) }

// IDFor returns the local ID of key, allocating the next dense ID and
// storing rec on first use.
func (t *IdentifierTable) IDFor(key any, rec loadtime.Record) int64 {
	if id, ok := t.ids[key]; ok {
		return id
	}
	id := int64(len(t.recs))
	t.ids[key] = id
	t.recs = append(t.recs, rec)
	return id
}

// Lookup returns the ID previously allocated for key.
func (t *IdentifierTable) Lookup(key any) (int64, bool) {
	id, ok := t.ids[key]
	return id, ok
}

// Records returns the metadata records in ID order.
func (t *IdentifierTable) Records() []loadtime.Record { return t.recs }

// GlobalID materializes the global ID of local before anchor: a load
// of the base cell followed by an add of the local offset.  The sum
// exists only at run time, which is what keeps units independent; it
// must never be folded to a constant.
func (t *IdentifierTable) GlobalID(b *ir.Block, anchor *ir.Instr, local int64) ir.Value {
	ld := ir.NewLoad(ir.I64, t.base)
	add := ir.NewAdd(ir.I64, ld, ir.ConstInt(ir.I64, local))
	if anchor != nil {
		b.InsertBefore(ld, anchor)
		b.InsertBefore(add, anchor)
	} else {
		b.InsertAtStart(add)
		b.InsertBefore(ld, add)
	}
	return add
}

// recordFor builds the metadata record for an instruction.
func recordFor(i *ir.Instr) loadtime.Record {
	if i.Loc.IsZero() {
		return loadtime.UnknownRecord()
	}
	return loadtime.Record{
		File: i.Loc.File, Dir: i.Loc.Dir, Line: i.Loc.Line, Col: i.Loc.Col,
	}
}

// recordForBlock uses the position of the block's first located
// instruction.
func recordForBlock(b *ir.Block) loadtime.Record {
	for _, i := range b.Instrs {
		if !i.Loc.IsZero() {
			return recordFor(i)
		}
	}
	return loadtime.UnknownRecord()
}

// recordForFunction carries the function name along with its position.
func recordForFunction(f *ir.Function) loadtime.Record {
	r := loadtime.Record{Name: f.Nm}
	if !f.Loc.IsZero() {
		r.File = f.Loc.File
		r.Dir = f.Loc.Dir
		r.Line = f.Loc.Line
		r.Col = f.Loc.Col
	}
	return r
}

// SizeTable accumulates per-block instruction counts keyed by the
// block's ID in the block category.  FullSize counts everything;
// NonEmptySize skips merges and bookkeeping, or takes the externally
// supplied weight when the producer recorded one.
type SizeTable struct {
	entries []loadtime.SizeEntry
}

// Add appends size accounting for the block with the given local ID.
// IDs must arrive densely, matching the block table's allocation
// order.
func (s *SizeTable) Add(id int64, b *ir.Block) {
	full, nonEmpty := 0, 0
	for _, i := range b.Instrs {
		full++
		switch {
		case i.Op == ir.OpPhi, i.Op == ir.OpLandingPadMarker:
		case i.IsHookCall(common.HookPrefix):
		default:
			nonEmpty++
		}
	}
	if b.Weight > 0 {
		nonEmpty = b.Weight
	}
	if int64(len(s.entries)) != id {
		// Keep the table aligned with the ID space even if a block was
		// numbered without size accounting.
		for int64(len(s.entries)) < id {
			s.entries = append(s.entries, loadtime.SizeEntry{})
		}
	}
	s.entries = append(s.entries, loadtime.SizeEntry{FullSize: full, NonEmptySize: nonEmpty})
}

// Entries returns the accumulated entries in ID order.
func (s *SizeTable) Entries() []loadtime.SizeEntry { return s.entries }

// Tables bundles one IdentifierTable per category plus the size table
// for one unit.
type Tables struct {
	byCat [loadtime.NumCategories]*IdentifierTable
	Sizes SizeTable
}

// NewTables creates all per-category tables and their base cells.
func NewTables(p *ir.Program) *Tables {
	t := &Tables{}
	for _, c := range loadtime.Categories() {
		t.byCat[c] = NewIdentifierTable(p, c)
	}
	return t
}

// Cat returns the table for one category.
func (t *Tables) Cat(c loadtime.Category) *IdentifierTable { return t.byCat[c] }
