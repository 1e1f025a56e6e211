package loadtime

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Record is one metadata entry: the source position (and, where it
// applies, the name) of an instrumented program point.  Unknown
// positions are stored explicitly rather than omitted so every ID has
// a record.
type Record struct {
	Name string `json:"name,omitempty"`
	File string `json:"file,omitempty"`
	Dir  string `json:"dir,omitempty"`
	Line int    `json:"line,omitempty"`
	Col  int    `json:"col,omitempty"`
}

// UnknownRecord is the record written for points with no source
// position.
func UnknownRecord() Record { return Record{Name: "unknown"} }

// CategoryTable is the serialized table of one category in one unit:
// the name of the base-ID cell the unit's code reads, plus one record
// per local ID, in ID order.
type CategoryTable struct {
	Category string   `json:"category"`
	BaseCell string   `json:"baseCell"`
	Records  []Record `json:"records"`
}

// SizeEntry is the size accounting for one block-category entry.
// NonEmptySize excludes merge and bookkeeping instructions.
type SizeEntry struct {
	FullSize     int `json:"full"`
	NonEmptySize int `json:"nonEmpty"`
}

// UnitTables is everything one instrumented unit ships: per-category
// metadata tables, the block size table, and the name of the unit's
// initialization routine.
type UnitTables struct {
	Unit       string          `json:"unit"`
	InitFunc   string          `json:"initFunc"`
	Categories []CategoryTable `json:"categories"`
	Sizes      []SizeEntry     `json:"sizes"`
}

// Marshal serializes the unit tables.
func (u *UnitTables) Marshal() ([]byte, error) {
	return json.MarshalIndent(u, "", "  ")
}

// UnmarshalUnitTables parses serialized unit tables and validates the
// category names.
func UnmarshalUnitTables(data []byte) (*UnitTables, error) {
	var u UnitTables
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, errors.Wrap(err, "parsing unit tables")
	}
	for _, ct := range u.Categories {
		if _, ok := CategoryByName(ct.Category); !ok {
			return nil, errors.Errorf("unit %s: unknown category %q", u.Unit, ct.Category)
		}
	}
	return &u, nil
}

// Table returns the unit's table for the given category, or nil.
func (u *UnitTables) Table(c Category) *CategoryTable {
	for i := range u.Categories {
		if u.Categories[i].Category == c.String() {
			return &u.Categories[i]
		}
	}
	return nil
}
