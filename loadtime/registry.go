package loadtime

// Registry assigns base IDs to units as they are registered.  Within
// a category, unit bases are allocated in registration order, so the
// IDs of every registered unit form one contiguous global space.
type Registry struct {
	units []*UnitTables
	bases []map[Category]int64
	next  [NumCategories]int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register admits a unit and returns its base ID per category: the
// values the unit's base cells would be initialized with at load time.
func (r *Registry) Register(u *UnitTables) map[Category]int64 {
	out := make(map[Category]int64, NumCategories)
	for _, c := range Categories() {
		out[c] = r.next[c]
		if t := u.Table(c); t != nil {
			r.next[c] += int64(len(t.Records))
		}
	}
	r.units = append(r.units, u)
	r.bases = append(r.bases, out)
	return out
}

// Total returns the number of IDs allocated so far in a category.
func (r *Registry) Total(c Category) int64 { return r.next[c] }

// Units returns the registered units in registration order.
func (r *Registry) Units() []*UnitTables { return r.units }

// Resolve maps a global ID back to its unit and record.
func (r *Registry) Resolve(c Category, globalID int64) (*UnitTables, Record, bool) {
	for i, u := range r.units {
		base := r.bases[i][c]
		t := u.Table(c)
		if t == nil {
			continue
		}
		if globalID >= base && globalID < base+int64(len(t.Records)) {
			return u, t.Records[globalID-base], true
		}
	}
	return nil, Record{}, false
}
