// Package loadtime implements the load-time half of the two-phase ID
// protocol: units are instrumented independently with dense local IDs,
// and at load time each unit's tables are registered and assigned a
// base offset per category so every event carries a globally unique
// ID without cross-unit coordination at instrumentation time.
package loadtime

// Category names one kind of instrumented program point.  The set is
// closed; every category gets its own ID space and metadata table.
type Category int

const (
	CatFuncEntry Category = iota
	CatFuncExit
	CatLoop
	CatLoopExit
	CatBlock
	CatCallsite
	CatLoad
	CatStore
	CatFork
	CatTask
	CatTaskExit
	CatForkCont
	CatJoin
	CatLocalAlloc
	CatHeapAlloc
	CatFree

	NumCategories
)

var categoryNames = [NumCategories]string{
	"func_entry", "func_exit", "loop", "loop_exit", "bb", "callsite",
	"load", "store", "fork", "task", "task_exit", "fork_cont", "join",
	"local_alloc", "heap_alloc", "free",
}

func (c Category) String() string {
	if c < 0 || c >= NumCategories {
		return "invalid"
	}
	return categoryNames[c]
}

// Categories returns every category in declaration order.
func Categories() []Category {
	out := make([]Category, NumCategories)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// CategoryByName is the inverse of String.
func CategoryByName(name string) (Category, bool) {
	for i, s := range categoryNames {
		if s == name {
			return Category(i), true
		}
	}
	return 0, false
}
