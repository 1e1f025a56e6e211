// Package config is the instrumentation configuration surface:
// category toggles, glob allow/deny rules keyed by function name and
// instrumentation point, interposition requests, and the allocator
// function lists the classifier consults.
package config

// Options toggles whole instrumentation categories.  The zero value
// disables everything; Default enables the full set.
type Options struct {
	FuncEntryExit  bool     `mapstructure:"func-entry-exit"`
	Blocks         bool     `mapstructure:"blocks"`
	Loops          bool     `mapstructure:"loops"`
	Calls          bool     `mapstructure:"calls"`
	MemoryAccesses bool     `mapstructure:"memory-accesses"`
	MemIntrinsics  bool     `mapstructure:"mem-intrinsics"`
	ForkJoin       bool     `mapstructure:"fork-join"`
	LocalAllocs    bool     `mapstructure:"local-allocs"`
	HeapAllocs     bool     `mapstructure:"heap-allocs"`
	Interpose      bool     `mapstructure:"interpose"`
	CallsMayRaise  bool     `mapstructure:"calls-may-raise"`
	AllocFunctions []string `mapstructure:"alloc-functions"`
	FreeFunctions  []string `mapstructure:"free-functions"`
}

// Default enables every category; per-point rules narrow from there.
func Default() Options {
	return Options{
		FuncEntryExit:  true,
		Blocks:         true,
		Loops:          true,
		Calls:          true,
		MemoryAccesses: true,
		MemIntrinsics:  true,
		ForkJoin:       true,
		LocalAllocs:    true,
		HeapAllocs:     true,
		CallsMayRaise:  true,
		AllocFunctions: []string{"malloc", "calloc", "realloc", "aligned_alloc", "_Znwm", "_Znam"},
		FreeFunctions:  []string{"free", "_ZdlPv", "_ZdaPv"},
	}
}

// Config is the full loaded configuration.
type Config struct {
	Options Options
	Rules   RuleSet
	// Interpositions lists callee names whose callsites are rewritten
	// to generated thunk symbols.
	Interpositions []string
}

// DefaultConfig returns a permissive configuration.
func DefaultConfig() *Config {
	return &Config{Options: Default(), Rules: RuleSet{DefaultAllow: true}}
}

// IsAllocFunction reports whether name is a known allocator.
func (c *Config) IsAllocFunction(name string) bool {
	return containsName(c.Options.AllocFunctions, name)
}

// IsFreeFunction reports whether name is a known deallocator.
func (c *Config) IsFreeFunction(name string) bool {
	return containsName(c.Options.FreeFunctions, name)
}

// ShouldInterpose reports whether callsites of name are rewritten.
func (c *Config) ShouldInterpose(name string) bool {
	return c.Options.Interpose && containsName(c.Interpositions, name)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
