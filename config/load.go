package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ruleSpec is the on-disk form of one allow/deny rule.
type ruleSpec struct {
	Pattern string   `mapstructure:"pattern"`
	Points  []string `mapstructure:"points"`
}

type fileFormat struct {
	Options        Options    `mapstructure:"options"`
	Allow          []ruleSpec `mapstructure:"allow"`
	Deny           []ruleSpec `mapstructure:"deny"`
	Interpositions []string   `mapstructure:"interpose-functions"`
}

// Load reads a configuration file (JSON or YAML, by extension).  An
// empty path yields the default configuration.  Any parse failure is
// returned to the caller, which treats it as fatal.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)

	defaults := Default()
	v.SetDefault("options.func-entry-exit", defaults.FuncEntryExit)
	v.SetDefault("options.blocks", defaults.Blocks)
	v.SetDefault("options.loops", defaults.Loops)
	v.SetDefault("options.calls", defaults.Calls)
	v.SetDefault("options.memory-accesses", defaults.MemoryAccesses)
	v.SetDefault("options.mem-intrinsics", defaults.MemIntrinsics)
	v.SetDefault("options.fork-join", defaults.ForkJoin)
	v.SetDefault("options.local-allocs", defaults.LocalAllocs)
	v.SetDefault("options.heap-allocs", defaults.HeapAllocs)
	v.SetDefault("options.calls-may-raise", defaults.CallsMayRaise)
	v.SetDefault("options.alloc-functions", defaults.AllocFunctions)
	v.SetDefault("options.free-functions", defaults.FreeFunctions)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading configuration %q", path)
	}
	var ff fileFormat
	if err := v.Unmarshal(&ff); err != nil {
		return nil, errors.Wrapf(err, "decoding configuration %q", path)
	}

	cfg := &Config{Options: ff.Options, Interpositions: ff.Interpositions}
	cfg.Rules.DefaultAllow = true
	var err error
	if cfg.Rules.Allow, err = compileRules(ff.Allow); err != nil {
		return nil, err
	}
	if cfg.Rules.Deny, err = compileRules(ff.Deny); err != nil {
		return nil, err
	}
	return cfg, nil
}

func compileRules(specs []ruleSpec) ([]Rule, error) {
	var out []Rule
	for _, s := range specs {
		var pts []Point
		for _, name := range s.Points {
			p, ok := PointByName(name)
			if !ok {
				return nil, errors.Errorf("unknown instrumentation point %q", name)
			}
			pts = append(pts, p)
		}
		r, err := NewRule(s.Pattern, pts...)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
