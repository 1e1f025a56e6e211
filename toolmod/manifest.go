// Package toolmod handles the manifest of the externally supplied
// analysis module: the Go-module-style path and version identifying
// the hook implementation, and the hook symbols it defines.  The
// instrumentor uses the manifest to detect symbol conflicts with the
// program before linking the two together.
package toolmod

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"

	"github.com/hookweave/hookweave/common"
	"github.com/hookweave/hookweave/ir"
)

// Manifest describes one analysis module.
type Manifest struct {
	// ModulePath identifies the analysis module, module-path style.
	ModulePath string `json:"module"`
	// Version is the semantic version of the analysis module.
	Version string `json:"version"`
	// Hooks lists the hook symbols the module defines.  Symbols the
	// program needs but the module omits fall back to the no-op
	// defaults at link time.
	Hooks []string `json:"hooks"`
	// Globals lists non-function symbols the module defines.
	Globals []string `json:"globals,omitempty"`
}

// Parse validates a raw manifest.  Validation failures are fatal to
// the instrumentation run.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parsing tool-module manifest")
	}
	if err := module.CheckPath(m.ModulePath); err != nil {
		return nil, errors.Wrapf(err, "tool module %q", m.ModulePath)
	}
	if !semver.IsValid(m.Version) {
		return nil, errors.Errorf("tool module %s: invalid version %q", m.ModulePath, m.Version)
	}
	for _, h := range m.Hooks {
		if len(h) < len(common.HookPrefix) || h[:len(common.HookPrefix)] != common.HookPrefix {
			return nil, errors.Errorf("tool module %s: hook %q lacks the %s prefix",
				m.ModulePath, h, common.HookPrefix)
		}
	}
	return &m, nil
}

// Read loads and validates a manifest file.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading tool-module manifest %q", path)
	}
	return Parse(data)
}

// CheckConflicts reports the first symbol defined by both the program
// and the analysis module.  A conflict aborts instrumentation; the
// error names the symbol and the module it came from so the collision
// can be traced.
func CheckConflicts(p *ir.Program, m *Manifest) error {
	defined := make(map[string]bool)
	for _, f := range p.Funcs {
		if !f.IsDeclaration() {
			defined[f.Nm] = true
		}
	}
	for _, g := range p.Globals {
		defined[g.Nm] = true
	}
	for _, h := range m.Hooks {
		if defined[h] {
			return errors.Errorf(
				"symbol %s is defined by both the program and tool module %s@%s",
				h, m.ModulePath, m.Version)
		}
	}
	for _, g := range m.Globals {
		if defined[g] {
			return errors.Errorf(
				"symbol %s is defined by both the program and tool module %s@%s",
				g, m.ModulePath, m.Version)
		}
	}
	return nil
}
