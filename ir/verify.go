package ir

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/tools/container/intsets"
)

// VerifyProgram runs the structural checks on every defined function
// and accumulates all failures rather than stopping at the first.
// The instrumentor treats a non-nil result as fatal.
func VerifyProgram(p *Program) error {
	var result *multierror.Error
	for _, f := range p.DefinedFunctions() {
		if err := VerifyFunction(f); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, c := range p.Ctors {
		if c.Fn == nil {
			result = multierror.Append(result, errors.New("ctor entry with nil function"))
		}
	}
	return result.ErrorOrNil()
}

// VerifyFunction checks the invariants every pass in this package
// maintains: one terminator per block, consistent predecessor lists,
// phi incoming edges matching predecessors, markers in the right
// positions, and exception edges landing on landing pads.
func VerifyFunction(f *Function) error {
	var result *multierror.Error
	fail := func(b *Block, format string, args ...any) {
		err := errors.Errorf(format, args...)
		if b != nil {
			err = errors.Wrapf(err, "function %s, block %s", f.Nm, b.Nm)
		} else {
			err = errors.Wrapf(err, "function %s", f.Nm)
		}
		result = multierror.Append(result, err)
	}

	inFunc := make(map[*Block]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		inFunc[b] = true
	}

	for _, b := range f.Blocks {
		if b.fn != f {
			fail(b, "block parent pointer is stale")
		}
		term := b.Terminator()
		if term == nil {
			fail(b, "block has no terminator")
			continue
		}
		for k, i := range b.Instrs {
			if i.block != b {
				fail(b, "instruction %s has stale block pointer", i.ShortString())
			}
			if i.IsTerminator() && k != len(b.Instrs)-1 {
				fail(b, "terminator %s in mid-block position", i.ShortString())
			}
			if i.Op == OpLandingPadMarker && k != 0 {
				fail(b, "landing-pad marker not first")
			}
			if i.Op == OpPhi {
				if k > b.FirstNonPhi() {
					fail(b, "phi %s below first non-phi", i.ShortString())
				}
			}
		}

		for _, s := range term.Succs {
			if !inFunc[s] {
				fail(b, "successor %s belongs to another function", s.Nm)
			} else if !s.HasPred(b) {
				fail(b, "successor %s is missing back edge", s.Nm)
			}
		}
		if u := term.UnwindDest(); u != nil && !u.LandingPad {
			fail(b, "exception edge to non-landing-pad %s", u.Nm)
		}

		// Every recorded predecessor must actually branch here.
		var seen intsets.Sparse
		for _, p := range b.preds {
			if seen.Has(p.id) {
				fail(b, "duplicate predecessor %s", p.Nm)
			}
			seen.Insert(p.id)
			found := false
			if pt := p.Terminator(); pt != nil {
				for _, s := range pt.Succs {
					if s == b {
						found = true
					}
				}
			}
			if !found {
				fail(b, "recorded predecessor %s does not branch here", p.Nm)
			}
		}

		// Phi incoming edges must cover the predecessors exactly.
		for _, phi := range b.Phis() {
			var covered intsets.Sparse
			for _, in := range phi.Incoming {
				if !b.HasPred(in.Pred) {
					fail(b, "phi %s has incoming from non-predecessor %s",
						phi.ShortString(), in.Pred.Nm)
				}
				if covered.Has(in.Pred.id) {
					fail(b, "phi %s has duplicate incoming from %s",
						phi.ShortString(), in.Pred.Nm)
				}
				covered.Insert(in.Pred.id)
			}
			for _, p := range b.preds {
				if !covered.Has(p.id) {
					fail(b, "phi %s is missing incoming from %s",
						phi.ShortString(), p.Nm)
				}
			}
		}
	}

	if len(f.Blocks) > 0 && len(f.Entry().preds) > 0 {
		fail(nil, "entry block has predecessors")
	}
	return result.ErrorOrNil()
}
