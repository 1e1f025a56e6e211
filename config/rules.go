package config

import (
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// Point names one instrumentation point a rule can target.
type Point int

const (
	PointFuncEntry Point = iota
	PointFuncExit
	PointBeforeCall
	PointAfterCall
	PointFork
	PointJoin

	numPoints
)

var pointNames = [numPoints]string{
	"func-entry", "func-exit", "before-call", "after-call", "fork", "join",
}

func (p Point) String() string {
	if p < 0 || p >= numPoints {
		return "invalid"
	}
	return pointNames[p]
}

// PointByName parses a point name from a rule specification.
func PointByName(name string) (Point, bool) {
	for i, s := range pointNames {
		if s == name {
			return Point(i), true
		}
	}
	return 0, false
}

// AllPoints returns every point, used when a rule names none.
func AllPoints() []Point {
	out := make([]Point, numPoints)
	for i := range out {
		out[i] = Point(i)
	}
	return out
}

// Rule matches function names against a glob pattern at a set of
// instrumentation points.
type Rule struct {
	Raw    string
	g      glob.Glob
	points [numPoints]bool
}

// NewRule compiles a rule from a pattern and the points it covers.
// An empty points list covers every point.
func NewRule(pattern string, points ...Point) (Rule, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return Rule{}, errors.Wrapf(err, "bad rule pattern %q", pattern)
	}
	r := Rule{Raw: pattern, g: g}
	if len(points) == 0 {
		points = AllPoints()
	}
	for _, p := range points {
		r.points[p] = true
	}
	return r, nil
}

// Matches reports whether the rule covers the named function at pt.
func (r Rule) Matches(funcName string, pt Point) bool {
	return r.points[pt] && r.g.Match(funcName)
}

// RuleSet holds allow and deny rules.  A deny match wins over an
// allow match; with no match the default applies.
type RuleSet struct {
	Allow        []Rule
	Deny         []Rule
	DefaultAllow bool
}

// Allows reports whether instrumentation may be placed at the given
// point of the named function.
func (rs *RuleSet) Allows(funcName string, pt Point) bool {
	for _, r := range rs.Deny {
		if r.Matches(funcName, pt) {
			return false
		}
	}
	for _, r := range rs.Allow {
		if r.Matches(funcName, pt) {
			return true
		}
	}
	if len(rs.Allow) == 0 {
		return rs.DefaultAllow
	}
	return false
}
