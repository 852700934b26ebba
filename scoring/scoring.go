// Package scoring adapts CVSS scoring engines to a single interface.
//
// The engines themselves implement the numeric formulas from the CVSS
// specifications; nothing in this module reimplements that arithmetic.
package scoring

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Version is the CVSS protocol version a vector targets.
type Version string

// Supported versions.
const (
	V2  Version = "2.0"
	V30 Version = "3.0"
	V31 Version = "3.1"
)

// VersionOf guesses the version of a vector string by its preamble.
//
// Vectors without a recognized "CVSS:" preamble are assumed to be v2, which
// does not carry one.
func VersionOf(vec string) Version {
	switch {
	case strings.HasPrefix(vec, "CVSS:3.1/"):
		return V31
	case strings.HasPrefix(vec, "CVSS:3.0/"):
		return V30
	}
	return V2
}

// Scores is the ordered triple reported by an engine: base, temporal, and
// environmental.
type Scores [3]float64

// Base reports the base score.
func (s Scores) Base() float64 { return s[0] }

// Temporal reports the temporal score.
func (s Scores) Temporal() float64 { return s[1] }

// Environmental reports the environmental score.
func (s Scores) Environmental() float64 { return s[2] }

// Scorer is a CVSS scoring engine.
//
// Implementations should report errors for vectors they cannot parse and
// must be safe for concurrent use.
type Scorer interface {
	Score(ctx context.Context, vec string, v Version) (Scores, error)
}

// Func adapts an ordinary function into a [Scorer].
type Func func(ctx context.Context, vec string, v Version) (Scores, error)

// Score implements [Scorer].
func (f Func) Score(ctx context.Context, vec string, v Version) (Scores, error) {
	return f(ctx, vec, v)
}

// Default is the name of the engine used when none is configured.
const Default = "toolkit"

var engines = map[string]Scorer{
	"toolkit": Toolkit{},
	"gocvss":  GoCVSS{},
}

// Lookup returns the engine registered under "name".
func Lookup(name string) (Scorer, error) {
	if name == "" {
		name = Default
	}
	s, ok := engines[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("scoring: unknown engine %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return s, nil
}

// Names reports the registered engine names, sorted.
func Names() []string {
	ns := make([]string, 0, len(engines))
	for n := range engines {
		ns = append(ns, n)
	}
	sort.Strings(ns)
	return ns
}

// Rating returns the qualitative severity rating for a score.
//
// The mapping is the one defined for v3.x. CVSS v2 defines no mapping, so the
// v3 one is used there as well.
func Rating(score float64) string {
	switch {
	case score == 0:
		return "NONE"
	case score < 4.0:
		return "LOW"
	case score < 7.0:
		return "MEDIUM"
	case score < 9.0:
		return "HIGH"
	default:
		return "CRITICAL"
	}
}
