// Package vector implements the CVSS v3 base vector model: the canonical
// string form, conversion between that string and the eight ordered metric
// values, and the "modified metric" overlay used to adjust a vector for a
// specific environment.
//
// Numeric scoring is delegated to a [scoring.Scorer].
package vector

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/quay/cvssadjust"
	"github.com/quay/cvssadjust/scoring"
)

// Metric is one of the eight CVSS v3 base metrics.
type Metric int

// The base metrics, in canonical order.
const (
	AttackVector       Metric = iota // AV
	AttackComplexity                 // AC
	PrivilegesRequired               // PR
	UserInteraction                  // UI
	Scope                            // S
	Confidentiality                  // C
	Integrity                        // I
	Availability                     // A

	NumMetrics int = iota
)

var metricCodes = [NumMetrics]string{"AV", "AC", "PR", "UI", "S", "C", "I", "A"}

// ValidValues is the alphabet for each metric, used in strict mode and by
// [All].
var validValues = [NumMetrics]string{"NALP", "LH", "NLH", "NR", "UC", "HLN", "HLN", "HLN"}

// String returns the metric's abbreviation.
func (m Metric) String() string {
	if m < 0 || int(m) >= NumMetrics {
		return fmt.Sprintf("Metric(%d)", int(m))
	}
	return metricCodes[m]
}

// Modified returns the abbreviation of the metric's "modified" counterpart.
func (m Metric) Modified() string {
	return "M" + m.String()
}

// Lookup from modified code to position.
var modifiedIndex = func() map[string]Metric {
	r := make(map[string]Metric, NumMetrics)
	for i := 0; i < NumMetrics; i++ {
		m := Metric(i)
		r[m.Modified()] = m
	}
	return r
}()

// Unchanged is the overlay sentinel meaning "keep the base value".
const Unchanged = "X"

// Values is the ordered set of base metric values.
type Values [NumMetrics]string

// NoChange returns an overlay that leaves every metric as-is.
func NoChange() (v Values) {
	for i := range v {
		v[i] = Unchanged
	}
	return v
}

// Merge applies "overlay" to "base", position by position.
//
// Where the overlay holds [Unchanged], the base value is kept. Neither
// argument is modified.
func Merge(base, overlay Values) (out Values) {
	for i := range out {
		if overlay[i] != Unchanged {
			out[i] = overlay[i]
		} else {
			out[i] = base[i]
		}
	}
	return out
}

// All yields every combination of base metric values, 2592 in all.
//
// Values are taken from each metric's alphabet in order, with the last
// metric varying fastest, so the first vector is
// "AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H".
func All() iter.Seq[Values] {
	return func(yield func(Values) bool) {
		var idx [NumMetrics]int
		for {
			var v Values
			for i, n := range idx {
				v[i] = validValues[i][n : n+1]
			}
			if !yield(v) {
				return
			}
			i := NumMetrics - 1
			for ; i >= 0; i-- {
				idx[i]++
				if idx[i] < len(validValues[i]) {
					break
				}
				idx[i] = 0
			}
			if i < 0 {
				return
			}
		}
	}
}

// Config is the configuration for an [Engine].
type Config struct {
	// Version is the CVSS minor version written in the preamble: "3.0" or
	// "3.1". Defaults to "3.1".
	Version string `json:"version" yaml:"version"`
	// Separator joins metrics. Defaults to "/".
	Separator string `json:"separator" yaml:"separator"`
	// Strict enables validation of metric values against their alphabets,
	// canonical metric order, and rejection of unknown overlay metrics.
	Strict bool `json:"strict" yaml:"strict"`
}

// Engine parses, serializes, merges, and scores CVSS v3 base vectors.
//
// An Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	scorer scoring.Scorer
	ver    scoring.Version
	prefix string
	sep    string
	strict bool
}

// New returns an Engine using the provided configuration and scoring engine.
//
// A nil Config is the same as the zero Config.
func New(cfg *Config, s scoring.Scorer) (*Engine, error) {
	const op = `vector.New`
	if s == nil {
		return nil, &cvssadjust.Error{Op: op, Kind: cvssadjust.ErrInvalid, Message: "nil scorer"}
	}
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Version == "" {
		c.Version = string(scoring.V31)
	}
	if c.Separator == "" {
		c.Separator = "/"
	}
	e := Engine{
		scorer: s,
		sep:    c.Separator,
		strict: c.Strict,
	}
	switch v := scoring.Version(c.Version); v {
	case scoring.V30, scoring.V31:
		e.ver = v
	default:
		return nil, &cvssadjust.Error{
			Op:      op,
			Kind:    cvssadjust.ErrInvalid,
			Message: fmt.Sprintf("unsupported version %q", c.Version),
		}
	}
	if strings.Contains(c.Separator, ":") {
		return nil, &cvssadjust.Error{
			Op:      op,
			Kind:    cvssadjust.ErrInvalid,
			Message: fmt.Sprintf("bad separator %q", c.Separator),
		}
	}
	e.prefix = "CVSS:" + c.Version
	return &e, nil
}

// Version reports the CVSS version the Engine writes and scores.
func (e *Engine) Version() scoring.Version { return e.ver }

// Serialize returns the canonical string form of "v".
//
// Serialize does no validation: any values produce a string.
func (e *Engine) Serialize(v Values) string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(e.prefix)
	for i, val := range v {
		b.WriteString(e.sep)
		b.WriteString(metricCodes[i])
		b.WriteByte(':')
		b.WriteString(val)
	}
	return b.String()
}

// Parse returns the ordered metric values of the vector string "s".
//
// The first segment (the version preamble) is discarded. Every remaining
// segment must be a single "CODE:value" pair and there must be exactly eight
// of them. Values are taken positionally.
func (e *Engine) Parse(s string) (Values, error) {
	const op = `vector.Parse`
	var v Values
	segs := strings.Split(s, e.sep)
	if e.strict && !validPreamble(segs[0]) {
		return v, malformed(op, "bad preamble %q", segs[0])
	}
	segs = segs[1:]
	for i, seg := range segs {
		code, val, ok := cutPair(seg)
		if !ok {
			return v, malformed(op, "bad metric %q", seg)
		}
		if i >= NumMetrics {
			continue // Reported below.
		}
		if val == "" {
			return v, malformed(op, "empty value for metric %q", code)
		}
		if e.strict {
			m := Metric(i)
			if code != m.String() {
				return v, malformed(op, "metric %q out of order, expected %q", code, m.String())
			}
			if !validValue(m, val, false) {
				return v, malformed(op, "invalid value %q for metric %q", val, code)
			}
		}
		v[i] = val
	}
	if len(segs) != NumMetrics {
		return Values{}, malformed(op, "expected %d metrics, found %d", NumMetrics, len(segs))
	}
	return v, nil
}

// ParseOverlay returns the dense overlay described by "s", a set of
// "MCODE:value" pairs.
//
// Positions not mentioned hold [Unchanged]. Unrecognized codes are ignored,
// unless the Engine is strict. Empty segments are skipped, so the empty string
// is the identity overlay.
func (e *Engine) ParseOverlay(s string) (Values, error) {
	const op = `vector.ParseOverlay`
	v := NoChange()
	if s == "" {
		return v, nil
	}
	for _, seg := range strings.Split(s, e.sep) {
		if seg == "" {
			continue
		}
		code, val, ok := cutPair(seg)
		if !ok {
			return NoChange(), malformed(op, "bad metric %q", seg)
		}
		m, known := modifiedIndex[code]
		switch {
		case !known && e.strict:
			return NoChange(), malformed(op, "unknown metric %q", code)
		case !known:
			continue
		case val == "":
			return NoChange(), malformed(op, "empty value for metric %q", code)
		case e.strict && !validValue(m, val, true):
			return NoChange(), malformed(op, "invalid value %q for metric %q", val, code)
		}
		v[m] = val
	}
	return v, nil
}

// Score reports the base score of the vector string "vec", as computed by the
// Engine's scoring engine.
func (e *Engine) Score(ctx context.Context, vec string) (float64, error) {
	sc, err := e.scorer.Score(ctx, vec, e.ver)
	if err != nil {
		return 0, fmt.Errorf("vector: unable to score %q: %w", vec, err)
	}
	return sc.Base(), nil
}

// Modify returns the vector string produced by applying the overlay string
// "overlay" to the vector string "vec".
func (e *Engine) Modify(vec, overlay string) (string, error) {
	base, err := e.Parse(vec)
	if err != nil {
		return "", err
	}
	ov, err := e.ParseOverlay(overlay)
	if err != nil {
		return "", err
	}
	return e.Serialize(Merge(base, ov)), nil
}

// ModifyAndScore applies the overlay string "overlay" to the vector string
// "vec" and reports the base score of the result.
func (e *Engine) ModifyAndScore(ctx context.Context, vec, overlay string) (float64, error) {
	mod, err := e.Modify(vec, overlay)
	if err != nil {
		return 0, err
	}
	slog.DebugContext(ctx, "modified vector", "original", vec, "modified", mod)
	return e.Score(ctx, mod)
}

func cutPair(seg string) (code, val string, ok bool) {
	if strings.Count(seg, ":") != 1 {
		return "", "", false
	}
	return strings.Cut(seg, ":")
}

func validPreamble(s string) bool {
	return s == "CVSS:3.0" || s == "CVSS:3.1"
}

func validValue(m Metric, val string, overlay bool) bool {
	if overlay && val == Unchanged {
		return true
	}
	return len(val) == 1 && strings.Contains(validValues[m], val)
}

func malformed(op, format string, args ...any) error {
	return &cvssadjust.Error{
		Op:      op,
		Kind:    cvssadjust.ErrMalformedVector,
		Message: fmt.Sprintf(format, args...),
	}
}

// Generated is one entry reported by [Engine.Generate].
type Generated struct {
	Vector string
	Score  float64
	// Modified and ModifiedScore are only populated if an overlay was
	// provided.
	Modified      string
	ModifiedScore float64
}

// Generate scores every base vector reported by [All]. If "overlay" is not
// empty, it's applied to each vector and the result scored as well.
//
// An error is yielded at most once, and ends the sequence.
func (e *Engine) Generate(ctx context.Context, overlay string) iter.Seq2[Generated, error] {
	return func(yield func(Generated, error) bool) {
		ov, err := e.ParseOverlay(overlay)
		if err != nil {
			yield(Generated{}, err)
			return
		}
		modify := overlay != ""
		for v := range All() {
			g := Generated{Vector: e.Serialize(v)}
			g.Score, err = e.Score(ctx, g.Vector)
			if err == nil && modify {
				g.Modified = e.Serialize(Merge(v, ov))
				g.ModifiedScore, err = e.Score(ctx, g.Modified)
			}
			if err != nil {
				yield(Generated{}, err)
				return
			}
			if !yield(g, nil) {
				return
			}
		}
	}
}
