package scoring

import (
	"context"
	"fmt"
	"strings"

	"github.com/quay/claircore/toolkit/types/cvss"
)

// Toolkit is a [Scorer] backed by the claircore toolkit's CVSS package.
//
// The toolkit reports a single score per vector, so the triple is assembled by
// rescoring the base and temporal subsets of the supplied vector.
type Toolkit struct{}

var _ Scorer = Toolkit{}

// Score implements [Scorer].
func (Toolkit) Score(ctx context.Context, vec string, v Version) (Scores, error) {
	switch v {
	case V30, V31:
		return toolkitV3(vec)
	case V2:
		return toolkitV2(vec)
	}
	return Scores{}, fmt.Errorf("scoring: toolkit: unsupported version %q", v)
}

func toolkitV3(vec string) (out Scores, err error) {
	full, err := cvss.ParseV3(vec)
	if err != nil {
		return out, err
	}
	prefix, _, _ := strings.Cut(full.String(), "/")
	subset := func(last cvss.V3Metric) (float64, error) {
		var b strings.Builder
		b.WriteString(prefix)
		for m := cvss.V3AttackVector; m <= last; m++ {
			val := full.Get(m)
			if val == cvss.ValueUnset {
				continue
			}
			b.WriteByte('/')
			b.WriteString(m.String())
			b.WriteByte(':')
			b.WriteByte(byte(val))
		}
		sv, err := cvss.ParseV3(b.String())
		if err != nil {
			return 0, err
		}
		return sv.Score(), nil
	}
	if out[0], err = subset(cvss.V3Availability); err != nil {
		return out, err
	}
	if out[1], err = subset(cvss.V3ReportConfidence); err != nil {
		return out, err
	}
	out[2] = full.Score()
	return out, nil
}

func toolkitV2(vec string) (out Scores, err error) {
	full, err := cvss.ParseV2(vec)
	if err != nil {
		return out, err
	}
	subset := func(last cvss.V2Metric) (float64, error) {
		parts := make([]string, 0, int(last)+1)
		for m := cvss.V2AccessVector; m <= last; m++ {
			val := full.Get(m)
			if val == cvss.ValueUnset {
				continue
			}
			parts = append(parts, m.String()+":"+cvss.UnparseV2Value(m, val))
		}
		sv, err := cvss.ParseV2(strings.Join(parts, "/"))
		if err != nil {
			return 0, err
		}
		return sv.Score(), nil
	}
	if out[0], err = subset(cvss.V2Availability); err != nil {
		return out, err
	}
	if out[1], err = subset(cvss.V2ReportConfidence); err != nil {
		return out, err
	}
	out[2] = full.Score()
	return out, nil
}
