package scoring

import (
	"context"
	"fmt"

	gocvss20 "github.com/pandatix/go-cvss/20"
	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"
)

// GoCVSS is a [Scorer] backed by github.com/pandatix/go-cvss.
type GoCVSS struct{}

var _ Scorer = GoCVSS{}

// Score implements [Scorer].
func (GoCVSS) Score(ctx context.Context, vec string, v Version) (Scores, error) {
	switch v {
	case V31:
		p, err := gocvss31.ParseVector(vec)
		if err != nil {
			return Scores{}, err
		}
		return Scores{p.BaseScore(), p.TemporalScore(), p.EnvironmentalScore()}, nil
	case V30:
		p, err := gocvss30.ParseVector(vec)
		if err != nil {
			return Scores{}, err
		}
		return Scores{p.BaseScore(), p.TemporalScore(), p.EnvironmentalScore()}, nil
	case V2:
		p, err := gocvss20.ParseVector(vec)
		if err != nil {
			return Scores{}, err
		}
		return Scores{p.BaseScore(), p.TemporalScore(), p.EnvironmentalScore()}, nil
	}
	return Scores{}, fmt.Errorf("scoring: gocvss: unsupported version %q", v)
}
