package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quay/cvssadjust"
	"github.com/quay/cvssadjust/scoring"
)

// Result is the outcome of a consistency check.
type Result struct {
	Match    bool
	Computed float64
	Recorded float64
}

// Err returns an error of kind [cvssadjust.ErrScoreDiscrepancy] if the check
// did not match, or nil if it did.
func (r Result) Err(id string) error {
	if r.Match {
		return nil
	}
	return &cvssadjust.Error{
		Op:      "vector.Check",
		Kind:    cvssadjust.ErrScoreDiscrepancy,
		ID:      id,
		Message: fmt.Sprintf("record is %v, calculated is %v", r.Recorded, r.Computed),
	}
}

// Check recomputes the base score of the record's vector and compares it to
// the score stored in the record.
//
// The comparison is exact. A mismatch means the local scoring engine and the
// record's source disagree, and is reported rather than corrected.
//
// The vector is scored at the version implied by the record: v2 records as
// CVSS v2, v3 records according to their preamble.
func (e *Engine) Check(ctx context.Context, rec cvssadjust.Record) (Result, error) {
	const op = `vector.Check`
	if rec.Absent() {
		return Result{}, &cvssadjust.Error{
			Op:      op,
			Kind:    cvssadjust.ErrInvalid,
			ID:      rec.ID,
			Message: "absent record",
		}
	}
	ver := scoring.VersionOf(rec.VectorString)
	if rec.Schema == cvssadjust.SchemaV2 {
		ver = scoring.V2
	}
	sc, err := e.scorer.Score(ctx, rec.VectorString, ver)
	if err != nil {
		return Result{}, fmt.Errorf("vector: unable to score %q: %w", rec.VectorString, err)
	}
	res := Result{
		Computed: sc.Base(),
		Recorded: rec.BaseScore,
	}
	res.Match = res.Computed == res.Recorded
	slog.DebugContext(ctx, "consistency check",
		"id", rec.ID,
		"version", string(ver),
		"recorded", res.Recorded,
		"computed", res.Computed,
		"match", res.Match)
	return res, nil
}
