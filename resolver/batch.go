package resolver

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/quay/cvssadjust"
	"github.com/quay/cvssadjust/internal/cache"
)

// Result is the outcome of resolving one identifier in a batch.
type Result struct {
	// ID is the identifier as requested.
	ID     string
	Record cvssadjust.Record
	// Err is non-nil if and only if Record is absent.
	Err error
}

// ResolveAll resolves every identifier in "ids", with at most the configured
// concurrency in flight. Results are reported in the same order as "ids".
//
// The identifiers are independent: a failure for one does not affect the
// others. Duplicate identifiers are only fetched once per call.
func (r *Resolver) ResolveAll(ctx context.Context, ids []string) []Result {
	out := make([]Result, len(ids))
	var seen cache.Live[string, cvssadjust.Record]
	// Hold every record until the batch is done so duplicates stay live.
	live := make([]*cvssadjust.Record, len(ids))
	var eg errgroup.Group
	eg.SetLimit(r.concurrency)
	for i, id := range ids {
		eg.Go(func() error {
			rec, err := r.resolve(ctx, id, &seen)
			out[i] = Result{ID: id, Err: err}
			if err == nil {
				live[i] = rec
				out[i].Record = *rec
			}
			return nil
		})
	}
	eg.Wait()
	runtime.KeepAlive(live)
	return out
}
