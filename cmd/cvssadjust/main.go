// Cvssadjust reports the CVSS scores for CVE identifiers, optionally adjusted
// by a set of modified base metrics.
//
// Exit status is 0 on success, 1 if a record could not be found, 2 for usage
// errors, 3 if a record's score doesn't match the computed score, and 4 for
// any other failure.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/quay/claircore/toolkit/log"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"

	"github.com/quay/cvssadjust"
	"github.com/quay/cvssadjust/resolver"
	"github.com/quay/cvssadjust/scoring"
	"github.com/quay/cvssadjust/vector"
)

const description = "CVSS Score"

var version = "0.1"

// Exit codes.
const (
	exitOK = iota
	exitNoRecord
	exitUsage
	exitDiscrepancy
	exitFailure
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) (code int) {
	var o options
	fs := newFlagSet(&o, stdout)
	switch err := fs.Parse(args); {
	case errors.Is(err, pflag.ErrHelp):
		return exitOK
	case err != nil:
		fmt.Fprintln(stderr, "[ERROR]", err)
		return exitUsage
	}
	if o.Version {
		fmt.Fprintln(stdout, description, ": version", version)
		return exitOK
	}

	var ids []string
	if o.CVE != "" {
		ids = append(ids, o.CVE)
	}
	ids = append(ids, fs.Args()...)
	switch {
	case o.Generate && len(ids) != 0:
		fmt.Fprintln(stderr, "[ERROR] CVE parameter not allowed with --generate")
		return exitUsage
	case !o.Generate && len(ids) == 0:
		fmt.Fprintln(stderr, "[ERROR] CVE parameter not specified")
		return exitUsage
	}

	var cfg Config
	if o.ConfigFile != "" {
		var err error
		cfg, err = loadConfig(o.ConfigFile)
		if err != nil {
			fmt.Fprintln(stderr, "[ERROR]", err)
			return exitFailure
		}
	}
	o.apply(fs, &cfg)

	lvl, err := parseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(stderr, "[ERROR]", err)
		return exitUsage
	}
	slog.SetDefault(slog.New(log.WrapHandler(
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: lvl}))))
	ctx = log.With(ctx, "invocation", uuid.New())

	if cfg.Trace != "" {
		shutdown, err := setupTracing(cfg.Trace)
		if err != nil {
			fmt.Fprintln(stderr, "[ERROR]", err)
			return exitFailure
		}
		defer func() {
			ctx, done := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer done()
			if err := shutdown(ctx); err != nil {
				slog.WarnContext(ctx, "unable to flush traces", "reason", err)
			}
		}()
	}
	if cfg.MetricsFile != "" {
		defer func() {
			if err := writeMetrics(cfg.MetricsFile); err != nil {
				slog.WarnContext(ctx, "unable to write metrics", "reason", err)
			}
		}()
	}

	ctx, span := otel.Tracer(`github.com/quay/cvssadjust/cmd/cvssadjust`).Start(ctx, "run")
	defer span.End()

	s, err := scoring.Lookup(cfg.Engine)
	if err != nil {
		fmt.Fprintln(stderr, "[ERROR]", err)
		return exitFailure
	}
	eng, err := vector.New(&cfg.Vector, s)
	if err != nil {
		fmt.Fprintln(stderr, "[ERROR]", err)
		return exitFailure
	}
	if o.Generate {
		return generate(ctx, eng, o.Modify, stdout, stderr)
	}
	res, err := resolver.New(&cfg.Resolver, &http.Client{})
	if err != nil {
		fmt.Fprintln(stderr, "[ERROR]", err)
		return exitFailure
	}
	slog.DebugContext(ctx, "configured",
		"engine", cfg.Engine,
		"version", eng.Version(),
		"ids", len(ids))

	rp := reporter{
		out:     stdout,
		errOut:  stderr,
		eng:     eng,
		opts:    &o,
		base:    o.Base || (!o.Exploit && !o.Impact),
		verbose: o.Verbose,
	}
	if len(ids) == 1 {
		rec, err := res.Resolve(ctx, ids[0])
		return rp.Report(ctx, ids[0], rec, err)
	}
	rp.batch = true
	for _, r := range res.ResolveAll(ctx, ids) {
		code = max(code, rp.Report(ctx, r.ID, r.Record, r.Err))
	}
	return code
}

// Reporter prints the requested values for resolved records.
type reporter struct {
	out, errOut io.Writer
	eng         *vector.Engine
	opts        *options
	base        bool
	verbose     bool
	// Batch prefixes every line with the identifier being reported.
	batch   bool
	current string
}

// Report prints the values for one record and returns the exit code for it.
func (r *reporter) Report(ctx context.Context, id string, rec cvssadjust.Record, err error) int {
	ctx = log.With(ctx, "id", id)
	r.current = id
	switch {
	case err == nil:
	case errors.Is(err, cvssadjust.ErrInvalid):
		fmt.Fprintln(r.errOut, "[ERROR] Invalid CVE identifier", id)
		return exitUsage
	case cvssadjust.NotFound(err):
		fmt.Fprintln(r.errOut, "[ERROR] No CVE record for", id)
		return exitNoRecord
	default:
		fmt.Fprintln(r.errOut, "[ERROR]", err)
		return exitFailure
	}

	res, err := r.eng.Check(ctx, rec)
	if err != nil {
		fmt.Fprintln(r.errOut, "[ERROR]", err)
		return exitFailure
	}
	if !res.Match {
		slog.InfoContext(ctx, "score discrepancy", "reason", res.Err(rec.ID))
		fmt.Fprintf(r.errOut, "[ERROR] Discrepancy between base score calculations for %s. CVE Record is %s, Calculated is %s\n",
			rec.ID, formatScore(res.Recorded), formatScore(res.Computed))
		return exitDiscrepancy
	}

	switch {
	case r.opts.Modify != "":
		sc, err := r.eng.ModifyAndScore(ctx, rec.VectorString, r.opts.Modify)
		if err != nil {
			fmt.Fprintln(r.errOut, "[ERROR]", err)
			return exitFailure
		}
		if r.verbose {
			r.info("Original Base Score", formatScore(rec.BaseScore))
		}
		r.info("Modified Environment Score", formatScore(sc))
		if r.opts.Severity {
			r.info("Severity", scoring.Rating(sc))
		}
	case r.base:
		r.info("Base Score", formatScore(res.Computed))
		if r.opts.Severity {
			r.info("Severity", scoring.Rating(res.Computed))
		}
	}
	if r.opts.Exploit {
		r.info("Exploit Score", formatScore(rec.ExploitabilityScore))
	}
	if r.opts.Impact {
		r.info("Impact Score", formatScore(rec.ImpactScore))
	}
	if r.opts.String {
		r.info("CVSS vector", rec.VectorString)
	}
	return exitOK
}

func (r *reporter) info(label, value string) {
	var b strings.Builder
	if r.verbose {
		b.WriteString("[INFO] ")
	}
	if r.batch {
		b.WriteString(r.current)
		b.WriteByte(' ')
	}
	if r.verbose {
		b.WriteString(label)
		b.WriteByte(' ')
	}
	b.WriteString(value)
	fmt.Fprintln(r.out, b.String())
}

// Generate prints every base vector with its score, and the score of the
// modified vector if an overlay is given, followed by the total.
func generate(ctx context.Context, eng *vector.Engine, overlay string, stdout, stderr io.Writer) int {
	w := bufio.NewWriter(stdout)
	defer w.Flush()
	n := 0
	for g, err := range eng.Generate(ctx, overlay) {
		if err != nil {
			fmt.Fprintln(stderr, "[ERROR]", err)
			return exitFailure
		}
		if overlay != "" {
			fmt.Fprintln(w, g.Vector, formatScore(g.Score), formatScore(g.ModifiedScore))
		} else {
			fmt.Fprintln(w, g.Vector, formatScore(g.Score))
		}
		n++
	}
	fmt.Fprintln(w, "Total number of strings", n)
	slog.DebugContext(ctx, "generated vectors", "count", n)
	return exitOK
}

// FormatScore prints scores with at least one decimal place.
func formatScore(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
