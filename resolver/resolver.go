// Package resolver fetches the NVD JSON record for a vulnerability identifier
// and extracts the CVSS data from it.
//
// Records are looked up as "<root><ID>.json" (plus a compression extension,
// if configured). The v3 data is preferred; v2 data is only consulted when
// the record has no usable v3 data.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/quay/claircore/toolkit/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/quay/cvssadjust"
	"github.com/quay/cvssadjust/internal/cache"
	"github.com/quay/cvssadjust/internal/httputil"
)

// DefaultRoot is the default location of the per-identifier JSON records.
const DefaultRoot = `https://olbat.github.io/nvdcve/`

// DefaultTimeout is used when the Config doesn't specify a timeout.
const DefaultTimeout = 30 * time.Second

// MaxRecordSize bounds how much of a record is read, before and after
// decompression.
const maxRecordSize = 16 << 20

// Config is the configuration for a [Resolver].
type Config struct {
	// Root is the URL prefix that record names are resolved against. It must
	// end in a slash.
	Root string `json:"root" yaml:"root"`
	// Timeout bounds a single fetch attempt.
	Timeout cvssadjust.Duration `json:"timeout" yaml:"timeout"`
	// Retries is the number of additional attempts made after a transient
	// failure. The default is to not retry.
	Retries int `json:"retries" yaml:"retries"`
	// Compression names the encoding records are stored with: one of "gzip",
	// "zstd", "xz", or "none".
	Compression string `json:"compression" yaml:"compression"`
	// Concurrency bounds the number of in-flight requests in
	// [Resolver.ResolveAll]. Defaults to GOMAXPROCS.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// RateLimit is the maximum number of requests per second. Zero means
	// unlimited.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`
}

// Resolver turns vulnerability identifiers into [cvssadjust.Record]s.
//
// A Resolver is safe for concurrent use. Records are not cached: every call
// to [Resolver.Resolve] fetches the record anew.
type Resolver struct {
	c           *http.Client
	root        *url.URL
	timeout     time.Duration
	retries     int
	concurrency int
	limiter     *rate.Limiter
	codec       codec
}

// New returns a Resolver using the provided configuration and client.
//
// A nil Config is the same as the zero Config. A nil client means a new
// [http.Client] is used.
func New(cfg *Config, c *http.Client) (*Resolver, error) {
	const op = `resolver.New`
	var cf Config
	if cfg != nil {
		cf = *cfg
	}
	if c == nil {
		c = &http.Client{}
	}
	r := Resolver{
		c:           c,
		timeout:     cf.Timeout.Std(),
		retries:     cf.Retries,
		concurrency: cf.Concurrency,
		limiter:     rate.NewLimiter(rate.Inf, 1),
	}
	if r.timeout == 0 {
		r.timeout = DefaultTimeout
	}
	if r.concurrency <= 0 {
		r.concurrency = runtime.GOMAXPROCS(0)
	}
	switch {
	case cf.Retries < 0:
		return nil, invalid(op, "negative retries: %d", cf.Retries)
	case cf.RateLimit < 0:
		return nil, invalid(op, "negative rate limit: %v", cf.RateLimit)
	case cf.RateLimit > 0:
		r.limiter = rate.NewLimiter(rate.Limit(cf.RateLimit), 1)
	}

	root := cf.Root
	if root == "" {
		root = DefaultRoot
	}
	if !strings.HasSuffix(root, "/") {
		return nil, invalid(op, "root URL %q must end in a slash", root)
	}
	u, err := url.Parse(root)
	if err != nil {
		return nil, &cvssadjust.Error{
			Op:      op,
			Kind:    cvssadjust.ErrInvalid,
			Message: "bad root URL",
			Inner:   err,
		}
	}
	r.root = u

	r.codec, err = codecFor(cf.Compression)
	if err != nil {
		return nil, &cvssadjust.Error{
			Op:    op,
			Kind:  cvssadjust.ErrInvalid,
			Inner: err,
		}
	}
	return &r, nil
}

var idPattern = regexp.MustCompile(`^(?i:cve)-[0-9]{4}-[0-9]{4,}$`)

// NormalizeID checks that "id" looks like a CVE identifier and returns it in
// canonical (upper-case) form.
func NormalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if !idPattern.MatchString(id) {
		return "", &cvssadjust.Error{
			Op:      `resolver.NormalizeID`,
			Kind:    cvssadjust.ErrInvalid,
			Message: fmt.Sprintf("malformed identifier %q", id),
		}
	}
	return strings.ToUpper(id), nil
}

// URL reports the location the record for "id" is fetched from. The
// identifier is not validated.
func (r *Resolver) URL(id string) string {
	return r.root.JoinPath(id + ".json" + r.codec.Ext).String()
}

// Resolve fetches and decodes the record for "id".
//
// Any returned error means no record is available: callers can use
// [cvssadjust.NotFound] to distinguish a missing or unusable record from a
// bad identifier.
func (r *Resolver) Resolve(ctx context.Context, id string) (cvssadjust.Record, error) {
	rec, err := r.resolve(ctx, id, nil)
	if err != nil {
		return cvssadjust.Record{}, err
	}
	return *rec, nil
}

// Resolve returns the record for "id". If "batch" is not nil, requests for an
// identifier already live in it share that record, and callers must not
// modify it.
func (r *Resolver) resolve(ctx context.Context, id string, batch *cache.Live[string, cvssadjust.Record]) (rec *cvssadjust.Record, err error) {
	ctx, span := tracer.Start(ctx, "Resolve")
	defer span.End()
	start := time.Now()
	defer func() {
		outcome := outcomeOf(err)
		schema := cvssadjust.SchemaUnknown
		if rec != nil {
			schema = rec.Schema
		}
		resolveCounter.WithLabelValues(outcome, schema.String()).Inc()
		resolveDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolve failed")
		}
	}()

	id, err = NormalizeID(id)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("id", id))
	ctx = log.With(ctx, "id", id)
	if batch == nil {
		return r.lookup(ctx, id)
	}
	return batch.Get(ctx, id, r.lookup)
}

// Lookup fetches and decodes the record for a normalized identifier.
func (r *Resolver) lookup(ctx context.Context, id string) (*cvssadjust.Record, error) {
	b, err := r.fetch(ctx, id)
	if err != nil {
		slog.InfoContext(ctx, "no record", "reason", err)
		return nil, err
	}
	rec, err := r.Decode(ctx, id, b)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Fetch retrieves the raw record, retrying transient failures as configured.
func (r *Resolver) fetch(ctx context.Context, id string) ([]byte, error) {
	u := r.URL(id)
	var b []byte
	op := func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(&cvssadjust.Error{
				Op:    `resolver.fetch`,
				Kind:  cvssadjust.ErrFetch,
				ID:    id,
				Inner: err,
			})
		}
		var err error
		b, err = r.fetchOnce(ctx, id, u)
		if err != nil && !errors.Is(err, cvssadjust.ErrTransient) {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(r.retries)),
		ctx)
	err := backoff.RetryNotify(op, bo, func(err error, d time.Duration) {
		slog.DebugContext(ctx, "retrying fetch", "reason", err, "delay", d)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Resolver) fetchOnce(ctx context.Context, id, u string) ([]byte, error) {
	const op = `resolver.fetch`
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &cvssadjust.Error{
			Op:    op,
			Kind:  cvssadjust.ErrInternal,
			ID:    id,
			Inner: err,
		}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := r.c.Do(req)
	if err != nil {
		fetchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, &cvssadjust.Error{
			Op:      op,
			Kind:    cvssadjust.ErrFetch,
			ID:      id,
			Message: "request failed",
			Inner:   &cvssadjust.Error{Kind: cvssadjust.ErrTransient, Inner: err},
		}
	}
	defer res.Body.Close()
	fetchDuration.WithLabelValues(strconv.Itoa(res.StatusCode)).Observe(time.Since(start).Seconds())
	slog.DebugContext(ctx, "fetched record", "url", u, "status", res.StatusCode)

	if err := httputil.CheckResponse(res, http.StatusOK); err != nil {
		var inner error = err
		var se *httputil.StatusError
		if errors.As(err, &se) && se.Temporary() {
			inner = &cvssadjust.Error{Kind: cvssadjust.ErrTransient, Inner: err}
		}
		return nil, &cvssadjust.Error{
			Op:    op,
			Kind:  cvssadjust.ErrFetch,
			ID:    id,
			Inner: inner,
		}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxRecordSize))
	if err != nil {
		return nil, &cvssadjust.Error{
			Op:      op,
			Kind:    cvssadjust.ErrFetch,
			ID:      id,
			Message: "unable to read record",
			Inner:   &cvssadjust.Error{Kind: cvssadjust.ErrTransient, Inner: err},
		}
	}
	b, err := r.codec.decode(raw)
	if err != nil {
		return nil, &cvssadjust.Error{
			Op:      op,
			Kind:    cvssadjust.ErrMalformedRecord,
			ID:      id,
			Message: "unable to decompress record",
			Inner:   err,
		}
	}
	return b, nil
}

func invalid(op, format string, args ...any) error {
	return &cvssadjust.Error{
		Op:      op,
		Kind:    cvssadjust.ErrInvalid,
		Message: fmt.Sprintf(format, args...),
	}
}
