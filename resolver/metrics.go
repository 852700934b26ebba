package resolver

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/quay/cvssadjust"
)

var (
	resolveCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvssadjust",
			Subsystem: "resolver",
			Name:      "resolve_total",
			Help:      "Total number of identifiers resolved, by outcome and schema.",
		},
		[]string{"outcome", "schema"},
	)
	resolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cvssadjust",
			Subsystem: "resolver",
			Name:      "resolve_duration_seconds",
			Help:      "The duration of resolving an identifier, including retries.",
		},
		[]string{"outcome"},
	)
	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cvssadjust",
			Subsystem: "resolver",
			Name:      "fetch_duration_seconds",
			Help:      "The duration of individual record requests.",
		},
		[]string{"code"},
	)
)

// Metrics singletons.
var (
	tracer trace.Tracer
	meter  metric.Meter
)

// FallbackCounter counts records that had no usable v3 data.
var fallbackCounter metric.Int64Counter

func init() {
	const pkgname = `github.com/quay/cvssadjust/resolver`
	tracer = otel.Tracer(pkgname)
	meter = otel.Meter(pkgname)

	var err error
	fallbackCounter, err = meter.Int64Counter("fallback.count",
		metric.WithDescription("total number of records consulted for v2 data"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		panic(err)
	}
}

// OutcomeOf maps an error to a metrics label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, cvssadjust.ErrInvalid):
		return "invalid"
	case errors.Is(err, cvssadjust.ErrMalformedRecord):
		return "malformed"
	case errors.Is(err, cvssadjust.ErrFetch):
		return "fetch_error"
	default:
		return "error"
	}
}
