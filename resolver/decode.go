package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/quay/cvssadjust"
)

// State is a step of the record resolution process.
//
// Resolution starts in stateStart and always ends in either stateResolved or
// stateNotFound. The only backward-looking edge is the fallback from v3 to
// v2 data; nothing is ever retried.
type state uint8

const (
	stateStart state = iota
	stateTryV3
	stateTryV2
	stateResolved
	stateNotFound
)

func (s state) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateTryV3:
		return "try-v3"
	case stateTryV2:
		return "try-v2"
	case stateResolved:
		return "resolved"
	case stateNotFound:
		return "not-found"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

func (s state) terminal() bool {
	return s == stateResolved || s == stateNotFound
}

// Machine holds the data threaded through the states.
type machine struct {
	id  string
	raw []byte
	doc document
	rec cvssadjust.Record
	err error
}

func (m *machine) run(ctx context.Context) state {
	s := stateStart
	for !s.terminal() {
		next := m.step(ctx, s)
		slog.DebugContext(ctx, "resolution step", "from", s, "to", next)
		s = next
	}
	return s
}

// Step performs the work of state "s" and reports the next state.
//
// Start fails only if the payload isn't JSON. A section with the wrong shape
// is treated the same as a missing one.
func (m *machine) step(ctx context.Context, s state) state {
	const op = `resolver.Decode`
	switch s {
	case stateStart:
		if err := json.Unmarshal(m.raw, &m.doc); err != nil {
			// A valid payload that isn't an object just has no sections.
			var te *json.UnmarshalTypeError
			if !errors.As(err, &te) {
				m.err = &cvssadjust.Error{
					Op:      op,
					Kind:    cvssadjust.ErrMalformedRecord,
					ID:      m.id,
					Message: "unable to decode record",
					Inner:   err,
				}
				return stateNotFound
			}
			m.doc = document{}
		}
		if id := m.doc.id(); id != "" && id != m.id {
			slog.WarnContext(ctx, "record identifier mismatch", "record", id)
		}
		return stateTryV3
	case stateTryV3:
		if m.pick(m.doc.v3(), cvssadjust.SchemaV3) {
			return stateResolved
		}
		slog.DebugContext(ctx, "no usable v3 data, falling back to v2")
		fallbackCounter.Add(ctx, 1)
		return stateTryV2
	case stateTryV2:
		if m.pick(m.doc.v2(), cvssadjust.SchemaV2) {
			return stateResolved
		}
		m.err = &cvssadjust.Error{
			Op:      op,
			Kind:    cvssadjust.ErrMalformedRecord,
			ID:      m.id,
			Message: "no usable CVSS data",
		}
		return stateNotFound
	}
	panic(fmt.Sprintf("programmer error: step called in state %v", s))
}

// Pick takes the first complete candidate.
func (m *machine) pick(seq iter.Seq[candidate], schema cvssadjust.Schema) bool {
	for c := range seq {
		if !c.complete() {
			continue
		}
		m.rec = cvssadjust.Record{
			ID:                  m.id,
			Schema:              schema,
			BaseScore:           *c.Data.BaseScore,
			VectorString:        c.Data.VectorString,
			ImpactScore:         *c.ImpactScore,
			ExploitabilityScore: *c.ExploitabilityScore,
		}
		return true
	}
	return false
}

// Decode extracts the CVSS data for "id" from the JSON record "b".
//
// Both the NVD 1.1 feed item layout ("impact.baseMetricV3") and the NVD 2.0
// API layouts ("cve.metrics" or a "vulnerabilities" envelope) are understood.
// The returned error is non-nil if and only if the Record is absent.
func (r *Resolver) Decode(ctx context.Context, id string, b []byte) (cvssadjust.Record, error) {
	ctx, span := tracer.Start(ctx, "Decode")
	defer span.End()
	m := machine{id: id, raw: b}
	final := m.run(ctx)
	span.SetAttributes(attribute.Stringer("state", final))
	if final == stateNotFound {
		slog.InfoContext(ctx, "no usable record", "reason", m.err)
		return cvssadjust.Record{}, m.err
	}
	slog.DebugContext(ctx, "resolved record", "record", m.rec)
	return m.rec, nil
}

// Document is the union of the record layouts that are understood.
//
// Sections are kept raw and decoded on demand, so a section that doesn't
// have the expected shape only makes that section unusable.
type document struct {
	Impact          json.RawMessage `json:"impact"`
	CVE             json.RawMessage `json:"cve"`
	Vulnerabilities json.RawMessage `json:"vulnerabilities"`
}

type envelopeEntry struct {
	CVE json.RawMessage `json:"cve"`
}

type legacyImpact struct {
	V3 json.RawMessage `json:"baseMetricV3"`
	V2 json.RawMessage `json:"baseMetricV2"`
}

type legacyMetric struct {
	V3                  *cvssData `json:"cvssV3"`
	V2                  *cvssData `json:"cvssV2"`
	ExploitabilityScore *float64  `json:"exploitabilityScore"`
	ImpactScore         *float64  `json:"impactScore"`
}

type apiCVE struct {
	ID       string `json:"id"`
	Metadata *struct {
		ID string `json:"ID"`
	} `json:"CVE_data_meta"`
	Metrics *struct {
		V31 json.RawMessage `json:"cvssMetricV31"`
		V30 json.RawMessage `json:"cvssMetricV30"`
		V2  json.RawMessage `json:"cvssMetricV2"`
	} `json:"metrics"`
}

type apiMetric struct {
	Type                string    `json:"type"`
	Data                *cvssData `json:"cvssData"`
	ExploitabilityScore *float64  `json:"exploitabilityScore"`
	ImpactScore         *float64  `json:"impactScore"`
}

type cvssData struct {
	BaseScore    *float64 `json:"baseScore"`
	VectorString string   `json:"vectorString"`
}

// Candidate is a possible source of a Record.
type candidate struct {
	Data                *cvssData
	ExploitabilityScore *float64
	ImpactScore         *float64
}

func (c candidate) complete() bool {
	return c.Data != nil &&
		c.Data.BaseScore != nil &&
		c.Data.VectorString != "" &&
		c.ExploitabilityScore != nil &&
		c.ImpactScore != nil
}

// Section decodes "raw" into a new T. It reports false if the section is
// absent or has the wrong shape.
func section[T any](raw json.RawMessage) (*T, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, false
	}
	return v, true
}

func (d *document) legacy() *legacyImpact {
	l, _ := section[legacyImpact](d.Impact)
	return l
}

// Envelope returns the first CVE of a "vulnerabilities" envelope.
func (d *document) envelope() *apiCVE {
	vs, ok := section[[]envelopeEntry](d.Vulnerabilities)
	if !ok || len(*vs) == 0 {
		return nil
	}
	c, _ := section[apiCVE]((*vs)[0].CVE)
	return c
}

func (d *document) api() *apiCVE {
	if c, ok := section[apiCVE](d.CVE); ok && c.Metrics != nil {
		return c
	}
	return d.envelope()
}

func (d *document) id() string {
	if c, ok := section[apiCVE](d.CVE); ok {
		switch {
		case c.ID != "":
			return c.ID
		case c.Metadata != nil:
			return c.Metadata.ID
		}
	}
	if c := d.envelope(); c != nil {
		return c.ID
	}
	return ""
}

func (d *document) v3() iter.Seq[candidate] {
	return func(yield func(candidate) bool) {
		if l := d.legacy(); l != nil {
			if m, ok := section[legacyMetric](l.V3); ok {
				if !yield(candidate{m.V3, m.ExploitabilityScore, m.ImpactScore}) {
					return
				}
			}
		}
		if c := d.api(); c != nil && c.Metrics != nil {
			for m := range primaryFirst(metrics(c.Metrics.V31), metrics(c.Metrics.V30)) {
				if !yield(m) {
					return
				}
			}
		}
	}
}

func (d *document) v2() iter.Seq[candidate] {
	return func(yield func(candidate) bool) {
		if l := d.legacy(); l != nil {
			if m, ok := section[legacyMetric](l.V2); ok {
				if !yield(candidate{m.V2, m.ExploitabilityScore, m.ImpactScore}) {
					return
				}
			}
		}
		if c := d.api(); c != nil && c.Metrics != nil {
			for m := range primaryFirst(metrics(c.Metrics.V2)) {
				if !yield(m) {
					return
				}
			}
		}
	}
}

// Metrics decodes a metric list, dropping entries that don't have the
// expected shape.
func metrics(raw json.RawMessage) []apiMetric {
	ents, ok := section[[]json.RawMessage](raw)
	if !ok {
		return nil
	}
	out := make([]apiMetric, 0, len(*ents))
	for _, e := range *ents {
		if m, ok := section[apiMetric](e); ok {
			out = append(out, *m)
		}
	}
	return out
}

// PrimaryFirst yields the "Primary" metrics of all the lists, in order, then
// all the others.
func primaryFirst(lists ...[]apiMetric) iter.Seq[candidate] {
	return func(yield func(candidate) bool) {
		for _, primary := range []bool{true, false} {
			for _, l := range lists {
				for _, m := range l {
					if (m.Type == "Primary") != primary {
						continue
					}
					if !yield(candidate{m.Data, m.ExploitabilityScore, m.ImpactScore}) {
						return
					}
				}
			}
		}
	}
}
