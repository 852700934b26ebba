// Package cvssadjust holds the types shared by the record resolver and the
// vector engine: the resolved CVE record and the error domain.
package cvssadjust

import (
	"fmt"
	"strings"
)

// Schema is the CVSS schema version a [Record] was sourced from.
type Schema int

// Known schemas, in order of preference.
const (
	SchemaUnknown Schema = iota
	SchemaV3
	SchemaV2
)

// String implements [fmt.Stringer].
func (s Schema) String() string {
	switch s {
	case SchemaV3:
		return "v3"
	case SchemaV2:
		return "v2"
	default:
		return "unknown"
	}
}

// Record is the canonical CVSS data extracted from a vulnerability record.
//
// The zero value is the "absent" record.
type Record struct {
	ID                  string  `json:"id"`
	Schema              Schema  `json:"-"`
	BaseScore           float64 `json:"base_score"`
	VectorString        string  `json:"vector_string"`
	ImpactScore         float64 `json:"impact_score"`
	ExploitabilityScore float64 `json:"exploitability_score"`
}

// Absent reports whether the Record holds no CVSS data.
func (r *Record) Absent() bool {
	return r.Schema == SchemaUnknown && r.VectorString == ""
}

// String implements [fmt.Stringer].
func (r Record) String() string {
	if r.Absent() {
		return r.ID + "(absent)"
	}
	var b strings.Builder
	b.WriteString(r.ID)
	fmt.Fprintf(&b, "(%s %s base=%v impact=%v exploitability=%v)",
		r.Schema, r.VectorString, r.BaseScore, r.ImpactScore, r.ExploitabilityScore)
	return b.String()
}
