package cvssadjust

import (
	"errors"
	"strings"
)

// Error is the cvssadjust error domain type.
//
// Errors coming from cvssadjust components should be able to be inspected as
// ([errors.As]) an *Error at some point in the error chain.
//
// Components should create an Error at the system boundary (e.g. when making
// a request or decoding a payload) and intermediate layers should not wrap in
// another Error except to add additional [ErrorKind] information. That is to
// say, use [fmt.Errorf] with a "%w" verb in preference to creating a
// containing Error.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Message string
	Op      string
	// ID is the vulnerability identifier being worked on, if any.
	ID string
}

// Assert this implements all the cool features.
var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	switch e.Kind {
	case ErrFetch,
		ErrMalformedRecord,
		ErrMalformedVector,
		ErrScoreDiscrepancy,
		ErrInternal,
		ErrInvalid,
		ErrTransient:
		b.WriteString(string(e.Kind))
	default:
		b.WriteString("???")
	}
	b.WriteString("]: ")
	if e.ID != "" {
		b.WriteString(e.ID)
		if e.Message != "" || e.Inner != nil {
			b.WriteString(": ")
		}
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Op == "" && e.Message == "" && e.ID == "" {
		b.Reset()
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is].
//
// It compares the error kind. Callers should compare against a declared
// [ErrorKind] over a specific error.
func (e *Error) Is(kind error) bool {
	return errors.Is(e.Kind, kind)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind represents classes of errors to be checked against.
//
// If an error is unsure which kind to use, ErrInternal should be used.
type ErrorKind string

// Defined error kinds.
var (
	ErrFetch            = ErrorKind("fetch")             // record source unreachable or refused the request
	ErrMalformedRecord  = ErrorKind("malformed record")  // payload undecodable or without usable CVSS data
	ErrMalformedVector  = ErrorKind("malformed vector")  // vector or overlay string failed structural parsing
	ErrScoreDiscrepancy = ErrorKind("score discrepancy") // recomputed score disagrees with the record
	ErrInternal         = ErrorKind("internal")          // non-specific internal error
	ErrInvalid          = ErrorKind("invalid")           // invalid request or configuration
	ErrTransient        = ErrorKind("transient")         // may succeed on retry
)

// Error implements error.
func (e ErrorKind) Error() string {
	return string(e)
}

// NotFound reports whether the error means "no usable CVSS data for this
// identifier": either the record could not be fetched or it could not be
// used.
func NotFound(err error) bool {
	return errors.Is(err, ErrFetch) || errors.Is(err, ErrMalformedRecord)
}
