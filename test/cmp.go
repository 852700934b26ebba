package test

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// CmpOptions is a bundle of [cmp.Option] for comparing results.
//
// Errors compare equal when either one [errors.Is] the other, so an expected
// error can be written as just an [cvssadjust.ErrorKind].
var CmpOptions = cmp.Options{
	cmpopts.EquateErrors(),
	cmpopts.EquateEmpty(),
}
