// Package httputil holds helpers for dealing with HTTP record sources.
package httputil

import (
	"fmt"
	"io"
	"net/http"
	"slices"
)

// StatusError is returned by [CheckResponse] when a response has an
// unacceptable status code.
type StatusError struct {
	Code   int
	Status string
	// Body holds the start of the response body, if it could be read.
	Body []byte
}

// Error implements error.
func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("unexpected status code: %s", e.Status)
	}
	return fmt.Sprintf("unexpected status code: %s (body starts: %q)", e.Status, e.Body)
}

// Temporary reports whether the server indicated the request may succeed if
// retried.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// CheckResponse takes a http.Response and a variadic of ints representing
// acceptable http status codes. The error returned will be a *StatusError
// including some content from the server's response.
func CheckResponse(resp *http.Response, acceptableCodes ...int) error {
	if slices.Contains(acceptableCodes, resp.StatusCode) {
		return nil
	}
	err := &StatusError{
		Code:   resp.StatusCode,
		Status: resp.Status,
	}
	if b, rerr := io.ReadAll(io.LimitReader(resp.Body, 256)); rerr == nil {
		err.Body = b
	}
	return err
}
