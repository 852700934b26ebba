package test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// RoundTripFunc is an [http.RoundTripper] implemented by a function.
type RoundTripFunc func(req *http.Request) (*http.Response, error)

// RoundTrip implements [http.RoundTripper].
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// NewRoundTripper creates a http.RoundTripper with the provided RoundTripFunc.
// The RoundTripFunc should validate the incoming request is what's expected.
func NewRoundTripper(fn RoundTripFunc) http.RoundTripper {
	return fn
}

// RecordServer is an [httptest.Server] serving record files out of a
// directory, with the ability to inject failures.
type RecordServer struct {
	*httptest.Server

	dir string

	mu       sync.Mutex
	requests []string
	fail     map[string][]int
}

// NewRecordServer starts a RecordServer serving files from "dir". It is
// closed when the test finishes.
//
// A request for "/CVE-X.json" is answered with the contents of
// "dir/CVE-X.json", or a 404 if there's no such file.
func NewRecordServer(t testing.TB, dir string) *RecordServer {
	t.Helper()
	s := &RecordServer{
		dir:  dir,
		fail: make(map[string][]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Root reports the URL prefix records are served from.
func (s *RecordServer) Root() string {
	return s.URL + "/"
}

// FailWith arranges for the next requests for "name" to respond with the
// provided status codes, in order, before serving the file normally.
func (s *RecordServer) FailWith(name string, codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[name] = append(s.fail[name], codes...)
}

// Requests reports the names requested so far, in order.
func (s *RecordServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *RecordServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := path.Base(r.URL.Path)
	s.mu.Lock()
	s.requests = append(s.requests, name)
	var code int
	if q := s.fail[name]; len(q) != 0 {
		code, s.fail[name] = q[0], q[1:]
	}
	s.mu.Unlock()
	if code != 0 {
		http.Error(w, http.StatusText(code), code)
		return
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(b))
}
