package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// TestServer serves a directory over HTTP and counts the requests it sees.
type TestServer struct {
	*httptest.Server

	mu             sync.Mutex
	requests       []string
	authorizations []string
}

// NewTestServer starts a server for dir. It is closed when the test ends.
func NewTestServer(t testing.TB, dir string) *TestServer {
	t.Helper()
	ts := &TestServer{}
	files := http.FileServer(http.Dir(dir))
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.requests = append(ts.requests, r.URL.Path)
		ts.authorizations = append(ts.authorizations, r.Header.Get("Authorization"))
		ts.mu.Unlock()
		files.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

// Requests returns the paths requested so far.
func (ts *TestServer) Requests() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]string, len(ts.requests))
	copy(out, ts.requests)
	return out
}

// Authorizations returns the Authorization header of every request so far,
// empty for requests without one.
func (ts *TestServer) Authorizations() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]string, len(ts.authorizations))
	copy(out, ts.authorizations)
	return out
}

// RequestCount returns how many requests hit paths with the given suffix.
func (ts *TestServer) RequestCount(suffix string) int {
	n := 0
	for _, p := range ts.Requests() {
		if strings.HasSuffix(p, suffix) {
			n++
		}
	}
	return n
}

// Reset forgets the recorded requests.
func (ts *TestServer) Reset() {
	ts.mu.Lock()
	ts.requests = nil
	ts.authorizations = nil
	ts.mu.Unlock()
}
