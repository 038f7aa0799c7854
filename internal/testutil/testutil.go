// Package testutil provides shared helpers for tests that exercise the
// tsweb debug routes.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
)

// LoopbackAddr is a client address tsweb.AllowDebugAccess accepts.
const LoopbackAddr = "127.0.0.1:12345"

// LoopbackRequest creates a request that appears to come from localhost so
// it passes the debug access check.
func LoopbackRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = LoopbackAddr
	return req
}

// Serve runs req through h and returns the recorded response.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// Get is Serve for a loopback GET with no body.
func Get(h http.Handler, path string) *httptest.ResponseRecorder {
	return Serve(h, LoopbackRequest(http.MethodGet, path, nil))
}
