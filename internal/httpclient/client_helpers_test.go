package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestClientWithConfig returns a client closed when the test ends.
func newTestClientWithConfig(t *testing.T, cfg *Config) *Client {
	t.Helper()
	c := New(cfg)
	t.Cleanup(c.Close)
	return c
}

// newTestServer serves handler as a stand-in object store for the test.
func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}
