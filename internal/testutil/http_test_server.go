package testutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
)

// Upstream is a loopback HTTP server standing in for a chat completion
// provider. It records every request it receives.
type Upstream struct {
	URL string

	srv       *http.Server
	transport *http.Transport

	mu       sync.Mutex
	requests []*http.Request
}

// NewUpstream serves handler on 127.0.0.1 until the test ends. The test is
// skipped when the IPv4 loopback cannot be bound.
func NewUpstream(t *testing.T, handler http.Handler) *Upstream {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("tcp4 loopback unavailable: %v", err)
	}
	u := &Upstream{URL: "http://" + l.Addr().String(), transport: &http.Transport{}}
	u.srv = &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.requests = append(u.requests, r.Clone(context.Background()))
		u.mu.Unlock()
		handler.ServeHTTP(w, r)
	})}
	go func() {
		if err := u.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("upstream serve: %v", err)
		}
	}()
	t.Cleanup(u.Close)
	return u
}

// Client returns a client bound to this server's transport.
func (u *Upstream) Client() *http.Client {
	return &http.Client{Transport: u.transport}
}

// Requests returns the number of requests served so far.
func (u *Upstream) Requests() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.requests)
}

// Last returns the most recent request, or nil. Its body has been consumed.
func (u *Upstream) Last() *http.Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.requests) == 0 {
		return nil
	}
	return u.requests[len(u.requests)-1]
}

// Close stops the server. It is safe to call more than once.
func (u *Upstream) Close() {
	_ = u.srv.Shutdown(context.Background())
	u.transport.CloseIdleConnections()
}
