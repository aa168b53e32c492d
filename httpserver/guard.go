package httpserver

import (
	"net/http"
	"sync"
)

// GuardedResponseWriter wraps an http.ResponseWriter so that exactly one
// party can answer a request. Once the response is closed, by a timeout
// reply or because the request finished, further writes are dropped and
// report http.ErrHandlerTimeout.
type GuardedResponseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	header  http.Header
	started bool
	closed  bool
	status  int
}

func newGuardedResponseWriter(w http.ResponseWriter) *GuardedResponseWriter {
	return &GuardedResponseWriter{w: w, header: w.Header().Clone()}
}

// Header returns a header map private to the guarded writer. It is copied
// to the underlying writer on the first write.
func (g *GuardedResponseWriter) Header() http.Header {
	return g.header
}

// WriteHeader implements http.ResponseWriter.
func (g *GuardedResponseWriter) WriteHeader(status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.started {
		return
	}
	g.writeHeaderLocked(status)
}

func (g *GuardedResponseWriter) writeHeaderLocked(status int) {
	dst := g.w.Header()
	for k, v := range g.header {
		dst[k] = v
	}
	g.started = true
	g.status = status
	g.w.WriteHeader(status)
}

// Write implements http.ResponseWriter.
func (g *GuardedResponseWriter) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, http.ErrHandlerTimeout
	}
	if !g.started {
		g.writeHeaderLocked(http.StatusOK)
	}
	return g.w.Write(p)
}

// Started reports whether a status line has been written.
func (g *GuardedResponseWriter) Started() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started
}

// Status returns the written status code, or 0.
func (g *GuardedResponseWriter) Status() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Respond writes a complete response and closes the writer, unless a
// response was already started. Headers set through Header are not sent.
// It reports whether it wrote.
func (g *GuardedResponseWriter) Respond(status int, contentType string, body []byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started || g.closed {
		return false
	}
	g.w.Header().Set("Content-Type", contentType)
	g.started = true
	g.status = status
	g.w.WriteHeader(status)
	_, _ = g.w.Write(body)
	g.closed = true
	return true
}

// Close drops every later write.
func (g *GuardedResponseWriter) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}
