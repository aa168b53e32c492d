package httpserver

import (
	"net/http"
	"sync"

	"github.com/GoCodeAlone/modserver"
)

// RequestPoint is the extension point run for every non-admin request.
const RequestPoint = "request"

// Context is the single argument passed to request middleware.
type Context struct {
	Request  *http.Request
	Response *GuardedResponseWriter
	Server   modserver.Server
	Snapshot *modserver.Snapshot

	mu     sync.Mutex
	values map[string]any
}

// NewContext wraps w in a GuardedResponseWriter and returns the request
// context for one request.
func NewContext(r *http.Request, w http.ResponseWriter, server modserver.Server, snap *modserver.Snapshot) *Context {
	return &Context{
		Request:  r,
		Response: newGuardedResponseWriter(w),
		Server:   server,
		Snapshot: snap,
	}
}

// Set stores a value for later middleware and the resource handler.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Get returns a value stored with Set.
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// Done reports whether the response has already been started.
func (c *Context) Done() bool {
	return c.Response.Started()
}

// FromArgs extracts the request Context from middleware arguments.
func FromArgs(args []any) (*Context, bool) {
	if len(args) == 0 {
		return nil, false
	}
	c, ok := args[0].(*Context)
	return c, ok
}
