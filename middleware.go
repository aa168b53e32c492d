package modserver

import (
	"context"
	"time"
)

// MiddlewareType is an extension point exposed by a module.
type MiddlewareType struct {
	ID     string
	Config any
}

// MiddlewareFunc is a middleware handler. Returning completes the step; a
// non-nil error stops the walk. The args slice is shared by every step of one
// execution.
type MiddlewareFunc func(ctx context.Context, args ...any) error

// MiddlewareEntry is one handler contributed to an extension point.
type MiddlewareEntry struct {
	// Module is the id of the contributing module.
	Module string

	// Name is an optional human-readable name.
	Name string

	// Handler is invoked once per execution.
	Handler MiddlewareFunc

	// Timeout overrides the soft timeout budget when non-zero.
	Timeout time.Duration

	// Lenient permits targeting an extension point that does not exist.
	Lenient bool
}

// Label describes the entry for diagnostics.
func (e MiddlewareEntry) Label() string {
	if e.Name != "" {
		return "'" + e.Name + "' from the '" + e.Module + "' module"
	}
	return "the '" + e.Module + "' module"
}

// MiddlewareStack is the ordered list of entries for one extension point.
type MiddlewareStack []MiddlewareEntry
