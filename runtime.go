package modserver

import (
	"context"
	"database/sql"
)

// Runtime ties a Loader, a SnapshotCache and an Executor together. It is the
// surface consumed by the HTTP server, and doubles as the Server handed to
// modules when none is injected.
type Runtime struct {
	basePath string
	env      string
	db       *sql.DB
	logger   Logger
	events   *EventBus
	metrics  *Metrics
	loader   *Loader
	cache    *SnapshotCache
	executor *Executor
}

// BasePath returns the app directory.
func (r *Runtime) BasePath() string { return r.basePath }

// Env implements Server.
func (r *Runtime) Env() string { return r.env }

// DB implements Server.
func (r *Runtime) DB() *sql.DB { return r.db }

// Logger implements Server.
func (r *Runtime) Logger() Logger { return r.logger }

// Events returns the event bus observers register with.
func (r *Runtime) Events() *EventBus { return r.events }

// Metrics returns the Prometheus collectors, or nil when disabled.
func (r *Runtime) Metrics() *Metrics { return r.metrics }

// Cache returns the snapshot cache.
func (r *Runtime) Cache() *SnapshotCache { return r.cache }

// GetConfig returns the current snapshot, loading it when the cache is
// empty or stale.
func (r *Runtime) GetConfig(ctx context.Context) (*Snapshot, error) {
	return r.cache.Get(ctx)
}

// InvalidateCache forces the next GetConfig to reload.
func (r *Runtime) InvalidateCache() {
	r.cache.Invalidate()
}

// Execute runs the middleware stack for point against the current snapshot.
func (r *Runtime) Execute(ctx context.Context, point string, args []any, opts ...ExecuteOption) ([]any, error) {
	snap, err := r.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	return r.executor.Execute(ctx, snap, point, args, opts...)
}

// ExecuteSnapshot runs the stack for point against a specific snapshot.
func (r *Runtime) ExecuteSnapshot(ctx context.Context, snap *Snapshot, point string, args []any, opts ...ExecuteOption) ([]any, error) {
	return r.executor.Execute(ctx, snap, point, args, opts...)
}
