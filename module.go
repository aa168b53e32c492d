// Package modserver builds, caches and serves the runtime configuration of a
// pluggable application server.
//
// Independently authored modules contribute resource types, resources,
// middleware types (extension points) and middleware entries. A load cycle
// classifies and instantiates every module descriptor, instantiates the
// resources declared on disk, aggregates middleware per extension point and
// joins everything into an immutable Snapshot. The Runtime caches the
// snapshot for an environment-dependent TTL and executes middleware stacks
// against it at request time.
//
// Basic usage:
//
//	src := modserver.NewStaticSource()
//	src.MustRegister("auth", modserver.ModuleFunc(newAuthModule))
//	rt, err := modserver.NewRuntime("./app",
//		modserver.WithSource(src),
//		modserver.WithLogger(slog.Default()),
//	)
//	snap, err := rt.GetConfig(ctx)
package modserver

import (
	"context"
	"database/sql"
	"time"
)

// Server is the owning server context handed to every module and resource.
type Server interface {
	// Env returns the environment name, e.g. "development" or "production".
	Env() string

	// DB returns the database handle shared by resources. It may be nil.
	DB() *sql.DB

	// Logger returns the server logger.
	Logger() Logger
}

// Module is a live module instance produced by a full-module descriptor.
//
// Modules may additionally implement any of the capability interfaces below;
// the loader checks each one by type assertion and reads contributions once
// after construction.
type Module interface {
	// ID returns the module identifier. It equals the key the module was
	// discovered under once a load cycle has stamped it.
	ID() string

	// SetID stamps the module identifier.
	SetID(id string)
}

// Loadable is implemented by modules and resources that need an
// asynchronous load step after construction. Load is called at most once
// per instance. An error is fatal for the whole load cycle.
type Loadable interface {
	Load(ctx context.Context) error
}

// ResourceTypeProvider is implemented by modules that contribute resource types.
type ResourceTypeProvider interface {
	ResourceTypes() []ResourceType
}

// ResourceProvider is implemented by modules that contribute live resources
// directly, without an on-disk descriptor.
type ResourceProvider interface {
	Resources() []Resource
}

// MiddlewareTypeProvider is implemented by modules that expose extension points.
type MiddlewareTypeProvider interface {
	MiddlewareTypes() map[string]MiddlewareType
}

// MiddlewareProvider is implemented by modules that contribute middleware,
// grouped by target extension point in contribution order.
type MiddlewareProvider interface {
	Middleware() map[string][]MiddlewareEntry
}

// DashboardAware is implemented by modules that control whether they appear
// in the administrative dashboard listing. Modules that do not implement it
// are listed.
type DashboardAware interface {
	Dashboard() bool
}

// ModuleOptions are passed to a ModuleFactory.
type ModuleOptions struct {
	// Config is the module's override from the app settings "modules" field.
	Config any

	// Server is the owning server.
	Server Server
}

// ModuleFactory is a full-module descriptor.
type ModuleFactory interface {
	NewModule(id string, opts ModuleOptions) (Module, error)
}

// ModuleFunc adapts a plain constructor to a ModuleFactory.
type ModuleFunc func(id string, opts ModuleOptions) (Module, error)

// NewModule calls f.
func (f ModuleFunc) NewModule(id string, opts ModuleOptions) (Module, error) {
	return f(id, opts)
}

// BaseModule is embedded by module implementations. It stores the identity,
// configuration and server reference, and collects contributions through the
// Add* helpers.
type BaseModule struct {
	id              string
	config          any
	server          Server
	hidden          bool
	resourceTypes   []ResourceType
	resources       []Resource
	middlewareTypes map[string]MiddlewareType
	middleware      map[string][]MiddlewareEntry
}

// NewBaseModule returns a BaseModule for the given id and options.
func NewBaseModule(id string, opts ModuleOptions) *BaseModule {
	return &BaseModule{id: id, config: opts.Config, server: opts.Server}
}

// ID returns the module identifier.
func (m *BaseModule) ID() string { return m.id }

// SetID stamps the module identifier. Middleware entries already contributed
// without a module id are stamped too.
func (m *BaseModule) SetID(id string) {
	m.id = id
	for point, entries := range m.middleware {
		for i := range entries {
			if entries[i].Module == "" {
				entries[i].Module = id
			}
		}
		m.middleware[point] = entries
	}
}

// Config returns the module's configuration override, or nil.
func (m *BaseModule) Config() any { return m.config }

// Server returns the owning server.
func (m *BaseModule) Server() Server { return m.server }

// Dashboard reports whether the module is listed in the dashboard.
func (m *BaseModule) Dashboard() bool { return !m.hidden }

// HideFromDashboard excludes the module from the dashboard listing.
func (m *BaseModule) HideFromDashboard() { m.hidden = true }

// AddResourceType contributes a resource type.
func (m *BaseModule) AddResourceType(rt ResourceType) {
	m.resourceTypes = append(m.resourceTypes, rt)
}

// AddResource contributes a live resource.
func (m *BaseModule) AddResource(r Resource) {
	m.resources = append(m.resources, r)
}

// AddMiddlewareType declares an extension point. A nil config is stored as true.
func (m *BaseModule) AddMiddlewareType(id string, config any) {
	if m.middlewareTypes == nil {
		m.middlewareTypes = make(map[string]MiddlewareType)
	}
	if config == nil {
		config = true
	}
	m.middlewareTypes[id] = MiddlewareType{ID: id, Config: config}
}

// AddMiddleware contributes a handler to the extension point. The name may be
// empty.
func (m *BaseModule) AddMiddleware(point, name string, handler MiddlewareFunc, opts ...EntryOption) {
	if m.middleware == nil {
		m.middleware = make(map[string][]MiddlewareEntry)
	}
	entry := MiddlewareEntry{
		Module:  m.id,
		Name:    name,
		Handler: handler,
	}
	for _, opt := range opts {
		opt(&entry)
	}
	m.middleware[point] = append(m.middleware[point], entry)
}

// ResourceTypes implements ResourceTypeProvider.
func (m *BaseModule) ResourceTypes() []ResourceType { return m.resourceTypes }

// Resources implements ResourceProvider.
func (m *BaseModule) Resources() []Resource { return m.resources }

// MiddlewareTypes implements MiddlewareTypeProvider.
func (m *BaseModule) MiddlewareTypes() map[string]MiddlewareType { return m.middlewareTypes }

// Middleware implements MiddlewareProvider.
func (m *BaseModule) Middleware() map[string][]MiddlewareEntry { return m.middleware }

// EntryOption sets optional MiddlewareEntry metadata.
type EntryOption func(*MiddlewareEntry)

// WithEntryTimeout overrides the soft timeout budget for one entry.
func WithEntryTimeout(d time.Duration) EntryOption {
	return func(e *MiddlewareEntry) { e.Timeout = d }
}

// Lenient allows the entry to target an extension point that no module declares.
func Lenient() EntryOption {
	return func(e *MiddlewareEntry) { e.Lenient = true }
}
