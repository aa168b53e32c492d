package modserver

import (
	"database/sql"
	"fmt"
	"reflect"
)

// Resource is a live, configured instance. Directory-backed resources are
// named after their directory under the resources area.
type Resource interface {
	Name() string
	Type() string
}

// ResourceType is a constructible definition used to instantiate resources.
// A descriptor that implements ResourceType is classified as a resource-type
// contribution.
type ResourceType interface {
	TypeID() string
	NewResource(name string, opts ResourceOptions) (Resource, error)
}

// ResourceOptions are passed to ResourceType.NewResource.
type ResourceOptions struct {
	// Config is the resource's declarative config, forwarded verbatim.
	Config ResourceConfig

	// Server is the owning server.
	Server Server

	// DB is the server's database handle. It may be nil.
	DB *sql.DB

	// ConfigPath is the resource's own directory.
	ConfigPath string
}

// ResourceConfig is the decoded per-resource config file.
type ResourceConfig map[string]any

// Type returns the declared resource type. It fails when the field is
// missing or not a string.
func (c ResourceConfig) Type() (string, error) {
	v, ok := c["type"]
	if !ok {
		return "", fmt.Errorf("%w: missing \"type\"", ErrResourceConfig)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: \"type\" must be a string, got %T", ErrResourceConfig, v)
	}
	return s, nil
}

// String returns a string field, or "" when absent or of another type.
func (c ResourceConfig) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// ResourceConstructor builds a resource for a resource type created with NewResourceType.
type ResourceConstructor func(name string, opts ResourceOptions) (Resource, error)

type funcResourceType struct {
	id string
	fn ResourceConstructor
}

// NewResourceType returns a ResourceType backed by a constructor function.
func NewResourceType(id string, fn ResourceConstructor) ResourceType {
	return &funcResourceType{id: id, fn: fn}
}

func (t *funcResourceType) TypeID() string { return t.id }

func (t *funcResourceType) NewResource(name string, opts ResourceOptions) (Resource, error) {
	return t.fn(name, opts)
}

// ResourceTypeID returns rt.TypeID(), falling back to the Go type name.
func ResourceTypeID(rt ResourceType) string {
	if id := rt.TypeID(); id != "" {
		return id
	}
	t := reflect.TypeOf(rt)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// BaseResource is embedded by resource implementations.
type BaseResource struct {
	name       string
	typeID     string
	config     ResourceConfig
	configPath string
	server     Server
	db         *sql.DB
}

// NewBaseResource returns a BaseResource populated from the instantiation options.
func NewBaseResource(name, typeID string, opts ResourceOptions) *BaseResource {
	return &BaseResource{
		name:       name,
		typeID:     typeID,
		config:     opts.Config,
		configPath: opts.ConfigPath,
		server:     opts.Server,
		db:         opts.DB,
	}
}

func (r *BaseResource) Name() string           { return r.name }
func (r *BaseResource) Type() string           { return r.typeID }
func (r *BaseResource) Config() ResourceConfig { return r.config }
func (r *BaseResource) ConfigPath() string     { return r.configPath }
func (r *BaseResource) Server() Server         { return r.server }
func (r *BaseResource) DB() *sql.DB            { return r.db }
