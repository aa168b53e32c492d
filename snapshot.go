package modserver

import (
	"maps"
	"slices"
	"time"
)

// Snapshot is the fully assembled runtime configuration produced by one load
// cycle. It is immutable once returned; readers share it without locking.
type Snapshot struct {
	// Modules maps module ids to live instances.
	Modules map[string]Module

	// Resources lists directory-backed resources in directory order,
	// followed by module-contributed resources in module id order.
	Resources []Resource

	// ResourceTypes maps type ids to definitions.
	ResourceTypes map[string]ResourceType

	// MiddlewareTypes maps extension point ids to their declarations.
	MiddlewareTypes map[string]MiddlewareType

	// Middleware maps every extension point to its ordered stack.
	Middleware map[string]MiddlewareStack

	// Settings is the app settings the cycle was built from.
	Settings *Settings

	// LoadedAt is when the cycle completed.
	LoadedAt time.Time
}

// Stack returns the middleware stack for point.
func (s *Snapshot) Stack(point string) (MiddlewareStack, bool) {
	stack, ok := s.Middleware[point]
	return stack, ok
}

// Resource returns the resource with the given name.
func (s *Snapshot) Resource(name string) (Resource, bool) {
	for _, r := range s.Resources {
		if r.Name() == name {
			return r, true
		}
	}
	return nil, false
}

// ModuleIDs returns the module ids in ascending order.
func (s *Snapshot) ModuleIDs() []string {
	return sortedKeys(s.Modules)
}

// DashboardModules returns the ids of modules listed in the dashboard, in
// ascending order.
func (s *Snapshot) DashboardModules() []string {
	ids := make([]string, 0, len(s.Modules))
	for _, id := range s.ModuleIDs() {
		if da, ok := s.Modules[id].(DashboardAware); ok && !da.Dashboard() {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
