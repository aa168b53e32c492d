package modserver

import (
	"fmt"
)

// collectResourceTypes merges the resource types contributed by modules.
// Modules are visited in ascending id order; on duplicate type ids the
// later module wins.
func collectResourceTypes(modules map[string]Module, logger Logger) map[string]ResourceType {
	types := make(map[string]ResourceType)
	for _, id := range sortedKeys(modules) {
		provider, ok := modules[id].(ResourceTypeProvider)
		if !ok {
			continue
		}
		for _, rt := range provider.ResourceTypes() {
			if rt == nil {
				continue
			}
			typeID := ResourceTypeID(rt)
			if _, exists := types[typeID]; exists {
				logger.Warn("Resource type redefined", "type", typeID, "module", id)
			}
			types[typeID] = rt
		}
	}
	return types
}

// collectMiddlewareTypes merges the extension points declared by modules in
// ascending module id order.
func collectMiddlewareTypes(modules map[string]Module) map[string]MiddlewareType {
	types := make(map[string]MiddlewareType)
	for _, id := range sortedKeys(modules) {
		provider, ok := modules[id].(MiddlewareTypeProvider)
		if !ok {
			continue
		}
		for typeID, mt := range provider.MiddlewareTypes() {
			if mt.ID == "" {
				mt.ID = typeID
			}
			types[typeID] = mt
		}
	}
	return types
}

// aggregateMiddleware builds one stack per extension point. Modules are
// visited in ascending id order and their target points in ascending order;
// entries keep contribution order. Every declared point gets a stack, empty
// or not.
func aggregateMiddleware(modules map[string]Module, types map[string]MiddlewareType, logger Logger) (map[string]MiddlewareStack, error) {
	stacks := make(map[string]MiddlewareStack, len(types))
	for typeID := range types {
		stacks[typeID] = MiddlewareStack{}
	}

	for _, id := range sortedKeys(modules) {
		provider, ok := modules[id].(MiddlewareProvider)
		if !ok {
			continue
		}
		contributed := provider.Middleware()
		for _, point := range sortedKeys(contributed) {
			entries := contributed[point]
			if _, exists := stacks[point]; !exists {
				if allLenient(entries) {
					logger.Debug("Dropping middleware for unknown extension point", "module", id, "point", point)
					continue
				}
				return nil, fmt.Errorf("%w: module %s is trying to add '%s' middleware, but no such middleware type exists", ErrAggregation, id, point)
			}
			for _, entry := range entries {
				if entry.Module == "" {
					entry.Module = id
				}
				stacks[point] = append(stacks[point], entry)
			}
		}
	}
	return stacks, nil
}

func allLenient(entries []MiddlewareEntry) bool {
	for _, e := range entries {
		if !e.Lenient {
			return false
		}
	}
	return true
}
