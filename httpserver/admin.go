package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/GoCodeAlone/modserver"
)

// ModuleInfo is one entry of the dashboard module listing.
type ModuleInfo struct {
	ID              string   `json:"id"`
	ResourceTypes   []string `json:"resourceTypes,omitempty"`
	MiddlewareTypes []string `json:"middlewareTypes,omitempty"`
}

// ResourceInfo is one entry of the resource listing.
type ResourceInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.AdminKey != "" {
			got := r.Header.Get(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.config.AdminKey)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "admin key required")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	s.runtime.InvalidateCache()
	s.logger.Info("Config cache invalidated by admin request", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": true})
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	snap, err := s.runtime.GetConfig(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ids := snap.DashboardModules()
	modules := make([]ModuleInfo, 0, len(ids))
	for _, id := range ids {
		info := ModuleInfo{ID: id}
		m := snap.Modules[id]
		if p, ok := m.(modserver.ResourceTypeProvider); ok {
			for _, rt := range p.ResourceTypes() {
				info.ResourceTypes = append(info.ResourceTypes, modserver.ResourceTypeID(rt))
			}
		}
		if p, ok := m.(modserver.MiddlewareTypeProvider); ok {
			for point := range p.MiddlewareTypes() {
				info.MiddlewareTypes = append(info.MiddlewareTypes, point)
			}
			sort.Strings(info.MiddlewareTypes)
		}
		modules = append(modules, info)
	}
	writeJSON(w, http.StatusOK, modules)
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	snap, err := s.runtime.GetConfig(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resources := make([]ResourceInfo, 0, len(snap.Resources))
	for _, res := range snap.Resources {
		resources = append(resources, ResourceInfo{Name: res.Name(), Type: res.Type()})
	}
	writeJSON(w, http.StatusOK, resources)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
