// Package core provides the built-in module that declares the request
// extension point.
package core

import (
	"context"

	"github.com/GoCodeAlone/modserver"
	"github.com/GoCodeAlone/modserver/httpserver"
)

// ModuleID is the id the core module is registered under.
const ModuleID = "core"

// DefaultPoweredBy is the X-Powered-By value when none is configured.
const DefaultPoweredBy = "modserver"

// Module declares the request extension point and stamps responses with an
// X-Powered-By header. It is hidden from the dashboard.
type Module struct {
	*modserver.BaseModule
	poweredBy string
}

// Descriptor registers the core module with a Source.
var Descriptor = modserver.ModuleFunc(New)

// New creates the core module. The settings override may set "poweredBy";
// an empty string disables the header.
func New(id string, opts modserver.ModuleOptions) (modserver.Module, error) {
	m := &Module{
		BaseModule: modserver.NewBaseModule(id, opts),
		poweredBy:  DefaultPoweredBy,
	}
	if cfg, ok := opts.Config.(map[string]any); ok {
		if v, ok := cfg["poweredBy"].(string); ok {
			m.poweredBy = v
		}
	}

	m.HideFromDashboard()
	m.AddMiddlewareType(httpserver.RequestPoint, map[string]any{
		"description": "Runs before every request is routed to a resource",
	})
	if m.poweredBy != "" {
		m.AddMiddleware(httpserver.RequestPoint, "powered-by", m.stampPoweredBy)
	}
	return m, nil
}

func (m *Module) stampPoweredBy(_ context.Context, args ...any) error {
	rc, ok := httpserver.FromArgs(args)
	if !ok {
		return nil
	}
	rc.Response.Header().Set("X-Powered-By", m.poweredBy)
	return nil
}
