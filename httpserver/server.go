// Package httpserver serves a modserver Runtime over HTTP. Every request
// runs the "request" middleware stack of the current snapshot and is then
// routed to the resource named by the first path segment.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoCodeAlone/modserver"
)

// AdminPrefix is the path prefix of the administrative endpoints.
const AdminPrefix = "/__admin"

// AdminKeyHeader carries the administrative key when one is configured.
const AdminKeyHeader = "Modserver-Admin-Key"

// Config holds HTTP server settings.
type Config struct {
	Addr              string        `yaml:"addr" json:"addr" toml:"addr" env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout" json:"readHeaderTimeout" toml:"readHeaderTimeout" env:"READ_HEADER_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idleTimeout" json:"idleTimeout" toml:"idleTimeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout" toml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`

	// AdminKey, when set, must be sent in AdminKeyHeader to use the admin endpoints.
	AdminKey string `yaml:"adminKey" json:"adminKey" toml:"adminKey" env:"ADMIN_KEY"`
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		Addr:              ":2403",
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
}

// Server is the HTTP front of a Runtime.
type Server struct {
	runtime  *modserver.Runtime
	config   Config
	logger   modserver.Logger
	gatherer prometheus.Gatherer
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer sets the registry exposed on /metrics. Defaults to the
// default Prometheus registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a Server for rt.
func New(rt *modserver.Runtime, cfg Config, opts ...Option) *Server {
	s := &Server{
		runtime:  rt,
		config:   cfg,
		logger:   rt.Logger(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route(AdminPrefix, func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/invalidate", s.handleInvalidate)
		r.Get("/modules", s.handleModules)
		r.Get("/resources", s.handleResources)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.HandleFunc("/*", s.serveRequest)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "address", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Stopping HTTP server", "timeout", s.config.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down HTTP server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// serveRequest runs the request stack and routes to a resource.
func (s *Server) serveRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := s.runtime.GetConfig(ctx)
	if err != nil {
		s.logger.Error("Error loading config", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Error loading config")
		return
	}

	rc := NewContext(r, w, s.runtime, snap)
	gw := rc.Response
	defer gw.Close()

	_, err = s.runtime.ExecuteSnapshot(ctx, snap, RequestPoint, []any{rc},
		modserver.OnTimeout(func(entry modserver.MiddlewareEntry) {
			s.respondTimeout(gw, entry)
		}),
	)
	switch {
	case err == nil, errors.Is(err, modserver.ErrMissingStack):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	default:
		s.logger.Error("Request middleware failed", "path", r.URL.Path, "error", err)
		if !gw.Started() {
			writeJSONError(gw, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if gw.Started() {
		return
	}

	s.route(gw, rc)
}

// route dispatches to the resource named by the first path segment.
func (s *Server) route(gw *GuardedResponseWriter, rc *Context) {
	path := strings.TrimPrefix(rc.Request.URL.Path, "/")
	name, _, _ := strings.Cut(path, "/")

	res, ok := rc.Snapshot.Resource(name)
	if !ok || name == "" {
		writeJSONError(gw, http.StatusNotFound, "Not Found")
		return
	}
	handler, ok := res.(http.Handler)
	if !ok {
		writeJSONError(gw, http.StatusNotFound, "Not Found")
		return
	}
	http.StripPrefix("/"+name, handler).ServeHTTP(gw, rc.Request)
}

func (s *Server) respondTimeout(gw *GuardedResponseWriter, entry modserver.MiddlewareEntry) {
	message := TimeoutMessage(entry)
	s.logger.Error(message)
	if s.runtime.Env() != modserver.EnvDevelopment {
		message = "Request timed out"
	}
	gw.Respond(http.StatusServiceUnavailable, "text/plain; charset=utf-8", []byte(message))
}

// TimeoutMessage describes the middleware that did not complete in time.
func TimeoutMessage(entry modserver.MiddlewareEntry) string {
	message := "The last middleware to run was"
	if entry.Name != "" {
		message = "'" + entry.Name + "'"
	}
	message += " from the '" + entry.Module + "' module."
	return "Request timed out. " + message + " Did you forget to call next() or end the response?"
}
