package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GoCodeAlone/modserver"
	"github.com/GoCodeAlone/modserver/builtin/collection"
	"github.com/GoCodeAlone/modserver/builtin/core"
	"github.com/GoCodeAlone/modserver/database"
)

// Builtins returns a source holding the modules and resource types shipped
// with modserver.
func Builtins() *modserver.StaticSource {
	src := modserver.NewStaticSource()
	src.MustRegister(core.ModuleID, core.Descriptor)
	src.MustRegister(collection.TypeID, collection.Type)
	return src
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// app is everything a command needs to run against an app directory.
type app struct {
	runtime  *modserver.Runtime
	db       *sql.DB
	registry *prometheus.Registry
	logger   *slog.Logger
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func newApp(ctx context.Context, opts ServerOptions, logger *slog.Logger, extra ...modserver.Option) (*app, error) {
	db, err := database.Open(ctx, opts.Database)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	runtimeOpts := []modserver.Option{
		modserver.WithSource(Builtins()),
		modserver.WithLogger(logger),
		modserver.WithEnv(opts.Env),
		modserver.WithSettingsFile(opts.SettingsFile),
		modserver.WithDB(db),
		modserver.WithMetrics(registry),
		modserver.WithDefaultTimeout(opts.MiddlewareTimeout),
	}
	if opts.Concurrency > 0 {
		runtimeOpts = append(runtimeOpts, modserver.WithConcurrency(opts.Concurrency))
	}
	rt, err := modserver.NewRuntime(opts.Dir, append(runtimeOpts, extra...)...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &app{runtime: rt, db: db, registry: registry, logger: logger}, nil
}
