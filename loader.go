package modserver

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Loader runs one full load cycle: discovery, settings, module
// initialization, resource instantiation and middleware aggregation.
type Loader struct {
	basePath     string
	settingsFile string
	source       Source
	server       Server
	logger       Logger
	events       *EventBus
	metrics      *Metrics
	fatal        FatalHandler
	concurrency  int
	now          func() time.Time
}

// Load assembles a new Snapshot. Any failure aborts the cycle; a partial
// snapshot is never returned.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	snap, err := l.load(ctx)
	elapsed := time.Since(start)
	l.metrics.observeLoad(elapsed, snap, err)

	if err != nil {
		l.logger.Error("Config load failed", "basePath", l.basePath, "duration", elapsed, "error", err)
		l.events.emit(ctx, EventTypeConfigFailed, map[string]any{"basePath": l.basePath, "error": err.Error()})
		return nil, err
	}

	l.logger.Info("Config loaded",
		"basePath", l.basePath,
		"modules", len(snap.Modules),
		"resources", len(snap.Resources),
		"middlewareTypes", len(snap.MiddlewareTypes),
		"duration", elapsed,
	)
	l.events.emit(ctx, EventTypeConfigLoaded, map[string]any{
		"basePath":  l.basePath,
		"modules":   len(snap.Modules),
		"resources": len(snap.Resources),
		"duration":  elapsed.String(),
	})
	return snap, nil
}

func (l *Loader) load(ctx context.Context) (*Snapshot, error) {
	var (
		descriptors map[string]Descriptor
		settings    *Settings
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		descriptors, err = l.source.Discover(gctx, l.basePath)
		if err != nil {
			return newLoadError("discover", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		settings, err = ReadSettings(l.basePath, l.settingsFile)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	modules, err := l.initModules(ctx, descriptors, settings)
	if err != nil {
		return nil, newLoadError("modules", err)
	}

	resourceTypes := collectResourceTypes(modules, l.logger)
	middlewareTypes := collectMiddlewareTypes(modules)

	var (
		resources []Resource
		stacks    map[string]MiddlewareStack
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resources, err = l.loadResources(gctx, resourceTypes, modules)
		if err != nil {
			return newLoadError("resources", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		stacks, err = aggregateMiddleware(modules, middlewareTypes, l.logger)
		if err != nil {
			return newLoadError("middleware", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Snapshot{
		Modules:         modules,
		Resources:       resources,
		ResourceTypes:   resourceTypes,
		MiddlewareTypes: middlewareTypes,
		Middleware:      stacks,
		Settings:        settings,
		LoadedAt:        l.now(),
	}, nil
}
