package modserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// initModules classifies and instantiates every descriptor with bounded
// concurrency and returns the module map keyed by descriptor id.
func (l *Loader) initModules(ctx context.Context, descriptors map[string]Descriptor, settings *Settings) (map[string]Module, error) {
	var (
		mu      sync.Mutex
		modules = make(map[string]Module, len(descriptors))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for id, d := range descriptors {
		g.Go(func() error {
			m, err := l.initDescriptor(gctx, id, d, settings)
			if err != nil {
				return err
			}
			mu.Lock()
			modules[id] = m
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for id, m := range modules {
		m.SetID(id)
	}
	return modules, nil
}

func (l *Loader) initDescriptor(ctx context.Context, id string, d Descriptor, settings *Settings) (Module, error) {
	kind := Classify(d)
	l.logger.Debug("Classified module descriptor", "module", id, "kind", kind.String())

	switch kind {
	case KindModule:
		return l.initModule(ctx, id, d.(ModuleFactory), settings.ModuleConfig(id))
	case KindResourceType:
		m := NewBaseModule(id, ModuleOptions{Server: l.server})
		m.HideFromDashboard()
		m.AddResourceType(d.(ResourceType))
		return m, nil
	default:
		m := NewBaseModule(id, ModuleOptions{Server: l.server})
		m.HideFromDashboard()
		return m, nil
	}
}

// initModule constructs and loads one full module inside a fault boundary.
// Failures are reported through the fatal handler.
func (l *Loader) initModule(ctx context.Context, id string, factory ModuleFactory, config any) (Module, error) {
	start := time.Now()
	var m Module
	err := supervise(func() error {
		var err error
		m, err = factory.NewModule(id, ModuleOptions{Config: config, Server: l.server})
		if err != nil {
			return err
		}
		if m == nil {
			return ErrNilModule
		}
		if loadable, ok := m.(Loadable); ok {
			return loadable.Load(ctx)
		}
		return nil
	})
	if err != nil && interrupted(ctx, err) {
		l.logger.Debug("Module initialization interrupted", "module", id, "error", err)
		return nil, err
	}
	if err != nil {
		fatal := &FatalError{Kind: FatalModuleInit, Unit: id, Err: err}
		l.logger.Error("Module failed to initialize", "module", id, "error", err)
		l.events.emit(ctx, EventTypeModuleFailed, map[string]any{"module": id, "error": err.Error()})
		l.fatal(fatal)
		return nil, fatal
	}

	l.logger.Debug("Initialized module", "module", id, "type", fmt.Sprintf("%T", m), "duration", time.Since(start))
	l.events.emit(ctx, EventTypeModuleInitialized, map[string]any{"module": id})
	return m, nil
}
