package modserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoCodeAlone/modserver/feeders"
)

// ResourcesDir is the directory under the base path holding one
// subdirectory per resource.
const ResourcesDir = "resources"

// resourceConfigFiles are tried in order; the first one present is used.
var resourceConfigFiles = []string{"config.json", "config.yaml", "config.yml", "config.toml"}

// loadResources instantiates one resource per subdirectory of the resources
// area, then appends resources contributed directly by modules.
func (l *Loader) loadResources(ctx context.Context, types map[string]ResourceType, modules map[string]Module) ([]Resource, error) {
	dirs, err := l.resourceDirs()
	if err != nil {
		return nil, err
	}

	resources := make([]Resource, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for i, name := range dirs {
		g.Go(func() error {
			r, err := l.loadResource(gctx, name, types)
			if err != nil {
				return err
			}
			resources[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, id := range sortedKeys(modules) {
		provider, ok := modules[id].(ResourceProvider)
		if !ok {
			continue
		}
		for _, r := range provider.Resources() {
			if r != nil {
				resources = append(resources, r)
			}
		}
	}
	return resources, nil
}

// resourceDirs lists the resource directory names. A missing resources
// area yields none.
func (l *Loader) resourceDirs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.basePath, ResourcesDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", ResourcesDir, err)
	}

	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}

func (l *Loader) loadResource(ctx context.Context, name string, types map[string]ResourceType) (Resource, error) {
	dir := filepath.Join(l.basePath, ResourcesDir, name)

	config, err := readResourceConfig(dir, name)
	if err != nil {
		return nil, err
	}

	typeID, err := config.Type()
	if err != nil {
		return nil, fmt.Errorf("%w: resource %s: %w", ErrResourceConfig, name, err)
	}
	rt, ok := types[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: cannot find type %q for resource %s", ErrResourceConfig, typeID, name)
	}

	start := time.Now()
	var r Resource
	err = supervise(func() error {
		var err error
		r, err = rt.NewResource(name, ResourceOptions{
			Config:     config,
			Server:     l.server,
			DB:         l.server.DB(),
			ConfigPath: dir,
		})
		if err != nil {
			return err
		}
		if r == nil {
			return ErrNilResource
		}
		if loadable, ok := r.(Loadable); ok {
			return loadable.Load(ctx)
		}
		return nil
	})
	if err != nil && interrupted(ctx, err) {
		l.logger.Debug("Resource initialization interrupted", "resource", name, "type", typeID, "error", err)
		return nil, err
	}
	if err != nil {
		fatal := &FatalError{Kind: FatalResourceInit, Unit: typeID, Err: err}
		l.logger.Error("Resource failed to initialize", "resource", name, "type", typeID, "error", err)
		l.fatal(fatal)
		return nil, fatal
	}

	l.logger.Debug("Initialized resource", "resource", name, "type", typeID, "duration", time.Since(start))
	l.events.emit(ctx, EventTypeResourceInitialized, map[string]any{"resource": name, "type": typeID})
	return r, nil
}

// readResourceConfig decodes the first config file found in dir.
func readResourceConfig(dir, name string) (ResourceConfig, error) {
	for _, file := range resourceConfigFiles {
		path := filepath.Join(dir, file)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%w: resource %s: %w", ErrResourceConfig, name, err)
		}

		feeder, err := feeders.ForFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: resource %s: %w", ErrResourceConfig, name, err)
		}
		var config ResourceConfig
		if err := feeder.Feed(&config); err != nil {
			return nil, fmt.Errorf("%w: resource %s: %w", ErrResourceConfig, name, err)
		}
		if config == nil {
			config = ResourceConfig{}
		}
		return config, nil
	}
	return nil, fmt.Errorf("%w: expected file: %s", ErrResourceConfig, filepath.ToSlash(filepath.Join(ResourcesDir, name, resourceConfigFiles[0])))
}
