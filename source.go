package modserver

import (
	"context"
	"fmt"
	"maps"
	"os"
	"sync"
)

// Source supplies the module descriptors for one load cycle.
type Source interface {
	Discover(ctx context.Context, basePath string) (map[string]Descriptor, error)
}

// StaticSource is a Source backed by descriptors registered in code.
type StaticSource struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewStaticSource creates an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{descriptors: make(map[string]Descriptor)}
}

// Register adds a descriptor under id.
func (s *StaticSource) Register(id string, d Descriptor) error {
	if d == nil {
		return fmt.Errorf("%w: %s", ErrNilDescriptor, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.descriptors[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateDescriptor, id)
	}
	s.descriptors[id] = d
	return nil
}

// MustRegister is like Register but panics on error.
func (s *StaticSource) MustRegister(id string, d Descriptor) {
	if err := s.Register(id, d); err != nil {
		panic(err)
	}
}

// Discover returns a copy of the registered descriptors. It fails when
// basePath is not an accessible directory.
func (s *StaticSource) Discover(ctx context.Context, basePath string) (map[string]Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDiscovery, basePath)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.descriptors), nil
}
