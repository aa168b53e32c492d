package modserver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modserver/internal/testutil"
)

// fatalRecorder is a FatalHandler that records instead of exiting.
type fatalRecorder struct {
	mu     sync.Mutex
	errors []*FatalError
}

func (f *fatalRecorder) handle(err *FatalError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, err)
}

func (f *fatalRecorder) all() []*FatalError {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FatalError(nil), f.errors...)
}

// testModule is a configurable full module.
type testModule struct {
	*BaseModule
	loadErr   error
	loadCalls atomic.Int32
}

func (m *testModule) Load(context.Context) error {
	m.loadCalls.Add(1)
	return m.loadErr
}

// moduleFactory returns a descriptor whose modules are configured by setup.
func moduleFactory(setup func(m *testModule)) ModuleFunc {
	return func(id string, opts ModuleOptions) (Module, error) {
		m := &testModule{BaseModule: NewBaseModule(id, opts)}
		if setup != nil {
			setup(m)
		}
		return m, nil
	}
}

// testResource records its options.
type testResource struct {
	*BaseResource
	loaded bool
}

func (r *testResource) Load(context.Context) error {
	r.loaded = true
	return nil
}

func testResourceType(id string) ResourceType {
	return NewResourceType(id, func(name string, opts ResourceOptions) (Resource, error) {
		return &testResource{BaseResource: NewBaseResource(name, id, opts)}, nil
	})
}

func failingResourceType(id string, err error) ResourceType {
	return NewResourceType(id, func(string, ResourceOptions) (Resource, error) {
		return nil, err
	})
}

var errBoom = errors.New("boom")

func noop(context.Context, ...any) error { return nil }

type testEnv struct {
	dir    *testutil.AppDir
	source *StaticSource
	fatals *fatalRecorder
	logger *testutil.RecordingLogger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		dir:    testutil.NewAppDir(t),
		source: NewStaticSource(),
		fatals: &fatalRecorder{},
		logger: &testutil.RecordingLogger{},
	}
}

func (e *testEnv) runtime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	base := []Option{
		WithSource(e.source),
		WithLogger(e.logger),
		WithFatalHandler(e.fatals.handle),
		WithConcurrency(4),
	}
	rt, err := NewRuntime(e.dir.Path, append(base, opts...)...)
	require.NoError(t, err)
	return rt
}

func (e *testEnv) load(t *testing.T, opts ...Option) (*Snapshot, error) {
	t.Helper()
	return e.runtime(t, opts...).loader.Load(context.Background())
}
