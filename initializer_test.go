package modserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitModules_FullModule(t *testing.T) {
	env := newTestEnv(t)
	env.dir.Settings(map[string]any{"auth": map[string]any{"secret": "s3cret"}})

	var built *testModule
	env.source.MustRegister("auth", moduleFactory(func(m *testModule) { built = m }))

	snap, err := env.load(t)
	require.NoError(t, err)

	require.Contains(t, snap.Modules, "auth")
	assert.Same(t, built, snap.Modules["auth"])
	assert.Equal(t, "auth", built.ID())
	assert.Equal(t, map[string]any{"secret": "s3cret"}, built.Config())
	assert.EqualValues(t, 1, built.loadCalls.Load())
	assert.NotNil(t, built.Server())
	assert.Empty(t, env.fatals.all())
}

func TestInitModules_LoadFailureIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.source.MustRegister("auth", moduleFactory(func(m *testModule) { m.loadErr = errBoom }))

	snap, err := env.load(t)
	require.Error(t, err)
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrModuleInit)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "error loading module auth: boom")

	fatals := env.fatals.all()
	require.Len(t, fatals, 1)
	assert.Equal(t, FatalModuleInit, fatals[0].Kind)
	assert.Equal(t, "auth", fatals[0].Unit)
}

func TestInitModules_ConstructorFailures(t *testing.T) {
	tests := []struct {
		name    string
		factory ModuleFunc
		target  error
	}{
		{
			name:    "error",
			factory: func(string, ModuleOptions) (Module, error) { return nil, errBoom },
			target:  errBoom,
		},
		{
			name:    "nil module",
			factory: func(string, ModuleOptions) (Module, error) { return nil, nil },
			target:  ErrNilModule,
		},
		{
			name:    "panic",
			factory: func(string, ModuleOptions) (Module, error) { panic("constructor exploded") },
			target:  ErrModuleInit,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.source.MustRegister("broken", tt.factory)

			_, err := env.load(t)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)

			var fatal *FatalError
			require.True(t, errors.As(err, &fatal))
			assert.Equal(t, "broken", fatal.Unit)
			assert.Len(t, env.fatals.all(), 1)
		})
	}
}

func TestInitModules_PanicMessageIsKept(t *testing.T) {
	env := newTestEnv(t)
	env.source.MustRegister("broken", ModuleFunc(func(string, ModuleOptions) (Module, error) {
		panic("constructor exploded")
	}))

	_, err := env.load(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constructor exploded")
}

func TestInitModules_ResourceTypeDescriptor(t *testing.T) {
	env := newTestEnv(t)
	env.source.MustRegister("collection", testResourceType("collection"))

	snap, err := env.load(t)
	require.NoError(t, err)

	m := snap.Modules["collection"]
	require.NotNil(t, m)
	assert.Equal(t, "collection", m.ID())
	assert.False(t, m.(DashboardAware).Dashboard())
	assert.Contains(t, snap.ResourceTypes, "collection")
	assert.Empty(t, snap.DashboardModules())
}

func TestInitModules_GenericDescriptor(t *testing.T) {
	env := newTestEnv(t)
	env.source.MustRegister("helper", struct{ Value int }{Value: 1})

	snap, err := env.load(t)
	require.NoError(t, err)

	m := snap.Modules["helper"]
	require.NotNil(t, m)
	assert.Equal(t, "helper", m.ID())
	assert.Empty(t, m.(ResourceTypeProvider).ResourceTypes())
	assert.Empty(t, m.(MiddlewareProvider).Middleware())
	assert.False(t, m.(DashboardAware).Dashboard())
}

func TestInitModules_IDsAreStamped(t *testing.T) {
	env := newTestEnv(t)
	env.source.MustRegister("renamed", ModuleFunc(func(_ string, opts ModuleOptions) (Module, error) {
		m := NewBaseModule("", opts)
		m.AddMiddlewareType("request", nil)
		m.AddMiddleware("request", "first", noop)
		return m, nil
	}))

	snap, err := env.load(t)
	require.NoError(t, err)

	assert.Equal(t, "renamed", snap.Modules["renamed"].ID())
	stack, ok := snap.Stack("request")
	require.True(t, ok)
	require.Len(t, stack, 1)
	assert.Equal(t, "renamed", stack[0].Module)
}

func TestInitModules_ServerDefaultsToRuntime(t *testing.T) {
	env := newTestEnv(t)
	var got Server
	env.source.MustRegister("auth", ModuleFunc(func(id string, opts ModuleOptions) (Module, error) {
		got = opts.Server
		return NewBaseModule(id, opts), nil
	}))

	rt := env.runtime(t, WithEnv("production"))
	_, err := rt.GetConfig(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "production", got.Env())
	assert.Same(t, rt, got)
}

// patientModule blocks in Load until ctx is done.
type patientModule struct {
	*BaseModule
}

func (m *patientModule) Load(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return nil
	}
}

func TestInitModules_InterruptedSiblingIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.source.MustRegister("auth", moduleFactory(func(m *testModule) { m.loadErr = errBoom }))
	env.source.MustRegister("cache", ModuleFunc(func(id string, opts ModuleOptions) (Module, error) {
		return &patientModule{BaseModule: NewBaseModule(id, opts)}, nil
	}))

	_, err := env.load(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)

	fatals := env.fatals.all()
	require.Len(t, fatals, 1)
	assert.Equal(t, "auth", fatals[0].Unit)
	assert.True(t, env.logger.Has("DEBUG", "Module initialization interrupted"))
}
