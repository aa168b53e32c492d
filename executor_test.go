package modserver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotWith(point string, entries ...MiddlewareEntry) *Snapshot {
	return &Snapshot{Middleware: map[string]MiddlewareStack{point: entries}}
}

func TestExecutor_RunsInOrderAndReturnsArgs(t *testing.T) {
	var order []string
	record := func(name string) MiddlewareFunc {
		return func(_ context.Context, args ...any) error {
			order = append(order, name)
			args[0].(map[string]int)["count"]++
			return nil
		}
	}
	snap := snapshotWith("request",
		MiddlewareEntry{Module: "a", Name: "first", Handler: record("first")},
		MiddlewareEntry{Module: "b", Name: "second", Handler: record("second")},
	)

	state := map[string]int{}
	args := []any{state}
	out, err := NewExecutor(0, nil).Execute(context.Background(), snap, "request", args)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 2, state["count"])
	require.Len(t, out, 1)
	assert.Equal(t, args, out)
}

func TestExecutor_EmptyStack(t *testing.T) {
	snap := snapshotWith("request")
	out, err := NewExecutor(0, nil).Execute(context.Background(), snap, "request", []any{"x"})
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, out)
}

func TestExecutor_MissingStack(t *testing.T) {
	_, err := NewExecutor(0, nil).Execute(context.Background(), &Snapshot{}, "nope", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingStack)
	assert.Equal(t, "could not find middleware stack 'nope'", err.Error())
}

func TestExecutor_ErrorStopsTheWalk(t *testing.T) {
	var ranThird atomic.Bool
	snap := snapshotWith("request",
		MiddlewareEntry{Module: "a", Handler: noop},
		MiddlewareEntry{Module: "b", Name: "reject", Handler: func(context.Context, ...any) error { return errBoom }},
		MiddlewareEntry{Module: "c", Handler: func(context.Context, ...any) error {
			ranThird.Store(true)
			return nil
		}},
	)

	out, err := NewExecutor(0, nil).Execute(context.Background(), snap, "request", nil)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, ErrMiddlewareExecution)
	assert.False(t, ranThird.Load())

	var execErr *MiddlewareExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "request", execErr.Point)
	assert.Equal(t, "b", execErr.Module)
	assert.Equal(t, "reject", execErr.Name)
}

func TestExecutor_PanicIsRecovered(t *testing.T) {
	snap := snapshotWith("request", MiddlewareEntry{Module: "a", Handler: func(context.Context, ...any) error {
		panic("handler exploded")
	}})

	_, err := NewExecutor(0, nil).Execute(context.Background(), snap, "request", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMiddlewarePanic)
	assert.Contains(t, err.Error(), "handler exploded")
}

func TestExecutor_NilHandler(t *testing.T) {
	snap := snapshotWith("request", MiddlewareEntry{Module: "a"})
	_, err := NewExecutor(0, nil).Execute(context.Background(), snap, "request", nil)
	assert.ErrorIs(t, err, ErrNilMiddlewareHandler)
}

func TestExecutor_SoftTimeout(t *testing.T) {
	var ranNext atomic.Bool
	snap := snapshotWith("request",
		MiddlewareEntry{Module: "slow", Name: "sleepy", Handler: func(context.Context, ...any) error {
			time.Sleep(80 * time.Millisecond)
			return nil
		}},
		MiddlewareEntry{Module: "next", Handler: func(context.Context, ...any) error {
			ranNext.Store(true)
			return nil
		}},
	)

	var mu sync.Mutex
	var timedOut []MiddlewareEntry
	_, err := NewExecutor(0, nil).Execute(context.Background(), snap, "request", nil,
		WithTimeout(20*time.Millisecond),
		OnTimeout(func(e MiddlewareEntry) {
			mu.Lock()
			defer mu.Unlock()
			timedOut = append(timedOut, e)
		}),
	)
	require.NoError(t, err)
	assert.True(t, ranNext.Load())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, timedOut, 1)
	assert.Equal(t, "slow", timedOut[0].Module)
	assert.Equal(t, "sleepy", timedOut[0].Name)
}

func TestExecutor_EntryTimeoutOverridesDefault(t *testing.T) {
	snap := snapshotWith("request", MiddlewareEntry{
		Module:  "slow",
		Timeout: time.Second,
		Handler: func(context.Context, ...any) error {
			time.Sleep(40 * time.Millisecond)
			return nil
		},
	})

	var fired atomic.Int32
	_, err := NewExecutor(10*time.Millisecond, nil).Execute(context.Background(), snap, "request", nil,
		OnTimeout(func(MiddlewareEntry) { fired.Add(1) }),
	)
	require.NoError(t, err)
	assert.Zero(t, fired.Load())
}

func TestExecutor_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	var ranNext atomic.Bool
	snap := snapshotWith("request",
		MiddlewareEntry{Module: "stuck", Handler: func(context.Context, ...any) error {
			<-release
			return nil
		}},
		MiddlewareEntry{Module: "next", Handler: func(context.Context, ...any) error {
			ranNext.Store(true)
			return nil
		}},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewExecutor(time.Second, nil).Execute(ctx, snap, "request", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ranNext.Load())
}

func TestRuntime_ExecuteUsesCachedSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.source.MustRegister("core", ModuleFunc(func(id string, opts ModuleOptions) (Module, error) {
		m := NewBaseModule(id, opts)
		m.AddMiddlewareType("request", nil)
		m.AddMiddleware("request", "tag", func(_ context.Context, args ...any) error {
			tags := args[0].(*[]string)
			*tags = append(*tags, "tagged")
			return nil
		})
		return m, nil
	}))
	rt := env.runtime(t)

	var tags []string
	_, err := rt.Execute(context.Background(), "request", []any{&tags})
	require.NoError(t, err)
	assert.Equal(t, []string{"tagged"}, tags)

	_, err = rt.Execute(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrMissingStack)
}
