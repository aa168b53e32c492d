package modserver

import (
	"context"
	"fmt"
	"time"
)

// DefaultMiddlewareTimeout is the soft budget of one middleware step.
const DefaultMiddlewareTimeout = 2 * time.Second

// ExecuteOption configures one Execute call.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	timeout   time.Duration
	onTimeout func(entry MiddlewareEntry)
}

// WithTimeout sets the per-step budget for entries that do not carry their own.
func WithTimeout(d time.Duration) ExecuteOption {
	return func(o *executeOptions) { o.timeout = d }
}

// OnTimeout registers a callback invoked at most once per step when the
// step exceeds its budget. The step keeps running.
func OnTimeout(fn func(entry MiddlewareEntry)) ExecuteOption {
	return func(o *executeOptions) { o.onTimeout = fn }
}

// Executor runs middleware stacks strictly in order.
type Executor struct {
	defaultTimeout time.Duration
	logger         Logger
	events         *EventBus
	metrics        *Metrics
}

// NewExecutor creates an Executor. A non-positive defaultTimeout selects
// DefaultMiddlewareTimeout.
func NewExecutor(defaultTimeout time.Duration, logger Logger) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultMiddlewareTimeout
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Executor{defaultTimeout: defaultTimeout, logger: logger}
}

// Execute runs the stack registered for point against args. Each step runs
// on its own goroutine and the next step starts only after it returns. When
// a step outlives its budget the timeout callback fires once and the wait
// continues. The first failing step stops the walk. On success the original
// args are returned.
//
// If ctx is cancelled while a step is running Execute returns ctx.Err(); the
// step itself is not interrupted and no further steps run.
func (e *Executor) Execute(ctx context.Context, snap *Snapshot, point string, args []any, opts ...ExecuteOption) ([]any, error) {
	o := executeOptions{timeout: e.defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	stack, ok := snap.Stack(point)
	if !ok {
		return nil, fmt.Errorf("%w '%s'", ErrMissingStack, point)
	}

	for _, entry := range stack {
		if err := e.step(ctx, point, entry, args, o); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func (e *Executor) step(ctx context.Context, point string, entry MiddlewareEntry, args []any, o executeOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.Handler == nil {
		return &MiddlewareExecutionError{Point: point, Module: entry.Module, Name: entry.Name, Err: ErrNilMiddlewareHandler}
	}

	budget := o.timeout
	if entry.Timeout > 0 {
		budget = entry.Timeout
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- runHandler(ctx, entry.Handler, args)
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	var err error
wait:
	for {
		select {
		case err = <-done:
			break wait
		case <-timer.C:
			e.timedOut(ctx, point, entry, budget, o)
		case <-ctx.Done():
			e.logger.Debug("Middleware wait cancelled", "point", point, "module", entry.Module, "name", entry.Name)
			return ctx.Err()
		}
	}
	e.metrics.observeStep(point, time.Since(start))

	if err != nil {
		e.metrics.stepFailed(point, entry.Module)
		e.logger.Debug("Middleware failed", "point", point, "module", entry.Module, "name", entry.Name, "error", err)
		return &MiddlewareExecutionError{Point: point, Module: entry.Module, Name: entry.Name, Err: err}
	}
	return nil
}

func (e *Executor) timedOut(ctx context.Context, point string, entry MiddlewareEntry, budget time.Duration, o executeOptions) {
	e.metrics.stepTimedOut(point, entry.Module)
	e.logger.Warn("Middleware exceeded its budget", "point", point, "module", entry.Module, "name", entry.Name, "budget", budget)
	e.events.emit(ctx, EventTypeMiddlewareTimeout, map[string]any{
		"point":  point,
		"module": entry.Module,
		"name":   entry.Name,
		"budget": budget.String(),
	})
	if o.onTimeout != nil {
		o.onTimeout(entry)
	}
}

// runHandler invokes h, converting a panic into an error.
func runHandler(ctx context.Context, h MiddlewareFunc, args []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrMiddlewarePanic, r)
		}
	}()
	return h(ctx, args...)
}
