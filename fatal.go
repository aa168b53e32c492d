package modserver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
)

// FatalHandler receives unrecoverable module and resource failures. The
// default handler logs the error and terminates the process; tests and
// hardened servers may install one that returns, in which case the load
// cycle is still aborted with the same error.
type FatalHandler func(err *FatalError)

// ExitOnFatal returns the default FatalHandler.
func ExitOnFatal(logger Logger) FatalHandler {
	return func(err *FatalError) {
		logger.Error("Fatal load error, exiting", "kind", string(err.Kind), "unit", err.Unit, "error", err)
		os.Exit(1)
	}
}

// panicError is produced when a supervised unit panics.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v\n%s", p.value, p.stack)
}

// supervise runs fn as an isolated unit of work: a returned error and a
// panic are both captured and returned.
func supervise(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("%w\n%s", e, debug.Stack())
				return
			}
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return fn()
}

// interrupted reports whether err only reflects ctx being done, as happens
// to healthy units when a sibling fails and the shared context is cancelled.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}
