package modserver

import (
	"errors"
	"fmt"
)

// Load cycle errors
var (
	// Settings errors
	ErrSettingsParse = errors.New("error reading app settings")

	// Discovery errors
	ErrDiscovery           = errors.New("module discovery failed")
	ErrDuplicateDescriptor = errors.New("module descriptor already registered")
	ErrNilDescriptor       = errors.New("module descriptor is nil")

	// Initialization errors
	ErrModuleInit     = errors.New("module initialization failed")
	ErrResourceConfig = errors.New("invalid resource config")
	ErrResourceInit   = errors.New("resource initialization failed")
	ErrNilModule      = errors.New("module factory returned nil module")
	ErrNilResource    = errors.New("resource type returned nil resource")

	// Aggregation errors
	ErrAggregation = errors.New("middleware aggregation failed")

	// Execution errors
	ErrMissingStack         = errors.New("could not find middleware stack")
	ErrMiddlewareExecution  = errors.New("middleware failed")
	ErrMiddlewarePanic      = errors.New("middleware panicked")
	ErrNilMiddlewareHandler = errors.New("middleware handler is nil")

	// Runtime construction errors
	ErrLoggerNotSet   = errors.New("logger not set")
	ErrBasePathNotSet = errors.New("base path not set")
	ErrSourceNotSet   = errors.New("module source not set")
)

// LoadError is returned by a load cycle that failed. Stage names the pipeline
// step that produced the error.
type LoadError struct {
	Stage string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("error loading config (%s): %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func newLoadError(stage string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{Stage: stage, Err: err}
}

// FatalKind classifies errors that are reported through the fatal channel.
type FatalKind string

const (
	FatalModuleInit   FatalKind = "module-init"
	FatalResourceInit FatalKind = "resource-init"
)

// FatalError describes an unrecoverable failure of a single module or
// resource. Unit is the module id or the resource type id.
type FatalError struct {
	Kind FatalKind
	Unit string
	Err  error
}

func (e *FatalError) Error() string {
	switch e.Kind {
	case FatalModuleInit:
		return fmt.Sprintf("error loading module %s: %v", e.Unit, e.Err)
	case FatalResourceInit:
		return fmt.Sprintf("%v - when initializing: %s", e.Err, e.Unit)
	default:
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Unit, e.Err)
	}
}

func (e *FatalError) Unwrap() []error {
	switch e.Kind {
	case FatalModuleInit:
		return []error{ErrModuleInit, e.Err}
	case FatalResourceInit:
		return []error{ErrResourceInit, e.Err}
	default:
		return []error{e.Err}
	}
}

// MiddlewareExecutionError reports the pipeline step that failed.
type MiddlewareExecutionError struct {
	Point  string
	Module string
	Name   string
	Err    error
}

func (e *MiddlewareExecutionError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: '%s' from the '%s' module on '%s': %v", ErrMiddlewareExecution, e.Name, e.Module, e.Point, e.Err)
	}
	return fmt.Sprintf("%s: the '%s' module on '%s': %v", ErrMiddlewareExecution, e.Module, e.Point, e.Err)
}

func (e *MiddlewareExecutionError) Unwrap() []error {
	return []error{ErrMiddlewareExecution, e.Err}
}
