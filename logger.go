package modserver

// Logger defines the interface for loader and runtime logging.
// It uses variadic key-value pairs so any structured logger can back it:
//
//	logger.Info("Module initialized", "module", "auth", "duration", d)
//
// *slog.Logger satisfies this interface directly.
type Logger interface {
	// Info logs normal load-cycle events such as a completed snapshot.
	Info(msg string, args ...any)

	// Error logs failures, including fatal module and resource errors.
	Error(msg string, args ...any)

	// Warn logs unusual conditions such as middleware soft timeouts.
	Warn(msg string, args ...any)

	// Debug logs per-unit detail: classification, collected types, step timings.
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }
