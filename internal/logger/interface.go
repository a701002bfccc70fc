// Package logger provides structured logging for the discovery core.
package logger

// Interface defines the logging operations every component depends on.
// Components receive an Interface through their constructor; nothing reaches
// for a package-level logger.
type Interface interface {
	// Debug logs a debug message.
	Debug(msg string, fields ...any)
	// Info logs an info message.
	Info(msg string, fields ...any)
	// Warn logs a warning message.
	Warn(msg string, fields ...any)
	// Error logs an error message.
	Error(msg string, fields ...any)
	// Fatal logs a fatal message and exits.
	Fatal(msg string, fields ...any)
	// Sync flushes any buffered log entries.
	Sync() error
}
