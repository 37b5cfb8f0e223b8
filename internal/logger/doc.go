// Package logger provides a simple, thread-safe logging facility.
//
// The logger supports four levels: Debug, Info, Warn, and Error.
// Each log entry includes a timestamp, level, optional scope, and message.
// The scope is usually a worker name ("worker-2") or a connection ID.
//
// # Basic Usage
//
// Using the default logger:
//
//	logger.Info("", "Listening on %s", addr)
//	logger.Debug("worker-0", "got a job; executing")
//	logger.Error("worker-1", "job panicked: %v", err)
//
// Creating a custom logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("worker-0", "Debug message")
//
// # Log Levels
//
// Messages below the configured level are filtered:
//   - LevelDebug: all messages
//   - LevelInfo: Info, Warn, Error
//   - LevelWarn: Warn, Error
//   - LevelError: Error only
//
// ParseLevel converts the textual names used in config files and flags.
//
// # Thread Safety
//
// All logging operations are protected by a mutex and safe for concurrent use.
package logger
