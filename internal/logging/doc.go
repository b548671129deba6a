// Package logging provides structured logging for the fdtrace tools.
//
// This package wraps a zap logger with package-level helpers so that the
// capture layer, the decoder, the correlator and the collector all log the
// same way.
//
// # Log Levels
//
//   - Debug: per-section and per-hook detail, raw byte dumps
//   - Info: files opened, sessions started, collectors discovered
//   - Warn: non-fatal surprises (unknown section kinds, evicted buffers,
//     unresolved gpu addresses)
//   - Error: failures that end a command
//
// # Configuration
//
// Logging is silent unless FDTRACE_LOG_LEVEL is set or a command passes
// --log-level. The capture layer is loaded into a foreign process, so
// silence is the default:
//
//	if err := logging.Initialize(logLevel); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// # Output
//
// Logs are written to stderr in zap's console format. stdout belongs to the
// decoder and correlator reports and must stay byte-for-byte deterministic.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
