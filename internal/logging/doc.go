// Package logging provides structured logging for loopbridge.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// persistent context attributes. Every bridge, channel and loop component logs
// through a child logger so that entries can be filtered by bridge and
// component after the fact.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers created
// via With* methods share the underlying writer. [RotatingWriter] serializes
// writes and rotation with a mutex.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/loopbridge", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	bl := logger.WithBridge(id).WithComponent("bridge")
//	bl.Info("state changed", "from", "initializing", "to", "active")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"state changed","bridge_id":"...","component":"bridge","from":"initializing","to":"active"}
//
// # Log Rotation
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	})
//
// Rotated files are named loopbridge.log.1, loopbridge.log.2, ... where .1 is
// the most recent backup; compressed backups gain a .gz suffix.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a buffer to
// assert on emitted entries.
package logging
