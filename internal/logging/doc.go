// Package logging provides structured logging for apkdrop.
//
// This package wraps a zap logger with convenience functions used across the
// catalog client, transfer engine, device session and state machine.
//
// # Log Levels
//
//   - Debug: state transitions, stale events, adb protocol exchanges
//   - Info: job lifecycle (download started, install succeeded)
//   - Warn: non-fatal issues (staging cleanup failed, chunk retry)
//   - Error: job failures
//
// # Destination
//
// The terminal UI owns stdout, so logs are written to a file
// (APKDROP_LOG_FILE, defaulting to apkdrop.log in the temp dir). Logging is
// silent unless APKDROP_LOG_LEVEL or --log-level is set.
//
//	logging.LogJob("download", 3, "completed",
//	    zap.String("path", "/tmp/apkdrop-123/app.apk"),
//	)
package logging
