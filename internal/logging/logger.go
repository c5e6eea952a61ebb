package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = zap.NewNop()

const (
	// LogLevelEnvVar controls logging verbosity. When unset or empty,
	// logging is silent. Valid values: "debug", "info", "warn", "error".
	LogLevelEnvVar = "APKDROP_LOG_LEVEL"

	// LogFileEnvVar overrides the log destination. The interactive UI owns
	// stdout, so logs never go there.
	LogFileEnvVar = "APKDROP_LOG_FILE"
)

// DefaultLogPath returns the log file used when neither a path nor
// APKDROP_LOG_FILE is given.
func DefaultLogPath() string {
	return filepath.Join(os.TempDir(), "apkdrop.log")
}

// Initialize creates the global logger. An empty level falls back to
// APKDROP_LOG_LEVEL; if that is empty too the logger is a no-op. An empty
// path falls back to APKDROP_LOG_FILE and then DefaultLogPath. The special
// path "stderr" logs to standard error.
func Initialize(level, path string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	zapLevel, err := parseLevel(level)
	if err != nil {
		return err
	}

	if path == "" {
		path = os.Getenv(LogFileEnvVar)
	}
	if path == "" {
		path = DefaultLogPath()
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{path},
		ErrorOutputPaths: []string{path},
	}
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = built
	return nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogTransition records a state machine screen change.
func LogTransition(from, to, event string) {
	Debug("State transition",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("event", event),
	)
}

// LogJob records a job lifecycle change.
func LogJob(kind string, id uint64, status string, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("kind", kind),
		zap.Uint64("job_id", id),
		zap.String("status", status),
	}, fields...)
	Info("Job update", fields...)
}

// LogStaleEvent records an event discarded because its job was superseded.
func LogStaleEvent(event string, got, active uint64) {
	Debug("Discarding stale event",
		zap.String("event", event),
		zap.Uint64("job_id", got),
		zap.Uint64("active_job_id", active),
	)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
