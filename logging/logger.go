// Package logging wraps zap with the project's output layout and secret
// redaction.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger and redacts sensitive data from every entry.
//
// Components receive a Logger and derive their own with Named, e.g.
// logger.Named("cache"), and request-scoped children with With.
//
// Example:
//
//	logger, err := NewLogger(Options{Development: true, FilePath: "tryon.log"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("server started", zap.String("addr", ":3000"))
type Logger struct {
	zap           *zap.Logger
	isDevelopment bool
	logFilePath   string
}

// Options configures NewLogger.
type Options struct {
	// Development selects colored console output and debug level.
	Development bool

	// Level overrides the mode's default level when non-nil.
	Level *zapcore.Level

	// FilePath is the rotating JSON log file. Empty disables file output.
	FilePath string

	// File holds rotation settings; zero values use defaults.
	File FileWriterConfig
}

// NewLogger creates a Logger that writes to stdout and, when FilePath is
// set, to a rotating JSON file.
//
// Development mode logs at debug level, production at info, unless
// opts.Level overrides it.
func NewLogger(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Development {
		level = zapcore.DebugLevel
	}
	if opts.Level != nil {
		level = *opts.Level
	}

	var core zapcore.Core
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		core = NewMultiCore(level, opts.FilePath, opts.File, opts.Development)
	} else {
		encoder := zapcore.NewJSONEncoder(NewEncoderConfig())
		if opts.Development {
			encoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
		}
		core = zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
	}

	return FromCore(core, opts.Development, opts.FilePath), nil
}

// FromCore builds a Logger around an existing core. Tests use it with
// zaptest/observer cores.
func FromCore(core zapcore.Core, isDevelopment bool, logFilePath string) *Logger {
	return &Logger{
		zap:           zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		isDevelopment: isDevelopment,
		logFilePath:   logFilePath,
	}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs a message at DebugLevel with optional structured fields.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, redactFields(fields)...)
}

// Info logs a message at InfoLevel with optional structured fields.
//
// Example:
//
//	logger.Info("cache entry stored",
//	    zap.String("key", key),
//	    zap.Int("size_bytes", n))
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, redactFields(fields)...)
}

// Warn logs a message at WarnLevel with optional structured fields.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, redactFields(fields)...)
}

// Error logs a message at ErrorLevel with optional structured fields.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, redactFields(fields)...)
}

// Fatal logs a message at FatalLevel then calls os.Exit(1).
func (l *Logger) Fatal(msg string, fields ...zap.Field) {
	l.zap.Fatal(msg, redactFields(fields)...)
}

// With creates a child logger whose entries all carry the given fields.
//
// Example:
//
//	reqLog := logger.With(zap.String("correlation_id", id))
//	reqLog.Info("composition started")
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		zap:           l.zap.With(redactFields(fields)...),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Named adds a sub-logger name, shown as the "source" field.
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		zap:           l.zap.Named(name),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Zap returns the underlying zap.Logger for libraries that want one.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// IsDevelopment returns true if the logger is configured for development mode.
func (l *Logger) IsDevelopment() bool {
	return l.isDevelopment
}

// LogFilePath returns the path to the log file.
func (l *Logger) LogFilePath() string {
	return l.logFilePath
}

// redactFields filters sensitive data from zap.Field values.
func redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}

	result := make([]zap.Field, len(fields))
	for i, field := range fields {
		result[i] = redactField(field)
	}
	return result
}

// redactField redacts a single field by name, or by content for strings
// and errors.
func redactField(field zap.Field) zap.Field {
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}

	switch field.Type {
	case zapcore.StringType:
		if redacted := RedactSensitiveData(field.String); redacted != field.String {
			return zap.String(field.Key, redacted)
		}
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok && err != nil {
			msg := err.Error()
			if redacted := RedactSensitiveData(msg); redacted != msg {
				return zap.String(field.Key, redacted)
			}
		}
	}

	return field
}
