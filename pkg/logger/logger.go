package logger

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OutputType defines the type of output for the logger
type OutputType string

const (
	// OutputConsole outputs logs to stdout
	OutputConsole OutputType = "console"
	// OutputFile outputs logs to a size-rotated file
	OutputFile OutputType = "file"
	// OutputOTEL outputs logs to stdout and an OpenTelemetry collector
	OutputOTEL OutputType = "otel"
)

// Config holds the logger configuration
type Config struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string

	// Output defines where logs should be written (console, file, otel)
	Output OutputType

	// Format defines the log format (json, console)
	Format string

	// FilePath is the path to the log file (required when Output is "file")
	FilePath string

	// FileMaxSizeMB is the maximum size of the log file in megabytes before rotation
	FileMaxSizeMB int

	// FileMaxBackups is the maximum number of rotated files to retain
	FileMaxBackups int

	// Development enables development mode (colored levels, stacktraces on warn)
	Development bool

	// AddCaller adds caller information to log entries
	AddCaller bool
}

// DefaultConfig returns a default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:          "info",
		Output:         OutputConsole,
		Format:         "json",
		FilePath:       "./logs/gitsshd.log",
		FileMaxSizeMB:  100,
		FileMaxBackups: 3,
		AddCaller:      true,
	}
}

// Logger wraps zap.Logger with additional functionality
type Logger struct {
	*zap.Logger
	config  *Config
	core    zapcore.Core
	closers []io.Closer
	mu      sync.Mutex
}

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// New creates a new Logger instance based on the provided configuration.
// OutputOTEL is built by the caller with NewWithCore since it needs a provider.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := ParseLevel(cfg.Level)
	encoderConfig := createEncoderConfig(cfg.Development)

	var (
		core    zapcore.Core
		closers []io.Closer
	)

	switch cfg.Output {
	case OutputFile:
		writer, err := newFileWriter(cfg.FilePath, cfg.FileMaxSizeMB, cfg.FileMaxBackups)
		if err != nil {
			return nil, err
		}
		core = zapcore.NewCore(createEncoder(cfg, encoderConfig), zapcore.AddSync(writer), level)
		closers = append(closers, writer)
	default:
		core = NewConsoleCore(cfg)
	}

	return NewWithCore(cfg, core, closers...), nil
}

// NewWithCore creates a new Logger with a custom zapcore.Core
func NewWithCore(cfg *Config, core zapcore.Core, closers ...io.Closer) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Logger{
		Logger:  zap.New(core, buildZapOptions(cfg)...),
		config:  cfg,
		core:    core,
		closers: closers,
	}
}

// NewConsoleCore builds the stdout core for cfg. It is also the local half of the OTEL tee.
func NewConsoleCore(cfg *Config) zapcore.Core {
	encoderConfig := createEncoderConfig(cfg.Development)
	return zapcore.NewCore(
		createEncoder(cfg, encoderConfig),
		zapcore.AddSync(os.Stdout),
		ParseLevel(cfg.Level),
	)
}

// NewNop returns a logger that discards everything. Handy in tests.
func NewNop() *Logger {
	return NewWithCore(DefaultConfig(), zapcore.NewNopCore())
}

// SetGlobal sets the global logger instance
func SetGlobal(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// Get returns the global logger instance
func Get() *Logger {
	globalMu.RLock()
	if globalLogger != nil {
		defer globalMu.RUnlock()
		return globalLogger
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger == nil {
		logger, _ := New(DefaultConfig())
		globalLogger = logger
	}

	return globalLogger
}

// Core returns the underlying zapcore.Core
func (l *Logger) Core() zapcore.Core {
	return l.core
}

// WithContext returns a logger with trace information from the context
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return l
	}

	return l.WithFields(
		TraceID(spanCtx.TraceID().String()),
		SpanID(spanCtx.SpanID().String()),
	)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		config:  l.config,
		core:    l.core,
		closers: l.closers,
	}
}

// WithError returns a logger with an error field
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields(zap.Error(err))
}

// Close flushes buffered entries and closes file or exporter sinks
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.Logger.Sync()

	var lastErr error
	for _, closer := range l.closers {
		if err := closer.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// ParseLevel converts a string level to zapcore.Level, falling back to info
func ParseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func createEncoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		config := zap.NewDevelopmentEncoderConfig()
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncodeTime = zapcore.ISO8601TimeEncoder
		return config
	}

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	config.TimeKey = "timestamp"
	config.MessageKey = "message"
	config.LevelKey = "level"
	config.CallerKey = "caller"
	config.StacktraceKey = "stacktrace"
	return config
}

func createEncoder(cfg *Config, encoderConfig zapcore.EncoderConfig) zapcore.Encoder {
	if cfg.Format == "console" || cfg.Development {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func buildZapOptions(cfg *Config) []zap.Option {
	var opts []zap.Option

	if cfg.AddCaller {
		opts = append(opts, zap.AddCaller())
	}

	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return opts
}

// Global helper functions

// Debug logs a debug message using the global logger
func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

// Info logs an info message using the global logger
func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

// Warn logs a warning message using the global logger
func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

// Fatal logs a fatal message and exits using the global logger
func Fatal(msg string, fields ...zap.Field) {
	Get().Fatal(msg, fields...)
}

// With returns a logger with additional fields using the global logger
func With(fields ...zap.Field) *Logger {
	return Get().WithFields(fields...)
}

// Close closes the global logger
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger != nil {
		return globalLogger.Close()
	}
	return nil
}
