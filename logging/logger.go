package logging

import (
	"context"
	"fmt"
	"strings"
)

// Level represents the logging level
type Level int

const (
	// DebugLevel is for per-operation tracing, disabled in production
	DebugLevel Level = iota
	// InfoLevel is the default logging priority
	InfoLevel
	// WarnLevel is for recoverable store conditions such as a write falling back to update
	WarnLevel
	// ErrorLevel is for failed store operations
	ErrorLevel
	// FatalLevel logs a message, then calls os.Exit(1)
	FatalLevel
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config string (debug, info, warn, error, fatal) to a Level.
// Unknown values map to InfoLevel.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// Fields represents structured logging fields
type Fields map[string]interface{}

// Logger defines the interface for structured logging
type Logger interface {
	SetLevel(level Level)
	GetLevel() Level
	IsLevelEnabled(level Level) bool

	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	WithFields(fields Fields) Logger
	WithField(key string, value interface{}) Logger
	WithError(err error) Logger
	WithContext(ctx context.Context) Logger

	// Close releases the underlying writer. Loggers derived with With* share it.
	Close() error
}

func keysAndValuesToFields(keysAndValues ...interface{}) Fields {
	fields := make(Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprintf("%v", keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

// LoggerConfig holds configuration for creating loggers
type LoggerConfig struct {
	Level       Level
	FilePath    string // log file, rotated by size
	LoggerName  string
	ServiceName string
	MaxSizeMB   int
	MaxBackups  int
	MaxAgeDays  int
	Compress    bool
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:       InfoLevel,
		FilePath:    "/tmp/recordstore.log",
		LoggerName:  "main",
		ServiceName: "recordstore",
		MaxSizeMB:   50,
		MaxBackups:  5,
		MaxAgeDays:  30,
		Compress:    true,
	}
}

// Validate validates the logger configuration
func (c *LoggerConfig) Validate() error {
	if c.FilePath == "" {
		return fmt.Errorf("filename is required - stdout logging is not allowed")
	}
	if c.LoggerName == "" {
		return fmt.Errorf("logger name is required")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("rotation limits must not be negative")
	}
	return nil
}

// NewLogger creates the zerolog-backed logger for the given configuration.
func NewLogger(config *LoggerConfig) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger configuration: %w", err)
	}

	logger, err := NewLoggerWithConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return logger, nil
}
