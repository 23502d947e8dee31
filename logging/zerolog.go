package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// ZerologLogger implements Logger using zerolog over a rotating file.
type ZerologLogger struct {
	mu     sync.RWMutex
	logger zerolog.Logger
	level  Level
	fields Fields
	err    error
	out    io.Closer
}

// NewLoggerWithConfig opens the rotating log file and builds a JSON logger on it.
func NewLoggerWithConfig(config *LoggerConfig) (*ZerologLogger, error) {
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", config.FilePath, err)
	}

	writer := &lumberjack.Logger{
		Filename:   config.FilePath,
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAgeDays,
		Compress:   config.Compress,
	}

	l := newZerologLogger(writer, config)
	l.out = writer
	return l, nil
}

// NewWriterLogger builds a logger on an arbitrary writer. Close does not close w.
func NewWriterLogger(w io.Writer, config *LoggerConfig) *ZerologLogger {
	if config == nil {
		config = DefaultConfig()
	}
	return newZerologLogger(w, config)
}

func newZerologLogger(w io.Writer, config *LoggerConfig) *ZerologLogger {
	// instance level does the filtering
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	logger := zerolog.New(w).With().
		Timestamp().
		Str("service", config.ServiceName).
		Str("logger", config.LoggerName).
		Logger().
		Level(levelToZerolog(config.Level))

	return &ZerologLogger{
		logger: logger,
		level:  config.Level,
		fields: make(Fields),
	}
}

// Close closes the log file
func (z *ZerologLogger) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.out == nil {
		return nil
	}
	err := z.out.Close()
	z.out = nil
	return err
}

func (z *ZerologLogger) SetLevel(level Level) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.level = level
	z.logger = z.logger.Level(levelToZerolog(level))
}

func (z *ZerologLogger) GetLevel() Level {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.level
}

func (z *ZerologLogger) IsLevelEnabled(level Level) bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return level >= z.level
}

func levelToZerolog(level Level) zerolog.Level {
	switch level {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func (z *ZerologLogger) event(level Level) *zerolog.Event {
	var event *zerolog.Event

	switch level {
	case DebugLevel:
		event = z.logger.Debug()
	case WarnLevel:
		event = z.logger.Warn()
	case ErrorLevel:
		event = z.logger.Error()
	case FatalLevel:
		event = z.logger.Fatal()
	default:
		event = z.logger.Info()
	}

	z.mu.RLock()
	defer z.mu.RUnlock()
	for key, value := range z.fields {
		event = event.Interface(key, value)
	}
	if z.err != nil {
		event = event.Stack().Err(z.err)
	}
	return event
}

func (z *ZerologLogger) emit(level Level, msg string) {
	if level < FatalLevel && !z.IsLevelEnabled(level) {
		return
	}
	z.event(level).Msg(msg)
}

func (z *ZerologLogger) emitf(level Level, format string, args ...interface{}) {
	if level < FatalLevel && !z.IsLevelEnabled(level) {
		return
	}
	z.event(level).Msgf(format, args...)
}

func (z *ZerologLogger) Debug(msg string) { z.emit(DebugLevel, msg) }
func (z *ZerologLogger) Info(msg string)  { z.emit(InfoLevel, msg) }
func (z *ZerologLogger) Warn(msg string)  { z.emit(WarnLevel, msg) }
func (z *ZerologLogger) Error(msg string) { z.emit(ErrorLevel, msg) }
func (z *ZerologLogger) Fatal(msg string) { z.emit(FatalLevel, msg) }

func (z *ZerologLogger) Debugf(format string, args ...interface{}) { z.emitf(DebugLevel, format, args...) }
func (z *ZerologLogger) Infof(format string, args ...interface{})  { z.emitf(InfoLevel, format, args...) }
func (z *ZerologLogger) Warnf(format string, args ...interface{})  { z.emitf(WarnLevel, format, args...) }
func (z *ZerologLogger) Errorf(format string, args ...interface{}) { z.emitf(ErrorLevel, format, args...) }
func (z *ZerologLogger) Fatalf(format string, args ...interface{}) { z.emitf(FatalLevel, format, args...) }

func (z *ZerologLogger) Debugw(msg string, keysAndValues ...interface{}) {
	z.WithFields(keysAndValuesToFields(keysAndValues...)).Debug(msg)
}

func (z *ZerologLogger) Infow(msg string, keysAndValues ...interface{}) {
	z.WithFields(keysAndValuesToFields(keysAndValues...)).Info(msg)
}

func (z *ZerologLogger) Warnw(msg string, keysAndValues ...interface{}) {
	z.WithFields(keysAndValuesToFields(keysAndValues...)).Warn(msg)
}

func (z *ZerologLogger) Errorw(msg string, keysAndValues ...interface{}) {
	z.WithFields(keysAndValuesToFields(keysAndValues...)).Error(msg)
}

func (z *ZerologLogger) WithFields(fields Fields) Logger {
	child := z.clone()
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

func (z *ZerologLogger) WithField(key string, value interface{}) Logger {
	return z.WithFields(Fields{key: value})
}

// WithError attaches err together with the stack at the call site.
func (z *ZerologLogger) WithError(err error) Logger {
	if err == nil {
		return z
	}
	child := z.clone()
	child.err = errors.WithStack(err)
	return child
}

func (z *ZerologLogger) WithContext(ctx context.Context) Logger {
	child := z.clone()
	child.logger = child.logger.With().Ctx(ctx).Logger()
	return child
}

// clone shares the writer with the parent.
func (z *ZerologLogger) clone() *ZerologLogger {
	z.mu.RLock()
	defer z.mu.RUnlock()

	fields := make(Fields, len(z.fields))
	for k, v := range z.fields {
		fields[k] = v
	}

	return &ZerologLogger{
		logger: z.logger,
		level:  z.level,
		fields: fields,
		err:    z.err,
		out:    z.out,
	}
}
