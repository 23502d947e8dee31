package logging

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// LogEntry is a captured log entry for test verification
type LogEntry struct {
	Level   Level
	Message string
	Fields  Fields
	Error   error
}

type mockSink struct {
	mu      sync.Mutex
	entries []LogEntry
}

// MockLogger implements Logger for tests. Loggers derived through With*
// record into the same entry list as their parent.
type MockLogger struct {
	mu     sync.RWMutex
	level  Level
	fields Fields
	err    error
	sink   *mockSink
}

// NewMockLogger creates a mock logger that captures everything from DebugLevel up.
func NewMockLogger() *MockLogger {
	return &MockLogger{
		level:  DebugLevel,
		fields: make(Fields),
		sink:   &mockSink{},
	}
}

// NewMockLoggerWithLevel creates a mock logger with a specific level
func NewMockLoggerWithLevel(level Level) *MockLogger {
	m := NewMockLogger()
	m.SetLevel(level)
	return m
}

func (m *MockLogger) SetLevel(level Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = level
}

func (m *MockLogger) GetLevel() Level {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.level
}

func (m *MockLogger) IsLevelEnabled(level Level) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return level >= m.level
}

func (m *MockLogger) Debug(msg string) { m.log(DebugLevel, msg, nil) }
func (m *MockLogger) Info(msg string)  { m.log(InfoLevel, msg, nil) }
func (m *MockLogger) Warn(msg string)  { m.log(WarnLevel, msg, nil) }
func (m *MockLogger) Error(msg string) { m.log(ErrorLevel, msg, nil) }

// Fatal records the entry and panics instead of exiting.
func (m *MockLogger) Fatal(msg string) {
	m.log(FatalLevel, msg, nil)
	panic("fatal log called: " + msg)
}

func (m *MockLogger) Debugf(format string, args ...interface{}) {
	m.log(DebugLevel, fmt.Sprintf(format, args...), nil)
}

func (m *MockLogger) Infof(format string, args ...interface{}) {
	m.log(InfoLevel, fmt.Sprintf(format, args...), nil)
}

func (m *MockLogger) Warnf(format string, args ...interface{}) {
	m.log(WarnLevel, fmt.Sprintf(format, args...), nil)
}

func (m *MockLogger) Errorf(format string, args ...interface{}) {
	m.log(ErrorLevel, fmt.Sprintf(format, args...), nil)
}

func (m *MockLogger) Fatalf(format string, args ...interface{}) {
	m.Fatal(fmt.Sprintf(format, args...))
}

func (m *MockLogger) Debugw(msg string, keysAndValues ...interface{}) {
	m.log(DebugLevel, msg, keysAndValuesToFields(keysAndValues...))
}

func (m *MockLogger) Infow(msg string, keysAndValues ...interface{}) {
	m.log(InfoLevel, msg, keysAndValuesToFields(keysAndValues...))
}

func (m *MockLogger) Warnw(msg string, keysAndValues ...interface{}) {
	m.log(WarnLevel, msg, keysAndValuesToFields(keysAndValues...))
}

func (m *MockLogger) Errorw(msg string, keysAndValues ...interface{}) {
	m.log(ErrorLevel, msg, keysAndValuesToFields(keysAndValues...))
}

func (m *MockLogger) WithFields(fields Fields) Logger {
	child := m.clone()
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

func (m *MockLogger) WithField(key string, value interface{}) Logger {
	return m.WithFields(Fields{key: value})
}

func (m *MockLogger) WithError(err error) Logger {
	if err == nil {
		return m
	}
	child := m.clone()
	child.err = err
	return child
}

func (m *MockLogger) WithContext(_ context.Context) Logger {
	return m.clone()
}

func (m *MockLogger) Close() error {
	return nil
}

func (m *MockLogger) clone() *MockLogger {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fields := make(Fields, len(m.fields))
	for k, v := range m.fields {
		fields[k] = v
	}
	return &MockLogger{
		level:  m.level,
		fields: fields,
		err:    m.err,
		sink:   m.sink,
	}
}

func (m *MockLogger) log(level Level, msg string, extra Fields) {
	if !m.IsLevelEnabled(level) {
		return
	}

	m.mu.RLock()
	all := make(Fields, len(m.fields)+len(extra))
	for k, v := range m.fields {
		all[k] = v
	}
	err := m.err
	m.mu.RUnlock()

	for k, v := range extra {
		all[k] = v
	}

	m.sink.mu.Lock()
	m.sink.entries = append(m.sink.entries, LogEntry{Level: level, Message: msg, Fields: all, Error: err})
	m.sink.mu.Unlock()
}

// Entries returns a copy of everything captured so far.
func (m *MockLogger) Entries() []LogEntry {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	out := make([]LogEntry, len(m.sink.entries))
	copy(out, m.sink.entries)
	return out
}

// EntriesAt returns captured entries at the given level.
func (m *MockLogger) EntriesAt(level Level) []LogEntry {
	var out []LogEntry
	for _, e := range m.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// HasMessage reports whether any captured message contains substr.
func (m *MockLogger) HasMessage(substr string) bool {
	for _, e := range m.Entries() {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// Reset drops captured entries.
func (m *MockLogger) Reset() {
	m.sink.mu.Lock()
	m.sink.entries = nil
	m.sink.mu.Unlock()
}
