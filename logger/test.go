package logger

import (
	"fmt"
	"sync"
)

// TestLogEntry is a single captured log record.
type TestLogEntry struct {
	Severity string
	Message  string
	Metadata map[string]interface{}
}

type testLogState struct {
	mu   sync.Mutex
	logs []TestLogEntry
}

// TestLogger captures log records in memory so tests can assert on them.
type TestLogger struct {
	metadata map[string]interface{}
	state    *testLogState
}

var _ Logger = (*TestLogger)(nil)

// NewTestLogger returns a Logger which records every entry it is given.
func NewTestLogger() *TestLogger {
	return &TestLogger{state: &testLogState{}}
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	kv := make(map[string]interface{})
	for k, v := range c.metadata {
		kv[k] = v
	}
	for k, v := range metadata {
		kv[k] = v
	}
	return &TestLogger{metadata: kv, state: c.state}
}

func (c *TestLogger) record(severity string, msg string, args ...interface{}) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	c.state.logs = append(c.state.logs, TestLogEntry{
		Severity: severity,
		Message:  fmt.Sprintf(msg, args...),
		Metadata: c.metadata,
	})
}

func (c *TestLogger) Trace(msg string, args ...interface{}) {
	c.record("TRACE", msg, args...)
}

func (c *TestLogger) Debug(msg string, args ...interface{}) {
	c.record("DEBUG", msg, args...)
}

func (c *TestLogger) Info(msg string, args ...interface{}) {
	c.record("INFO", msg, args...)
}

func (c *TestLogger) Warn(msg string, args ...interface{}) {
	c.record("WARNING", msg, args...)
}

func (c *TestLogger) Error(msg string, args ...interface{}) {
	c.record("ERROR", msg, args...)
}

// Entries returns a copy of every record captured so far.
func (c *TestLogger) Entries() []TestLogEntry {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	out := make([]TestLogEntry, len(c.state.logs))
	copy(out, c.state.logs)
	return out
}

// Reset discards all captured records.
func (c *TestLogger) Reset() {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	c.state.logs = nil
}
