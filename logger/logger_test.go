package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLevelFromEnv(t *testing.T) {
	t.Setenv("SALT_EXTRAS_LOG_LEVEL", "trace")
	assert.Equal(t, LevelTrace, GetLevelFromEnv())

	t.Setenv("SALT_EXTRAS_LOG_LEVEL", "ERROR")
	assert.Equal(t, LevelError, GetLevelFromEnv())

	t.Setenv("SALT_EXTRAS_LOG_LEVEL", "")
	assert.Equal(t, LevelInfo, GetLevelFromEnv())
}

func TestTestLoggerCaptures(t *testing.T) {
	log := NewTestLogger()
	log.Info("hello %s", "world")
	log.Error("boom")

	entries := log.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, "INFO", entries[0].Severity)
	assert.Equal(t, "hello world", entries[0].Message)
	assert.Equal(t, "ERROR", entries[1].Severity)
	assert.Equal(t, "boom", entries[1].Message)

	log.Reset()
	assert.Empty(t, log.Entries())
}

func TestTestLoggerWithMetadata(t *testing.T) {
	log := NewTestLogger()
	child := log.With(map[string]interface{}{"bank": "minions"})
	child.Warn("late")

	// Children record into the parent's buffer with merged metadata.
	entries := log.Entries()
	assert.Len(t, entries, 1)
	assert.Equal(t, "minions", entries[0].Metadata["bank"])
}

func TestJSONLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSONLogger(&buf, LevelDebug).With(map[string]interface{}{"variant": "pgbytea"})
	log.Debug("query took %dms", 3)

	var entry JSONLogEntry
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "DEBUG", entry.Severity)
	assert.Equal(t, "query took 3ms", entry.Message)
	assert.Equal(t, "pgbytea", entry.Metadata["variant"])
	assert.False(t, entry.Timestamp.IsZero())
}

func TestJSONLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSONLogger(&buf, LevelWarn)
	log.Debug("dropped")
	log.Info("dropped too")
	assert.Zero(t, buf.Len())

	log.Error("kept")
	assert.NotZero(t, buf.Len())
}

func TestConsoleLoggerWith(t *testing.T) {
	log := NewConsoleLogger(LevelNone)
	child := log.With(map[string]interface{}{"bank": "minions"})
	// Nothing to assert beyond not panicking and returning a distinct logger.
	assert.NotNil(t, child)
	child.Info("suppressed at LevelNone")
}
