package cache

import (
	"errors"
	"fmt"
	"testing"

	"github.com/PaulChristophel/salt-extras/logger"
	"github.com/stretchr/testify/assert"
)

func TestUnavailableMarksSentinel(t *testing.T) {
	cause := fmt.Errorf("dial tcp 127.0.0.1:5432: connection refused")
	err := unavailable(cause, "pgbytea")

	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "pgbytea cache could not connect to database")
	assert.Contains(t, err.Error(), "connection refused")

	// Unrelated errors do not match the sentinel.
	assert.False(t, errors.Is(fmt.Errorf("boom"), ErrBackendUnavailable))
}

func TestDegrade(t *testing.T) {
	b := &pgBackend{cfg: defaultConfig()}

	assert.NoError(t, b.degrade(nil))
	// Statement-level failures are absorbed.
	assert.NoError(t, b.degrade(fmt.Errorf("duplicate key value violates unique constraint")))
	// Connectivity failures propagate.
	assert.ErrorIs(t, b.degrade(unavailable(fmt.Errorf("refused"), "pgbytea")), ErrBackendUnavailable)
}

func TestLogDiagContext(t *testing.T) {
	log := logger.NewTestLogger()
	b := &pgBackend{
		opts: ResolveOptions(map[string]any{"table_name": "salt_cache"}),
		cfg:  config{log: log},
	}

	b.logDiag(fmt.Errorf("value too long for type"), "minions", "web1", "payload")

	entries := log.Entries()
	assert.Len(t, entries, 5)
	assert.Equal(t, "value too long for type", entries[0].Message)
	assert.Equal(t, "table: salt_cache", entries[1].Message)
	assert.Equal(t, "bank: minions", entries[2].Message)
	assert.Equal(t, "psql_key: web1", entries[3].Message)
	assert.Equal(t, "data: payload", entries[4].Message)
	for _, e := range entries {
		assert.Equal(t, "ERROR", e.Severity)
	}
}
