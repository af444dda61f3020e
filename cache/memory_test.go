package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMissDefaults(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	v, err := c.Fetch(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{}, v)

	epoch, err := c.Updated(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), epoch)

	ok, err := c.Contains(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.False(t, ok)

	id, err := c.ID(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)

	keys, err := c.List(ctx, "minions")
	assert.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryScenario(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	require.NoError(t, c.Store(ctx, "minions", "web1", map[string]any{"ip": "10.0.0.5"}))

	keys, err := c.List(ctx, "minions")
	assert.NoError(t, err)
	assert.Contains(t, keys, "web1")

	ok, err := c.Contains(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.True(t, ok)

	v, err := c.Fetch(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"ip": "10.0.0.5"}, v)

	flushed, err := c.Flush(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.True(t, flushed)

	v, err = c.Fetch(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{}, v)

	ok, err = c.Contains(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryUpsert(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	require.NoError(t, c.Store(ctx, "minions", "web1", "v1"))
	require.NoError(t, c.Store(ctx, "minions", "web1", "v2"))

	keys, err := c.List(ctx, "minions")
	assert.NoError(t, err)
	assert.Len(t, keys, 1)

	v, err := c.Fetch(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func TestMemoryChangeTimestamp(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Store(ctx, "minions", "web1", "v1"))
	epoch, err := c.Updated(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.Equal(t, int64(1700000000), epoch)

	// Writing an identical payload must not advance the timestamp.
	now = time.Unix(1700000100, 0)
	require.NoError(t, c.Store(ctx, "minions", "web1", "v1"))
	epoch, err = c.Updated(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.Equal(t, int64(1700000000), epoch)

	// A different payload advances it.
	require.NoError(t, c.Store(ctx, "minions", "web1", "v2"))
	epoch, err = c.Updated(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.Equal(t, int64(1700000100), epoch)
}

func TestMemoryIDImmutable(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	require.NoError(t, c.Store(ctx, "minions", "web1", "v1"))
	id1, err := c.ID(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id1)

	// Updates keep the record id assigned at insert.
	require.NoError(t, c.Store(ctx, "minions", "web1", "v2"))
	id2, err := c.ID(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.Equal(t, id1, id2)

	// A flush and re-store assigns a fresh id.
	_, err = c.Flush(ctx, "minions", "web1")
	assert.NoError(t, err)
	require.NoError(t, c.Store(ctx, "minions", "web1", "v2"))
	id3, err := c.ID(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestMemoryBankIsolation(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	require.NoError(t, c.Store(ctx, "bank_a", "k1", "a1"))
	require.NoError(t, c.Store(ctx, "bank_a", "k2", "a2"))
	require.NoError(t, c.Store(ctx, "bank_b", "k1", "b1"))

	// Flushing a whole bank must not touch any other bank.
	flushed, err := c.Flush(ctx, "bank_a", "")
	assert.NoError(t, err)
	assert.True(t, flushed)

	keys, err := c.List(ctx, "bank_a")
	assert.NoError(t, err)
	assert.Empty(t, keys)

	v, err := c.Fetch(ctx, "bank_b", "k1")
	assert.NoError(t, err)
	assert.Equal(t, "b1", v)
}

func TestMemoryBinaryRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	payload := []byte{0xff, 0xfe, 0x00}
	require.NoError(t, c.Store(ctx, "bank1", "k1", payload))

	v, err := c.Fetch(ctx, "bank1", "k1")
	assert.NoError(t, err)
	assert.Equal(t, payload, v)
}

func TestMemoryClose(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	require.NoError(t, c.Store(ctx, "minions", "web1", "v1"))
	assert.NoError(t, c.Close(ctx))

	ok, err := c.Contains(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.False(t, ok)
}
