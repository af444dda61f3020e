package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/PaulChristophel/salt-extras/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAsTypes(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	type Minion struct {
		IP    string   `msgpack:"ip"`
		Roles []string `msgpack:"roles"`
	}
	m := Minion{IP: "10.0.0.5", Roles: []string{"web", "db"}}
	require.NoError(t, c.Store(ctx, "minions", "web1", m))

	found, got, err := FetchAs[Minion](ctx, c, "minions", "web1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, m, got)

	// Miss returns found=false without an error.
	found, _, err = FetchAs[Minion](ctx, c, "minions", "nope")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestFetchAsScalars(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	require.NoError(t, c.Store(ctx, "counters", "runs", 42))
	found, n, err := FetchAs[int](ctx, c, "counters", "runs")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 42, n)

	require.NoError(t, c.Store(ctx, "flags", "active", true))
	found, b, err := FetchAs[bool](ctx, c, "flags", "active")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.True(t, b)
}

type jsonOnlyCodec struct{}

func (jsonOnlyCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonOnlyCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func TestWithCodec(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithCodec(jsonOnlyCodec{}))

	require.NoError(t, c.Store(ctx, "minions", "web1", map[string]any{"ip": "10.0.0.5"}))
	v, err := c.Fetch(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"ip": "10.0.0.5"}, v)
}

func TestStoreCodecFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()
	c := NewMemory(WithCodec(jsonOnlyCodec{}), WithLogger(log))

	// A channel is not serializable; the failure is logged, not raised.
	assert.NoError(t, c.Store(ctx, "minions", "web1", make(chan int)))
	assert.NotEmpty(t, log.Entries())

	ok, err := c.Contains(ctx, "minions", "web1")
	assert.NoError(t, err)
	assert.False(t, ok)
}
