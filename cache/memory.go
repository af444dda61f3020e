package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	data    []byte
	changed time.Time
	id      uuid.UUID
}

// Memory is an in-process cache backend holding serialized payloads in a
// map. It implements the full Backend contract — including record
// identifiers and the only-on-change timestamp rule — and serves as the
// development and test stand-in for the postgres variants. Entries never
// expire; retention is entirely caller-driven, matching the relational
// backends.
type Memory struct {
	mu    sync.Mutex
	banks map[string]map[string]*memoryEntry
	cfg   config
	now   func() time.Time
}

var (
	_ Backend    = (*Memory)(nil)
	_ Identified = (*Memory)(nil)
)

// NewMemory returns an in-memory Backend.
func NewMemory(options ...Option) *Memory {
	return &Memory{
		banks: make(map[string]map[string]*memoryEntry),
		cfg:   applyOptions(options),
		now:   time.Now,
	}
}

// Store serializes value and upserts it under (bank, key). The change
// timestamp advances only when the payload bytes differ; the record id is
// assigned once, at first insert.
func (c *Memory) Store(_ context.Context, bank, key string, value any) error {
	data, err := c.cfg.codec.Marshal(value)
	if err != nil {
		c.cfg.log.Error("%v", err)
		c.cfg.log.Error("bank: %s", bank)
		c.cfg.log.Error("psql_key: %s", key)
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.banks[bank]
	if !ok {
		entries = make(map[string]*memoryEntry)
		c.banks[bank] = entries
	}
	if existing, ok := entries[key]; ok {
		if !bytes.Equal(existing.data, data) {
			existing.data = data
			existing.changed = c.now()
		}
		return nil
	}
	entries[key] = &memoryEntry{
		data:    data,
		changed: c.now(),
		id:      uuid.New(),
	}
	return nil
}

// Fetch returns the value stored under (bank, key), or an empty map when
// the entry is absent or fails to decode.
func (c *Memory) Fetch(_ context.Context, bank, key string) (any, error) {
	c.mu.Lock()
	entry, ok := c.banks[bank][key]
	var data []byte
	if ok {
		data = make([]byte, len(entry.data))
		copy(data, entry.data)
	}
	c.mu.Unlock()
	if !ok {
		return map[string]any{}, nil
	}
	var v any
	if err := c.cfg.codec.Unmarshal(data, &v); err != nil {
		c.cfg.log.Error("%v", err)
		return map[string]any{}, nil
	}
	return v, nil
}

// Flush removes the whole bank when key is empty, or the single matching
// entry otherwise.
func (c *Memory) Flush(_ context.Context, bank, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" {
		delete(c.banks, bank)
		return true, nil
	}
	if entries, ok := c.banks[bank]; ok {
		delete(entries, key)
	}
	return true, nil
}

// List returns every key stored in bank.
func (c *Memory) List(_ context.Context, bank string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.banks[bank]))
	for k := range c.banks[bank] {
		keys = append(keys, k)
	}
	return keys, nil
}

// Contains reports whether bank holds an entry for key.
func (c *Memory) Contains(_ context.Context, bank, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.banks[bank][key]
	return ok, nil
}

// Updated returns the Unix epoch seconds at which the payload under
// (bank, key) last changed, or 0 when absent.
func (c *Memory) Updated(_ context.Context, bank, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.banks[bank][key]
	if !ok {
		return 0, nil
	}
	return entry.changed.Unix(), nil
}

// ID returns the record identifier for (bank, key), or uuid.Nil when the
// entry is absent.
func (c *Memory) ID(_ context.Context, bank, key string) (uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.banks[bank][key]
	if !ok {
		return uuid.Nil, nil
	}
	return entry.id, nil
}

// Ping always succeeds.
func (c *Memory) Ping(_ context.Context) error {
	return nil
}

// Close discards all entries.
func (c *Memory) Close(_ context.Context) error {
	c.mu.Lock()
	c.banks = make(map[string]map[string]*memoryEntry)
	c.mu.Unlock()
	return nil
}

func (c *Memory) fetchRaw(_ context.Context, bank, key string) ([]byte, bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.banks[bank][key]
	if !ok {
		return nil, false, false, nil
	}
	data := make([]byte, len(entry.data))
	copy(data, entry.data)
	return data, false, true, nil
}

func (c *Memory) fetchCodec() Codec {
	return c.cfg.codec
}
