package cache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/PaulChristophel/salt-extras/logger"
)

// Backend is the minion data cache contract. Entries are keyed by a
// two-level namespace: a bank and a key within that bank.
//
// Every read degrades to a benign default (empty map, zero, false, empty
// slice) when the entry is absent or its payload cannot be decoded. The
// only error a Backend surfaces is ErrBackendUnavailable, returned when a
// connection to the backing store cannot be established. A degraded cache
// degrades to a miss, never to a crash.
type Backend interface {
	// Store serializes value and upserts it under (bank, key).
	// Statement-level failures are logged and swallowed.
	Store(ctx context.Context, bank, key string, value any) error

	// Fetch returns the value stored under (bank, key), or an empty
	// map[string]any when the entry is absent or fails to decode.
	Fetch(ctx context.Context, bank, key string) (any, error)

	// Flush removes every entry in bank when key is empty, or the single
	// matching entry otherwise. It reports false on statement failure.
	Flush(ctx context.Context, bank, key string) (bool, error)

	// List returns the keys stored in bank, empty when there are none.
	List(ctx context.Context, bank string) ([]string, error)

	// Contains reports whether bank holds exactly one entry for key.
	Contains(ctx context.Context, bank, key string) (bool, error)

	// Updated returns the Unix epoch seconds at which the payload under
	// (bank, key) last changed, or 0 when the entry is absent. Writing an
	// identical payload does not advance the timestamp.
	Updated(ctx context.Context, bank, key string) (int64, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close(ctx context.Context) error
}

// Identified is implemented by backends that assign each entry a unique,
// immutable record identifier at insert time.
type Identified interface {
	// ID returns the record identifier for (bank, key), or uuid.Nil when
	// the entry is absent.
	ID(ctx context.Context, bank, key string) (uuid.UUID, error)
}

// Codec turns in-memory values into bytes and back. It must round-trip
// arbitrary structured values, including binary-unsafe content.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// config holds the resolved configuration for a cache backend.
type config struct {
	codec  Codec
	log    logger.Logger
	prefix string
}

// Option configures a cache backend.
type Option func(*config)

func defaultConfig() config {
	return config{
		codec: msgpackCodec{},
		log:   logger.NewConsoleLogger(),
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithCodec sets the serialization codec used for payloads. Defaults to
// msgpack. The pgjsonb backend ignores this — its column is jsonb, so its
// wire format is JSON by contract.
func WithCodec(c Codec) Option {
	return func(cfg *config) { cfg.codec = c }
}

// WithLogger sets the logger used for diagnostics. Defaults to the
// console logger at the level given by SALT_EXTRAS_LOG_LEVEL.
func WithLogger(l logger.Logger) Option {
	return func(cfg *config) { cfg.log = l }
}

// WithPrefix sets the key prefix used by the Redis backend to namespace
// multiple caches on one Redis instance. Defaults to "saltcache".
func WithPrefix(p string) Option {
	return func(cfg *config) { cfg.prefix = p }
}

// rawFetcher is the internal hook behind FetchAs. Backends return the
// serialized payload bytes; raw reports that data is the payload itself
// rather than codec output (a non-UTF8 blob from the jsonb variant).
type rawFetcher interface {
	fetchRaw(ctx context.Context, bank, key string) (data []byte, raw bool, found bool, err error)
	fetchCodec() Codec
}

// FetchAs retrieves a typed value from a backend. Unlike Backend.Fetch,
// which decodes into generic maps and slices, FetchAs decodes the stored
// payload directly into T using the backend's codec.
func FetchAs[T any](ctx context.Context, b Backend, bank, key string) (bool, T, error) {
	var zero T
	rf, ok := b.(rawFetcher)
	if !ok {
		return false, zero, fmt.Errorf("cache: backend %T does not support typed fetch", b)
	}
	data, raw, found, err := rf.fetchRaw(ctx, bank, key)
	if err != nil || !found {
		return false, zero, err
	}
	if raw {
		if typed, ok := any(data).(T); ok {
			return true, typed, nil
		}
		return false, zero, fmt.Errorf("cache: cannot convert raw payload to %T", zero)
	}
	var result T
	if err := rf.fetchCodec().Unmarshal(data, &result); err != nil {
		return false, zero, fmt.Errorf("cache: failed to unmarshal value: %w", err)
	}
	return true, result, nil
}
