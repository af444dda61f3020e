package cache

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces cache keys on the Redis instance when no
// prefix option is supplied.
const DefaultRedisPrefix = "saltcache"

// Redis is a minion data cache backend over Redis hashes. Each bank maps
// to one hash holding key to serialized payload, with a sibling hash
// recording per-key change timestamps so Updated keeps the only-on-change
// rule of the relational variants. The caller owns the redis.Client
// lifecycle; Close is a no-op on the client.
type Redis struct {
	client *redis.Client
	cfg    config
	now    func() time.Time
}

var _ Backend = (*Redis)(nil)

// NewRedis returns a Backend backed by the given Redis client.
func NewRedis(client *redis.Client, options ...Option) *Redis {
	cfg := applyOptions(options)
	if cfg.prefix == "" {
		cfg.prefix = DefaultRedisPrefix
	}
	return &Redis{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (c *Redis) dataKey(bank string) string {
	return c.cfg.prefix + ":" + bank
}

func (c *Redis) changedKey(bank string) string {
	return c.cfg.prefix + ":" + bank + ":changed"
}

// Store serializes value and upserts it under (bank, key). The change
// timestamp advances only when the payload bytes differ. Redis has no
// statement-level failure class distinct from connectivity, so any
// transport error surfaces as ErrBackendUnavailable.
func (c *Redis) Store(ctx context.Context, bank, key string, value any) error {
	data, err := c.cfg.codec.Marshal(value)
	if err != nil {
		c.cfg.log.Error("%v", err)
		c.cfg.log.Error("bank: %s", bank)
		c.cfg.log.Error("key: %s", key)
		return nil
	}
	old, err := c.client.HGet(ctx, c.dataKey(bank), key).Bytes()
	if err != nil && err != redis.Nil {
		return unavailable(err, "redis")
	}
	if err == nil && bytes.Equal(old, data) {
		return nil
	}
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, c.dataKey(bank), key, data)
	pipe.HSet(ctx, c.changedKey(bank), key, c.now().Unix())
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err, "redis")
	}
	return nil
}

// Fetch returns the value stored under (bank, key), or an empty map when
// the entry is absent or fails to decode.
func (c *Redis) Fetch(ctx context.Context, bank, key string) (any, error) {
	data, err := c.client.HGet(ctx, c.dataKey(bank), key).Bytes()
	if err == redis.Nil {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, unavailable(err, "redis")
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
func (c *Redis) Flush(ctx context.Context, bank, key string) (bool, error) {
	var err error
	if key == "" {
		err = c.client.Del(ctx, c.dataKey(bank), c.changedKey(bank)).Err()
	} else {
		pipe := c.client.Pipeline()
		pipe.HDel(ctx, c.dataKey(bank), key)
		pipe.HDel(ctx, c.changedKey(bank), key)
		_, err = pipe.Exec(ctx)
	}
	if err != nil {
		return false, unavailable(err, "redis")
	}
	return true, nil
}

// List returns every key stored in bank.
func (c *Redis) List(ctx context.Context, bank string) ([]string, error) {
	keys, err := c.client.HKeys(ctx, c.dataKey(bank)).Result()
	if err != nil {
		return nil, unavailable(err, "redis")
	}
	return keys, nil
}

// Contains reports whether bank holds an entry for key.
func (c *Redis) Contains(ctx context.Context, bank, key string) (bool, error) {
	ok, err := c.client.HExists(ctx, c.dataKey(bank), key).Result()
	if err != nil {
		return false, unavailable(err, "redis")
	}
	return ok, nil
}

// Updated returns the Unix epoch seconds at which the payload under
// (bank, key) last changed, or 0 when absent.
func (c *Redis) Updated(ctx context.Context, bank, key string) (int64, error) {
	val, err := c.client.HGet(ctx, c.changedKey(bank), key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(err, "redis")
	}
	epoch, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		c.cfg.log.Error("%v", err)
		return 0, nil
	}
	return epoch, nil
}

// Ping verifies the Redis instance is reachable.
func (c *Redis) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return unavailable(err, "redis")
	}
	return nil
}

// Close is a no-op — the caller owns the redis.Client lifecycle.
func (c *Redis) Close(_ context.Context) error {
	return nil
}

func (c *Redis) fetchRaw(ctx context.Context, bank, key string) ([]byte, bool, bool, error) {
	data, err := c.client.HGet(ctx, c.dataKey(bank), key).Bytes()
	if err == redis.Nil {
		return nil, false, false, nil
	}
	if err != nil {
		return nil, false, false, unavailable(err, "redis")
	}
	return data, false, true, nil
}

func (c *Redis) fetchCodec() Codec {
	return c.cfg.codec
}
