package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// PGBytea is a minion data cache backend that persists serialized
// payloads as opaque binary blobs in a postgres bytea column. Each row
// additionally carries an immutable record identifier assigned at insert
// time, exposed through ID.
type PGBytea struct {
	pgBackend
}

var (
	_ Backend    = (*PGBytea)(nil)
	_ Identified = (*PGBytea)(nil)
)

// NewPGBytea builds a bytea-column backend from host-supplied options.
// See ResolveOptions for the recognized option names and defaults.
func NewPGBytea(opts map[string]any, options ...Option) *PGBytea {
	return &PGBytea{pgBackend{
		opts:    ResolveOptions(opts),
		cfg:     applyOptions(options),
		variant: "pgbytea",
	}}
}

// Store serializes value and upserts it under (bank, key). Statement
// failures are logged with full diagnostic context and swallowed; a
// malformed payload must not crash the host.
func (c *PGBytea) Store(ctx context.Context, bank, key string, value any) error {
	data, err := c.cfg.codec.Marshal(value)
	if err != nil {
		c.logDiag(err, bank, key, value)
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (bank, psql_key, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (bank, psql_key) DO UPDATE
		  SET data = EXCLUDED.data`, c.table())
	err = c.scope(ctx, "cache.store", true, func(tx *sql.Tx) error {
		c.cfg.log.Debug(query)
		if _, err := tx.ExecContext(ctx, query, bank, key, data); err != nil {
			c.logDiag(err, bank, key, data)
		}
		return nil
	})
	return c.degrade(err)
}

// Fetch returns the deserialized value stored under (bank, key). A
// missing row, a decode failure, or any statement error degrades to an
// empty map.
func (c *PGBytea) Fetch(ctx context.Context, bank, key string) (any, error) {
	out := any(map[string]any{})
	query := fmt.Sprintf(`SELECT data FROM %s WHERE bank = $1 AND psql_key = $2`, c.table())
	err := c.scope(ctx, "cache.fetch", true, func(tx *sql.Tx) error {
		c.cfg.log.Debug(query)
		var blob []byte
		if err := tx.QueryRowContext(ctx, query, bank, key).Scan(&blob); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		var v any
		if err := c.cfg.codec.Unmarshal(blob, &v); err != nil {
			c.logDiag(err, bank, key, blob)
			return nil
		}
		out = v
		return nil
	})
	if err := c.degrade(err); err != nil {
		return nil, err
	}
	return out, nil
}

// Flush removes the whole bank when key is empty, or the single matching
// entry otherwise. Statement failures yield false, not an error.
func (c *PGBytea) Flush(ctx context.Context, bank, key string) (bool, error) {
	ok := false
	err := c.scope(ctx, "cache.flush", true, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`DELETE FROM %s WHERE bank = $1`, c.table())
		args := []any{bank}
		if key != "" {
			query += " AND psql_key = $2"
			args = append(args, key)
		}
		c.cfg.log.Debug(query)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			c.logDiag(err, bank, key, nil)
			return nil
		}
		ok = true
		return nil
	})
	if err := c.degrade(err); err != nil {
		return false, err
	}
	return ok, nil
}

// List returns every key stored in bank.
func (c *PGBytea) List(ctx context.Context, bank string) ([]string, error) {
	var keys []string
	query := fmt.Sprintf(`SELECT psql_key FROM %s WHERE bank = $1`, c.table())
	err := c.scope(ctx, "cache.list", true, func(tx *sql.Tx) error {
		c.cfg.log.Debug(query)
		rows, err := tx.QueryContext(ctx, query, bank)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				return err
			}
			keys = append(keys, k)
		}
		return rows.Err()
	})
	if err := c.degrade(err); err != nil {
		return nil, err
	}
	return keys, nil
}

// Contains reports whether bank holds exactly one entry for key. A count
// of zero — and, should the primary key ever be violated, more than one —
// reports false.
func (c *PGBytea) Contains(ctx context.Context, bank, key string) (bool, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(data) FROM %s WHERE bank = $1 AND psql_key = $2`, c.table())
	err := c.scope(ctx, "cache.contains", true, func(tx *sql.Tx) error {
		c.cfg.log.Debug(query)
		return tx.QueryRowContext(ctx, query, bank, key).Scan(&count)
	})
	if err := c.degrade(err); err != nil {
		return false, err
	}
	return count == 1, nil
}

// Updated returns the Unix epoch seconds at which the payload under
// (bank, key) last changed, or 0 when absent. The timestamp is maintained
// by the store's trigger and only advances when the payload bytes
// actually change.
func (c *PGBytea) Updated(ctx context.Context, bank, key string) (int64, error) {
	var epoch int64
	query := fmt.Sprintf(`SELECT extract(epoch FROM data_changed)::int FROM %s
		WHERE bank = $1 AND psql_key = $2`, c.table())
	err := c.scope(ctx, "cache.updated", true, func(tx *sql.Tx) error {
		c.cfg.log.Debug(query)
		if err := tx.QueryRowContext(ctx, query, bank, key).Scan(&epoch); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.logDiag(err, bank, key, nil)
				return nil
			}
			return err
		}
		return nil
	})
	if err := c.degrade(err); err != nil {
		return 0, err
	}
	return epoch, nil
}

// ID returns the record identifier assigned to (bank, key) at insert
// time, or uuid.Nil when the entry is absent.
func (c *PGBytea) ID(ctx context.Context, bank, key string) (uuid.UUID, error) {
	id := uuid.Nil
	query := fmt.Sprintf(`SELECT id FROM %s WHERE bank = $1 AND psql_key = $2`, c.table())
	err := c.scope(ctx, "cache.id", true, func(tx *sql.Tx) error {
		c.cfg.log.Debug(query)
		if err := tx.QueryRowContext(ctx, query, bank, key).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.logDiag(err, bank, key, nil)
				id = uuid.Nil
				return nil
			}
			return err
		}
		return nil
	})
	if err := c.degrade(err); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Ping verifies the database is reachable.
func (c *PGBytea) Ping(ctx context.Context) error {
	return c.ping(ctx)
}

// Close is a no-op: connections are scoped per operation and hold no
// state between calls.
func (c *PGBytea) Close(ctx context.Context) error {
	return nil
}

func (c *PGBytea) fetchRaw(ctx context.Context, bank, key string) ([]byte, bool, bool, error) {
	var blob []byte
	found := false
	query := fmt.Sprintf(`SELECT data FROM %s WHERE bank = $1 AND psql_key = $2`, c.table())
	err := c.scope(ctx, "cache.fetch", true, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, query, bank, key).Scan(&blob); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err := c.degrade(err); err != nil {
		return nil, false, false, err
	}
	return blob, false, found, nil
}

func (c *PGBytea) fetchCodec() Codec {
	return c.cfg.codec
}
