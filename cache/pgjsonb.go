package cache

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// PGJSONB is a minion data cache backend that persists payloads in a
// postgres jsonb column. Byte payloads that are not valid UTF-8 text are
// base64-encoded first, and an encoded flag on the row records that the
// stored JSON string stands in for raw bytes so Fetch can reverse the
// transformation exactly.
type PGJSONB struct {
	pgBackend
}

var _ Backend = (*PGJSONB)(nil)

// NewPGJSONB builds a jsonb-column backend from host-supplied options.
// See ResolveOptions for the recognized option names and defaults.
func NewPGJSONB(opts map[string]any, options ...Option) *PGJSONB {
	return &PGJSONB{pgBackend{
		opts:    ResolveOptions(opts),
		cfg:     applyOptions(options),
		variant: "pgjsonb",
	}}
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// encodeJSONValue renders value as the JSON text stored in the data
// column. Byte slices holding valid UTF-8 are stored as JSON strings;
// anything else binary is base64-encoded with the encoded flag set.
func encodeJSONValue(value any) (data []byte, encoded bool, err error) {
	if b, ok := value.([]byte); ok {
		if utf8.Valid(b) {
			data, err = json.Marshal(string(b))
			return data, false, err
		}
		data, err = json.Marshal(base64.StdEncoding.EncodeToString(b))
		return data, true, err
	}
	data, err = json.Marshal(value)
	return data, false, err
}

// decodeJSONValue reverses encodeJSONValue: it returns the raw bytes when
// the row was base64-encoded, otherwise the decoded JSON value.
func decodeJSONValue(data []byte, encoded bool) (any, error) {
	if encoded {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(s)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Store upserts value under (bank, key), recording whether the payload
// had to be base64-encoded. Statement failures are logged with full
// diagnostic context and swallowed.
func (c *PGJSONB) Store(ctx context.Context, bank, key string, value any) error {
	data, encoded, err := encodeJSONValue(value)
	if err != nil {
		c.logDiag(err, bank, key, value)
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (bank, psql_key, data, encoded)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (bank, psql_key) DO UPDATE
		  SET data = EXCLUDED.data,
		   encoded = EXCLUDED.encoded`, c.table())
	err = c.scope(ctx, "cache.store", true, func(tx *sql.Tx) error {
		c.cfg.log.Debug(query)
		if _, err := tx.ExecContext(ctx, query, bank, key, string(data), encoded); err != nil {
			c.logDiag(err, bank, key, string(data))
		}
		return nil
	})
	return c.degrade(err)
}

// Fetch returns the value stored under (bank, key), reversing the base64
// transformation when the row is flagged encoded. A missing row, a decode
// failure, or any statement error degrades to an empty map.
func (c *PGJSONB) Fetch(ctx context.Context, bank, key string) (any, error) {
	out := any(map[string]any{})
	query := fmt.Sprintf(`SELECT data, encoded FROM %s WHERE bank = $1 AND psql_key = $2`, c.table())
	err := c.scope(ctx, "cache.fetch", true, func(tx *sql.Tx) error {
		c.cfg.log.Debug(query)
		var data []byte
		var encoded bool
		if err := tx.QueryRowContext(ctx, query, bank, key).Scan(&data, &encoded); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		v, err := decodeJSONValue(data, encoded)
		if err != nil {
			c.logDiag(err, bank, key, string(data))
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
func (c *PGJSONB) Flush(ctx context.Context, bank, key string) (bool, error) {
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
func (c *PGJSONB) List(ctx context.Context, bank string) ([]string, error) {
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

// Contains reports whether bank holds exactly one entry for key.
func (c *PGJSONB) Contains(ctx context.Context, bank, key string) (bool, error) {
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
// (bank, key) last changed, or 0 when absent.
func (c *PGJSONB) Updated(ctx context.Context, bank, key string) (int64, error) {
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

// Ping verifies the database is reachable.
func (c *PGJSONB) Ping(ctx context.Context) error {
	return c.ping(ctx)
}

// Close is a no-op: connections are scoped per operation and hold no
// state between calls.
func (c *PGJSONB) Close(ctx context.Context) error {
	return nil
}

func (c *PGJSONB) fetchRaw(ctx context.Context, bank, key string) ([]byte, bool, bool, error) {
	var data []byte
	var encoded bool
	found := false
	query := fmt.Sprintf(`SELECT data, encoded FROM %s WHERE bank = $1 AND psql_key = $2`, c.table())
	err := c.scope(ctx, "cache.fetch", true, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, query, bank, key).Scan(&data, &encoded); err != nil {
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
	if !found {
		return nil, false, false, nil
	}
	if encoded {
		raw, err := decodeJSONValue(data, true)
		if err != nil {
			return nil, false, false, nil
		}
		return raw.([]byte), true, true, nil
	}
	return data, false, true, nil
}

func (c *PGJSONB) fetchCodec() Codec {
	return jsonCodec{}
}
