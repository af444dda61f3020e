package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Provisioning the database and table is normally the operator's job; the
// backends assume the table exists. InitSchema is a convenience for
// bootstrap scripts and integration tests that executes the documented
// DDL: the cache table, its bank and key indexes, and the trigger that
// advances data_changed only when the payload actually changes.

func (b *pgBackend) initSchema(ctx context.Context, jsonb bool) error {
	table := b.table()
	idx := func(suffix string) string {
		return pgx.Identifier{fmt.Sprintf("idx_%s_%s", b.opts.Table, suffix)}.Sanitize()
	}

	var stmts []string
	if jsonb {
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			bank varchar(255) NOT NULL,
			psql_key varchar(255) NOT NULL,
			data jsonb,
			data_changed timestamp DEFAULT now(),
			encoded boolean DEFAULT false,
			PRIMARY KEY (bank, psql_key)
		)`, table))
	} else {
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			bank varchar(255) NOT NULL,
			psql_key varchar(255) NOT NULL,
			data bytea,
			id uuid DEFAULT gen_random_uuid(),
			data_changed timestamp DEFAULT now(),
			PRIMARY KEY (bank, psql_key)
		)`, table))
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (bank)`, idx("bank"), table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (psql_key)`, idx("psql_key"), table),
	)
	if jsonb {
		stmts = append(stmts,
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gin (data) WITH (fastupdate=on)`, idx("data"), table))
	}
	stmts = append(stmts,
		`CREATE OR REPLACE FUNCTION data_changed() RETURNS trigger
			LANGUAGE plpgsql
			AS $$
		BEGIN
		NEW.data_changed := current_timestamp;
		RETURN NEW;
		END;
		$$`,
		fmt.Sprintf(`DROP TRIGGER IF EXISTS trigger_data_changed ON %s`, table),
		fmt.Sprintf(`CREATE TRIGGER trigger_data_changed
			BEFORE UPDATE ON %s
			FOR EACH ROW
			WHEN (OLD.data IS DISTINCT FROM NEW.data)
			EXECUTE PROCEDURE data_changed()`, table),
	)

	return b.scope(ctx, "cache.init_schema", true, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			b.cfg.log.Debug(stmt)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// InitSchema creates the bytea cache table, indexes, and trigger if they
// do not already exist.
func (c *PGBytea) InitSchema(ctx context.Context) error {
	return c.initSchema(ctx, false)
}

// InitSchema creates the jsonb cache table, indexes, and trigger if they
// do not already exist.
func (c *PGJSONB) InitSchema(ctx context.Context) error {
	return c.initSchema(ctx, true)
}
