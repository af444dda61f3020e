package cache

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("salt-extras/cache")

// pgBackend carries the state shared by the pgbytea and pgjsonb variants:
// the resolved connection descriptor and the backend configuration.
type pgBackend struct {
	opts    Options
	cfg     config
	variant string
}

// table returns the configured table name as a quoted SQL identifier.
// The table name is the one piece of query text that cannot be a bind
// parameter; everything else is parameterized.
func (b *pgBackend) table() string {
	return pgx.Identifier{b.opts.Table}.Sanitize()
}

// scope opens a connection for exactly one logical operation and hands the
// caller a transaction on it. On every exit path the connection is torn
// down: the transaction is committed when commit is set and the body
// succeeded, rolled back otherwise, and the connection closed last. A
// database error from the body is logged, rolled back, and returned to the
// caller. Connection establishment failure is returned marked as
// ErrBackendUnavailable.
func (b *pgBackend) scope(ctx context.Context, op string, commit bool, fn func(tx *sql.Tx) error) error {
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(
		attribute.String("cache.variant", b.variant),
		attribute.String("cache.table", b.opts.Table),
	)

	db, err := sql.Open("pgx", b.opts.dsn())
	if err != nil {
		return unavailable(err, b.variant)
	}
	defer db.Close()

	// One physical connection per operation. No pooling, no reuse.
	conn, err := db.Conn(ctx)
	if err != nil {
		return unavailable(err, b.variant)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err, b.variant)
	}
	if err := fn(tx); err != nil {
		b.cfg.log.Error("%v", err)
		_ = tx.Rollback()
		return err
	}
	if commit {
		if err := tx.Commit(); err != nil {
			return errors.Wrap(err, "commit")
		}
		return nil
	}
	return tx.Rollback()
}

// degrade maps scope errors to the operation's benign default: only
// connection failures propagate.
func (b *pgBackend) degrade(err error) error {
	if err != nil && errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return nil
}

// ping verifies connectivity with a trivial statement.
func (b *pgBackend) ping(ctx context.Context) error {
	return b.scope(ctx, "cache.ping", true, func(tx *sql.Tx) error {
		var one int
		return tx.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	})
}

// logDiag emits the diagnostic context recorded alongside every absorbed
// statement failure: table, bank, key, and payload when present.
func (b *pgBackend) logDiag(err error, bank, key string, data any) {
	b.cfg.log.Error("%v", err)
	b.cfg.log.Error("table: %s", b.opts.Table)
	b.cfg.log.Error("bank: %s", bank)
	b.cfg.log.Error("psql_key: %s", key)
	if data != nil {
		b.cfg.log.Error("data: %v", data)
	}
}
