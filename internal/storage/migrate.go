package storage

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose"
	"go.uber.org/multierr"
)

// MigrationLockKey serializes concurrent Migrate calls across processes.
const MigrationLockKey int64 = 0x7465787469_6d67

// Migrate applies every pending goose migration found in dir. goose takes no
// lock of its own, so the run holds a session advisory lock until it is done.
func Migrate(ctx context.Context, dsn, dir string) (err error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return errors.Wrap(err, "open migration db")
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "migration lock conn")
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, `select pg_advisory_lock($1)`, MigrationLockKey); err != nil {
		return errors.Wrap(err, "migration lock")
	}
	defer func() {
		_, uerr := conn.ExecContext(context.Background(), `select pg_advisory_unlock($1)`, MigrationLockKey)
		err = multierr.Append(err, errors.Wrap(uerr, "migration unlock"))
	}()

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "goose dialect")
	}
	if err := goose.Up(db, dir); err != nil {
		return errors.Wrapf(err, "migrate up from %s", dir)
	}
	return nil
}
