package sqlitedb

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite/sqlitex"
)

// Wipe deletes every row in every relation, leaving an empty but usable
// store. Idempotent.
func (d *DB) Wipe(ctx context.Context) (err error) {
	conn, err := d.take(ctx)
	if err != nil {
		return err
	}
	defer d.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin wipe: %w", err)
	}
	defer endFn(&err)

	for _, q := range []string{
		`DELETE FROM calls`,
		`DELETE FROM supers`,
		`DELETE FROM interfaces`,
		`DELETE FROM methods`,
		`DELETE FROM classes`,
		`DELETE FROM load_status`,
		`DELETE FROM meta`,
		`DELETE FROM sources`,
	} {
		if err = exec(conn, q); err != nil {
			return fmt.Errorf("wipe: %w", err)
		}
	}
	return nil
}

// RemoveSource deletes every edge the source discovered, then every fact it
// owns, then its registration. Edges discovered by other sources that
// reference the removed facts are intentionally left in place; their
// endpoints dangle until the referencing source is reingested or removed.
// Removing an unknown source is a no-op.
func (d *DB) RemoveSource(ctx context.Context, source string) (err error) {
	conn, err := d.take(ctx)
	if err != nil {
		return err
	}
	defer d.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin removal of %s: %w", source, err)
	}
	defer endFn(&err)

	srcID, found, err := sourceID(conn, source)
	if err != nil {
		return fmt.Errorf("remove source %s: %w", source, err)
	}
	if !found {
		return nil
	}
	if err = deleteSourceRows(conn, srcID); err != nil {
		return fmt.Errorf("remove source %s: %w", source, err)
	}
	if err = exec(conn, `DELETE FROM meta WHERE key = ?`, "import:"+source); err != nil {
		return fmt.Errorf("remove source %s: %w", source, err)
	}
	if err = exec(conn, `DELETE FROM sources WHERE id = ?`, srcID); err != nil {
		return fmt.Errorf("remove source %s: %w", source, err)
	}
	return nil
}
