// Package sqlitedb is the SQLite-backed graph store: fact schema, source
// registry, atomic replace-on-reingest writes, read-only graph queries, and
// lifecycle management. One database file holds one store instance.
package sqlitedb

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"smaligraph/graph"
)

const poolSize = 10

// DB implements graph.Store on a single SQLite database file. Reads run on
// pooled connections and are safe for concurrent callers; writes serialize
// on SQLite's write lock via immediate transactions.
type DB struct {
	pool *sqlitex.Pool
}

var _ graph.Store = (*DB)(nil)

// Open opens (creating if needed) the graph database at path.
func Open(path string) (*DB, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenWAL,
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			for _, pragma := range []string{
				"PRAGMA busy_timeout = 10000",
				"PRAGMA synchronous = NORMAL",
			} {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return err
				}
			}
			return nil
		},
	})
	if err != nil {
		return nil, graph.E(graph.ErrConnection, "open graph database "+path, err)
	}
	db := &DB{pool: pool}
	if err := db.migrate(context.Background()); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return db, nil
}

// Close releases all database connections.
func (d *DB) Close() error {
	return d.pool.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	conn, err := d.take(ctx)
	if err != nil {
		return err
	}
	defer d.pool.Put(conn)
	if err := sqlitex.ExecuteScript(conn, schemaDDL, nil); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (d *DB) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := d.pool.Take(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, graph.E(graph.ErrCancelled, "acquire connection", ctx.Err())
		}
		return nil, graph.E(graph.ErrConnection, "acquire connection", err)
	}
	return conn, nil
}

// exec runs a statement with no result rows.
func exec(conn *sqlite.Conn, query string, args ...any) error {
	return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
}

// queryID runs a single-column id lookup, reporting whether a row matched.
func queryID(conn *sqlite.Conn, query string, args ...any) (id int64, ok bool, err error) {
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id = stmt.ColumnInt64(0)
			ok = true
			return nil
		},
	})
	return id, ok, err
}

// getOrCreateSource registers a source name, returning its id. The UNIQUE
// constraint on sources.name makes concurrent registration safe: losers of
// the insert race read the winner's row.
func getOrCreateSource(conn *sqlite.Conn, name string) (int64, error) {
	if err := exec(conn, `INSERT INTO sources (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("register source %s: %w", name, err)
	}
	id, ok, err := queryID(conn, `SELECT id FROM sources WHERE name = ?`, name)
	if err != nil {
		return 0, fmt.Errorf("look up source %s: %w", name, err)
	}
	if !ok {
		return 0, graph.E(graph.ErrMissingField, "look up source "+name, nil)
	}
	return id, nil
}

// sourceID resolves a source name without creating it.
func sourceID(conn *sqlite.Conn, name string) (int64, bool, error) {
	return queryID(conn, `SELECT id FROM sources WHERE name = ?`, name)
}

// GetAllSources enumerates every registered source name.
func (d *DB) GetAllSources(ctx context.Context) (map[string]struct{}, error) {
	conn, err := d.take(ctx)
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	names := make(map[string]struct{})
	err = sqlitex.Execute(conn, `SELECT name FROM sources`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			names[stmt.ColumnText(0)] = struct{}{}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return names, nil
}

// Loaded reports which fact kinds completed ingestion for the source.
func (d *DB) Loaded(ctx context.Context, source string) ([]graph.LoadKind, error) {
	conn, err := d.take(ctx)
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	var kinds []graph.LoadKind
	err = sqlitex.Execute(conn,
		`SELECT ls.kind FROM load_status AS ls
		 JOIN sources AS s ON s.id = ls.source
		 WHERE s.name = ? ORDER BY ls.kind`,
		&sqlitex.ExecOptions{
			Args: []any{source},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				kinds = append(kinds, graph.LoadKind(stmt.ColumnInt64(0)))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("load status for %s: %w", source, err)
	}
	return kinds, nil
}

// setMeta upserts one companion bookkeeping row.
func setMeta(conn *sqlite.Conn, key, value string) error {
	return exec(conn,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
}
