package sqlitedb

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"smaligraph/graph"
	"smaligraph/smali"
)

// scanClassSpec reads (name, access_flags, source_name) columns.
func scanClassSpec(stmt *sqlite.Stmt) (graph.ClassSpec, error) {
	if stmt.ColumnType(0) == sqlite.TypeNull {
		return graph.ClassSpec{}, graph.E(graph.ErrMissingField, "scan class row", nil)
	}
	return graph.ClassSpec{
		Name:        smali.ClassName(stmt.ColumnText(0)),
		AccessFlags: smali.AccessFlags(stmt.ColumnInt64(1)),
		Source:      stmt.ColumnText(2),
	}, nil
}

// scanMethodSpec reads (class_name, name, args, ret, access_flags,
// source_name) columns.
func scanMethodSpec(stmt *sqlite.Stmt) (graph.MethodSpec, error) {
	for i := 0; i < 4; i++ {
		if stmt.ColumnType(i) == sqlite.TypeNull {
			return graph.MethodSpec{}, graph.E(graph.ErrMissingField, "scan method row", nil)
		}
	}
	return graph.MethodSpec{
		Class:       smali.ClassName(stmt.ColumnText(0)),
		Name:        stmt.ColumnText(1),
		Signature:   stmt.ColumnText(2),
		Ret:         stmt.ColumnText(3),
		AccessFlags: smali.AccessFlags(stmt.ColumnInt64(4)),
		Source:      stmt.ColumnText(5),
	}, nil
}

// filterSourceID resolves an optional source-name filter. ok is false when a
// filter names an unknown source, in which case the query must return empty
// rather than silently widen.
func filterSourceID(conn *sqlite.Conn, name string) (id int64, filtered, ok bool, err error) {
	if name == "" {
		return 0, false, true, nil
	}
	id, found, err := sourceID(conn, name)
	if err != nil {
		return 0, false, false, fmt.Errorf("resolve source filter %s: %w", name, err)
	}
	return id, true, found, nil
}

// FindChildClassesOf returns the direct children of the parent class via
// stored inheritance edges. source, when non-empty, restricts to edges
// discovered in that source; parent.Source restricts which definition of the
// parent name anchors the query.
func (d *DB) FindChildClassesOf(ctx context.Context, parent graph.ClassSearch, source string) ([]graph.ClassSpec, error) {
	return d.oneHop(ctx, parent, source,
		`SELECT DISTINCT ch.name, ch.access_flags, chs.name
		 FROM supers AS sp
		 JOIN classes AS p   ON p.id = sp.parent
		 JOIN classes AS ch  ON ch.id = sp.child
		 JOIN sources AS chs ON chs.id = ch.source`)
}

// FindClassesImplementing returns the classes directly declaring the
// interface. Superinterfaces are not expanded; walk them with repeated calls.
func (d *DB) FindClassesImplementing(ctx context.Context, iface graph.ClassSearch, source string) ([]graph.ClassSpec, error) {
	return d.oneHop(ctx, iface, source,
		`SELECT DISTINCT ch.name, ch.access_flags, chs.name
		 FROM interfaces AS sp
		 JOIN classes AS p   ON p.id = sp.interface
		 JOIN classes AS ch  ON ch.id = sp.class
		 JOIN sources AS chs ON chs.id = ch.source`)
}

func (d *DB) oneHop(ctx context.Context, anchor graph.ClassSearch, edgeSource, baseQuery string) ([]graph.ClassSpec, error) {
	conn, err := d.take(ctx)
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	query := baseQuery + ` WHERE p.name = ?`
	args := []any{string(smali.NormalizeClass(string(anchor.Name)))}

	ownerID, ownerFiltered, ownerOK, err := filterSourceID(conn, anchor.Source)
	if err != nil {
		return nil, err
	}
	edgeID, edgeFiltered, edgeOK, err := filterSourceID(conn, edgeSource)
	if err != nil {
		return nil, err
	}
	if !ownerOK || !edgeOK {
		return nil, nil
	}
	if ownerFiltered {
		query += ` AND p.source = ?`
		args = append(args, ownerID)
	}
	if edgeFiltered {
		query += ` AND sp.source = ?`
		args = append(args, edgeID)
	}
	query += ` ORDER BY ch.name`

	var out []graph.ClassSpec
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			spec, err := scanClassSpec(stmt)
			if err != nil {
				return err
			}
			out = append(out, spec)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("one-hop query for %s: %w", anchor.Name, err)
	}
	return out, nil
}

// FindClassesWithMethod returns the classes defining a method with the given
// name. signature, when non-nil, is an exact argument-descriptor match (the
// empty string matches zero-argument methods). source restricts to classes
// owned by that source.
func (d *DB) FindClassesWithMethod(ctx context.Context, name string, signature *string, source string) ([]graph.ClassSpec, error) {
	conn, err := d.take(ctx)
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	query := `SELECT DISTINCT c.name, c.access_flags, s.name
	          FROM methods AS m
	          JOIN classes AS c ON c.id = m.class
	          JOIN sources AS s ON s.id = c.source
	          WHERE m.name = ?`
	args := []any{name}
	if signature != nil {
		query += ` AND m.args = ?`
		args = append(args, *signature)
	}
	srcID, filtered, ok, err := filterSourceID(conn, source)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if filtered {
		query += ` AND c.source = ?`
		args = append(args, srcID)
	}
	query += ` ORDER BY c.name`

	var out []graph.ClassSpec
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			spec, err := scanClassSpec(stmt)
			if err != nil {
				return err
			}
			out = append(out, spec)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("find classes with method %s: %w", name, err)
	}
	return out, nil
}

// GetClassesFor lists every class owned by the source, in name order. An
// unknown source yields an empty result.
func (d *DB) GetClassesFor(ctx context.Context, source string) ([]smali.ClassName, error) {
	conn, err := d.take(ctx)
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	srcID, _, ok, err := filterSourceID(conn, source)
	if err != nil {
		return nil, err
	}
	if !ok || source == "" {
		return nil, nil
	}

	var out []smali.ClassName
	err = sqlitex.Execute(conn, `SELECT name FROM classes WHERE source = ? ORDER BY name`, &sqlitex.ExecOptions{
		Args: []any{srcID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			out = append(out, smali.ClassName(stmt.ColumnText(0)))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list classes for %s: %w", source, err)
	}
	return out, nil
}

// GetMethodsFor lists every method owned by the source, in insertion order.
func (d *DB) GetMethodsFor(ctx context.Context, source string) ([]graph.MethodSpec, error) {
	conn, err := d.take(ctx)
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	srcID, _, ok, err := filterSourceID(conn, source)
	if err != nil {
		return nil, err
	}
	if !ok || source == "" {
		return nil, nil
	}

	var out []graph.MethodSpec
	err = sqlitex.Execute(conn,
		`SELECT c.name, m.name, m.args, m.ret, m.access_flags, s.name
		 FROM methods AS m
		 JOIN classes AS c ON c.id = m.class
		 JOIN sources AS s ON s.id = m.source
		 WHERE m.source = ? ORDER BY m.id`,
		&sqlitex.ExecOptions{
			Args: []any{srcID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				spec, err := scanMethodSpec(stmt)
				if err != nil {
					return err
				}
				out = append(out, spec)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("list methods for %s: %w", source, err)
	}
	return out, nil
}
