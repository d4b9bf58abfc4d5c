package sqlitedb

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"smaligraph/graph"
	"smaligraph/smali"
)

// ReplaceSource atomically replaces the source's stored facts with the batch.
// Prior edges discovered by the source, facts it owns, and its load status
// are deleted and the new batch inserted inside one immediate transaction,
// so concurrent readers observe either the old state or the new one.
//
// A companion summary row is written after the facts commit; its failure is
// reported as graph.ErrMetaUpdate and does not roll the facts back.
func (d *DB) ReplaceSource(ctx context.Context, source string, batch *graph.FactBatch) error {
	if batch == nil {
		batch = graph.NewFactBatch()
	}
	conn, err := d.take(ctx)
	if err != nil {
		return err
	}
	defer d.pool.Put(conn)

	if err := d.replaceFacts(ctx, conn, source, batch); err != nil {
		return err
	}

	counts := batch.Counts()
	summary := fmt.Sprintf("classes=%d methods=%d calls=%d supers=%d interfaces=%d",
		counts.Classes, counts.Methods, counts.Calls, counts.Supers, counts.Interfaces)
	if merr := setMeta(conn, "import:"+source, summary); merr != nil {
		return graph.E(graph.ErrMetaUpdate, "record import summary for "+source, merr)
	}
	return nil
}

func (d *DB) replaceFacts(ctx context.Context, conn *sqlite.Conn, source string, batch *graph.FactBatch) (err error) {
	if err := ctx.Err(); err != nil {
		return graph.E(graph.ErrCancelled, "replace facts for "+source, err)
	}
	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin replace for %s: %w", source, err)
	}
	defer endFn(&err)

	srcID, err := getOrCreateSource(conn, source)
	if err != nil {
		return err
	}
	if err = deleteSourceRows(conn, srcID); err != nil {
		return fmt.Errorf("clear prior facts for %s: %w", source, err)
	}

	w := &batchWriter{
		conn:    conn,
		srcID:   srcID,
		classes: make(map[smali.ClassName]int64),
		methods: make(map[methodIdent]int64),
	}
	if err = w.insert(batch); err != nil {
		return fmt.Errorf("insert facts for %s: %w", source, err)
	}
	for _, kind := range graph.AllLoadKinds {
		if err = exec(conn, `INSERT INTO load_status (source, kind) VALUES (?, ?)`, srcID, int64(kind)); err != nil {
			return fmt.Errorf("record load status for %s: %w", source, err)
		}
	}
	return nil
}

// deleteSourceRows removes edges discovered by the source, then facts it
// owns, then its load status. The sources row itself stays registered.
func deleteSourceRows(conn *sqlite.Conn, srcID int64) error {
	for _, q := range []string{
		`DELETE FROM calls WHERE source = ?`,
		`DELETE FROM supers WHERE source = ?`,
		`DELETE FROM interfaces WHERE source = ?`,
		`DELETE FROM methods WHERE source = ?`,
		`DELETE FROM classes WHERE source = ?`,
		`DELETE FROM load_status WHERE source = ?`,
	} {
		if err := exec(conn, q, srcID); err != nil {
			return err
		}
	}
	return nil
}

type methodIdent struct {
	class smali.ClassName
	name  string
	args  string
}

// batchWriter inserts one batch inside an open transaction, resolving fact
// references as it goes. Classes and methods referenced by an edge but not
// defined anywhere get a placeholder fact owned by the discovering source,
// so edges always land on concrete rows.
type batchWriter struct {
	conn    *sqlite.Conn
	srcID   int64
	classes map[smali.ClassName]int64
	methods map[methodIdent]int64
}

func (w *batchWriter) insert(batch *graph.FactBatch) error {
	for _, c := range batch.Classes {
		id, err := w.insertClass(c.Name, c.AccessFlags)
		if err != nil {
			return err
		}
		w.classes[c.Name] = id
	}
	for _, m := range batch.Methods {
		classID, err := w.resolveClass(m.Class, smali.AccPublic)
		if err != nil {
			return err
		}
		id, err := w.insertMethod(classID, m.Name, m.Args, m.Ret, m.AccessFlags)
		if err != nil {
			return err
		}
		w.methods[methodIdent{m.Class, m.Name, m.Args}] = id
	}
	for _, s := range batch.Supers {
		parent, err := w.resolveClass(s.Parent, smali.AccPublic)
		if err != nil {
			return err
		}
		child, err := w.resolveClass(s.Child, smali.AccPublic)
		if err != nil {
			return err
		}
		if err := exec(w.conn, `INSERT INTO supers (parent, child, source) VALUES (?, ?, ?)`, parent, child, w.srcID); err != nil {
			return err
		}
	}
	for _, i := range batch.Interfaces {
		iface, err := w.resolveClass(i.Interface, smali.AccPublic|smali.AccInterface)
		if err != nil {
			return err
		}
		class, err := w.resolveClass(i.Class, smali.AccPublic)
		if err != nil {
			return err
		}
		if err := exec(w.conn, `INSERT INTO interfaces (interface, class, source) VALUES (?, ?, ?)`, iface, class, w.srcID); err != nil {
			return err
		}
	}
	for _, c := range batch.Calls {
		caller, err := w.resolveMethod(methodIdent{c.CallerClass, c.CallerName, c.CallerArgs})
		if err != nil {
			return err
		}
		callee, err := w.resolveMethod(methodIdent{c.CalleeClass, c.CalleeName, c.CalleeArgs})
		if err != nil {
			return err
		}
		if err := exec(w.conn, `INSERT INTO calls (caller, callee, source) VALUES (?, ?, ?)`, caller, callee, w.srcID); err != nil {
			return err
		}
	}
	return nil
}

func (w *batchWriter) insertClass(name smali.ClassName, flags smali.AccessFlags) (int64, error) {
	err := exec(w.conn, `INSERT INTO classes (name, access_flags, source) VALUES (?, ?, ?)`,
		string(name), int64(flags), w.srcID)
	if err != nil {
		return 0, fmt.Errorf("insert class %s: %w", name, err)
	}
	return w.conn.LastInsertRowID(), nil
}

func (w *batchWriter) insertMethod(classID int64, name, args, ret string, flags smali.AccessFlags) (int64, error) {
	err := exec(w.conn, `INSERT INTO methods (class, name, args, ret, access_flags, source) VALUES (?, ?, ?, ?, ?, ?)`,
		classID, name, args, ret, int64(flags), w.srcID)
	if err != nil {
		return 0, fmt.Errorf("insert method %s: %w", name, err)
	}
	return w.conn.LastInsertRowID(), nil
}

// resolveClass finds the class by name, preferring the batch's own facts,
// then the lowest-id definition from any other source, creating a
// placeholder when no definition exists.
func (w *batchWriter) resolveClass(name smali.ClassName, placeholderFlags smali.AccessFlags) (int64, error) {
	if id, ok := w.classes[name]; ok {
		return id, nil
	}
	id, ok, err := queryID(w.conn, `SELECT id FROM classes WHERE name = ? ORDER BY id LIMIT 1`, string(name))
	if err != nil {
		return 0, fmt.Errorf("resolve class %s: %w", name, err)
	}
	if !ok {
		if id, err = w.insertClass(name, placeholderFlags); err != nil {
			return 0, err
		}
	}
	w.classes[name] = id
	return id, nil
}

// resolveMethod finds a call endpoint by (class, name, args), creating a
// placeholder method (and class, if needed) when the callee is not defined
// by any loaded source.
func (w *batchWriter) resolveMethod(key methodIdent) (int64, error) {
	if id, ok := w.methods[key]; ok {
		return id, nil
	}
	id, ok, err := queryID(w.conn,
		`SELECT m.id FROM methods AS m
		 JOIN classes AS c ON c.id = m.class
		 WHERE c.name = ? AND m.name = ? AND m.args = ?
		 ORDER BY m.id LIMIT 1`,
		string(key.class), key.name, key.args)
	if err != nil {
		return 0, fmt.Errorf("resolve method %s->%s: %w", key.class, key.name, err)
	}
	if !ok {
		classID, cerr := w.resolveClass(key.class, smali.AccPublic)
		if cerr != nil {
			return 0, cerr
		}
		if id, err = w.insertMethod(classID, key.name, key.args, "", smali.AccPublic); err != nil {
			return 0, err
		}
	}
	w.methods[key] = id
	return id, nil
}
