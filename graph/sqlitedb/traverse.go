package sqlitedb

import (
	"context"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"smaligraph/graph"
	"smaligraph/smali"
)

// maxTraversalEdges bounds how many call edges one traversal may expand.
// Dense graphs (obfuscated apps routing everything through a handful of
// helpers) can otherwise make a high-depth query explode; hitting the bound
// truncates the result set instead of running away.
const maxTraversalEdges = 100000

// idChunkSize caps how many ids one IN list carries. Frontiers and visited
// sets grow far past SQLite's host-parameter limit on dense graphs.
const idChunkSize = 500

// FindCallers walks reverse call edges breadth-first from every method
// matching the search, up to depth hops. One path is returned per discovered
// caller, in invocation order ending at the searched method. callSource,
// when non-empty, restricts traversal to call edges discovered in that
// source.
func (d *DB) FindCallers(ctx context.Context, method graph.MethodSearch, callSource string, depth int) ([]graph.MethodCallPath, error) {
	return d.traverse(ctx, method, callSource, depth, false)
}

// FindOutgoingCalls walks forward call edges breadth-first up to depth hops,
// returning one path per discovered callee, in invocation order starting at
// the searched method.
func (d *DB) FindOutgoingCalls(ctx context.Context, from graph.MethodSearch, depth int) ([]graph.MethodCallPath, error) {
	return d.traverse(ctx, from, "", depth, true)
}

func (d *DB) traverse(ctx context.Context, method graph.MethodSearch, callSource string, depth int, forward bool) ([]graph.MethodCallPath, error) {
	conn, err := d.take(ctx)
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	edgeID, edgeFiltered, edgeOK, err := filterSourceID(conn, callSource)
	if err != nil {
		return nil, err
	}
	if !edgeOK {
		return nil, nil
	}
	roots, err := resolveRootMethods(conn, method)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, nil
	}

	// BFS with a visited set for cycle safety and a parent pointer per node
	// for path reconstruction. The first discovered route to a node wins.
	parent := make(map[int64]int64)
	visited := make(map[int64]struct{}, len(roots))
	for _, r := range roots {
		visited[r] = struct{}{}
	}
	frontier := roots
	var discovered []int64
	expanded := 0

	for hop := 0; hop < depth && len(frontier) > 0 && expanded < maxTraversalEdges; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, graph.E(graph.ErrCancelled, "call traversal", err)
		}
		var next []int64
		err := forEachEdge(conn, frontier, edgeFiltered, edgeID, forward, func(from, to int64) {
			expanded++
			if _, seen := visited[to]; seen {
				return
			}
			visited[to] = struct{}{}
			parent[to] = from
			next = append(next, to)
			discovered = append(discovered, to)
		})
		if err != nil {
			return nil, err
		}
		frontier = next
	}

	if len(discovered) == 0 {
		return nil, nil
	}
	specs, err := loadMethodSpecs(conn, visited)
	if err != nil {
		return nil, err
	}

	paths := make([]graph.MethodCallPath, 0, len(discovered))
pathLoop:
	for _, node := range discovered {
		var hops []graph.MethodSpec
		for id, ok := node, true; ok; id, ok = lookupParent(parent, id) {
			spec, present := specs[id]
			if !present {
				// dangling edge left behind by a removed source
				continue pathLoop
			}
			hops = append(hops, spec)
		}
		// Reverse traversals already list caller-first; forward ones were
		// collected callee-first and need flipping.
		if forward {
			for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
				hops[i], hops[j] = hops[j], hops[i]
			}
		}
		paths = append(paths, graph.MethodCallPath{Path: hops})
	}
	return paths, nil
}

func lookupParent(parent map[int64]int64, id int64) (int64, bool) {
	p, ok := parent[id]
	return p, ok
}

// resolveRootMethods finds every method id matching the search filters, in
// id order.
func resolveRootMethods(conn *sqlite.Conn, method graph.MethodSearch) ([]int64, error) {
	query := `SELECT m.id FROM methods AS m
	          JOIN classes AS c ON c.id = m.class
	          WHERE m.name = ?`
	args := []any{method.Name}
	if method.Class != "" {
		query += ` AND c.name = ?`
		args = append(args, string(smali.NormalizeClass(string(method.Class))))
	}
	if method.SignatureSet {
		query += ` AND m.args = ?`
		args = append(args, method.Signature)
	}
	if method.Source != "" {
		srcID, found, err := sourceID(conn, method.Source)
		if err != nil {
			return nil, fmt.Errorf("resolve source filter %s: %w", method.Source, err)
		}
		if !found {
			return nil, nil
		}
		query += ` AND m.source = ?`
		args = append(args, srcID)
	}
	query += ` ORDER BY m.id`

	var ids []int64
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ids = append(ids, stmt.ColumnInt64(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("resolve traversal roots for %s: %w", method.Name, err)
	}
	return ids, nil
}

// forEachEdge visits every call edge touching the frontier, in stored order
// per frontier chunk. Reverse walks match on callee and report
// (caller, callee); forward walks match on caller and report
// (callee, caller) flipped so `to` is always the node being discovered.
func forEachEdge(conn *sqlite.Conn, frontier []int64, edgeFiltered bool, edgeID int64, forward bool, visit func(from, to int64)) error {
	matchCol, otherCol := "callee", "caller"
	if forward {
		matchCol, otherCol = "caller", "callee"
	}
	for _, chunk := range chunkIDs(frontier) {
		query := fmt.Sprintf(`SELECT %s, %s FROM calls WHERE %s IN (%s)`,
			matchCol, otherCol, matchCol, placeholders(len(chunk)))
		args := make([]any, 0, len(chunk)+1)
		for _, id := range chunk {
			args = append(args, id)
		}
		if edgeFiltered {
			query += ` AND source = ?`
			args = append(args, edgeID)
		}
		query += ` ORDER BY rowid`

		err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				visit(stmt.ColumnInt64(0), stmt.ColumnInt64(1))
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("expand call edges: %w", err)
		}
	}
	return nil
}

func chunkIDs(ids []int64) [][]int64 {
	var chunks [][]int64
	for len(ids) > idChunkSize {
		chunks = append(chunks, ids[:idChunkSize])
		ids = ids[idChunkSize:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// loadMethodSpecs fetches the full record for every method id in ids.
func loadMethodSpecs(conn *sqlite.Conn, ids map[int64]struct{}) (map[int64]graph.MethodSpec, error) {
	all := make([]int64, 0, len(ids))
	for id := range ids {
		all = append(all, id)
	}

	specs := make(map[int64]graph.MethodSpec, len(all))
	for _, chunk := range chunkIDs(all) {
		query := fmt.Sprintf(
			`SELECT m.id, c.name, m.name, m.args, m.ret, m.access_flags, s.name
			 FROM methods AS m
			 JOIN classes AS c ON c.id = m.class
			 JOIN sources AS s ON s.id = m.source
			 WHERE m.id IN (%s)`, placeholders(len(chunk)))
		args := make([]any, 0, len(chunk))
		for _, id := range chunk {
			args = append(args, id)
		}
		err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				specs[stmt.ColumnInt64(0)] = graph.MethodSpec{
					Class:       smali.ClassName(stmt.ColumnText(1)),
					Name:        stmt.ColumnText(2),
					Signature:   stmt.ColumnText(3),
					Ret:         stmt.ColumnText(4),
					AccessFlags: smali.AccessFlags(stmt.ColumnInt64(5)),
					Source:      stmt.ColumnText(6),
				}
				return nil
			},
		})
		if err != nil {
			return nil, fmt.Errorf("load path methods: %w", err)
		}
	}
	return specs, nil
}
