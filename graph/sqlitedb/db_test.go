package sqlitedb

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smaligraph/graph"
	"smaligraph/smali"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func class(name string) graph.ClassRecord {
	return graph.ClassRecord{Name: smali.ClassName(name), AccessFlags: smali.AccPublic}
}

func method(class, name, args string) graph.MethodRecord {
	return graph.MethodRecord{
		Class:       smali.ClassName(class),
		Name:        name,
		Args:        args,
		Ret:         "V",
		AccessFlags: smali.AccPublic,
	}
}

func call(fromClass, fromName, toClass, toName string) graph.CallRecord {
	return graph.CallRecord{
		CallerClass: smali.ClassName(fromClass),
		CallerName:  fromName,
		CalleeClass: smali.ClassName(toClass),
		CalleeName:  toName,
	}
}

func search(name string) graph.MethodSearch {
	return graph.MethodSearch{Name: name}
}

func pathStrings(paths []graph.MethodCallPath) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.String()
	}
	return out
}

func TestReplaceSourceRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := graph.NewFactBatch()
	b.AddClass(class("La/Main;"))
	b.AddClass(class("La/Helper;"))
	b.AddSuper(graph.SuperRecord{Child: "La/Main;", Parent: "La/Helper;"})
	b.AddMethod(method("La/Main;", "run", ""))
	b.AddMethod(method("La/Helper;", "help", ""))
	b.AddCall(call("La/Main;", "run", "La/Helper;", "help"))
	require.NoError(t, db.ReplaceSource(ctx, "app1", b))

	sources, err := db.GetAllSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"app1": {}}, sources)

	classes, err := db.GetClassesFor(ctx, "app1")
	require.NoError(t, err)
	assert.Equal(t, []smali.ClassName{"La/Helper;", "La/Main;"}, classes)

	methods, err := db.GetMethodsFor(ctx, "app1")
	require.NoError(t, err)
	require.Len(t, methods, 2)
	assert.Equal(t, "run", methods[0].Name)
	assert.Equal(t, "app1", methods[0].Source)

	kinds, err := db.Loaded(ctx, "app1")
	require.NoError(t, err)
	assert.Equal(t, graph.AllLoadKinds, kinds)

	kinds, err = db.Loaded(ctx, "never-ingested")
	require.NoError(t, err)
	assert.Empty(t, kinds)
}

func TestReplaceSourceIsAtomicSwap(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := graph.NewFactBatch()
	b.AddClass(class("La/Old;"))
	b.AddMethod(method("La/Old;", "gone", ""))
	require.NoError(t, db.ReplaceSource(ctx, "app1", b))

	b = graph.NewFactBatch()
	b.AddClass(class("La/New;"))
	require.NoError(t, db.ReplaceSource(ctx, "app1", b))

	classes, err := db.GetClassesFor(ctx, "app1")
	require.NoError(t, err)
	assert.Equal(t, []smali.ClassName{"La/New;"}, classes)

	methods, err := db.GetMethodsFor(ctx, "app1")
	require.NoError(t, err)
	assert.Empty(t, methods)

	// reingesting with an empty batch clears the source but keeps it known
	require.NoError(t, db.ReplaceSource(ctx, "app1", graph.NewFactBatch()))
	classes, err = db.GetClassesFor(ctx, "app1")
	require.NoError(t, err)
	assert.Empty(t, classes)
	sources, err := db.GetAllSources(ctx)
	require.NoError(t, err)
	assert.Contains(t, sources, "app1")
}

func TestReplaceSourceCancelled(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := graph.NewFactBatch()
	b.AddClass(class("La/Main;"))
	err := db.ReplaceSource(ctx, "app1", b)
	require.ErrorIs(t, err, graph.ErrCancelled)

	sources, err := db.GetAllSources(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestUndefinedCalleeGetsPlaceholder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := graph.NewFactBatch()
	b.AddClass(class("Lp/Caller;"))
	b.AddMethod(method("Lp/Caller;", "go", ""))
	b.AddCall(call("Lp/Caller;", "go", "Lframework/Hidden;", "api"))
	require.NoError(t, db.ReplaceSource(ctx, "app2", b))

	// the undefined callee class materializes as a fact owned by the
	// discovering source
	classes, err := db.GetClassesFor(ctx, "app2")
	require.NoError(t, err)
	assert.Equal(t, []smali.ClassName{"Lframework/Hidden;", "Lp/Caller;"}, classes)

	paths, err := db.FindCallers(ctx, search("api"), "", 1)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "Lp/Caller;->go()V -> Lframework/Hidden;->api()", paths[0].String())
}

func TestCalleeResolvesToExistingDefinition(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	lib := graph.NewFactBatch()
	lib.AddClass(class("Lq/Lib;"))
	lib.AddMethod(method("Lq/Lib;", "fn", ""))
	require.NoError(t, db.ReplaceSource(ctx, "lib", lib))

	app := graph.NewFactBatch()
	app.AddClass(class("Lp/App;"))
	app.AddMethod(method("Lp/App;", "main", ""))
	app.AddCall(call("Lp/App;", "main", "Lq/Lib;", "fn"))
	require.NoError(t, db.ReplaceSource(ctx, "app", app))

	// no placeholder: the edge landed on lib's definition
	classes, err := db.GetClassesFor(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, []smali.ClassName{"Lp/App;"}, classes)

	paths, err := db.FindCallers(ctx, search("fn"), "", 1)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Len(t, paths[0].Path, 2)
	assert.Equal(t, "app", paths[0].Path[0].Source)
	assert.Equal(t, "lib", paths[0].Path[1].Source)
}

func TestFindChildClassesOfIsDirectOnly(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := graph.NewFactBatch()
	b.AddClass(class("Lh/A;"))
	b.AddClass(class("Lh/B;"))
	b.AddClass(class("Lh/C;"))
	b.AddSuper(graph.SuperRecord{Child: "Lh/B;", Parent: "Lh/A;"})
	b.AddSuper(graph.SuperRecord{Child: "Lh/C;", Parent: "Lh/B;"})
	require.NoError(t, db.ReplaceSource(ctx, "app", b))

	specs, err := db.FindChildClassesOf(ctx, graph.ClassSearch{Name: "Lh/A;"}, "")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, smali.ClassName("Lh/B;"), specs[0].Name)

	// java dotted input is accepted
	specs, err = db.FindChildClassesOf(ctx, graph.ClassSearch{Name: "h.B"}, "")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, smali.ClassName("Lh/C;"), specs[0].Name)

	// an edge-source filter naming an unknown source is empty, not widened
	specs, err = db.FindChildClassesOf(ctx, graph.ClassSearch{Name: "Lh/A;"}, "nope")
	require.NoError(t, err)
	assert.Empty(t, specs)

	specs, err = db.FindChildClassesOf(ctx, graph.ClassSearch{Name: "Lh/A;"}, "app")
	require.NoError(t, err)
	assert.Len(t, specs, 1)
}

func TestFindClassesImplementing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := graph.NewFactBatch()
	b.AddClass(graph.ClassRecord{Name: "Li/Runnable;", AccessFlags: smali.AccPublic | smali.AccInterface})
	b.AddClass(class("Li/Task;"))
	b.AddClass(class("Li/Job;"))
	b.AddInterface(graph.InterfaceRecord{Class: "Li/Task;", Interface: "Li/Runnable;"})
	b.AddInterface(graph.InterfaceRecord{Class: "Li/Job;", Interface: "Li/Runnable;"})
	require.NoError(t, db.ReplaceSource(ctx, "app", b))

	specs, err := db.FindClassesImplementing(ctx, graph.ClassSearch{Name: "Li/Runnable;"}, "")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, smali.ClassName("Li/Job;"), specs[0].Name)
	assert.Equal(t, smali.ClassName("Li/Task;"), specs[1].Name)
}

func TestFindCallersBoundedDepth(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := graph.NewFactBatch()
	for _, c := range []string{"Lx/A;", "Lx/B;", "Lx/C;", "Lx/T;"} {
		b.AddClass(class(c))
	}
	b.AddMethod(method("Lx/A;", "a", ""))
	b.AddMethod(method("Lx/B;", "b", ""))
	b.AddMethod(method("Lx/C;", "c", ""))
	b.AddMethod(method("Lx/T;", "t", ""))
	b.AddCall(call("Lx/A;", "a", "Lx/B;", "b"))
	b.AddCall(call("Lx/B;", "b", "Lx/C;", "c"))
	b.AddCall(call("Lx/C;", "c", "Lx/T;", "t"))
	require.NoError(t, db.ReplaceSource(ctx, "app", b))

	paths, err := db.FindCallers(ctx, search("t"), "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Lx/C;->c()V -> Lx/T;->t()V",
		"Lx/B;->b()V -> Lx/C;->c()V -> Lx/T;->t()V",
	}, pathStrings(paths))

	paths, err = db.FindCallers(ctx, search("t"), "", 3)
	require.NoError(t, err)
	assert.Len(t, paths, 3)
	assert.Equal(t, "Lx/A;->a()V -> Lx/B;->b()V -> Lx/C;->c()V -> Lx/T;->t()V", paths[2].String())

	paths, err = db.FindCallers(ctx, search("t"), "", 0)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestTraversalTerminatesOnCycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := graph.NewFactBatch()
	b.AddClass(class("Lc/One;"))
	b.AddClass(class("Lc/Two;"))
	b.AddClass(class("Lc/Outside;"))
	b.AddMethod(method("Lc/One;", "m1", ""))
	b.AddMethod(method("Lc/Two;", "m2", ""))
	b.AddMethod(method("Lc/Outside;", "m3", ""))
	b.AddCall(call("Lc/One;", "m1", "Lc/Two;", "m2"))
	b.AddCall(call("Lc/Two;", "m2", "Lc/One;", "m1"))
	b.AddCall(call("Lc/Outside;", "m3", "Lc/One;", "m1"))
	require.NoError(t, db.ReplaceSource(ctx, "app", b))

	paths, err := db.FindCallers(ctx, search("m1"), "", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Lc/Two;->m2()V -> Lc/One;->m1()V",
		"Lc/Outside;->m3()V -> Lc/One;->m1()V",
	}, pathStrings(paths))

	paths, err = db.FindOutgoingCalls(ctx, search("m1"), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lc/One;->m1()V -> Lc/Two;->m2()V"}, pathStrings(paths))
}

func TestTraversalWiderThanOneIDChunk(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fanIn := idChunkSize + 100
	b := graph.NewFactBatch()
	b.AddClass(class("Lwide/Target;"))
	b.AddMethod(method("Lwide/Target;", "sink", ""))
	for i := 0; i < fanIn; i++ {
		cls := fmt.Sprintf("Lwide/C%04d;", i)
		b.AddClass(class(cls))
		b.AddMethod(method(cls, "emit", ""))
		b.AddCall(call(cls, "emit", "Lwide/Target;", "sink"))
	}
	require.NoError(t, db.ReplaceSource(ctx, "app", b))

	// depth 2 makes the second level's frontier (and the spec lookup)
	// span multiple id chunks
	paths, err := db.FindCallers(ctx, search("sink"), "", 2)
	require.NoError(t, err)
	require.Len(t, paths, fanIn)
	for _, p := range paths {
		require.Len(t, p.Path, 2)
	}
}

func TestFindCallersSourceFilter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	lib := graph.NewFactBatch()
	lib.AddClass(class("Ls/Lib;"))
	lib.AddMethod(method("Ls/Lib;", "target", ""))
	require.NoError(t, db.ReplaceSource(ctx, "lib", lib))

	for _, app := range []string{"app1", "app2"} {
		b := graph.NewFactBatch()
		cls := "Ls/" + app + ";"
		b.AddClass(class(cls))
		b.AddMethod(method(cls, "use", ""))
		b.AddCall(call(cls, "use", "Ls/Lib;", "target"))
		require.NoError(t, db.ReplaceSource(ctx, app, b))
	}

	paths, err := db.FindCallers(ctx, search("target"), "", 2)
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	paths, err = db.FindCallers(ctx, search("target"), "app2", 2)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "app2", paths[0].Path[0].Source)

	// an unknown edge source yields empty, never the unfiltered set
	paths, err = db.FindCallers(ctx, search("target"), "ghost", 2)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestMethodSearchVariants(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := graph.NewFactBatch()
	b.AddClass(class("Lv/A;"))
	b.AddClass(class("Lv/B;"))
	b.AddMethod(method("Lv/A;", "run", ""))
	b.AddMethod(method("Lv/A;", "run", "I"))
	b.AddMethod(method("Lv/B;", "run", ""))
	b.AddMethod(method("Lv/B;", "walk", ""))
	b.AddClass(class("Lv/C;"))
	b.AddMethod(method("Lv/C;", "probe", ""))
	b.AddCall(call("Lv/C;", "probe", "Lv/A;", "run"))
	require.NoError(t, db.ReplaceSource(ctx, "app", b))

	specs, err := db.FindClassesWithMethod(ctx, "run", nil, "")
	require.NoError(t, err)
	assert.Len(t, specs, 2)

	sig := "I"
	specs, err = db.FindClassesWithMethod(ctx, "run", &sig, "")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, smali.ClassName("Lv/A;"), specs[0].Name)

	// explicit empty signature matches zero-argument methods only
	empty := ""
	specs, err = db.FindClassesWithMethod(ctx, "run", &empty, "")
	require.NoError(t, err)
	assert.Len(t, specs, 2)
	specs, err = db.FindClassesWithMethod(ctx, "walk", &sig, "")
	require.NoError(t, err)
	assert.Empty(t, specs)

	// traversal roots narrow the same way
	paths, err := db.FindCallers(ctx, graph.MethodSearch{Name: "run", Class: "Lv/B;"}, "", 1)
	require.NoError(t, err)
	assert.Empty(t, paths)
	paths, err = db.FindCallers(ctx, graph.MethodSearch{Name: "run", Class: "Lv/A;", Signature: "", SignatureSet: true}, "", 1)
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestRemoveSourceKeepsForeignEdges(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	lib := graph.NewFactBatch()
	lib.AddClass(class("Lr/Lib;"))
	lib.AddMethod(method("Lr/Lib;", "fn", ""))
	require.NoError(t, db.ReplaceSource(ctx, "lib", lib))

	app := graph.NewFactBatch()
	app.AddClass(class("Lr/App;"))
	app.AddMethod(method("Lr/App;", "main", ""))
	app.AddCall(call("Lr/App;", "main", "Lr/Lib;", "fn"))
	require.NoError(t, db.ReplaceSource(ctx, "app", app))

	// removing the caller's source deletes its edge; the library is intact
	require.NoError(t, db.RemoveSource(ctx, "app"))
	paths, err := db.FindCallers(ctx, search("fn"), "", 1)
	require.NoError(t, err)
	assert.Empty(t, paths)
	classes, err := db.GetClassesFor(ctx, "lib")
	require.NoError(t, err)
	assert.Equal(t, []smali.ClassName{"Lr/Lib;"}, classes)

	sources, err := db.GetAllSources(ctx)
	require.NoError(t, err)
	assert.NotContains(t, sources, "app")

	// unknown and repeated removals are no-ops
	require.NoError(t, db.RemoveSource(ctx, "app"))
	require.NoError(t, db.RemoveSource(ctx, "ghost"))
}

func TestRemoveSourceLeavesDanglingForeignEdges(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	lib := graph.NewFactBatch()
	lib.AddClass(class("Ld/Lib;"))
	lib.AddMethod(method("Ld/Lib;", "fn", ""))
	require.NoError(t, db.ReplaceSource(ctx, "lib", lib))

	app := graph.NewFactBatch()
	app.AddClass(class("Ld/App;"))
	app.AddMethod(method("Ld/App;", "main", ""))
	app.AddCall(call("Ld/App;", "main", "Ld/Lib;", "fn"))
	require.NoError(t, db.ReplaceSource(ctx, "app", app))

	// removing the callee's owner leaves app's edge dangling; traversals
	// from app's side tolerate it rather than failing
	require.NoError(t, db.RemoveSource(ctx, "lib"))
	paths, err := db.FindOutgoingCalls(ctx, search("main"), 2)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestReingestReferencedSource(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	framework := graph.NewFactBatch()
	framework.AddClass(class("Landroid/os/Binder;"))
	framework.AddMethod(method("Landroid/os/Binder;", "transact", ""))
	require.NoError(t, db.ReplaceSource(ctx, "framework", framework))

	app := graph.NewFactBatch()
	app.AddClass(class("Lf/App;"))
	app.AddMethod(method("Lf/App;", "main", ""))
	app.AddCall(call("Lf/App;", "main", "Landroid/os/Binder;", "transact"))
	require.NoError(t, db.ReplaceSource(ctx, "app", app))

	// replacing the framework must succeed even though app's edge
	// resolved onto the old framework rows; that edge is left dangling
	require.NoError(t, db.ReplaceSource(ctx, "framework", framework))

	classes, err := db.GetClassesFor(ctx, "framework")
	require.NoError(t, err)
	assert.Equal(t, []smali.ClassName{"Landroid/os/Binder;"}, classes)

	// the stale edge points at the replaced row ids, so neither side of
	// the traversal errors or reports it
	paths, err := db.FindCallers(ctx, search("transact"), "", 1)
	require.NoError(t, err)
	assert.Empty(t, paths)
	paths, err = db.FindOutgoingCalls(ctx, search("main"), 1)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestWipe(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	b := graph.NewFactBatch()
	b.AddClass(class("Lw/A;"))
	b.AddMethod(method("Lw/A;", "m", ""))
	require.NoError(t, db.ReplaceSource(ctx, "app", b))

	require.NoError(t, db.Wipe(ctx))
	sources, err := db.GetAllSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, sources)
	kinds, err := db.Loaded(ctx, "app")
	require.NoError(t, err)
	assert.Empty(t, kinds)

	// idempotent, and the store is still usable afterwards
	require.NoError(t, db.Wipe(ctx))
	require.NoError(t, db.ReplaceSource(ctx, "app", b))
	classes, err := db.GetClassesFor(ctx, "app")
	require.NoError(t, err)
	assert.Len(t, classes, 1)
}

func TestReadsDuringForeignIngestion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	stable := graph.NewFactBatch()
	stable.AddClass(class("Lz/Stable;"))
	stable.AddMethod(method("Lz/Stable;", "m", ""))
	require.NoError(t, db.ReplaceSource(ctx, "stable", stable))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			b := graph.NewFactBatch()
			b.AddClass(class("Lz/Churn;"))
			if err := db.ReplaceSource(ctx, "churn", b); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		classes, err := db.GetClassesFor(ctx, "stable")
		require.NoError(t, err)
		assert.Equal(t, []smali.ClassName{"Lz/Stable;"}, classes)
	}
	wg.Wait()
}
