// Package ingest walks disassembled bytecode trees, parses each artifact,
// and stages the extracted facts for an atomic replace in the graph store.
package ingest

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"smaligraph/graph"
	"smaligraph/smali"
)

// Summary reports one completed ingestion run.
type Summary struct {
	Source    string
	Artifacts int
	Skipped   int
	Counts    graph.FactCounts
}

// Engine stages facts from disassembly artifacts into a graph store. The
// zero fields get sensible defaults from New.
type Engine struct {
	Store graph.Importer

	// Parse turns one artifact into a parsed class. Defaults to
	// smali.Parse.
	Parse func(io.Reader) (*smali.Class, error)

	// Sink receives one progress event per artifact.
	Sink graph.Sink

	// SkipClass, when set, suppresses classes by descriptor name before
	// any of their facts are staged.
	SkipClass func(name string) bool

	Log *slog.Logger
}

// New creates an engine writing to store, with default parser, no progress
// reporting, and the default logger.
func New(store graph.Importer) *Engine {
	return &Engine{
		Store: store,
		Parse: smali.Parse,
		Sink:  graph.NopSink{},
		Log:   slog.Default(),
	}
}

// ImportDirectory ingests every .smali artifact under dir as the given
// source. Artifacts are visited in deterministic path order. A malformed
// artifact is skipped with a warning; an unreadable one aborts the run. The
// store is only touched once everything parsed, in a single atomic replace,
// so cancellation mid-walk commits nothing.
func (e *Engine) ImportDirectory(ctx context.Context, source, dir string) (*Summary, error) {
	paths, err := collectArtifacts(dir)
	if err != nil {
		return nil, err
	}

	batch := graph.NewFactBatch()
	sum := &Summary{Source: source}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, graph.E(graph.ErrCancelled, "import "+source, err)
		}
		before := batch.Counts()
		skipped, err := e.stageArtifact(batch, path)
		if err != nil {
			return nil, err
		}
		if skipped {
			sum.Skipped++
		} else {
			sum.Artifacts++
		}
		e.Sink.Publish(graph.Event{
			Source:   source,
			Artifact: path,
			Counts:   diffCounts(before, batch.Counts()),
			Skipped:  sum.Skipped,
		})
	}

	if err := e.Store.ReplaceSource(ctx, source, batch); err != nil {
		return nil, err
	}
	sum.Counts = batch.Counts()
	e.Log.Info("source imported",
		"source", source,
		"artifacts", sum.Artifacts,
		"skipped", sum.Skipped,
		"classes", sum.Counts.Classes,
		"methods", sum.Counts.Methods,
		"calls", sum.Counts.Calls)
	return sum, nil
}

// stageArtifact parses one file into the batch. Parse failures skip the
// artifact; read failures propagate.
func (e *Engine) stageArtifact(batch *graph.FactBatch, path string) (skipped bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	class, err := e.Parse(f)
	if err != nil {
		e.Log.Warn("skipping malformed artifact", "path", path, "err", err)
		return true, nil
	}
	if e.SkipClass != nil && e.SkipClass(string(class.Name)) {
		return true, nil
	}
	stageClass(batch, class)
	return false, nil
}

// stageClass converts one parsed class into batch records.
func stageClass(batch *graph.FactBatch, class *smali.Class) {
	batch.AddClass(graph.ClassRecord{Name: class.Name, AccessFlags: class.Flags})
	if class.Super != "" {
		batch.AddSuper(graph.SuperRecord{Child: class.Name, Parent: class.Super})
	}
	for _, iface := range class.Interfaces {
		batch.AddInterface(graph.InterfaceRecord{Class: class.Name, Interface: iface})
	}
	for _, m := range class.Methods {
		batch.AddMethod(graph.MethodRecord{
			Class:       class.Name,
			Name:        m.Name,
			Args:        m.Args,
			Ret:         m.Ret,
			AccessFlags: m.Flags,
		})
		for _, call := range m.Calls {
			batch.AddCall(graph.CallRecord{
				CallerClass: class.Name,
				CallerName:  m.Name,
				CallerArgs:  m.Args,
				CalleeClass: call.Class,
				CalleeName:  call.Name,
				CalleeArgs:  call.Args,
			})
		}
	}
}

// collectArtifacts gathers every .smali file under dir, sorted so runs are
// reproducible regardless of filesystem order.
func collectArtifacts(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".smali") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func diffCounts(before, after graph.FactCounts) graph.FactCounts {
	return graph.FactCounts{
		Classes:    after.Classes - before.Classes,
		Methods:    after.Methods - before.Methods,
		Calls:      after.Calls - before.Calls,
		Supers:     after.Supers - before.Supers,
		Interfaces: after.Interfaces - before.Interfaces,
	}
}
