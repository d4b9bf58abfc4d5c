package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"smaligraph/graph"
	"smaligraph/ingest"
)

var (
	ingestDir string

	ingestCmd = &cobra.Command{
		Use:   "ingest [source]",
		Short: "Ingest one disassembly tree as a source, replacing prior facts",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}

	ingestAllCmd = &cobra.Command{
		Use:   "ingest-all",
		Short: "Ingest every tree under the disassembly root",
		Args:  cobra.NoArgs,
		RunE:  runIngestAll,
	}
)

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "disassembly tree (default <disassembly_root>/<source>)")
	rootCmd.AddCommand(ingestCmd, ingestAllCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	source := args[0]
	dir := ingestDir
	if dir == "" {
		dir = cfg.SourceDir(source)
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	progress := NewProgress(verbose)
	sum, err := importOne(ctx, db, source, dir, progress)
	if err != nil {
		return err
	}
	progress.Log("%s: %d artifacts ingested, %d skipped (%d classes, %d methods, %d calls)",
		source, sum.Artifacts, sum.Skipped, sum.Counts.Classes, sum.Counts.Methods, sum.Counts.Calls)
	return nil
}

func runIngestAll(cmd *cobra.Command, args []string) error {
	entries, err := os.ReadDir(cfg.DisassemblyRoot)
	if err != nil {
		return fmt.Errorf("read disassembly root: %w", err)
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	progress := NewProgress(verbose)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.IngestWorkers)
	for _, entry := range entries {
		if !entry.IsDir() || cfg.SkipSource(entry.Name()) {
			continue
		}
		source := entry.Name()
		g.Go(func() error {
			sum, err := importOne(ctx, db, source, filepath.Join(cfg.DisassemblyRoot, source), progress)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", source, err)
			}
			progress.Log("%s: %d artifacts ingested, %d skipped", source, sum.Artifacts, sum.Skipped)
			return nil
		})
	}
	return g.Wait()
}

func importOne(ctx context.Context, db graph.Importer, source, dir string, progress *Progress) (*ingest.Summary, error) {
	engine := ingest.New(db)
	if len(cfg.ClassDenylist) > 0 {
		engine.SkipClass = cfg.Denied
	}
	sink := graph.NewChannelSink(256)
	engine.Sink = sink
	done := progress.Watch(sink.Events())

	sum, err := engine.ImportDirectory(ctx, source, dir)
	sink.Close()
	<-done
	return sum, err
}
