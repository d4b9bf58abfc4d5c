// Command smaligraph ingests disassembled Android bytecode into a SQLite
// fact graph and answers structural queries over it: class hierarchy,
// interface implementors, and bounded-depth call-graph traversals.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"smaligraph/config"
	"smaligraph/graph/sqlitedb"
)

var (
	cfgPath string
	dbPath  string
	verbose bool

	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "smaligraph",
		Short: "Fact graph over disassembled Android bytecode",
		Long: `smaligraph ingests smali disassembly trees into a relational call and
class graph, one source at a time, and answers hierarchy and call-path
queries over the combined graph.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DatabasePath = dbPath
			}
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "smaligraph.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "graph database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// openStore opens the configured graph database. Callers must Close it.
func openStore() (*sqlitedb.DB, error) {
	db, err := sqlitedb.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DatabasePath, err)
	}
	return db, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
