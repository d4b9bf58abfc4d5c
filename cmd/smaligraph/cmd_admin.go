package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	wipeConfirmed bool

	wipeCmd = &cobra.Command{
		Use:   "wipe",
		Short: "Delete every fact from the graph database",
		Args:  cobra.NoArgs,
		RunE:  runWipe,
	}

	removeCmd = &cobra.Command{
		Use:   "remove [source]",
		Short: "Remove one source's facts and discovered edges",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemove,
	}

	statusCmd = &cobra.Command{
		Use:   "status [source]",
		Short: "Show which fact kinds finished loading for a source",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
)

func init() {
	wipeCmd.Flags().BoolVar(&wipeConfirmed, "yes", false, "confirm destruction")
	rootCmd.AddCommand(wipeCmd, removeCmd, statusCmd)
}

func runWipe(cmd *cobra.Command, args []string) error {
	if !wipeConfirmed {
		return fmt.Errorf("refusing to wipe %s without --yes", cfg.DatabasePath)
	}
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Wipe(cmd.Context())
}

func runRemove(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.RemoveSource(cmd.Context(), args[0])
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	kinds, err := db.Loaded(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		fmt.Println("not loaded")
		return nil
	}
	for _, kind := range kinds {
		fmt.Println(kind)
	}
	return nil
}
