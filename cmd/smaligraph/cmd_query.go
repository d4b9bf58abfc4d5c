package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"smaligraph/graph"
	"smaligraph/smali"
)

var (
	querySource string
	queryClass  string
	querySig    string
	queryDepth  int
	broaden     bool

	sourcesCmd = &cobra.Command{
		Use:   "sources",
		Short: "List every ingested source",
		Args:  cobra.NoArgs,
		RunE:  runSources,
	}

	childrenCmd = &cobra.Command{
		Use:   "children [class]",
		Short: "List direct subclasses of a class",
		Args:  cobra.ExactArgs(1),
		RunE:  runChildren,
	}

	implementersCmd = &cobra.Command{
		Use:   "implementers [interface]",
		Short: "List classes directly implementing an interface",
		Args:  cobra.ExactArgs(1),
		RunE:  runImplementers,
	}

	callersCmd = &cobra.Command{
		Use:   "callers [method-name]",
		Short: "Find call paths leading to a method",
		Args:  cobra.ExactArgs(1),
		RunE:  runCallers,
	}

	callsCmd = &cobra.Command{
		Use:   "calls [method-name]",
		Short: "Find call paths leading out of a method",
		Args:  cobra.ExactArgs(1),
		RunE:  runCalls,
	}

	findMethodCmd = &cobra.Command{
		Use:   "find-method [method-name]",
		Short: "List classes defining a method",
		Args:  cobra.ExactArgs(1),
		RunE:  runFindMethod,
	}

	classesCmd = &cobra.Command{
		Use:   "classes [source]",
		Short: "List every class owned by a source",
		Args:  cobra.ExactArgs(1),
		RunE:  runClasses,
	}

	methodsCmd = &cobra.Command{
		Use:   "methods [source]",
		Short: "List every method owned by a source",
		Args:  cobra.ExactArgs(1),
		RunE:  runMethods,
	}
)

func init() {
	for _, c := range []*cobra.Command{childrenCmd, implementersCmd, callersCmd, findMethodCmd} {
		c.Flags().StringVar(&querySource, "source", "", "restrict to one source")
	}
	for _, c := range []*cobra.Command{callersCmd, callsCmd} {
		c.Flags().StringVar(&queryClass, "class", "", "restrict to methods of one class")
		c.Flags().StringVar(&querySig, "sig", "", "exact argument descriptor match")
		c.Flags().IntVar(&queryDepth, "depth", 5, "maximum traversal depth")
	}
	findMethodCmd.Flags().StringVar(&querySig, "sig", "", "exact argument descriptor match")
	for _, c := range []*cobra.Command{childrenCmd, implementersCmd, callersCmd} {
		c.Flags().BoolVar(&broaden, "broaden", false, "retry without source filter when the filtered result is empty")
	}
	rootCmd.AddCommand(sourcesCmd, childrenCmd, implementersCmd, callersCmd, callsCmd, findMethodCmd, classesCmd, methodsCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	sources, err := db.GetAllSources(cmd.Context())
	if err != nil {
		return err
	}
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runChildren(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	specs, err := oneHopWithFallback(cmd, args[0], db.FindChildClassesOf)
	if err != nil {
		return err
	}
	printClasses(specs)
	return nil
}

func runImplementers(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	specs, err := oneHopWithFallback(cmd, args[0], db.FindClassesImplementing)
	if err != nil {
		return err
	}
	printClasses(specs)
	return nil
}

// oneHopWithFallback runs a one-hop hierarchy query, optionally broadening to
// all sources when the filtered result is empty. Broadening is deliberately a
// CLI policy; the store never widens a filter on its own.
func oneHopWithFallback(cmd *cobra.Command, name string, query func(context.Context, graph.ClassSearch, string) ([]graph.ClassSpec, error)) ([]graph.ClassSpec, error) {
	anchor := graph.ClassSearch{Name: smali.NormalizeClass(name)}
	specs, err := query(cmd.Context(), anchor, querySource)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 && broaden && querySource != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "nothing in %s, broadening to all sources\n", querySource)
		return query(cmd.Context(), anchor, "")
	}
	return specs, nil
}

func methodSearch(cmd *cobra.Command, name string) graph.MethodSearch {
	search := graph.MethodSearch{Name: name}
	if queryClass != "" {
		search.Class = smali.NormalizeClass(queryClass)
	}
	if cmd.Flags().Changed("sig") {
		search.Signature = querySig
		search.SignatureSet = true
	}
	return search
}

func runCallers(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	search := methodSearch(cmd, args[0])
	paths, err := db.FindCallers(cmd.Context(), search, querySource, queryDepth)
	if err != nil {
		return err
	}
	if len(paths) == 0 && broaden && querySource != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "no callers in %s, broadening to all sources\n", querySource)
		if paths, err = db.FindCallers(cmd.Context(), search, "", queryDepth); err != nil {
			return err
		}
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func runCalls(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	paths, err := db.FindOutgoingCalls(cmd.Context(), methodSearch(cmd, args[0]), queryDepth)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}

func runFindMethod(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var sig *string
	if cmd.Flags().Changed("sig") {
		sig = &querySig
	}
	specs, err := db.FindClassesWithMethod(cmd.Context(), args[0], sig, querySource)
	if err != nil {
		return err
	}
	printClasses(specs)
	return nil
}

func runClasses(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	names, err := db.GetClassesFor(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name.Smali())
	}
	return nil
}

func runMethods(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	methods, err := db.GetMethodsFor(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, m := range methods {
		fmt.Println(m.Smali())
	}
	return nil
}

func printClasses(specs []graph.ClassSpec) {
	for _, spec := range specs {
		fmt.Printf("%s\t%s\n", spec.Name.Smali(), spec.Source)
	}
}
