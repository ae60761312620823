package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/router"
)

var routeCmd = &cobra.Command{
	Use:   "route URL",
	Short: "Match a URL against the configured routes",
	Long: `Match URL against the routes of the configuration, in order, and print
the first match with its parameters, query and hash.

Examples:
  reactive route /users/42
  reactive route "/search?q=go#results" -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runRoute,
}

func init() {
	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	r, err := router.New(cfg.Routes, nil)
	if err != nil {
		return err
	}
	match, err := r.Match(args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), output, match, func(w io.Writer) error {
		return printMatch(w, match)
	})
}

func printMatch(w io.Writer, m *router.Match) error {
	fmt.Fprintf(w, "Route: %s\n", m.Name)
	fmt.Fprintf(w, "Path:  %s\n", m.Path)
	printPairs(w, "Param", m.Params)
	printPairs(w, "Query", m.Query)
	if m.Hash != "" {
		fmt.Fprintf(w, "Hash:  %s\n", m.Hash)
	}
	return nil
}

func printPairs(w io.Writer, label string, pairs map[string]string) {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s=%s\n", label, k, pairs[k])
	}
}
