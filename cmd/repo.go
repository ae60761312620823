package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/repository"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Inspect repository collections",
	Long: `Read records from the configured repository: the REST API at
repository.base_url when it is set, otherwise the local YAML collections in
repository.local_dir. Persisted stores live in the "stores" collection.`,
}

var repoListCmd = &cobra.Command{
	Use:   "list COLLECTION",
	Short: "List the records of a collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runRepoList,
}

var repoGetCmd = &cobra.Command{
	Use:   "get COLLECTION ID",
	Short: "Print one record",
	Args:  cobra.ExactArgs(2),
	RunE:  runRepoGet,
}

var repoDeleteCmd = &cobra.Command{
	Use:   "delete COLLECTION ID",
	Short: "Delete one record",
	Args:  cobra.ExactArgs(2),
	RunE:  runRepoDelete,
}

func init() {
	rootCmd.AddCommand(repoCmd)
	repoCmd.AddCommand(repoListCmd, repoGetCmd, repoDeleteCmd)
}

func openRepository(collection string) (repository.Repository, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newRepository(cfg, collection, nil)
}

func runRepoList(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(args[0])
	if err != nil {
		return err
	}
	records, err := repo.List(cmd.Context())
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), output, records, func(w io.Writer) error {
		for _, record := range records {
			fmt.Fprintf(w, "%s\t%s\n", repository.ID(record), compact(withoutID(record)))
		}
		fmt.Fprintf(w, "%d record(s)\n", len(records))
		return nil
	})
}

func runRepoGet(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(args[0])
	if err != nil {
		return err
	}
	record, err := repo.Read(cmd.Context(), args[1])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), output, record, func(w io.Writer) error {
		keys := make([]string, 0, len(record))
		for k := range record {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s: %s\n", k, compact(record[k]))
		}
		return nil
	})
}

func runRepoDelete(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(args[0])
	if err != nil {
		return err
	}
	if err := repo.Delete(cmd.Context(), args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s/%s\n", args[0], args[1])
	return nil
}

func withoutID(record repository.Record) repository.Record {
	out := make(repository.Record, len(record))
	for k, v := range record {
		if k != repository.IDField {
			out[k] = v
		}
	}
	return out
}
