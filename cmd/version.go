package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/reactive/internal/version"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the version, commit, build time, Go version and platform.

Examples:
  reactive version
  reactive version --short
  reactive version -o json`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show the version number only")
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.GetBuildInfo()
	return render(cmd.OutOrStdout(), output, info, func(w io.Writer) error {
		if versionShort {
			_, err := fmt.Fprintln(w, info.Version)
			return err
		}
		_, err := fmt.Fprintln(w, info.String())
		return err
	})
}
