package main

import (
	"github.com/spf13/cobra"

	"pkgdb/internal/database"
	"pkgdb/internal/report"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the package databases in the cache directory",
		Long: `List enumerates the databases in the cache directory and prints each
one's fingerprint and locked flake reference.

Examples:
  # List databases in the default cache directory
  pkgdb list

  # List file basenames only, for shell scripting
  pkgdb list --basenames

  # Emit the listing as JSON
  pkgdb list --json`,
		Args: cobra.NoArgs,
		RunE: runListCmd,
	}

	cmd.Flags().BoolP("json", "j", false, "Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown (mutually exclusive with --json)")
	cmd.Flags().BoolP("basenames", "b", false, "Print database file basenames only")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")
	cmd.MarkFlagsMutuallyExclusive("json", "basenames")
	cmd.MarkFlagsMutuallyExclusive("markdown", "basenames")

	return cmd
}

// runListCmd executes the list command.
func runListCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	setupLogger(cfg)

	infos, err := database.ListDatabases(cmd.Context(), cfg.CacheDir)
	if err != nil {
		return err
	}

	writer, err := selectWriter(cmd)
	if err != nil {
		return err
	}
	_, err = writer.WriteDatabases(infos)
	return err
}

// selectWriter picks the report writer matching the format flags.
func selectWriter(cmd *cobra.Command) (report.Writer, error) {
	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}
	markdownOut, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	out := cmd.OutOrStdout()
	switch {
	case jsonOut:
		return report.NewJSONWriter(out, report.WithPrettyPrint()), nil
	case markdownOut:
		return report.NewMarkdownWriter(out), nil
	}

	basenames := false
	if cmd.Flags().Lookup("basenames") != nil {
		basenames, err = cmd.Flags().GetBool("basenames")
		if err != nil {
			return nil, err
		}
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose = false
	}
	return report.NewTextWriter(out,
		report.WithBasenames(basenames), report.WithVerbose(verbose)), nil
}
