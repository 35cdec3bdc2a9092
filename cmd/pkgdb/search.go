package main

import (
	"github.com/spf13/cobra"

	"pkgdb/internal/config"
	"pkgdb/internal/database"
	"pkgdb/internal/input"
	"pkgdb/internal/model"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [flake-ref]",
		Short: "Search a flake's packages",
		Long: `Search runs a ranked query against a flake's package database,
scraping the flake first when no usable database exists.

Results are ordered by match quality: exact pname and attribute name
matches first, then partial name and description matches, newest
versions before older ones, and unbroken before broken.

Examples:
  # Exact pname lookup
  pkgdb search --pname hello

  # Fuzzy search across names and descriptions
  pkgdb search --match compress

  # Packages satisfying a semver range, one row per package name
  pkgdb search --pname nodejs --semver "^18.0.0" --dedupe

  # Everything under python312Packages
  pkgdb search --rel-path python312Packages --limit 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSearchCmd,
	}

	cmd.Flags().String("name", "", "Exact match on name, pname, or attribute name")
	cmd.Flags().String("pname", "", "Exact match on pname")
	cmd.Flags().String("version", "", "Exact match on version")
	cmd.Flags().String("semver", "", "Semver range the version must satisfy")
	cmd.Flags().String("match", "", "Partial match on name, pname, or description")
	cmd.Flags().String("match-name", "", "Partial match on name or pname only")
	cmd.Flags().StringArrayP("license", "l", nil, "Restrict to SPDX license identifiers (repeatable)")
	cmd.Flags().Bool("allow-broken", false, "Include packages marked broken")
	cmd.Flags().Bool("allow-unfree", true, "Include unfree packages")
	cmd.Flags().Bool("prefer-pre-releases", false, "Rank pre-release versions above releases")
	cmd.Flags().StringArray("subtree", nil, "Restrict to subtrees (repeatable)")
	cmd.Flags().StringArrayP("system", "s", nil, "Restrict to systems (repeatable; default: current system)")
	cmd.Flags().String("rel-path", "", "Exact relative attribute path, dot separated")
	cmd.Flags().Int("limit", 0, "Maximum number of results (0 = unlimited)")
	cmd.Flags().Bool("dedupe", false, "Collapse rows sharing a relative path to the best-ranked one")
	cmd.Flags().BoolP("json", "j", false, "Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown (mutually exclusive with --json)")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")
	cmd.MarkFlagsMutuallyExclusive("name", "pname")
	cmd.MarkFlagsMutuallyExclusive("name", "version")
	cmd.MarkFlagsMutuallyExclusive("name", "semver")
	cmd.MarkFlagsMutuallyExclusive("version", "semver")
	cmd.MarkFlagsMutuallyExclusive("match", "match-name")

	return cmd
}

// runSearchCmd executes the search command.
func runSearchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	queryArgs, err := buildQueryArgs(cmd, cfg)
	if err != nil {
		return err
	}

	flakeRef := defaultFlakeRef
	if len(args) > 0 {
		flakeRef = args[0]
	}

	scrapeRules, err := loadRules(cfg)
	if err != nil {
		return err
	}
	flake, err := lockFlake(cmd.Context(), flakeRef)
	if err != nil {
		return err
	}

	// A missing or outdated database is scraped in-line before
	// querying; concurrent searches elect one writer.
	in := input.New(flake, cfg, scrapeRules, logger)
	if err := in.EnsureDB(cmd.Context(), false); err != nil {
		return err
	}
	if in.IsWriter() {
		if _, err := in.ScrapeSystems(cmd.Context(), nil, nil, 0); err != nil {
			_ = in.CloseDB()
			return err
		}
		if err := in.CloseDB(); err != nil {
			return err
		}
	}

	rdb, err := in.ReadDB(cmd.Context())
	if err != nil {
		return err
	}
	defer rdb.Close()

	ids, err := rdb.GetPackages(cmd.Context(), queryArgs)
	if err != nil {
		return err
	}
	pkgs := make([]*model.Package, 0, len(ids))
	for _, id := range ids {
		pkg, err := rdb.GetPackage(cmd.Context(), id)
		if err != nil {
			return err
		}
		pkgs = append(pkgs, pkg)
	}

	writer, err := selectWriter(cmd)
	if err != nil {
		return err
	}
	_, err = writer.WritePackages(pkgs)
	return err
}

// buildQueryArgs maps the search flags onto query arguments.
func buildQueryArgs(cmd *cobra.Command, cfg *config.Config) (*database.PkgQueryArgs, error) {
	queryArgs := database.DefaultPkgQueryArgs()
	queryArgs.Systems = cfg.Systems

	flags := cmd.Flags()
	var err error
	if queryArgs.Name, err = flags.GetString("name"); err != nil {
		return nil, err
	}
	if queryArgs.Pname, err = flags.GetString("pname"); err != nil {
		return nil, err
	}
	if queryArgs.Version, err = flags.GetString("version"); err != nil {
		return nil, err
	}
	if queryArgs.Semver, err = flags.GetString("semver"); err != nil {
		return nil, err
	}
	if queryArgs.PartialMatch, err = flags.GetString("match"); err != nil {
		return nil, err
	}
	if queryArgs.PartialNameMatch, err = flags.GetString("match-name"); err != nil {
		return nil, err
	}
	if queryArgs.Licenses, err = flags.GetStringArray("license"); err != nil {
		return nil, err
	}
	if queryArgs.AllowBroken, err = flags.GetBool("allow-broken"); err != nil {
		return nil, err
	}
	if queryArgs.AllowUnfree, err = flags.GetBool("allow-unfree"); err != nil {
		return nil, err
	}
	if queryArgs.PreferPreReleases, err = flags.GetBool("prefer-pre-releases"); err != nil {
		return nil, err
	}
	subtrees, err := flags.GetStringArray("subtree")
	if err != nil {
		return nil, err
	}
	for _, subtree := range subtrees {
		queryArgs.Subtrees = append(queryArgs.Subtrees, model.Subtree(subtree))
	}
	systems, err := flags.GetStringArray("system")
	if err != nil {
		return nil, err
	}
	if len(systems) != 0 {
		queryArgs.Systems = systems
	}
	relPath, err := flags.GetString("rel-path")
	if err != nil {
		return nil, err
	}
	if relPath != "" {
		queryArgs.RelPath = model.ParseAttrPath(relPath)
	}
	if queryArgs.Limit, err = flags.GetInt("limit"); err != nil {
		return nil, err
	}
	if queryArgs.Deduplicate, err = flags.GetBool("dedupe"); err != nil {
		return nil, err
	}
	return &queryArgs, nil
}
