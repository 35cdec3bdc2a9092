package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"pkgdb/internal/config"
	"pkgdb/internal/database"
	"pkgdb/internal/log"
	"pkgdb/internal/rules"
	"pkgdb/internal/scrape"
)

// Exit codes. Multi-process orchestration drives scraping by
// re-invoking pkgdb until it stops returning exitIncomplete, and
// tells "keep paging" apart from "abort" by exitEvalFailure.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitIncomplete  = 64
	exitEvalFailure = 65
)

// errScrapeIncomplete signals that a page budget ran out with pages
// remaining.
var errScrapeIncomplete = errors.New("scrape incomplete: more pages remain")

// NewRootCmd creates the root command for pkgdb.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pkgdb",
		Short: "Scrape package-set flakes into queryable SQLite databases",
		Long: `pkgdb builds one SQLite database per locked package-set flake and
answers lookups and ranked search queries against it.

Databases live under a fingerprint-keyed cache directory and are
created cooperatively: concurrent invocations against the same flake
elect a single writer through a heartbeat lock file.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("cachedir", "", "Database cache directory (default: $PKGDB_CACHEDIR, then XDG cache home)")
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file path (default: pkgdb.yml in current or XDG config directory)")

	// Add subcommands
	cmd.AddCommand(NewScrapeCmd())
	cmd.AddCommand(NewGetCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewSearchCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and maps errors to exit codes.
func Execute() int {
	err := NewRootCmd().Execute()
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(os.Stderr, "pkgdb: %v\n", err)
	return exitCode(err)
}

// exitCode classifies an error into the exit code contract.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errScrapeIncomplete):
		return exitIncomplete
	case errors.Is(err, scrape.ErrEval):
		return exitEvalFailure
	case errors.Is(err, database.ErrInvalidQueryArg),
		errors.Is(err, config.ErrInvalidPageSize),
		errors.Is(err, config.ErrUnknownSystem):
		return exitUsage
	default:
		return exitFailure
	}
}

// buildConfig creates a Config from the optional config file and the
// persistent flags. Flags win over file values.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	explicitPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath := config.FindConfigFile(explicitPath)
	if configPath == "" && explicitPath != "" {
		return nil, fmt.Errorf("configuration file not found: %s", explicitPath)
	}
	if configPath != "" {
		cf, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.Apply(cf)
	}

	cacheDir, err := cmd.Flags().GetString("cachedir")
	if err != nil {
		return nil, err
	}
	if cacheDir != "" {
		cfg.CacheDir = cacheDir
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = database.CacheDir()
	}

	cfg.Verbose, err = cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadRules returns the scrape rules for the configuration: the file
// named by rules_file, or the built-in document.
func loadRules(cfg *config.Config) (*rules.ScrapeRules, error) {
	if cfg.RulesFile != "" {
		return rules.Load(cfg.RulesFile)
	}
	return rules.Default()
}

// setupLogger creates the process logger and installs it as the slog
// default.
func setupLogger(cfg *config.Config) *slog.Logger {
	logger := log.NewLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)
	return logger
}
