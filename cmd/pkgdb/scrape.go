package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pkgdb/internal/config"
	"pkgdb/internal/input"
	"pkgdb/internal/model"
)

// defaultFlakeRef is scraped when no flake reference is given.
const defaultFlakeRef = "github:NixOS/nixpkgs/nixpkgs-unstable"

// NewScrapeCmd creates the scrape command.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [flake-ref]",
		Short: "Scrape a package-set flake into its database",
		Long: `Scrape evaluates a flake's package sets and records every package in
the flake's SQLite database, creating the database if needed.

Scraping is resumable: subtrees already marked done are skipped, so an
interrupted scrape picks up where it stopped. Concurrent invocations
against the same flake elect a single writer through a lock file; the
losers wait and then resume whatever the winner left undone.

Examples:
  # Scrape the default nixpkgs flake for the current system
  pkgdb scrape

  # Scrape a pinned flake for two systems
  pkgdb scrape --system x86_64-linux --system aarch64-darwin github:NixOS/nixpkgs/23.11

  # Process at most one page per prefix, exiting 64 while pages remain
  pkgdb scrape --pages 1

  # Discard the existing database and scrape from scratch
  pkgdb scrape --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScrapeCmd,
	}

	cmd.Flags().BoolP("force", "f", false, "Discard the existing database and rebuild")
	cmd.Flags().IntP("page-size", "p", 0, "Child attributes per page (0 = auto)")
	cmd.Flags().Int("pages", 0, "Maximum pages per prefix for this invocation (0 = all)")
	cmd.Flags().StringP("rules", "r", "", "Scrape rules document replacing the built-in one")
	cmd.Flags().StringArrayP("system", "s", nil, "Systems to scrape (repeatable; default: current system)")

	return cmd
}

// runScrapeCmd executes the scrape command.
func runScrapeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyScrapeFlags(cmd, cfg); err != nil {
		return err
	}
	logger := setupLogger(cfg)

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	maxPages, err := cmd.Flags().GetInt("pages")
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

	// Stop between pages on SIGINT/SIGTERM; the database stays
	// consistent and the next invocation resumes.
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	flake, err := lockFlake(ctx, flakeRef)
	if err != nil {
		return err
	}
	logger.Info("locked flake", "flakeRef", flakeRef, "locked", flake.LockedRef().String)

	in := input.New(flake, cfg, scrapeRules, logger)
	if err := in.OpenWriter(ctx, force); err != nil {
		return err
	}
	defer func() { _ = in.CloseDB() }()

	done, err := in.ScrapeSystems(ctx, nil, nil, maxPages)
	if err != nil {
		return err
	}
	if err := in.CloseDB(); err != nil {
		return err
	}
	if !done {
		return errScrapeIncomplete
	}

	fmt.Fprintln(cmd.OutOrStdout(), in.DBPath())
	return nil
}

// applyScrapeFlags folds scrape-specific flags into the config.
func applyScrapeFlags(cmd *cobra.Command, cfg *config.Config) error {
	pageSize, err := cmd.Flags().GetInt("page-size")
	if err != nil {
		return err
	}
	if pageSize != 0 {
		cfg.PageSize = pageSize
	}

	rulesFile, err := cmd.Flags().GetString("rules")
	if err != nil {
		return err
	}
	if rulesFile != "" {
		cfg.RulesFile = rulesFile
	}

	systems, err := cmd.Flags().GetStringArray("system")
	if err != nil {
		return err
	}
	if len(systems) != 0 {
		cfg.Systems = make([]model.System, 0, len(systems))
		for _, system := range systems {
			cfg.Systems = append(cfg.Systems, model.System(system))
		}
	}

	return cfg.Validate()
}
