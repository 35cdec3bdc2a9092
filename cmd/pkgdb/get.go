package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"pkgdb/internal/config"
	"pkgdb/internal/database"
	"pkgdb/internal/model"
)

// NewGetCmd creates the get command with its point-lookup subcommands.
func NewGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Point lookups against a package database",
		Long: `Get performs point lookups against one package database.

The DB argument is resolved in order: an existing file path, a
database fingerprint, or a flake reference (locked via nix).`,
	}

	cmd.AddCommand(newGetIDCmd())
	cmd.AddCommand(newGetPathCmd())
	cmd.AddCommand(newGetDoneCmd())
	cmd.AddCommand(newGetFlakeCmd())
	cmd.AddCommand(newGetDBCmd())
	cmd.AddCommand(newGetPkgCmd())

	return cmd
}

// resolveDBPath maps the DB argument to a database file path and the
// expected fingerprint (zero when opening by raw path).
func resolveDBPath(ctx context.Context, cfg *config.Config, target string) (string, model.Fingerprint, error) {
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		return target, model.Fingerprint{}, nil
	}
	if fingerprint, err := model.ParseFingerprint(target); err == nil {
		return database.DBPath(cfg.CacheDir, fingerprint), fingerprint, nil
	}
	flake, err := lockFlake(ctx, target)
	if err != nil {
		return "", model.Fingerprint{}, err
	}
	fingerprint := model.FingerprintOf(flake.LockedRef().String)
	return database.DBPath(cfg.CacheDir, fingerprint), fingerprint, nil
}

// openTarget opens the database named by the DB argument read-only.
func openTarget(cmd *cobra.Command, target string) (*database.ReadOnlyDB, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}
	setupLogger(cfg)

	dbPath, fingerprint, err := resolveDBPath(cmd.Context(), cfg, target)
	if err != nil {
		return nil, err
	}
	return database.OpenReadOnly(cmd.Context(), dbPath, fingerprint)
}

// printJSON renders a lookup result to stdout.
func printJSON(cmd *cobra.Command, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func newGetIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "id DB ATTR-PATH",
		Short: "Print the row id of an attribute set or package",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rdb, err := openTarget(cmd, args[0])
			if err != nil {
				return err
			}
			defer rdb.Close()

			path := model.ParseAttrPath(args[1])
			pkg, err := cmd.Flags().GetBool("pkg")
			if err != nil {
				return err
			}

			var id int64
			if pkg {
				id, err = rdb.GetPackageID(cmd.Context(), path)
			} else {
				id, err = rdb.GetAttrSetID(cmd.Context(), path)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, id)
		},
	}
	cmd.Flags().BoolP("pkg", "p", false, "Look up a package row instead of an attribute set")
	return cmd
}

func newGetPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path DB ID",
		Short: "Print the attribute path of a row id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid row id %q: %w", args[1], err)
			}

			rdb, err := openTarget(cmd, args[0])
			if err != nil {
				return err
			}
			defer rdb.Close()

			pkg, err := cmd.Flags().GetBool("pkg")
			if err != nil {
				return err
			}

			var path model.AttrPath
			if pkg {
				path, err = rdb.GetPackagePath(cmd.Context(), id)
			} else {
				path, err = rdb.GetAttrSetPath(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, path)
		},
	}
	cmd.Flags().BoolP("pkg", "p", false, "Look up a package row instead of an attribute set")
	return cmd
}

func newGetDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done DB ATTR-PATH",
		Short: "Print whether a subtree is fully scraped",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rdb, err := openTarget(cmd, args[0])
			if err != nil {
				return err
			}
			defer rdb.Close()

			done, err := rdb.CompletedAttrSet(cmd.Context(), model.ParseAttrPath(args[1]))
			if err != nil {
				return err
			}
			return printJSON(cmd, done)
		},
	}
}

func newGetFlakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flake DB",
		Short: "Print the locked flake recorded in a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rdb, err := openTarget(cmd, args[0])
			if err != nil {
				return err
			}
			defer rdb.Close()

			return printJSON(cmd, map[string]any{
				"fingerprint": rdb.Fingerprint,
				"string":      rdb.LockedRef.String,
				"attrs":       rdb.LockedRef.Attrs,
			})
		},
	}
}

func newGetDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "db FLAKE-REF",
		Short: "Print the database file path for a flake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd)
			if err != nil {
				return err
			}
			setupLogger(cfg)

			dbPath, _, err := resolveDBPath(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dbPath)
			return nil
		},
	}
}

func newGetPkgCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pkg DB ATTR-PATH-OR-ID",
		Short: "Print a package record as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rdb, err := openTarget(cmd, args[0])
			if err != nil {
				return err
			}
			defer rdb.Close()

			var pkg *model.Package
			if id, idErr := strconv.ParseInt(args[1], 10, 64); idErr == nil {
				pkg, err = rdb.GetPackage(cmd.Context(), id)
			} else {
				pkg, err = rdb.GetPackageByPath(cmd.Context(), model.ParseAttrPath(args[1]))
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, pkg)
		},
	}
}
