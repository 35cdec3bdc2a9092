package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"pkgdb/internal/model"
	"pkgdb/internal/scrape"
	"pkgdb/internal/semver"
)

// nixFlake binds the scrape engine's cursor interface to the nix CLI.
// Every cursor operation is one `nix eval --json` invocation against
// the locked flake; nix's own eval cache keeps repeated forcing of the
// same attributes cheap.
//
// Design decision: we shell out to nix rather than linking its
// evaluator. The CLI is the only stable interface nix offers, and the
// scrape engine only needs lazy child enumeration plus a handful of
// scalar reads per derivation.
type nixFlake struct {
	ref model.LockedRef
}

// lockFlake resolves a flake reference to its locked form via
// `nix flake metadata`.
func lockFlake(ctx context.Context, flakeRef string) (*nixFlake, error) {
	out, err := runNix(ctx, "flake", "metadata", "--json", flakeRef)
	if err != nil {
		return nil, fmt.Errorf("locking flake '%s': %w", flakeRef, err)
	}

	var meta struct {
		URL    string         `json:"url"`
		Locked map[string]any `json:"locked"`
	}
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, fmt.Errorf("parsing flake metadata: %w", err)
	}
	if meta.URL == "" {
		return nil, fmt.Errorf("flake metadata for '%s' carries no locked URL", flakeRef)
	}
	return &nixFlake{ref: model.LockedRef{String: meta.URL, Attrs: meta.Locked}}, nil
}

// LockedRef returns the locked flake reference.
func (f *nixFlake) LockedRef() model.LockedRef { return f.ref }

// Root returns a cursor at the given attribute path, or nil when the
// flake does not export it.
func (f *nixFlake) Root(ctx context.Context, path model.AttrPath) (scrape.Cursor, error) {
	cursor := &nixCursor{flake: f, path: path.Clone()}
	if _, err := cursor.Children(ctx); err != nil {
		if isMissingAttr(err) {
			return nil, nil
		}
		return nil, err
	}
	return cursor, nil
}

// nixCursor addresses one node of the flake's attribute tree by path.
type nixCursor struct {
	flake *nixFlake
	path  model.AttrPath
}

// eval runs `nix eval --json` on this node with the given --apply
// function and decodes the result into out.
func (c *nixCursor) eval(ctx context.Context, applyExpr string, out any) error {
	installable := c.flake.ref.String + "#" + c.path.String()
	raw, err := runNix(ctx, "eval", "--json", installable, "--apply", applyExpr)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parsing eval output for '%s': %w", c.path, err)
	}
	return nil
}

func (c *nixCursor) Children(ctx context.Context) ([]string, error) {
	var names []string
	err := c.eval(ctx, "builtins.attrNames", &names)
	if err != nil {
		if isNotAttrSet(err) {
			return nil, scrape.ErrNotAttrSet
		}
		return nil, err
	}
	return names, nil
}

func (c *nixCursor) Child(_ context.Context, name string) (scrape.Cursor, error) {
	return &nixCursor{flake: c.flake, path: c.path.Child(name)}, nil
}

func (c *nixCursor) IsDerivation(ctx context.Context) (bool, error) {
	var isDrv bool
	err := c.eval(ctx,
		`v: (builtins.tryEval (v.type or null)).value == "derivation"`, &isDrv)
	if err != nil {
		return false, err
	}
	return isDrv, nil
}

func (c *nixCursor) MaybeRecurse(ctx context.Context) (bool, error) {
	var recurse bool
	err := c.eval(ctx,
		`v: (builtins.tryEval (v.recurseForDerivations or false)).value == true`, &recurse)
	if err != nil {
		return false, err
	}
	return recurse, nil
}

// packageExpr projects the derivation fields the database stores.
// tryEval guards each meta read because nixpkgs meta attributes are
// allowed to throw.
const packageExpr = `drv: let
  try = e: let r = builtins.tryEval e; in if r.success then r.value else null;
in {
  name = drv.name;
  pname = try (drv.pname or null);
  version = try (drv.version or null);
  outputs = try (drv.outputs or [ "out" ]);
  outputsToInstall = try (drv.meta.outputsToInstall or null);
  broken = try (drv.meta.broken or null);
  unfree = try (drv.meta.unfree or null);
  license = try (drv.meta.license.spdxId or null);
  description = try (drv.meta.description or null);
}`

func (c *nixCursor) Package(ctx context.Context) (*model.Package, error) {
	var fields struct {
		Name             string   `json:"name"`
		Pname            *string  `json:"pname"`
		Version          *string  `json:"version"`
		Outputs          []string `json:"outputs"`
		OutputsToInstall []string `json:"outputsToInstall"`
		Broken           *bool    `json:"broken"`
		Unfree           *bool    `json:"unfree"`
		License          *string  `json:"license"`
		Description      *string  `json:"description"`
	}
	if err := c.eval(ctx, packageExpr, &fields); err != nil {
		return nil, err
	}

	pkg := &model.Package{
		Name:             fields.Name,
		Outputs:          fields.Outputs,
		OutputsToInstall: fields.OutputsToInstall,
		Broken:           fields.Broken,
		Unfree:           fields.Unfree,
	}
	if fields.Pname != nil {
		pkg.Pname = *fields.Pname
	} else {
		pkg.Pname = fields.Name
	}
	if fields.Version != nil {
		pkg.Version = *fields.Version
		if coerced, ok := semver.Coerce(pkg.Version); ok {
			pkg.Semver = coerced
		}
	}
	if fields.License != nil {
		pkg.License = *fields.License
	}
	if fields.Description != nil {
		pkg.Description = *fields.Description
	}
	return pkg, nil
}

// runNix executes the nix CLI, mapping a non-zero exit to an
// evaluation error carrying nix's stderr.
func runNix(ctx context.Context, args ...string) ([]byte, error) {
	fullArgs := append([]string{"--extra-experimental-features", "nix-command flakes"}, args...)
	cmd := exec.CommandContext(ctx, "nix", fullArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: nix %s: %s", scrape.ErrEval, args[0], msg)
	}
	return stdout.Bytes(), nil
}

// isMissingAttr matches nix's error for an attribute path the flake
// does not export.
func isMissingAttr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "does not provide attribute") ||
		strings.Contains(msg, "missing attribute")
}

// isNotAttrSet matches nix's error for applying attrNames to a
// non-set value.
func isNotAttrSet(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "expected a set") ||
		strings.Contains(msg, "is not an attribute set")
}
