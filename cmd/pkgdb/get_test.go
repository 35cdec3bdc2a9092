package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"pkgdb/internal/database"
	"pkgdb/internal/model"
)

// runCommand executes the root command with the given arguments and
// returns its combined output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// seedDatabase builds a scraped database holding one package under
// legacyPackages.x86_64-linux and returns its cache directory and
// fingerprint.
func seedDatabase(t *testing.T) (string, model.Fingerprint) {
	t.Helper()

	ctx := context.Background()
	cacheDir := t.TempDir()
	ref := model.LockedRef{
		String: "github:NixOS/nixpkgs/ab12cd34",
		Attrs:  map[string]any{"type": "github"},
	}
	fingerprint := model.FingerprintOf(ref.String)

	pdb, err := database.Open(ctx, database.DBPath(cacheDir, fingerprint), ref, "rulehash")
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}

	prefix := model.AttrPath{"legacyPackages", "x86_64-linux"}
	parentID, err := pdb.AddOrGetAttrSetPath(ctx, prefix)
	if err != nil {
		t.Fatalf("AddOrGetAttrSetPath() error = %v", err)
	}
	if _, err := pdb.AddPackage(ctx, parentID, "hello", &model.Package{
		Name:    "hello-2.12.1",
		Pname:   "hello",
		Version: "2.12.1",
		Semver:  "2.12.1",
		Outputs: []string{"out"},
	}); err != nil {
		t.Fatalf("AddPackage() error = %v", err)
	}
	if err := pdb.SetPrefixDone(ctx, prefix, true); err != nil {
		t.Fatalf("SetPrefixDone() error = %v", err)
	}
	if err := pdb.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return cacheDir, fingerprint
}

func TestGetID(t *testing.T) {
	t.Parallel()

	cacheDir, fingerprint := seedDatabase(t)

	out, err := runCommand(t, "get", "id", "--cachedir", cacheDir,
		fingerprint.String(), "legacyPackages.x86_64-linux")
	if err != nil {
		t.Fatalf("get id error = %v", err)
	}
	var id int64
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &id); err != nil {
		t.Fatalf("get id output %q is not a number: %v", out, err)
	}
	if id <= 0 {
		t.Errorf("get id = %d, want positive row id", id)
	}

	t.Run("pkg flag switches to package rows", func(t *testing.T) {
		out, err := runCommand(t, "get", "id", "--pkg", "--cachedir", cacheDir,
			fingerprint.String(), "legacyPackages.x86_64-linux.hello")
		if err != nil {
			t.Fatalf("get id --pkg error = %v", err)
		}
		if strings.TrimSpace(out) == "" {
			t.Error("expected a package row id")
		}
	})
}

func TestGetPathRoundTrip(t *testing.T) {
	t.Parallel()

	cacheDir, fingerprint := seedDatabase(t)

	out, err := runCommand(t, "get", "id", "--cachedir", cacheDir,
		fingerprint.String(), "legacyPackages.x86_64-linux")
	if err != nil {
		t.Fatalf("get id error = %v", err)
	}
	id := strings.TrimSpace(out)

	out, err = runCommand(t, "get", "path", "--cachedir", cacheDir,
		fingerprint.String(), id)
	if err != nil {
		t.Fatalf("get path error = %v", err)
	}
	var path []string
	if err := json.Unmarshal([]byte(out), &path); err != nil {
		t.Fatalf("get path output %q: %v", out, err)
	}
	if got := strings.Join(path, "."); got != "legacyPackages.x86_64-linux" {
		t.Errorf("get path = %q, want %q", got, "legacyPackages.x86_64-linux")
	}
}

func TestGetDone(t *testing.T) {
	t.Parallel()

	cacheDir, fingerprint := seedDatabase(t)

	tests := []struct {
		path string
		want string
	}{
		{"legacyPackages.x86_64-linux", "true"},
		{"legacyPackages.aarch64-darwin", "false"},
	}
	for _, tt := range tests {
		out, err := runCommand(t, "get", "done", "--cachedir", cacheDir,
			fingerprint.String(), tt.path)
		if err != nil {
			t.Fatalf("get done %s error = %v", tt.path, err)
		}
		if got := strings.TrimSpace(out); got != tt.want {
			t.Errorf("get done %s = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestGetFlake(t *testing.T) {
	t.Parallel()

	cacheDir, fingerprint := seedDatabase(t)

	out, err := runCommand(t, "get", "flake", "--cachedir", cacheDir, fingerprint.String())
	if err != nil {
		t.Fatalf("get flake error = %v", err)
	}
	var flake struct {
		Fingerprint string         `json:"fingerprint"`
		String      string         `json:"string"`
		Attrs       map[string]any `json:"attrs"`
	}
	if err := json.Unmarshal([]byte(out), &flake); err != nil {
		t.Fatalf("get flake output %q: %v", out, err)
	}
	if flake.Fingerprint != fingerprint.String() {
		t.Errorf("fingerprint = %q, want %q", flake.Fingerprint, fingerprint)
	}
	if flake.String != "github:NixOS/nixpkgs/ab12cd34" {
		t.Errorf("string = %q, want locked reference", flake.String)
	}
}

func TestGetDB(t *testing.T) {
	t.Parallel()

	cacheDir, fingerprint := seedDatabase(t)

	out, err := runCommand(t, "get", "db", "--cachedir", cacheDir, fingerprint.String())
	if err != nil {
		t.Fatalf("get db error = %v", err)
	}
	want := database.DBPath(cacheDir, fingerprint)
	if got := strings.TrimSpace(out); got != want {
		t.Errorf("get db = %q, want %q", got, want)
	}
}

func TestGetPkg(t *testing.T) {
	t.Parallel()

	cacheDir, fingerprint := seedDatabase(t)

	for _, arg := range []string{"legacyPackages.x86_64-linux.hello", "1"} {
		out, err := runCommand(t, "get", "pkg", "--cachedir", cacheDir,
			fingerprint.String(), arg)
		if err != nil {
			t.Fatalf("get pkg %s error = %v", arg, err)
		}
		var pkg model.Package
		if err := json.Unmarshal([]byte(out), &pkg); err != nil {
			t.Fatalf("get pkg output %q: %v", out, err)
		}
		if pkg.Pname != "hello" {
			t.Errorf("get pkg %s: Pname = %q, want %q", arg, pkg.Pname, "hello")
		}
	}
}

func TestGetByDatabasePath(t *testing.T) {
	t.Parallel()

	cacheDir, fingerprint := seedDatabase(t)
	dbPath := database.DBPath(cacheDir, fingerprint)

	out, err := runCommand(t, "get", "done", "--cachedir", cacheDir,
		dbPath, "legacyPackages.x86_64-linux")
	if err != nil {
		t.Fatalf("get done by path error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "true" {
		t.Errorf("get done by path = %q, want %q", got, "true")
	}
}

func TestGetMissingDatabase(t *testing.T) {
	t.Parallel()

	fingerprint := model.FingerprintOf("github:NixOS/nixpkgs/ffffffff")
	_, err := runCommand(t, "get", "flake", "--cachedir", t.TempDir(), fingerprint.String())
	if err == nil {
		t.Fatal("expected an error for a missing database")
	}
	if got := fmt.Sprint(err); !strings.Contains(got, "no such database") {
		t.Errorf("error = %q, want a no-such-database message", got)
	}
}
