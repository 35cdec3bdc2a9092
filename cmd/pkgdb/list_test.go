package main

import (
	"encoding/json"
	"strings"
	"testing"

	"pkgdb/internal/model"
)

func TestListCommand(t *testing.T) {
	t.Parallel()

	cacheDir, fingerprint := seedDatabase(t)

	t.Run("text listing", func(t *testing.T) {
		t.Parallel()

		out, err := runCommand(t, "list", "--cachedir", cacheDir)
		if err != nil {
			t.Fatalf("list error = %v", err)
		}
		if !strings.Contains(out, fingerprint.String()) {
			t.Error("expected fingerprint in listing")
		}
		if !strings.Contains(out, "github:NixOS/nixpkgs/ab12cd34") {
			t.Error("expected flake reference in listing")
		}
	})

	t.Run("basenames", func(t *testing.T) {
		t.Parallel()

		out, err := runCommand(t, "list", "--basenames", "--cachedir", cacheDir)
		if err != nil {
			t.Fatalf("list --basenames error = %v", err)
		}
		want := fingerprint.String() + ".sqlite"
		if got := strings.TrimSpace(out); got != want {
			t.Errorf("list --basenames = %q, want %q", got, want)
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		out, err := runCommand(t, "list", "--json", "--cachedir", cacheDir)
		if err != nil {
			t.Fatalf("list --json error = %v", err)
		}
		var infos []model.DatabaseInfo
		if err := json.Unmarshal([]byte(out), &infos); err != nil {
			t.Fatalf("list --json output: %v", err)
		}
		if len(infos) != 1 {
			t.Fatalf("got %d databases, want 1", len(infos))
		}
		if infos[0].Fingerprint != fingerprint {
			t.Error("fingerprint mismatch in JSON listing")
		}
		if infos[0].RulesHash != "rulehash" {
			t.Errorf("RulesHash = %q, want %q", infos[0].RulesHash, "rulehash")
		}
	})

	t.Run("markdown", func(t *testing.T) {
		t.Parallel()

		out, err := runCommand(t, "list", "--markdown", "--cachedir", cacheDir)
		if err != nil {
			t.Fatalf("list --markdown error = %v", err)
		}
		if !strings.Contains(out, "# Package Databases") {
			t.Error("expected markdown header")
		}
	})

	t.Run("empty cache", func(t *testing.T) {
		t.Parallel()

		out, err := runCommand(t, "list", "--cachedir", t.TempDir())
		if err != nil {
			t.Fatalf("list error = %v", err)
		}
		if strings.TrimSpace(out) != "" {
			t.Errorf("expected empty listing, got %q", out)
		}
	})
}
