package database

import (
	"context"
	"errors"
	"testing"

	"pkgdb/internal/model"
)

// seedCatalog inserts a small catalog and returns ids keyed by a
// short label.
func seedCatalog(t *testing.T, pdb *DB) map[string]int64 {
	t.Helper()

	ids := make(map[string]int64)

	ids["hello-linux"] = addTestPackage(t, pdb,
		model.AttrPath{"legacyPackages", "x86_64-linux", "hello"},
		&model.Package{
			Name: "hello-2.12.1", Pname: "hello",
			Version: "2.12.1", Semver: "2.12.1",
			License: "GPL-3.0-or-later", Description: "A program that produces a familiar, friendly greeting.",
			Outputs: []string{"out"},
			Broken:  boolPtr(false), Unfree: boolPtr(false),
		})
	ids["hello-darwin"] = addTestPackage(t, pdb,
		model.AttrPath{"legacyPackages", "aarch64-darwin", "hello"},
		&model.Package{
			Name: "hello-2.12.1", Pname: "hello",
			Version: "2.12.1", Semver: "2.12.1",
			License: "GPL-3.0-or-later", Description: "A program that produces a familiar, friendly greeting.",
			Outputs: []string{"out"},
			Broken:  boolPtr(false), Unfree: boolPtr(false),
		})

	ids["nodejs-18"] = addTestPackage(t, pdb,
		model.AttrPath{"legacyPackages", "x86_64-linux", "nodejs_18"},
		&model.Package{
			Name: "nodejs-18.19.0", Pname: "nodejs",
			Version: "18.19.0", Semver: "18.19.0",
			Outputs: []string{"out"},
		})
	ids["nodejs-20"] = addTestPackage(t, pdb,
		model.AttrPath{"legacyPackages", "x86_64-linux", "nodejs_20"},
		&model.Package{
			Name: "nodejs-20.11.1", Pname: "nodejs",
			Version: "20.11.1", Semver: "20.11.1",
			Outputs: []string{"out"},
		})
	ids["nodejs-rc"] = addTestPackage(t, pdb,
		model.AttrPath{"legacyPackages", "x86_64-linux", "nodejs_rc"},
		&model.Package{
			Name: "nodejs-21.0.0-rc.1", Pname: "nodejs",
			Version: "21.0.0-rc.1", Semver: "21.0.0-rc.1",
			Outputs: []string{"out"},
		})

	ids["broken"] = addTestPackage(t, pdb,
		model.AttrPath{"legacyPackages", "x86_64-linux", "brokenpkg"},
		&model.Package{
			Name: "brokenpkg-1.0.0", Pname: "brokenpkg",
			Version: "1.0.0", Semver: "1.0.0",
			Outputs: []string{"out"}, Broken: boolPtr(true),
		})
	ids["unfree"] = addTestPackage(t, pdb,
		model.AttrPath{"legacyPackages", "x86_64-linux", "unfreepkg"},
		&model.Package{
			Name: "unfreepkg-1.0.0", Pname: "unfreepkg",
			Version: "1.0.0", Semver: "1.0.0",
			License: "unfree", Outputs: []string{"out"}, Unfree: boolPtr(true),
		})

	// Date-versioned package; carries no semver.
	ids["zk"] = addTestPackage(t, pdb,
		model.AttrPath{"legacyPackages", "x86_64-linux", "zk"},
		&model.Package{
			Name: "zk-2024-01-15", Pname: "zk",
			Version: "2024-01-15",
			Outputs: []string{"out"},
		})

	return ids
}

// linuxArgs returns default args pinned to x86_64-linux for
// deterministic results regardless of the host platform.
func linuxArgs() PkgQueryArgs {
	args := DefaultPkgQueryArgs()
	args.Systems = []model.System{"x86_64-linux"}
	return args
}

func TestPkgQueryFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pdb := newTestDB(t)
	ids := seedCatalog(t, pdb)

	contains := func(results []int64, id int64) bool {
		for _, r := range results {
			if r == id {
				return true
			}
		}
		return false
	}

	t.Run("broken excluded by default", func(t *testing.T) {
		args := linuxArgs()
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		if contains(results, ids["broken"]) {
			t.Error("broken package returned without AllowBroken")
		}
		if !contains(results, ids["unfree"]) {
			t.Error("unfree package excluded despite AllowUnfree default")
		}
	})

	t.Run("broken included on request", func(t *testing.T) {
		args := linuxArgs()
		args.AllowBroken = true
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		if !contains(results, ids["broken"]) {
			t.Error("broken package missing with AllowBroken")
		}
	})

	t.Run("unfree excluded on request", func(t *testing.T) {
		args := linuxArgs()
		args.AllowUnfree = false
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		if contains(results, ids["unfree"]) {
			t.Error("unfree package returned with AllowUnfree=false")
		}
	})

	t.Run("exact pname", func(t *testing.T) {
		args := linuxArgs()
		args.Pname = "hello"
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		if len(results) != 1 || results[0] != ids["hello-linux"] {
			t.Errorf("GetPackages() = %v, want [%d]", results, ids["hello-linux"])
		}
	})

	t.Run("exact version", func(t *testing.T) {
		args := linuxArgs()
		args.Pname = "nodejs"
		args.Version = "18.19.0"
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		if len(results) != 1 || results[0] != ids["nodejs-18"] {
			t.Errorf("GetPackages() = %v, want [%d]", results, ids["nodejs-18"])
		}
	})

	t.Run("license filter", func(t *testing.T) {
		args := linuxArgs()
		args.Licenses = []string{"GPL-3.0-or-later", "MIT"}
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		if len(results) != 1 || results[0] != ids["hello-linux"] {
			t.Errorf("GetPackages() = %v, want only the GPL package", results)
		}
	})

	t.Run("relPath filter", func(t *testing.T) {
		args := linuxArgs()
		args.RelPath = model.AttrPath{"hello"}
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		if len(results) != 1 || results[0] != ids["hello-linux"] {
			t.Errorf("GetPackages() = %v, want [%d]", results, ids["hello-linux"])
		}
	})

	t.Run("system filter", func(t *testing.T) {
		args := DefaultPkgQueryArgs()
		args.Systems = []model.System{"aarch64-darwin"}
		args.Pname = "hello"
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		if len(results) != 1 || results[0] != ids["hello-darwin"] {
			t.Errorf("GetPackages() = %v, want [%d]", results, ids["hello-darwin"])
		}
	})

	t.Run("limit truncates", func(t *testing.T) {
		args := linuxArgs()
		args.Limit = 2
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		if len(results) != 2 {
			t.Errorf("len(results) = %d, want 2", len(results))
		}
	})
}

func TestPkgQuerySemverFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pdb := newTestDB(t)
	ids := seedCatalog(t, pdb)

	t.Run("caret range", func(t *testing.T) {
		args := linuxArgs()
		args.Pname = "nodejs"
		args.Semver = "^18.0.0"
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		if len(results) != 1 || results[0] != ids["nodejs-18"] {
			t.Errorf("GetPackages() = %v, want [%d]", results, ids["nodejs-18"])
		}
	})

	t.Run("wildcard range keeps all semvers but drops date versions", func(t *testing.T) {
		args := linuxArgs()
		args.Semver = "*"
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		for _, id := range results {
			if id == ids["zk"] {
				t.Error("date-versioned package returned from semver query")
			}
		}
		found := false
		for _, id := range results {
			if id == ids["nodejs-20"] {
				found = true
			}
		}
		if !found {
			t.Error("semver package missing from wildcard query")
		}
	})

	t.Run("invalid range", func(t *testing.T) {
		args := linuxArgs()
		args.Semver = "not-a-range"
		_, err := pdb.GetPackages(ctx, &args)
		if !errors.Is(err, ErrInvalidQueryArg) {
			t.Errorf("GetPackages() error = %v, want ErrInvalidQueryArg", err)
		}
	})
}

func TestPkgQueryOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pdb := newTestDB(t)
	ids := seedCatalog(t, pdb)

	t.Run("releases rank above pre-releases", func(t *testing.T) {
		args := linuxArgs()
		args.Pname = "nodejs"
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		want := []int64{ids["nodejs-20"], ids["nodejs-18"], ids["nodejs-rc"]}
		if len(results) != len(want) {
			t.Fatalf("len(results) = %d, want %d", len(results), len(want))
		}
		for i := range want {
			if results[i] != want[i] {
				t.Errorf("results[%d] = %d, want %d (full: %v)", i, results[i], want[i], results)
			}
		}
	})

	t.Run("preferPreReleases ranks by version alone", func(t *testing.T) {
		args := linuxArgs()
		args.Pname = "nodejs"
		args.PreferPreReleases = true
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		want := []int64{ids["nodejs-rc"], ids["nodejs-20"], ids["nodejs-18"]}
		for i := range want {
			if results[i] != want[i] {
				t.Errorf("results[%d] = %d, want %d (full: %v)", i, results[i], want[i], results)
			}
		}
	})

	t.Run("system preference order", func(t *testing.T) {
		args := DefaultPkgQueryArgs()
		args.Systems = []model.System{"aarch64-darwin", "x86_64-linux"}
		args.Pname = "hello"
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		want := []int64{ids["hello-darwin"], ids["hello-linux"]}
		if len(results) != 2 || results[0] != want[0] || results[1] != want[1] {
			t.Errorf("GetPackages() = %v, want %v", results, want)
		}
	})

	t.Run("exact name match outranks partial", func(t *testing.T) {
		args := linuxArgs()
		args.PartialNameMatch = "hello"
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		if len(results) == 0 || results[0] != ids["hello-linux"] {
			t.Errorf("GetPackages() = %v, want hello first", results)
		}
	})
}

func TestPkgQueryFuzzyMatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pdb := newTestDB(t)
	ids := seedCatalog(t, pdb)

	t.Run("partialMatch includes description", func(t *testing.T) {
		args := linuxArgs()
		args.PartialMatch = "friendly greeting"
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		if len(results) != 1 || results[0] != ids["hello-linux"] {
			t.Errorf("GetPackages() = %v, want description match", results)
		}
	})

	t.Run("partialNameMatch ignores description", func(t *testing.T) {
		args := linuxArgs()
		args.PartialNameMatch = "friendly greeting"
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		if len(results) != 0 {
			t.Errorf("GetPackages() = %v, want no name matches", results)
		}
	})

	t.Run("relPath fuzzy match with dots", func(t *testing.T) {
		args := linuxArgs()
		args.PartialNameOrRelPathMatch = "nodejs_18"
		results, err := pdb.GetPackages(ctx, &args)
		if err != nil {
			t.Fatalf("GetPackages() error = %v", err)
		}
		found := false
		for _, id := range results {
			if id == ids["nodejs-18"] {
				found = true
			}
		}
		if !found {
			t.Errorf("GetPackages() = %v, want nodejs_18 match", results)
		}
	})
}

func TestPkgQueryDeduplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pdb := newTestDB(t)
	ids := seedCatalog(t, pdb)

	args := DefaultPkgQueryArgs()
	args.Systems = []model.System{"x86_64-linux", "aarch64-darwin"}
	args.Pname = "hello"

	plain, err := pdb.GetPackages(ctx, &args)
	if err != nil {
		t.Fatalf("GetPackages() error = %v", err)
	}
	if len(plain) != 2 {
		t.Fatalf("len(plain) = %d, want a row per system", len(plain))
	}

	args.Deduplicate = true
	deduped, err := pdb.GetPackages(ctx, &args)
	if err != nil {
		t.Fatalf("GetPackages() error = %v", err)
	}
	if len(deduped) != 1 {
		t.Errorf("len(deduped) = %d, want 1", len(deduped))
	}
	if deduped[0] != ids["hello-linux"] && deduped[0] != ids["hello-darwin"] {
		t.Errorf("deduped = %v, want one of the hello rows", deduped)
	}
}

func TestPkgQueryArgsCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mod  func(*PkgQueryArgs)
	}{
		{name: "name with pname", mod: func(a *PkgQueryArgs) { a.Name = "x"; a.Pname = "y" }},
		{name: "name with semver", mod: func(a *PkgQueryArgs) { a.Name = "x"; a.Semver = "^1" }},
		{name: "version with semver", mod: func(a *PkgQueryArgs) { a.Version = "1.0"; a.Semver = "^1" }},
		{name: "license with quote", mod: func(a *PkgQueryArgs) { a.Licenses = []string{"M'IT"} }},
		{name: "unknown system", mod: func(a *PkgQueryArgs) { a.Systems = []model.System{"riscv64-plan9"} }},
		{name: "unknown subtree", mod: func(a *PkgQueryArgs) { a.Subtrees = []model.Subtree{"junk"} }},
		{
			name: "both partial filters",
			mod:  func(a *PkgQueryArgs) { a.PartialMatch = "x"; a.PartialNameMatch = "y" },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			args := DefaultPkgQueryArgs()
			tt.mod(&args)
			if err := args.Check(); !errors.Is(err, ErrInvalidQueryArg) {
				t.Errorf("Check() = %v, want ErrInvalidQueryArg", err)
			}
		})
	}

	t.Run("defaults valid", func(t *testing.T) {
		t.Parallel()

		args := DefaultPkgQueryArgs()
		if err := args.Check(); err != nil {
			t.Errorf("Check() = %v, want nil", err)
		}
	})
}
