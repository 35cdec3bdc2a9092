package scrape

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"pkgdb/internal/config"
	"pkgdb/internal/database"
	"pkgdb/internal/model"
	"pkgdb/internal/rules"
)

// fakeNode is an in-memory attribute tree node implementing Cursor.
type fakeNode struct {
	order    []string
	children map[string]*fakeNode

	// pkg marks the node as a derivation with this metadata.
	pkg *model.Package

	// recurse is the recurseForDerivations marker.
	recurse bool

	// failEval makes every access fail with ErrEval.
	failEval bool

	// notSet makes Children fail with ErrNotAttrSet.
	notSet bool
}

func (n *fakeNode) add(name string, child *fakeNode) *fakeNode {
	if n.children == nil {
		n.children = make(map[string]*fakeNode)
	}
	n.order = append(n.order, name)
	n.children[name] = child
	return n
}

func (n *fakeNode) Children(context.Context) ([]string, error) {
	if n.failEval {
		return nil, fmt.Errorf("%w: boom", ErrEval)
	}
	if n.notSet || n.children == nil {
		return nil, ErrNotAttrSet
	}
	return n.order, nil
}

func (n *fakeNode) Child(_ context.Context, name string) (Cursor, error) {
	if n.failEval {
		return nil, fmt.Errorf("%w: boom", ErrEval)
	}
	child, ok := n.children[name]
	if !ok {
		return nil, fmt.Errorf("no attribute %q", name)
	}
	return child, nil
}

func (n *fakeNode) IsDerivation(context.Context) (bool, error) {
	if n.failEval {
		return false, fmt.Errorf("%w: boom", ErrEval)
	}
	return n.pkg != nil, nil
}

func (n *fakeNode) MaybeRecurse(context.Context) (bool, error) {
	if n.failEval {
		return false, fmt.Errorf("%w: boom", ErrEval)
	}
	return n.recurse, nil
}

func (n *fakeNode) Package(context.Context) (*model.Package, error) {
	if n.failEval || n.pkg == nil {
		return nil, fmt.Errorf("%w: boom", ErrEval)
	}
	return n.pkg, nil
}

// drv returns a derivation node.
func drv(name, version string) *fakeNode {
	return &fakeNode{pkg: &model.Package{
		Name:    name + "-" + version,
		Pname:   name,
		Version: version,
		Outputs: []string{"out"},
	}}
}

// newTestDB opens a fresh writable database for scraping.
func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	ref := model.LockedRef{
		String: "github:NixOS/nixpkgs/ab12cd34",
		Attrs:  map[string]any{"type": "github"},
	}
	pdb, err := database.Open(context.Background(),
		filepath.Join(t.TempDir(), "test.sqlite"), ref, "testhash")
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = pdb.Close() })
	return pdb
}

// testRules builds a rules document descending into pythonPackages
// and pruning tests.
func testRules(t *testing.T) *rules.ScrapeRules {
	t.Helper()

	doc := `{
	  "allowRecursive": [["legacyPackages", null, "pythonPackages"]],
	  "disallowRecursive": [["legacyPackages", null, "tests"]]
	}`
	r, err := rules.New([]byte(doc))
	if err != nil {
		t.Fatalf("rules.New() error = %v", err)
	}
	return r
}

// legacyTarget prepares a scrape target for legacyPackages.x86_64-linux
// over the given tree.
func legacyTarget(t *testing.T, pdb *database.DB, root *fakeNode) Target {
	t.Helper()

	prefix := model.AttrPath{"legacyPackages", "x86_64-linux"}
	id, err := pdb.AddOrGetAttrSetPath(context.Background(), prefix)
	if err != nil {
		t.Fatal(err)
	}
	return Target{Prefix: prefix, Cursor: root, ParentID: id}
}

// hasPackage asserts presence or absence of a package path.
func hasPackage(t *testing.T, pdb *database.DB, path string, want bool) {
	t.Helper()

	got, err := pdb.HasPackage(context.Background(), model.ParseAttrPath(path))
	if err != nil {
		t.Fatalf("HasPackage(%s) error = %v", path, err)
	}
	if got != want {
		t.Errorf("HasPackage(%s) = %v, want %v", path, got, want)
	}
}

func TestProcessPageWalksTree(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pdb := newTestDB(t)

	python := (&fakeNode{}).
		add("requests", drv("python3.11-requests", "2.31.0")).
		add("recurseForDerivations", &fakeNode{notSet: true}).
		add("nested", (&fakeNode{recurse: true}).
			add("flask", drv("python3.11-flask", "3.0.0")))

	root := (&fakeNode{}).
		add("hello", drv("hello", "2.12.1")).
		add("pythonPackages", python).
		add("opaque", (&fakeNode{}).
			add("hidden", drv("hidden", "1.0.0"))).
		add("tests", (&fakeNode{recurse: true}).
			add("trap", drv("trap", "0.0.1")))

	scraper := New(pdb, testRules(t), config.EvalErrorPolicyDefault, nil)
	lastPage, err := scraper.ProcessPage(ctx, legacyTarget(t, pdb, root), 100, 0)
	if err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	if !lastPage {
		t.Error("single page not reported as last")
	}

	// Direct derivations and rule-allowed descent are recorded.
	hasPackage(t, pdb, "legacyPackages.x86_64-linux.hello", true)
	hasPackage(t, pdb, "legacyPackages.x86_64-linux.pythonPackages.requests", true)

	// Marker-driven descent below a rule-allowed set.
	hasPackage(t, pdb, "legacyPackages.x86_64-linux.pythonPackages.nested.flask", true)

	// Unmarked sets are not descended into.
	hasPackage(t, pdb, "legacyPackages.x86_64-linux.opaque.hidden", false)

	// Rule-pruned sets are skipped despite their marker.
	hasPackage(t, pdb, "legacyPackages.x86_64-linux.tests.trap", false)

	// The fully drained allowed set is marked done.
	done, err := pdb.CompletedAttrSet(ctx,
		model.AttrPath{"legacyPackages", "x86_64-linux", "pythonPackages"})
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Error("drained set not marked done")
	}
}

func TestProcessPagePagination(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pdb := newTestDB(t)

	root := &fakeNode{}
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("pkg%d", i)
		root.add(name, drv(name, "1.0.0"))
	}

	scraper := New(pdb, testRules(t), config.EvalErrorPolicyDefault, nil)
	target := legacyTarget(t, pdb, root)

	for page, wantLast := range []bool{false, false, true} {
		lastPage, err := scraper.ProcessPage(ctx, target, 2, page)
		if err != nil {
			t.Fatalf("ProcessPage(page %d) error = %v", page, err)
		}
		if lastPage != wantLast {
			t.Errorf("ProcessPage(page %d) lastPage = %v, want %v", page, lastPage, wantLast)
		}
	}

	for i := 0; i < 5; i++ {
		hasPackage(t, pdb, fmt.Sprintf("legacyPackages.x86_64-linux.pkg%d", i), true)
	}

	// The prefix is done after the last page, so a re-run
	// short-circuits.
	lastPage, err := scraper.ProcessPage(ctx, target, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !lastPage {
		t.Error("completed target not reported as last page")
	}
}

func TestProcessPageEvalErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	newTree := func() *fakeNode {
		return (&fakeNode{}).
			add("good", drv("good", "1.0.0")).
			add("bad", &fakeNode{failEval: true})
	}

	t.Run("default policy skips under legacyPackages", func(t *testing.T) {
		t.Parallel()

		pdb := newTestDB(t)
		scraper := New(pdb, testRules(t), config.EvalErrorPolicyDefault, nil)
		if _, err := scraper.ProcessPage(ctx, legacyTarget(t, pdb, newTree()), 100, 0); err != nil {
			t.Fatalf("ProcessPage() error = %v", err)
		}
		hasPackage(t, pdb, "legacyPackages.x86_64-linux.good", true)
	})

	t.Run("default policy aborts outside legacyPackages", func(t *testing.T) {
		t.Parallel()

		pdb := newTestDB(t)
		prefix := model.AttrPath{"catalog", "x86_64-linux"}
		id, err := pdb.AddOrGetAttrSetPath(ctx, prefix)
		if err != nil {
			t.Fatal(err)
		}
		scraper := New(pdb, testRules(t), config.EvalErrorPolicyDefault, nil)
		_, err = scraper.ProcessPage(ctx,
			Target{Prefix: prefix, Cursor: newTree(), ParentID: id}, 100, 0)
		if !errors.Is(err, ErrEval) {
			t.Errorf("ProcessPage() error = %v, want ErrEval", err)
		}
	})

	t.Run("abort policy aborts everywhere", func(t *testing.T) {
		t.Parallel()

		pdb := newTestDB(t)
		scraper := New(pdb, testRules(t), config.EvalErrorPolicyAbort, nil)
		_, err := scraper.ProcessPage(ctx, legacyTarget(t, pdb, newTree()), 100, 0)
		if !errors.Is(err, ErrEval) {
			t.Errorf("ProcessPage() error = %v, want ErrEval", err)
		}
	})

	t.Run("skip policy skips everywhere", func(t *testing.T) {
		t.Parallel()

		pdb := newTestDB(t)
		prefix := model.AttrPath{"catalog", "x86_64-linux"}
		id, err := pdb.AddOrGetAttrSetPath(ctx, prefix)
		if err != nil {
			t.Fatal(err)
		}
		scraper := New(pdb, testRules(t), config.EvalErrorPolicySkip, nil)
		if _, err := scraper.ProcessPage(ctx,
			Target{Prefix: prefix, Cursor: newTree(), ParentID: id}, 100, 0); err != nil {
			t.Fatalf("ProcessPage() error = %v", err)
		}
		hasPackage(t, pdb, "catalog.x86_64-linux.good", true)
	})
}

func TestPackagesSubtreeNoRecursion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pdb := newTestDB(t)

	root := (&fakeNode{}).
		add("default", drv("myapp", "1.0.0")).
		add("lib", (&fakeNode{recurse: true}).
			add("helper", drv("helper", "1.0.0")))

	prefix := model.AttrPath{"packages", "x86_64-linux"}
	id, err := pdb.AddOrGetAttrSetPath(ctx, prefix)
	if err != nil {
		t.Fatal(err)
	}

	scraper := New(pdb, testRules(t), config.EvalErrorPolicyDefault, nil)
	if _, err := scraper.ProcessPage(ctx,
		Target{Prefix: prefix, Cursor: root, ParentID: id}, 100, 0); err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}

	hasPackage(t, pdb, "packages.x86_64-linux.default", true)
	hasPackage(t, pdb, "packages.x86_64-linux.lib.helper", false)
}

func TestNonAttrSetChildrenAreSkipped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pdb := newTestDB(t)

	// A set whose marker requests descent but whose child is a plain
	// value, not a set.
	root := (&fakeNode{}).
		add("pythonPackages", (&fakeNode{}).
			add("version", &fakeNode{notSet: true, recurse: true}).
			add("requests", drv("requests", "2.31.0")))

	scraper := New(pdb, testRules(t), config.EvalErrorPolicyDefault, nil)
	if _, err := scraper.ProcessPage(ctx, legacyTarget(t, pdb, root), 100, 0); err != nil {
		t.Fatalf("ProcessPage() error = %v", err)
	}
	hasPackage(t, pdb, "legacyPackages.x86_64-linux.pythonPackages.requests", true)
}
