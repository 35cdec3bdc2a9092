package scrape

import (
	"context"
	"errors"

	"pkgdb/internal/model"
)

// Evaluation errors. Cursor implementations wrap evaluation failures
// with ErrEval so the engine can apply its skip-or-abort policy, and
// report attributes that turn out not to be sets with ErrNotAttrSet.
var (
	// ErrEval marks a Nix evaluation failure for one attribute.
	ErrEval = errors.New("evaluation failed")

	// ErrNotAttrSet is returned by Children when the attribute is not
	// an attribute set. These are infrequent enough that probing
	// first costs more than handling the failure.
	ErrNotAttrSet = errors.New("not an attribute set")
)

// Cursor is a lazy handle on one attribute of an evaluated flake.
// Methods force evaluation on demand; any of them may fail with
// ErrEval.
type Cursor interface {
	// Children returns the attribute names of this set in evaluation
	// order. Returns ErrNotAttrSet when the value is not a set.
	Children(ctx context.Context) ([]string, error)

	// Child descends into a named attribute.
	Child(ctx context.Context, name string) (Cursor, error)

	// IsDerivation reports whether this attribute is a derivation.
	IsDerivation(ctx context.Context) (bool, error)

	// MaybeRecurse reports the recurseForDerivations marker, false
	// when absent.
	MaybeRecurse(ctx context.Context) (bool, error)

	// Package reads the derivation's metadata fields. Only valid when
	// IsDerivation reports true.
	Package(ctx context.Context) (*model.Package, error)
}

// Flake supplies root cursors for an evaluated locked flake.
type Flake interface {
	// LockedRef returns the locked flake reference identifying this
	// evaluation.
	LockedRef() model.LockedRef

	// Root returns a cursor positioned at an attribute path under the
	// flake's outputs, or ErrNotFound-like absence via (nil, nil).
	Root(ctx context.Context, path model.AttrPath) (Cursor, error)
}
