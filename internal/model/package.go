package model

// Package is the structured metadata record for one package row,
// as returned by point lookups and rendered by the CLI.
//
// Broken and Unfree use pointers because the underlying metadata may be
// absent; a nil value serializes as JSON null, distinct from false.
type Package struct {
	// ID is the Packages row id within the owning database.
	ID int64 `json:"id"`

	// Name is the full store name, e.g. "hello-2.12.1".
	Name string `json:"name"`

	// Pname is the package name stripped of its version.
	Pname string `json:"pname"`

	// Version is the raw version string, empty when unknown.
	Version string `json:"version,omitempty"`

	// Semver is the coerced semantic version, empty when Version does
	// not loosen to a valid semver.
	Semver string `json:"semver,omitempty"`

	// License is an SPDX identifier when metadata carries one.
	License string `json:"license,omitempty"`

	// Description is the resolved (deduplicated) description text.
	Description string `json:"description,omitempty"`

	// Outputs lists the derivation outputs, e.g. ["out", "man"].
	Outputs []string `json:"outputs"`

	// OutputsToInstall lists the outputs installed by default.
	OutputsToInstall []string `json:"outputsToInstall,omitempty"`

	Broken *bool `json:"broken"`
	Unfree *bool `json:"unfree"`

	// AbsPath is the full attribute path to the package.
	AbsPath AttrPath `json:"absPath"`

	// Subtree and System are the first two segments of AbsPath.
	Subtree Subtree `json:"subtree"`
	System  System  `json:"system"`

	// RelPath is AbsPath with the subtree and system stripped.
	RelPath AttrPath `json:"relPath"`
}

// LockedRef is the locked flake reference recorded in the database,
// pairing the printable reference string with its structured attrs.
type LockedRef struct {
	// String is the locked flake reference URL form.
	String string `json:"string"`

	// Attrs is the structured representation, stored as JSON.
	Attrs map[string]any `json:"attrs"`
}
