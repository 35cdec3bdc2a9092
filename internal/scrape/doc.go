// Package scrape walks an evaluated flake's attribute tree and
// records derivations into a package database.
//
// The walk is depth-first over an explicit todo stack rather than
// recursive, and the top level of each prefix is paginated: one
// ProcessPage call evaluates a bounded slice of the prefix's children
// and everything beneath them, so a crashed or interrupted scrape
// loses at most one page of work. Completed portions of the tree are
// marked done in the database and skipped on resume.
//
// Which attribute sets are descended into is decided by scrape rules
// first, then by the conventional recurseForDerivations marker. The
// packages subtree is special-cased: its children are derivations by
// definition and are never descended into.
package scrape
