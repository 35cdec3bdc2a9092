// Package model defines the core value types shared across the package
// database: attribute paths, path globs, subtrees, systems, flake
// fingerprints, and package metadata records.
//
// All types in this package are plain values with no I/O. They are safe
// to copy and, once constructed, safe for concurrent use.
package model
