// Package database implements the SQLite storage layer for scraped
// package metadata.
//
// One database file holds the packages of exactly one locked flake,
// keyed by the flake's fingerprint. Attribute paths are stored as an
// adjacency-list tree in AttrSets with per-node completion markers, so
// a partially scraped database remains valid and resumable. Packages
// rows hang off their parent attribute set, and description text is
// deduplicated through the Descriptions table.
//
// The read layer opens databases read-only and never creates files;
// the write layer creates and migrates schemas and supports the
// incremental scrape protocol. Search queries are assembled by
// PkgQuery, which compiles filter arguments into a single SQL
// statement over the v_PackagesSearch view and post-filters semantic
// version ranges in Go.
package database
