// Package input coordinates access to the package database of one
// locked flake.
//
// An Input owns the mapping from flake fingerprint to database file,
// decides whether the on-disk database is usable (schema version and
// scrape rules hash must both match), and arbitrates creation between
// processes through the heartbeat lock. Commands ask an Input for a
// read-only or writable database handle and never touch paths or
// locks themselves.
package input
