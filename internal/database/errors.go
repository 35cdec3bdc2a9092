package database

import "errors"

// Storage layer errors. Lookup misses are reported through
// ErrNotFound so callers can distinguish "no such row" from I/O and
// corruption failures.
var (
	// ErrNoSuchDatabase is returned when opening a database file that
	// does not exist.
	ErrNoSuchDatabase = errors.New("no such database")

	// ErrNotFound is returned by point lookups when the requested
	// attribute set, package, or description row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSchemaMismatch is returned when the on-disk table schema
	// version differs from the version this build writes. The file
	// must be re-created by a fresh scrape.
	ErrSchemaMismatch = errors.New("table schema version mismatch")

	// ErrFingerprintMismatch is returned when a database's recorded
	// flake fingerprint differs from the expected one.
	ErrFingerprintMismatch = errors.New("flake fingerprint mismatch")

	// ErrNoLockedFlake is returned when reading a database whose
	// LockedFlake row has not been written yet. Another process may
	// be mid-initialization.
	ErrNoLockedFlake = errors.New("no LockedFlake row")

	// ErrInvalidQueryArg is returned when package query parameters are
	// malformed or mutually exclusive.
	ErrInvalidQueryArg = errors.New("invalid package query argument")
)
