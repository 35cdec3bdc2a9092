package config

import "errors"

// Configuration validation errors.
//
// Design decision: package-level sentinel errors so callers can branch
// with errors.Is while still getting a readable message.
var (
	// ErrInvalidPageSize is returned for a negative page size.
	// Zero is legal and means "use the default".
	ErrInvalidPageSize = errors.New("invalid page size: must be non-negative")

	// ErrUnknownSystem is returned when a configured system is not one
	// of the supported platform doubles.
	ErrUnknownSystem = errors.New("unrecognized or unsupported system")

	// ErrConfigNotFound is returned when the configuration file does
	// not exist. Callers decide whether that is fatal based on whether
	// the path was explicitly given.
	ErrConfigNotFound = errors.New("configuration file not found")
)
