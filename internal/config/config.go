package config

import (
	"runtime"

	"pkgdb/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "pkgdb"

	// Version is the application version recorded in databases and
	// printed by the version command.
	Version = "0.1.0"

	// MinPageSize bounds pagination from below. Pages smaller than
	// this churn through transactions faster than they save memory.
	MinPageSize = 100

	// MaxPageSize bounds pagination from above. A page is the unit of
	// work one scrape invocation must finish, so oversized pages defeat
	// the point of splitting work across cooperating processes.
	MaxPageSize = 10000

	// pageSizeBudget is the rough number of attributes one process is
	// comfortable holding live across a page, split across workers.
	pageSizeBudget = 20000
)

// DefaultPageSize picks a page size from available parallelism: more
// workers means smaller pages so that fan-out stays balanced. The
// result is clamped to [MinPageSize, MaxPageSize].
func DefaultPageSize() int {
	size := pageSizeBudget / runtime.NumCPU()
	if size < MinPageSize {
		return MinPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// EvalErrorPolicy selects how the scrape engine treats an attribute
// whose evaluation fails.
type EvalErrorPolicy int

const (
	// EvalErrorPolicyDefault skips failing attributes only under the
	// legacyPackages subtree, where broken members are routine, and
	// aborts elsewhere.
	EvalErrorPolicyDefault EvalErrorPolicy = iota

	// EvalErrorPolicySkip always skips-and-logs failing attributes.
	EvalErrorPolicySkip

	// EvalErrorPolicyAbort always aborts the scrape on the first
	// failing attribute.
	EvalErrorPolicyAbort
)

// Config holds all configuration options for pkgdb commands.
//
// Design decision: a single flat struct populated from CLI flags and
// the optional config file, passed down by value. The option count is
// small enough that nested sub-structs would add noise without benefit.
type Config struct {
	// CacheDir is the directory holding database and lock files.
	// Empty means resolve the default (PKGDB_CACHEDIR, then the XDG
	// cache home).
	CacheDir string

	// PageSize is the number of child attributes processed per scrape
	// invocation. Zero means DefaultPageSize(); out-of-range values
	// are clamped.
	PageSize int

	// Systems restricts which platform subtrees are scraped and
	// queried. Empty means the current system only.
	Systems []model.System

	// RulesFile overrides the built-in scrape rules document.
	RulesFile string

	// EvalErrors selects the per-attribute evaluation failure policy.
	EvalErrors EvalErrorPolicy

	// Verbose enables debug-level log output.
	Verbose bool
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	return &Config{
		PageSize: DefaultPageSize(),
		Systems:  []model.System{model.CurrentSystem()},
	}
}

// EffectivePageSize returns PageSize clamped to the legal bounds,
// substituting the default for zero.
func (c *Config) EffectivePageSize() int {
	if c.PageSize == 0 {
		return DefaultPageSize()
	}
	if c.PageSize < MinPageSize {
		return MinPageSize
	}
	if c.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return c.PageSize
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.PageSize < 0 {
		return ErrInvalidPageSize
	}
	for _, system := range c.Systems {
		if !model.ValidSystem(system) {
			return ErrUnknownSystem
		}
	}
	return nil
}
