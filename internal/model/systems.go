package model

import "runtime"

// Subtree is one of the top-level namespaces partitioning the package
// tree. Only these two namespaces are scraped.
type Subtree string

// Recognized subtrees.
const (
	// SubtreePackages holds flake `packages` outputs. Members are
	// always derivations; the scraper never recurses below them.
	SubtreePackages Subtree = "packages"

	// SubtreeLegacy holds `legacyPackages` outputs, a deep nested tree
	// where recursion is guided by rules and heuristics.
	SubtreeLegacy Subtree = "legacyPackages"
)

// DefaultSubtrees is the subtree search order used when a query does
// not restrict subtrees explicitly.
func DefaultSubtrees() []Subtree {
	return []Subtree{SubtreePackages, SubtreeLegacy}
}

// ValidSubtree reports whether s names a recognized subtree.
func ValidSubtree(s Subtree) bool {
	return s == SubtreePackages || s == SubtreeLegacy
}

// System is a platform double such as "x86_64-linux".
type System = string

// DefaultSystems returns the supported platform set, in the canonical
// order used for system-rank ordering in queries.
func DefaultSystems() []System {
	return []System{
		"aarch64-darwin",
		"aarch64-linux",
		"x86_64-darwin",
		"x86_64-linux",
	}
}

// ValidSystem reports whether system is one of the supported platforms.
func ValidSystem(system System) bool {
	for _, s := range DefaultSystems() {
		if s == system {
			return true
		}
	}
	return false
}

// CurrentSystem returns the platform double for the running process.
func CurrentSystem() System {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	}
	return arch + "-" + runtime.GOOS
}
