package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AttrPath is a sequence of attribute name segments locating a node in
// the package-set tree, e.g. ["legacyPackages", "x86_64-linux", "hello"].
//
// The empty path refers to the tree root.
type AttrPath []string

// ParseAttrPath splits a `.`-joined attribute path into its segments.
// An empty string yields the root (empty) path.
func ParseAttrPath(s string) AttrPath {
	if s == "" {
		return AttrPath{}
	}
	return AttrPath(strings.Split(s, "."))
}

// String returns the `.`-joined form of the path.
func (p AttrPath) String() string {
	return strings.Join(p, ".")
}

// Clone returns an independent copy of the path.
func (p AttrPath) Clone() AttrPath {
	out := make(AttrPath, len(p))
	copy(out, p)
	return out
}

// Child returns a new path with name appended. The receiver is not
// modified and does not share backing storage with the result.
func (p AttrPath) Child(name string) AttrPath {
	out := make(AttrPath, len(p)+1)
	copy(out, p)
	out[len(p)] = name
	return out
}

// Parent returns the path with its last segment removed.
// The root path's parent is the root path.
func (p AttrPath) Parent() AttrPath {
	if len(p) == 0 {
		return AttrPath{}
	}
	return p[:len(p)-1].Clone()
}

// Subtree returns the top-level namespace the path belongs to, or an
// empty Subtree for the root path.
func (p AttrPath) Subtree() Subtree {
	if len(p) == 0 {
		return ""
	}
	return Subtree(p[0])
}

// globWildcard is the literal wildcard marker accepted in rules
// documents in addition to JSON null.
const globWildcard = "*"

// GlobSegment is one element of an attribute path glob: either a
// literal attribute name or a wildcard matching any single segment.
type GlobSegment struct {
	// Name is the literal segment. Ignored when Wildcard is true.
	Name string

	// Wildcard reports whether this segment matches any attribute name.
	Wildcard bool
}

// UnmarshalJSON accepts a string segment or null. The string "*" is
// also treated as a wildcard so hand-written rules files can avoid
// bare nulls.
func (s *GlobSegment) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = GlobSegment{Wildcard: true}
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("glob segment must be a string or null: %w", err)
	}
	if name == globWildcard {
		*s = GlobSegment{Wildcard: true}
		return nil
	}
	*s = GlobSegment{Name: name}
	return nil
}

// MarshalJSON emits null for wildcards and the literal name otherwise.
func (s GlobSegment) MarshalJSON() ([]byte, error) {
	if s.Wildcard {
		return []byte("null"), nil
	}
	return json.Marshal(s.Name)
}

// AttrPathGlob is an attribute path pattern used in rules documents.
type AttrPathGlob []GlobSegment

// String renders the glob with `*` for wildcard segments, joined
// with dots. Used in error messages and trace logs.
func (g AttrPathGlob) String() string {
	parts := make([]string, len(g))
	for i, seg := range g {
		if seg.Wildcard {
			parts[i] = globWildcard
		} else {
			parts[i] = seg.Name
		}
	}
	return strings.Join(parts, ".")
}
