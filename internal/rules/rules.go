package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"pkgdb/internal/model"
)

// Rule is the decision stored at one node of the rules tree.
type Rule int

// Rule values, from unset to most specific.
const (
	// RuleNone is the empty state. Never stored in a tree; returned
	// only by String for diagnostics.
	RuleNone Rule = iota

	// RuleDefault applies no special handling; the scraper falls back
	// to its derivation-probing heuristic.
	RuleDefault

	// RuleAllowPackage forces a package row even when the cursor does
	// not look like a derivation.
	RuleAllowPackage

	// RuleAllowRecursive forces recursion into a subtree.
	RuleAllowRecursive

	// RuleDisallowPackage skips a single attribute.
	RuleDisallowPackage

	// RuleDisallowRecursive prunes an entire subtree without
	// evaluating it.
	RuleDisallowRecursive
)

// String returns the rules-document spelling of the rule.
func (r Rule) String() string {
	switch r {
	case RuleNone:
		return "UNSET"
	case RuleDefault:
		return "default"
	case RuleAllowPackage:
		return "allowPackage"
	case RuleAllowRecursive:
		return "allowRecursive"
	case RuleDisallowPackage:
		return "disallowPackage"
	case RuleDisallowRecursive:
		return "disallowRecursive"
	default:
		return fmt.Sprintf("Rule(%d)", int(r))
	}
}

// recursive reports whether the rule passes down to descendants.
func (r Rule) recursive() bool {
	return r == RuleAllowRecursive || r == RuleDisallowRecursive
}

// Rules engine errors.
var (
	// ErrInvalidRule is returned when a rules document conflicts with
	// itself, e.g. two different rules target the same path.
	ErrInvalidRule = errors.New("invalid rule definition")

	// ErrUnknownRuleField is returned when a rules document contains a
	// field other than the four recognized glob lists.
	ErrUnknownRuleField = errors.New("unknown scrape rule field")

	// ErrBadGlob is returned when a wildcard segment appears anywhere
	// other than the system position under legacyPackages.
	ErrBadGlob = errors.New("wildcard only allowed as child of legacyPackages")
)

// TreeNode is one node of the rules prefix tree. The zero value is a
// RuleDefault node with no children.
type TreeNode struct {
	// AttrName is this node's path segment. Empty for the root.
	AttrName string

	// Rule is the decision stored exactly at this node.
	Rule Rule

	// Children maps child segment names to their nodes.
	Children map[string]*TreeNode
}

// newNode returns a default-rule node for the given segment.
func newNode(attrName string) *TreeNode {
	return &TreeNode{AttrName: attrName, Rule: RuleDefault}
}

// AddRule inserts rule at relPath below n, creating RuleDefault
// intermediate nodes along the way. Inserting a second, conflicting
// rule at an already-decided node fails with ErrInvalidRule.
//
// A wildcard segment is only legal in the system position directly
// under legacyPackages; it expands into one insertion per default
// system.
func (n *TreeNode) AddRule(relPath model.AttrPathGlob, rule Rule) error {
	if len(relPath) == 0 {
		if n.Rule != RuleDefault {
			return fmt.Errorf("%w: cannot overwrite rule %q with %q at %q",
				ErrInvalidRule, n.Rule, rule, n.AttrName)
		}
		n.Rule = rule
		return nil
	}

	head := relPath[0]
	if head.Wildcard {
		if n.AttrName != string(model.SubtreeLegacy) {
			return fmt.Errorf("%w: under %q", ErrBadGlob, n.AttrName)
		}
		for _, system := range model.DefaultSystems() {
			expanded := make(model.AttrPathGlob, len(relPath))
			copy(expanded, relPath)
			expanded[0] = model.GlobSegment{Name: system}
			if err := n.AddRule(expanded, rule); err != nil {
				return err
			}
		}
		return nil
	}

	if n.Children == nil {
		n.Children = make(map[string]*TreeNode)
	}
	child, ok := n.Children[head.Name]
	if !ok {
		child = newNode(head.Name)
		n.Children[head.Name] = child
	}
	return child.AddRule(relPath[1:], rule)
}

// GetRule returns the rule stored exactly at path relative to n, or
// RuleDefault if no node exists there. It does not consult ancestors;
// use ApplyRules for inheritance.
func (n *TreeNode) GetRule(path model.AttrPath) Rule {
	node := n
	for _, attrName := range path {
		child, ok := node.Children[attrName]
		if !ok {
			return RuleDefault
		}
		node = child
	}
	return node.Rule
}

// ApplyRules walks from n along path and returns the allow/disallow
// verdict for the terminal node, or (false, false) when no rule applies
// anywhere on the path.
//
// Recursive rules encountered along the way are inherited by all
// descendants unless overridden deeper in the tree. A package-level
// rule only decides the node it is stored at: at the terminal node it
// overrides any inherited recursive verdict, while at intermediate
// nodes it is skipped.
func (n *TreeNode) ApplyRules(path model.AttrPath) (allowed, ok bool) {
	verdict := RuleDefault
	node := n
	for i, attrName := range path {
		child, exists := node.Children[attrName]
		if !exists {
			break
		}
		node = child
		terminal := i == len(path)-1
		switch {
		case node.Rule.recursive():
			verdict = node.Rule
		case terminal && node.Rule != RuleDefault:
			verdict = node.Rule
		}
	}

	switch verdict {
	case RuleAllowPackage, RuleAllowRecursive:
		return true, true
	case RuleDisallowPackage, RuleDisallowRecursive:
		return false, true
	default:
		return false, false
	}
}

//go:embed default_rules.json
var defaultRulesJSON []byte

var (
	defaultOnce  sync.Once
	defaultRules *ScrapeRules
	defaultErr   error
)

// Default returns the process-wide built-in rule set, loading it on
// first use. The embedded document is part of the binary, so a parse
// failure indicates a build defect and is returned to every caller.
func Default() (*ScrapeRules, error) {
	defaultOnce.Do(func() {
		defaultRules, defaultErr = New(defaultRulesJSON)
	})
	if defaultErr != nil {
		return nil, fmt.Errorf("built-in rules document: %w", defaultErr)
	}
	return defaultRules, nil
}
