package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"pkgdb/internal/model"
)

// Raw is the rules document in its on-disk JSON form: four lists of
// attribute-path globs.
type Raw struct {
	AllowPackage      []model.AttrPathGlob `json:"allowPackage,omitempty"`
	DisallowPackage   []model.AttrPathGlob `json:"disallowPackage,omitempty"`
	AllowRecursive    []model.AttrPathGlob `json:"allowRecursive,omitempty"`
	DisallowRecursive []model.AttrPathGlob `json:"disallowRecursive,omitempty"`
}

// UnmarshalJSON rejects unknown fields so a typo in a rules file fails
// loudly instead of silently scraping everything.
func (r *Raw) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for key, value := range fields {
		var dst *[]model.AttrPathGlob
		switch key {
		case "allowPackage":
			dst = &r.AllowPackage
		case "disallowPackage":
			dst = &r.DisallowPackage
		case "allowRecursive":
			dst = &r.AllowRecursive
		case "disallowRecursive":
			dst = &r.DisallowRecursive
		default:
			return fmt.Errorf("%w: %q", ErrUnknownRuleField, key)
		}
		if err := json.Unmarshal(value, dst); err != nil {
			return fmt.Errorf("couldn't interpret field %q: %w", key, err)
		}
	}
	return nil
}

// ScrapeRules is a fully built rules tree plus the content hash of the
// document it was built from. The hash is recorded in the database so a
// changed rules document invalidates previously scraped caches.
type ScrapeRules struct {
	root *TreeNode
	hash string
}

// New parses a JSON rules document and builds its tree.
//
// Globs are inserted in precedence order (allowPackage first) so a
// conflict surfaces deterministically regardless of document layout.
func New(rulesJSON []byte) (*ScrapeRules, error) {
	var raw Raw
	if err := json.Unmarshal(rulesJSON, &raw); err != nil {
		return nil, fmt.Errorf("parsing rules document: %w", err)
	}

	root := newNode("")
	for _, ins := range []struct {
		globs []model.AttrPathGlob
		rule  Rule
	}{
		{raw.AllowPackage, RuleAllowPackage},
		{raw.DisallowPackage, RuleDisallowPackage},
		{raw.AllowRecursive, RuleAllowRecursive},
		{raw.DisallowRecursive, RuleDisallowRecursive},
	} {
		for _, glob := range ins.globs {
			if err := root.AddRule(glob, ins.rule); err != nil {
				return nil, fmt.Errorf("rule %q (%s): %w", glob, ins.rule, err)
			}
		}
	}

	sum := sha256.Sum256(rulesJSON)
	return &ScrapeRules{root: root, hash: hex.EncodeToString(sum[:])}, nil
}

// Load reads and parses a rules document from path.
func Load(path string) (*ScrapeRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return New(data)
}

// Hash returns the hex SHA-256 of the source document.
func (r *ScrapeRules) Hash() string {
	return r.hash
}

// GetRule returns the rule stored exactly at path, without
// inheritance. See TreeNode.GetRule.
func (r *ScrapeRules) GetRule(path model.AttrPath) Rule {
	return r.root.GetRule(path)
}

// ApplyRules returns the allow/disallow verdict for path, or ok=false
// when no rule applies. See TreeNode.ApplyRules.
func (r *ScrapeRules) ApplyRules(path model.AttrPath) (allowed, ok bool) {
	return r.root.ApplyRules(path)
}
