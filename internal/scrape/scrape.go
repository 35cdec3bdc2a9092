package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pkgdb/internal/config"
	"pkgdb/internal/database"
	"pkgdb/internal/model"
	"pkgdb/internal/rules"
)

// recurseMarker is the conventional attribute requesting descent into
// a non-derivation set. It is itself never scraped.
const recurseMarker = "recurseForDerivations"

// Target is one attribute set to scrape: its path, its cursor, and
// its AttrSets row id.
type Target struct {
	Prefix   model.AttrPath
	Cursor   Cursor
	ParentID int64
}

// Scraper drives the paginated walk for one database.
type Scraper struct {
	db     *database.DB
	rules  *rules.ScrapeRules
	policy config.EvalErrorPolicy
	logger *slog.Logger
}

// New returns a Scraper writing to db under the given rules and
// evaluation failure policy.
func New(db *database.DB, scrapeRules *rules.ScrapeRules, policy config.EvalErrorPolicy, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{db: db, rules: scrapeRules, policy: policy, logger: logger}
}

// skipEvalError decides whether an evaluation failure at path is
// skipped or aborts the scrape.
func (s *Scraper) skipEvalError(subtree model.Subtree, path model.AttrPath, err error) error {
	switch s.policy {
	case config.EvalErrorPolicySkip:
	case config.EvalErrorPolicyAbort:
		return fmt.Errorf("evaluating '%s': %w", path, err)
	default:
		// Broken members are routine under legacyPackages and fatal
		// anywhere else.
		if subtree != model.SubtreeLegacy {
			return fmt.Errorf("evaluating '%s': %w", path, err)
		}
	}
	s.logger.Debug("skipping attribute that failed to evaluate",
		"attrPath", path.String(), "error", err)
	return nil
}

// ProcessPage scrapes one page of the target's direct children, and
// everything beneath the attribute sets discovered on that page. It
// reports whether this was the last page of the target.
//
// An already-completed target reports lastPage immediately, which
// makes re-running a finished scrape cheap.
func (s *Scraper) ProcessPage(ctx context.Context, target Target, pageSize, pageIdx int) (bool, error) {
	done, err := s.db.CompletedAttrSetByID(ctx, target.ParentID)
	if err != nil {
		return false, err
	}
	if done {
		return true, nil
	}

	subtree := target.Prefix.Subtree()

	s.logger.Debug("evaluating package set",
		"attrPath", target.Prefix.String(), "page", pageIdx)

	names, err := target.Cursor.Children(ctx)
	if err != nil {
		return false, fmt.Errorf("listing '%s': %w", target.Prefix, err)
	}

	start := pageIdx * pageSize
	if start >= len(names) {
		if err := s.db.SetPrefixDone(ctx, target.Prefix, true); err != nil {
			return false, err
		}
		return true, nil
	}
	end := start + pageSize
	lastPage := end >= len(names)
	if lastPage {
		end = len(names)
	}

	for _, name := range names[start:end] {
		if name == recurseMarker {
			continue
		}
		todo, err := s.processAttribute(ctx, name, target, subtree)
		if err != nil {
			return false, err
		}
		if len(todo) == 0 {
			continue
		}

		// Fully drain the subtree discovered under this child before
		// moving on, so a completed drain can be marked done.
		drainRoot := todo[len(todo)-1].Prefix
		if err := s.drain(ctx, todo, subtree); err != nil {
			return false, err
		}
		if err := s.db.SetPrefixDone(ctx, drainRoot, true); err != nil {
			return false, err
		}
	}

	if lastPage {
		if err := s.db.SetPrefixDone(ctx, target.Prefix, true); err != nil {
			return false, err
		}
	}
	return lastPage, nil
}

// drain walks the todo stack depth-first until empty.
func (s *Scraper) drain(ctx context.Context, todo []Target, subtree model.Subtree) error {
	for len(todo) > 0 {
		current := todo[len(todo)-1]
		todo = todo[:len(todo)-1]

		names, err := current.Cursor.Children(ctx)
		if err != nil {
			if errors.Is(err, ErrNotAttrSet) {
				continue
			}
			if errors.Is(err, ErrEval) {
				if err := s.skipEvalError(subtree, current.Prefix, err); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("listing '%s': %w", current.Prefix, err)
		}

		for _, name := range names {
			if name == recurseMarker {
				continue
			}
			discovered, err := s.processAttribute(ctx, name, current, subtree)
			if err != nil {
				return err
			}
			todo = append(todo, discovered...)
		}
	}
	return nil
}

// processAttribute handles a single named child of parent: records it
// as a package, schedules it for descent, or skips it. Returned
// targets are the attribute sets to descend into.
func (s *Scraper) processAttribute(ctx context.Context, name string, parent Target, subtree model.Subtree) ([]Target, error) {
	path := parent.Prefix.Child(name)

	// Rules win over everything, including the derivation check.
	allowed, ruled := s.rules.ApplyRules(path)
	if ruled && !allowed {
		s.logger.Debug("skipping disallowed attribute", "attrPath", path.String())
		return nil, nil
	}

	cursor, err := parent.Cursor.Child(ctx, name)
	if err != nil {
		if errors.Is(err, ErrEval) {
			return nil, s.skipEvalError(subtree, path, err)
		}
		return nil, fmt.Errorf("descending into '%s': %w", path, err)
	}

	isDrv, err := cursor.IsDerivation(ctx)
	if err != nil {
		if errors.Is(err, ErrEval) {
			return nil, s.skipEvalError(subtree, path, err)
		}
		return nil, fmt.Errorf("checking '%s': %w", path, err)
	}

	if isDrv {
		pkg, err := cursor.Package(ctx)
		if err != nil {
			if errors.Is(err, ErrEval) {
				return nil, s.skipEvalError(subtree, path, err)
			}
			return nil, fmt.Errorf("reading '%s': %w", path, err)
		}
		if _, err := s.db.AddPackage(ctx, parent.ParentID, name, pkg); err != nil {
			return nil, err
		}
		return nil, nil
	}

	// Children of the packages subtree are derivations by definition;
	// nested sets there are never descended into.
	if subtree == model.SubtreePackages {
		return nil, nil
	}

	recurse := ruled && allowed
	if !ruled {
		marked, err := cursor.MaybeRecurse(ctx)
		if err != nil {
			if errors.Is(err, ErrEval) {
				return nil, s.skipEvalError(subtree, path, err)
			}
			return nil, fmt.Errorf("checking '%s': %w", path, err)
		}
		recurse = marked
	}
	if !recurse {
		return nil, nil
	}

	childID, err := s.db.AddOrGetAttrSetID(ctx, name, parent.ParentID)
	if err != nil {
		return nil, err
	}
	return []Target{{Prefix: path, Cursor: cursor, ParentID: childID}}, nil
}
