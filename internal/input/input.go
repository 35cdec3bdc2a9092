package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"pkgdb/internal/config"
	"pkgdb/internal/database"
	"pkgdb/internal/lock"
	"pkgdb/internal/model"
	"pkgdb/internal/rules"
	"pkgdb/internal/scrape"
)

// Input binds one locked flake to its package database.
type Input struct {
	flake  scrape.Flake
	rules  *rules.ScrapeRules
	cfg    *config.Config
	logger *slog.Logger

	fingerprint model.Fingerprint
	dbPath      string

	// db and releaseLock are held only while this process is the
	// writer.
	db          *database.DB
	releaseLock *lock.DbLock
}

// New returns an Input for the flake under the given configuration.
func New(flake scrape.Flake, cfg *config.Config, scrapeRules *rules.ScrapeRules, logger *slog.Logger) *Input {
	if logger == nil {
		logger = slog.Default()
	}
	fingerprint := model.FingerprintOf(flake.LockedRef().String)
	return &Input{
		flake:       flake,
		rules:       scrapeRules,
		cfg:         cfg,
		logger:      logger,
		fingerprint: fingerprint,
		dbPath:      database.DBPath(cfg.CacheDir, fingerprint),
	}
}

// Fingerprint returns the flake fingerprint naming the database file.
func (in *Input) Fingerprint() model.Fingerprint { return in.fingerprint }

// IsWriter reports whether this process currently holds the writable
// handle and must scrape before closing.
func (in *Input) IsWriter() bool { return in.db != nil }

// DBPath returns the database file path for this input.
func (in *Input) DBPath() string { return in.dbPath }

// usable reports whether the existing database file can be used as-is:
// it must open, carry the current table schema version, and have been
// scraped under the same rules document.
func (in *Input) usable(ctx context.Context) bool {
	rdb, err := database.OpenReadOnly(ctx, in.dbPath, in.fingerprint)
	if err != nil {
		if !errors.Is(err, database.ErrNoSuchDatabase) {
			in.logger.Debug("existing database unusable", "path", in.dbPath, "error", err)
		}
		return false
	}
	defer rdb.Close()

	versions, err := rdb.GetDbVersion(ctx)
	if err != nil || versions.Tables != database.CurrentVersions.Tables {
		in.logger.Debug("database schema outdated", "path", in.dbPath, "error", err)
		return false
	}
	hash, err := rdb.GetRulesHash(ctx)
	if err != nil || hash != in.rules.Hash() {
		in.logger.Debug("database scraped under different rules", "path", in.dbPath)
		return false
	}
	return true
}

// EnsureDB makes sure a usable database file exists, creating or
// rebuilding it under the heartbeat lock when needed. When force is
// true any existing database is discarded first.
//
// On return this process either holds the writable handle (it won the
// lock, and must finish with CloseDB after scraping) or the database
// was produced by another process and is ready for read-only use.
func (in *Input) EnsureDB(ctx context.Context, force bool) error {
	if in.db != nil {
		return nil
	}
	if !force && in.usable(ctx) {
		return nil
	}
	return in.OpenWriter(ctx, force)
}

// OpenWriter acquires the creation lock and opens the database
// writable, so scraping can create a fresh database or resume an
// interrupted one. The lock is released by CloseDB once scraping is
// finished.
func (in *Input) OpenWriter(ctx context.Context, force bool) error {
	if in.db != nil {
		return nil
	}
	if force {
		if err := os.Remove(in.dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove database: %w", err)
		}
	}

	dbLock := lock.New(database.LockPath(in.cfg.CacheDir, in.fingerprint))
	for {
		state, err := dbLock.Acquire(ctx)
		if err != nil {
			return err
		}
		if state == lock.StateActionNeeded {
			break
		}
		// Another process finished its build and removed the lock.
		// Retry so we still take the writer role and resume whatever
		// that process left undone.
	}

	// Discard a file we can't build on top of.
	if !in.usable(ctx) {
		if err := os.Remove(in.dbPath); err != nil && !os.IsNotExist(err) {
			_ = dbLock.Release()
			return fmt.Errorf("failed to remove stale database: %w", err)
		}
	}

	db, err := database.Open(ctx, in.dbPath, in.flake.LockedRef(), in.rules.Hash())
	if err != nil {
		_ = dbLock.Release()
		return err
	}
	in.db = db
	in.releaseLock = dbLock
	return nil
}

// CloseDB closes the writable handle and releases the creation lock.
// It is a no-op for read-only inputs.
func (in *Input) CloseDB() error {
	if in.db == nil {
		return nil
	}
	err := in.db.Close()
	in.db = nil
	if in.releaseLock != nil {
		if lockErr := in.releaseLock.Release(); err == nil {
			err = lockErr
		}
		in.releaseLock = nil
	}
	return err
}

// ReadDB opens the database read-only. EnsureDB must have succeeded
// first, or the database must already exist.
func (in *Input) ReadDB(ctx context.Context) (*database.ReadOnlyDB, error) {
	return database.OpenReadOnly(ctx, in.dbPath, in.fingerprint)
}

// ScrapePrefix scrapes one subtree-and-system prefix page by page.
// A positive maxPages bounds the work done in this invocation; the
// returned done flag is false when pages remain, so multi-process
// orchestration can re-invoke until the prefix reports complete.
// This process must hold the writable handle.
func (in *Input) ScrapePrefix(ctx context.Context, prefix model.AttrPath, maxPages int) (done bool, err error) {
	if in.db == nil {
		return false, errors.New("not the database writer")
	}

	cursor, err := in.flake.Root(ctx, prefix)
	if err != nil {
		return false, fmt.Errorf("evaluating '%s': %w", prefix, err)
	}
	if cursor == nil {
		// The flake simply doesn't export this prefix.
		in.logger.Debug("prefix not present in flake", "attrPath", prefix.String())
		return true, nil
	}

	parentID, err := in.db.AddOrGetAttrSetPath(ctx, prefix)
	if err != nil {
		return false, err
	}
	target := scrape.Target{Prefix: prefix, Cursor: cursor, ParentID: parentID}

	scraper := scrape.New(in.db, in.rules, in.cfg.EvalErrors, in.logger)
	pageSize := in.cfg.EffectivePageSize()
	for pageIdx := 0; ; pageIdx++ {
		lastPage, err := scraper.ProcessPage(ctx, target, pageSize, pageIdx)
		if err != nil {
			return false, err
		}
		if lastPage {
			return true, nil
		}
		if maxPages > 0 && pageIdx+1 >= maxPages {
			return false, nil
		}
	}
}

// ScrapeSystems scrapes every subtree and system combination. The
// done flag is false when any prefix ran out of its page budget.
//
// Prefixes run sequentially: SQLite admits one writer, and the
// evaluation cost inside one prefix dwarfs any cross-prefix overlap
// we could buy with concurrency.
func (in *Input) ScrapeSystems(ctx context.Context, subtrees []model.Subtree, systems []model.System, maxPages int) (done bool, err error) {
	if len(subtrees) == 0 {
		subtrees = model.DefaultSubtrees()
	}
	if len(systems) == 0 {
		systems = in.cfg.Systems
	}

	done = true
	for _, subtree := range subtrees {
		for _, system := range systems {
			prefix := model.AttrPath{string(subtree), system}
			prefixDone, err := in.ScrapePrefix(ctx, prefix, maxPages)
			if err != nil {
				return false, err
			}
			if !prefixDone {
				done = false
			}
		}
	}
	return done, nil
}
