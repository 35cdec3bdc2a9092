package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pkgdb/internal/config"
	"pkgdb/internal/model"
)

// DB is a writable connection to a package database. It embeds the
// read layer, so every read operation is also available to writers.
//
// Design decision: one writable connection with SetMaxOpenConns(1)
// rather than a pool. SQLite allows one writer at a time, and
// cross-process coordination is handled by the heartbeat lock file,
// not by connection management.
type DB struct {
	ReadOnlyDB
}

// Open opens or creates a writable package database, initializing the
// schema and the LockedFlake row inside one exclusive transaction so
// concurrent readers never observe a half-built file.
//
// rulesHash is the hash of the scrape rules document in force and is
// recorded in DbScrapeMeta on first creation.
func Open(ctx context.Context, dbPath string, ref model.LockedRef, rulesHash string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	pdb := &DB{ReadOnlyDB: ReadOnlyDB{
		db:          db,
		Path:        dbPath,
		Fingerprint: model.FingerprintOf(ref.String),
	}}

	if err := pdb.init(ctx, ref, rulesHash); err != nil {
		_ = db.Close()
		return nil, err
	}
	return pdb, nil
}

// init creates tables, versions, and views, and writes the LockedFlake
// row. The exclusive transaction doubles as the file creation step so
// other processes see either nothing or a fully initialized database.
func (pdb *DB) init(ctx context.Context, ref model.LockedRef, rulesHash string) error {
	if _, err := pdb.db.ExecContext(ctx, "BEGIN EXCLUSIVE TRANSACTION"); err != nil {
		return fmt.Errorf("failed to begin init transaction: %w", err)
	}

	err := func() error {
		if err := pdb.createTables(ctx); err != nil {
			return err
		}
		if err := pdb.initVersions(ctx); err != nil {
			return err
		}
		if err := pdb.initScrapeMeta(ctx, rulesHash); err != nil {
			return err
		}
		if err := pdb.refreshViews(ctx); err != nil {
			return err
		}
		return pdb.writeLockedFlake(ctx, ref)
	}()
	if err != nil {
		_, _ = pdb.db.ExecContext(ctx, "ROLLBACK TRANSACTION")
		return err
	}

	if _, err := pdb.db.ExecContext(ctx, "COMMIT TRANSACTION"); err != nil {
		return fmt.Errorf("failed to commit init transaction: %w", err)
	}
	return pdb.loadLockedFlake(ctx)
}

// createTables creates the persistent tables if they do not exist.
func (pdb *DB) createTables(ctx context.Context) error {
	for _, schema := range []string{
		sqlVersionsSchema,
		sqlInputSchema,
		sqlAttrSetsSchema,
		sqlPackagesSchema,
	} {
		if _, err := pdb.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("failed to initialize tables: %w", err)
		}
	}
	return nil
}

// initVersions creates the DbVersions rows if they do not exist.
func (pdb *DB) initVersions(ctx context.Context) error {
	query := `
	INSERT OR IGNORE INTO DbVersions ( name, version ) VALUES
	  ( ?, ? )
	, ( ?, ? )
	, ( ?, ? )
	`

	_, err := pdb.db.ExecContext(ctx, query,
		versionNamePkgDb, config.Version,
		versionNameTables, fmt.Sprintf("%d", CurrentVersions.Tables),
		versionNameViews, fmt.Sprintf("%d", CurrentVersions.Views),
	)
	if err != nil {
		return fmt.Errorf("failed to write DbVersions info: %w", err)
	}
	return nil
}

// initScrapeMeta creates the DbScrapeMeta rows if they do not exist.
func (pdb *DB) initScrapeMeta(ctx context.Context, rulesHash string) error {
	query := `INSERT OR IGNORE INTO DbScrapeMeta ( key, value ) VALUES ( ?, ? )`

	if _, err := pdb.db.ExecContext(ctx, query, metaKeyRulesHash, rulesHash); err != nil {
		return fmt.Errorf("failed to write DbScrapeMeta info: %w", err)
	}
	return nil
}

// refreshViews creates the views, first dropping and re-recording them
// when the on-disk view schema version is outdated. Table version
// mismatches cannot be migrated in place and yield ErrSchemaMismatch.
func (pdb *DB) refreshViews(ctx context.Context) error {
	versions, err := pdb.GetDbVersion(ctx)
	if err != nil {
		return err
	}
	if versions.Tables != CurrentVersions.Tables {
		return fmt.Errorf("%w: database has tables v%d, this build writes v%d",
			ErrSchemaMismatch, versions.Tables, CurrentVersions.Tables)
	}
	if versions.Views < CurrentVersions.Views {
		if err := pdb.dropViews(ctx); err != nil {
			return err
		}
		query := `UPDATE DbVersions SET version = ? WHERE name = ?`
		if _, err := pdb.db.ExecContext(ctx, query,
			fmt.Sprintf("%d", CurrentVersions.Views), versionNameViews); err != nil {
			return fmt.Errorf("failed to update views version: %w", err)
		}
	}
	if _, err := pdb.db.ExecContext(ctx, sqlViewsSchema); err != nil {
		return fmt.Errorf("failed to initialize views: %w", err)
	}
	return nil
}

// dropViews removes every view currently defined in the database.
func (pdb *DB) dropViews(ctx context.Context) error {
	rows, err := pdb.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE ( type = 'view' )`)
	if err != nil {
		return fmt.Errorf("failed to list views: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan view name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list views: %w", err)
	}

	for _, name := range names {
		if _, err := pdb.db.ExecContext(ctx, fmt.Sprintf("DROP VIEW IF EXISTS '%s'", name)); err != nil {
			return fmt.Errorf("failed to drop view %q: %w", name, err)
		}
	}
	return nil
}

// writeLockedFlake records the locked flake reference. The insert is
// idempotent for the same flake; the LockedFlake trigger rejects a
// conflicting second row.
func (pdb *DB) writeLockedFlake(ctx context.Context, ref model.LockedRef) error {
	attrs, err := json.Marshal(ref.Attrs)
	if err != nil {
		return fmt.Errorf("failed to serialize locked flake attrs: %w", err)
	}

	query := `INSERT OR IGNORE INTO LockedFlake ( fingerprint, string, attrs ) VALUES ( ?, ?, ? )`

	if _, err := pdb.db.ExecContext(ctx, query,
		pdb.Fingerprint.String(), ref.String, string(attrs)); err != nil {
		return fmt.Errorf("failed to write LockedFlake info: %w", err)
	}
	return nil
}

// AddOrGetAttrSetID inserts an attribute set child under parent and
// returns its row id, or returns the existing id when the row is
// already present. The operation is idempotent.
func (pdb *DB) AddOrGetAttrSetID(ctx context.Context, attrName string, parent int64) (int64, error) {
	insert := `INSERT INTO AttrSets ( attrName, parent ) VALUES ( ?, ? )`

	result, err := pdb.db.ExecContext(ctx, insert, attrName, parent)
	if err == nil {
		return result.LastInsertId()
	}

	// The insert fails on the uniqueness constraint when the row
	// exists; fall back to the lookup. Any other failure surfaces as
	// a missing row here.
	lookup := `SELECT id FROM AttrSets WHERE ( attrName = ? ) AND ( parent = ? )`

	var id int64
	lookupErr := pdb.db.QueryRowContext(ctx, lookup, attrName, parent).Scan(&id)
	if errors.Is(lookupErr, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to add attribute set 'AttrSets[%d].%s': %w", parent, attrName, err)
	}
	if lookupErr != nil {
		return 0, fmt.Errorf("failed to look up attribute set 'AttrSets[%d].%s': %w", parent, attrName, lookupErr)
	}
	return id, nil
}

// AddOrGetAttrSetPath resolves an attribute path to its row id,
// inserting any missing segments along the way.
func (pdb *DB) AddOrGetAttrSetPath(ctx context.Context, path model.AttrPath) (int64, error) {
	var row int64
	for _, attr := range path {
		id, err := pdb.AddOrGetAttrSetID(ctx, attr, row)
		if err != nil {
			return 0, err
		}
		row = id
	}
	return row, nil
}

// AddOrGetDescriptionID returns the Descriptions row id for the text,
// inserting it when unseen. Description text is heavily shared across
// package rows, so the select-first path is the common one.
func (pdb *DB) AddOrGetDescriptionID(ctx context.Context, description string) (int64, error) {
	lookup := `SELECT id FROM Descriptions WHERE description = ? LIMIT 1`

	var id int64
	err := pdb.db.QueryRowContext(ctx, lookup, description).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up description: %w", err)
	}

	insert := `INSERT INTO Descriptions ( description ) VALUES ( ? )`

	result, err := pdb.db.ExecContext(ctx, insert, description)
	if err != nil {
		return 0, fmt.Errorf("failed to add description: %w", err)
	}
	return result.LastInsertId()
}

// AddPackage inserts or replaces a package row under the parent
// attribute set. Path-related fields of pkg are ignored; only the
// metadata columns are stored. Returns the Packages row id.
func (pdb *DB) AddPackage(ctx context.Context, parentID int64, attrName string, pkg *model.Package) (int64, error) {
	outputs, err := json.Marshal(pkg.Outputs)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize outputs: %w", err)
	}

	var outsInstall any
	if pkg.OutputsToInstall != nil {
		data, err := json.Marshal(pkg.OutputsToInstall)
		if err != nil {
			return 0, fmt.Errorf("failed to serialize outputsToInstall: %w", err)
		}
		outsInstall = string(data)
	}

	var descriptionID any
	if pkg.Description != "" {
		id, err := pdb.AddOrGetDescriptionID(ctx, pkg.Description)
		if err != nil {
			return 0, err
		}
		descriptionID = id
	}

	query := `
	INSERT OR REPLACE INTO Packages (
	  parentId, attrName, name, pname, version, semver, license
	, outputs, outputsToInstall, broken, unfree, descriptionId
	) VALUES ( ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ? )
	`

	result, err := pdb.db.ExecContext(ctx, query,
		parentID,
		attrName,
		pkg.Name,
		pkg.Pname,
		nullIfEmpty(pkg.Version),
		nullIfEmpty(pkg.Semver),
		nullIfEmpty(pkg.License),
		string(outputs),
		outsInstall,
		pkg.Broken,
		pkg.Unfree,
		descriptionID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to write package %q: %w", pkg.Name, err)
	}
	return result.LastInsertId()
}

// nullIfEmpty maps the empty string to a SQL NULL bind.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SetPrefixDoneByID marks an attribute set and every descendant as
// done or not done.
func (pdb *DB) SetPrefixDoneByID(ctx context.Context, prefixID int64, done bool) error {
	query := `
	UPDATE AttrSets SET done = ? WHERE id in (
	  WITH RECURSIVE Tree AS (
	    SELECT id, parent, 0 as depth FROM AttrSets
	    WHERE ( id = ? )
	    UNION ALL SELECT O.id, O.parent, ( Parent.depth + 1 ) AS depth
	    FROM AttrSets O
	    JOIN Tree AS Parent ON ( Parent.id = O.parent )
	  ) SELECT C.id FROM Tree AS C
	)
	`

	if _, err := pdb.db.ExecContext(ctx, query, done, prefixID); err != nil {
		return fmt.Errorf("failed to set done for AttrSets.id %d: %w", prefixID, err)
	}
	return nil
}

// SetPrefixDone marks an attribute path and every descendant as done
// or not done, inserting the path if it does not exist yet.
func (pdb *DB) SetPrefixDone(ctx context.Context, prefix model.AttrPath, done bool) error {
	id, err := pdb.AddOrGetAttrSetPath(ctx, prefix)
	if err != nil {
		return err
	}
	return pdb.SetPrefixDoneByID(ctx, id, done)
}
