package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"pkgdb/internal/model"
)

// busyTimeout is how long SQLite waits on a locked database before
// reporting SQLITE_BUSY. Scrape writers hold short transactions, so
// readers rarely wait anywhere near this long.
const busyTimeout = 5 * time.Second

// ReadOnlyDB is a read-only connection to a package database.
// It never creates or modifies the database file.
type ReadOnlyDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// Path is the path to the SQLite database file.
	Path string

	// Fingerprint identifies the locked flake this database holds.
	Fingerprint model.Fingerprint

	// LockedRef is the locked flake reference loaded from the
	// LockedFlake row.
	LockedRef model.LockedRef
}

// OpenReadOnly opens an existing package database read-only and loads
// its LockedFlake row. If expected is non-zero it is checked against
// the recorded fingerprint and ErrFingerprintMismatch is returned on
// disagreement. A missing file yields ErrNoSuchDatabase.
func OpenReadOnly(ctx context.Context, dbPath string, expected model.Fingerprint) (*ReadOnlyDB, error) {
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchDatabase, dbPath)
		}
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?mode=ro")
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

	rdb := &ReadOnlyDB{
		db:          db,
		Path:        dbPath,
		Fingerprint: expected,
	}
	if err := rdb.loadLockedFlake(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return rdb, nil
}

// Close closes the database connection.
func (rdb *ReadOnlyDB) Close() error {
	return rdb.db.Close()
}

// loadLockedFlake reads the LockedFlake row and verifies the
// fingerprint when one is already known.
//
// A reader can observe the database between file creation and the
// LockedFlake insert of the writing process; that window reports
// ErrNoLockedFlake rather than corruption.
func (rdb *ReadOnlyDB) loadLockedFlake(ctx context.Context) error {
	query := `SELECT fingerprint, string, attrs FROM LockedFlake LIMIT 1`

	var fpStr, refStr, attrsJSON string
	err := rdb.db.QueryRowContext(ctx, query).Scan(&fpStr, &refStr, &attrsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoLockedFlake
	}
	if err != nil {
		return fmt.Errorf("failed to read LockedFlake row: %w", err)
	}

	fingerprint, err := model.ParseFingerprint(fpStr)
	if err != nil {
		return fmt.Errorf("failed to parse stored fingerprint: %w", err)
	}

	rdb.LockedRef.String = refStr
	if err := json.Unmarshal([]byte(attrsJSON), &rdb.LockedRef.Attrs); err != nil {
		return fmt.Errorf("failed to parse LockedFlake attrs: %w", err)
	}

	if rdb.Fingerprint.IsZero() {
		rdb.Fingerprint = fingerprint
	} else if rdb.Fingerprint != fingerprint {
		return fmt.Errorf("%w: database %s records '%s', expected '%s'",
			ErrFingerprintMismatch, rdb.Path, fpStr, rdb.Fingerprint)
	}
	return nil
}

// GetDbVersion returns the table and view schema versions recorded in
// DbVersions.
func (rdb *ReadOnlyDB) GetDbVersion(ctx context.Context) (SqlVersions, error) {
	query := `SELECT name, version FROM DbVersions WHERE name IN ( ?, ? )`

	rows, err := rdb.db.QueryContext(ctx, query, versionNameTables, versionNameViews)
	if err != nil {
		return SqlVersions{}, fmt.Errorf("failed to read DbVersions: %w", err)
	}
	defer rows.Close()

	var versions SqlVersions
	for rows.Next() {
		var name, version string
		if err := rows.Scan(&name, &version); err != nil {
			return SqlVersions{}, fmt.Errorf("failed to scan DbVersions row: %w", err)
		}
		number, err := strconv.Atoi(version)
		if err != nil {
			return SqlVersions{}, fmt.Errorf("malformed schema version %q: %w", version, err)
		}
		switch name {
		case versionNameTables:
			versions.Tables = number
		case versionNameViews:
			versions.Views = number
		}
	}
	if err := rows.Err(); err != nil {
		return SqlVersions{}, fmt.Errorf("failed to read DbVersions: %w", err)
	}
	return versions, nil
}

// GetRulesHash returns the scrape rules hash recorded when the
// database was created.
func (rdb *ReadOnlyDB) GetRulesHash(ctx context.Context) (string, error) {
	query := `SELECT value FROM DbScrapeMeta WHERE key = ? LIMIT 1`

	var hash string
	err := rdb.db.QueryRowContext(ctx, query, metaKeyRulesHash).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: DbScrapeMeta %q", ErrNotFound, metaKeyRulesHash)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read DbScrapeMeta: %w", err)
	}
	return hash, nil
}

// CompletedAttrSetByID reports whether the attribute set row is marked
// done. Unknown ids report false.
func (rdb *ReadOnlyDB) CompletedAttrSetByID(ctx context.Context, id int64) (bool, error) {
	query := `SELECT done FROM AttrSets WHERE id = ?`

	var done bool
	err := rdb.db.QueryRowContext(ctx, query, id).Scan(&done)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read AttrSets.done: %w", err)
	}
	return done, nil
}

// CompletedAttrSet reports whether the attribute path or any of its
// ancestors is marked done. A done parent covers all of its children,
// so the walk short-circuits at the first done ancestor.
func (rdb *ReadOnlyDB) CompletedAttrSet(ctx context.Context, path model.AttrPath) (bool, error) {
	query := `SELECT id, done FROM AttrSets WHERE ( attrName = ? ) AND ( parent = ? )`

	var row int64
	for _, part := range path {
		var id int64
		var done bool
		err := rdb.db.QueryRowContext(ctx, query, part, row).Scan(&id, &done)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to walk AttrSets: %w", err)
		}
		if done {
			return true, nil
		}
		row = id
	}
	return false, nil
}

// HasAttrSet reports whether the attribute path exists.
func (rdb *ReadOnlyDB) HasAttrSet(ctx context.Context, path model.AttrPath) (bool, error) {
	_, err := rdb.GetAttrSetID(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetAttrSetID resolves an attribute path to its AttrSets row id.
// The empty path resolves to the root sentinel 0.
func (rdb *ReadOnlyDB) GetAttrSetID(ctx context.Context, path model.AttrPath) (int64, error) {
	query := `SELECT id FROM AttrSets WHERE ( attrName = ? ) AND ( parent = ? ) LIMIT 1`

	var row int64
	for _, part := range path {
		var id int64
		err := rdb.db.QueryRowContext(ctx, query, part, row).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: attribute set '%s'", ErrNotFound, path)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to resolve attribute set '%s': %w", path, err)
		}
		row = id
	}
	return row, nil
}

// GetAttrSetPath resolves an AttrSets row id back to its attribute
// path by walking parent links to the root.
func (rdb *ReadOnlyDB) GetAttrSetPath(ctx context.Context, id int64) (model.AttrPath, error) {
	query := `SELECT parent, attrName FROM AttrSets WHERE ( id = ? )`

	var path model.AttrPath
	for id != 0 {
		var parent int64
		var attrName string
		err := rdb.db.QueryRowContext(ctx, query, id).Scan(&parent, &attrName)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: AttrSets.id %d", ErrNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve AttrSets.id %d: %w", id, err)
		}
		path = append(model.AttrPath{attrName}, path...)
		id = parent
	}
	return path, nil
}

// GetPackageID resolves a package attribute path to its Packages row id.
func (rdb *ReadOnlyDB) GetPackageID(ctx context.Context, path model.AttrPath) (int64, error) {
	if len(path) == 0 {
		return 0, fmt.Errorf("%w: empty package path", ErrNotFound)
	}
	parent, err := rdb.GetAttrSetID(ctx, path.Parent())
	if err != nil {
		return 0, err
	}

	query := `SELECT id FROM Packages WHERE ( parentId = ? ) AND ( attrName = ? )`

	var id int64
	err = rdb.db.QueryRowContext(ctx, query, parent, path[len(path)-1]).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: package '%s'", ErrNotFound, path)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve package '%s': %w", path, err)
	}
	return id, nil
}

// GetPackagePath resolves a Packages row id back to its full attribute
// path.
func (rdb *ReadOnlyDB) GetPackagePath(ctx context.Context, id int64) (model.AttrPath, error) {
	query := `SELECT parentId, attrName FROM Packages WHERE ( id = ? )`

	var parent int64
	var attrName string
	err := rdb.db.QueryRowContext(ctx, query, id).Scan(&parent, &attrName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: Packages.id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Packages.id %d: %w", id, err)
	}

	path, err := rdb.GetAttrSetPath(ctx, parent)
	if err != nil {
		return nil, err
	}
	return append(path, attrName), nil
}

// HasPackage reports whether a package exists at the attribute path.
func (rdb *ReadOnlyDB) HasPackage(ctx context.Context, path model.AttrPath) (bool, error) {
	_, err := rdb.GetPackageID(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetDescription returns the deduplicated description text for a
// Descriptions row id. Id 0 means "no description" and returns the
// empty string.
func (rdb *ReadOnlyDB) GetDescription(ctx context.Context, id int64) (string, error) {
	if id == 0 {
		return "", nil
	}

	query := `SELECT description FROM Descriptions WHERE id = ?`

	var description string
	err := rdb.db.QueryRowContext(ctx, query, id).Scan(&description)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: Descriptions.id %d", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read Descriptions.id %d: %w", id, err)
	}
	return description, nil
}

// GetPackage returns the full metadata record for a Packages row id,
// including the resolved attribute path fields.
func (rdb *ReadOnlyDB) GetPackage(ctx context.Context, id int64) (*model.Package, error) {
	query := `
	SELECT Packages.id, name, pname, version, semver, license
	     , outputs, outputsToInstall, broken, unfree
	     , Descriptions.description
	FROM Packages
	LEFT JOIN Descriptions ON ( descriptionId = Descriptions.id )
	WHERE ( Packages.id = ? )
	`

	var pkg model.Package
	var version, semver, license, outsInstallJSON, description sql.NullString
	var outputsJSON string
	var broken, unfree sql.NullBool

	err := rdb.db.QueryRowContext(ctx, query, id).Scan(
		&pkg.ID,
		&pkg.Name,
		&pkg.Pname,
		&version,
		&semver,
		&license,
		&outputsJSON,
		&outsInstallJSON,
		&broken,
		&unfree,
		&description,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: Packages.id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read Packages.id %d: %w", id, err)
	}

	pkg.Version = version.String
	pkg.Semver = semver.String
	pkg.License = license.String
	pkg.Description = description.String
	if broken.Valid {
		pkg.Broken = &broken.Bool
	}
	if unfree.Valid {
		pkg.Unfree = &unfree.Bool
	}
	if err := json.Unmarshal([]byte(outputsJSON), &pkg.Outputs); err != nil {
		return nil, fmt.Errorf("failed to parse outputs for Packages.id %d: %w", id, err)
	}
	if outsInstallJSON.Valid {
		if err := json.Unmarshal([]byte(outsInstallJSON.String), &pkg.OutputsToInstall); err != nil {
			return nil, fmt.Errorf("failed to parse outputsToInstall for Packages.id %d: %w", id, err)
		}
	}

	path, err := rdb.GetPackagePath(ctx, id)
	if err != nil {
		return nil, err
	}
	pkg.AbsPath = path
	if len(path) >= 2 {
		pkg.Subtree = model.Subtree(path[0])
		pkg.System = path[1]
		pkg.RelPath = path[2:].Clone()
	}
	return &pkg, nil
}

// GetPackageByPath returns the full metadata record for a package
// attribute path.
func (rdb *ReadOnlyDB) GetPackageByPath(ctx context.Context, path model.AttrPath) (*model.Package, error) {
	id, err := rdb.GetPackageID(ctx, path)
	if err != nil {
		return nil, err
	}
	return rdb.GetPackage(ctx, id)
}

// GetPackages runs a package query and returns matching Packages row
// ids in ranked order.
func (rdb *ReadOnlyDB) GetPackages(ctx context.Context, args *PkgQueryArgs) ([]int64, error) {
	query, err := NewPkgQuery(args)
	if err != nil {
		return nil, err
	}
	return query.Execute(ctx, rdb.db)
}
