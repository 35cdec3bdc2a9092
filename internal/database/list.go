package database

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"pkgdb/internal/model"
)

// ListDatabases enumerates the package databases under cacheDir and
// reads each one's identity row and schema versions. Files that are
// not named after a fingerprint, or that cannot be opened, are skipped
// so one corrupt file doesn't hide the rest of the cache.
//
// Databases are opened concurrently. Read-only opens are independent
// SQLite connections, so the usual single-writer constraint doesn't
// apply here.
func ListDatabases(ctx context.Context, cacheDir string) ([]model.DatabaseInfo, error) {
	if cacheDir == "" {
		cacheDir = CacheDir()
	}
	paths, err := filepath.Glob(filepath.Join(cacheDir, "*.sqlite"))
	if err != nil {
		return nil, err
	}

	infos := make([]*model.DatabaseInfo, len(paths))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		i, path := i, path
		group.Go(func() error {
			fingerprint, err := model.ParseFingerprint(
				strings.TrimSuffix(filepath.Base(path), ".sqlite"))
			if err != nil {
				return nil
			}
			info, err := readDatabaseInfo(ctx, path, fingerprint)
			if err != nil {
				return nil
			}
			infos[i] = info
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	result := make([]model.DatabaseInfo, 0, len(infos))
	for _, info := range infos {
		if info != nil {
			result = append(result, *info)
		}
	}
	return result, nil
}

func readDatabaseInfo(ctx context.Context, path string, fingerprint model.Fingerprint) (*model.DatabaseInfo, error) {
	rdb, err := OpenReadOnly(ctx, path, fingerprint)
	if err != nil {
		return nil, err
	}
	defer rdb.Close()

	versions, err := rdb.GetDbVersion(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := rdb.GetRulesHash(ctx)
	if err != nil {
		return nil, err
	}
	return &model.DatabaseInfo{
		Path:          path,
		Fingerprint:   fingerprint,
		LockedRef:     rdb.LockedRef,
		TablesVersion: versions.Tables,
		ViewsVersion:  versions.Views,
		RulesHash:     hash,
	}, nil
}
