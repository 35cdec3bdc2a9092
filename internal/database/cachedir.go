package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"pkgdb/internal/config"
	"pkgdb/internal/model"
)

// cacheDirEnvVar overrides the cache directory when set.
const cacheDirEnvVar = "PKGDB_CACHEDIR"

// CacheDir returns the directory holding database and lock files.
// The PKGDB_CACHEDIR environment variable wins when set; otherwise the
// directory lives under the XDG cache home and embeds the table schema
// version, so incompatible builds never share files.
func CacheDir() string {
	if fromEnv := os.Getenv(cacheDirEnvVar); fromEnv != "" {
		return fromEnv
	}
	return filepath.Join(xdg.CacheHome, config.AppName,
		fmt.Sprintf("v%d", CurrentVersions.Tables))
}

// DBPath returns the database file path for a flake fingerprint inside
// cacheDir. An empty cacheDir means CacheDir().
func DBPath(cacheDir string, fingerprint model.Fingerprint) string {
	if cacheDir == "" {
		cacheDir = CacheDir()
	}
	return filepath.Join(cacheDir, fingerprint.String()+".sqlite")
}

// LockPath returns the heartbeat lock file path guarding the database
// for a flake fingerprint.
func LockPath(cacheDir string, fingerprint model.Fingerprint) string {
	return DBPath(cacheDir, fingerprint) + ".lock"
}
