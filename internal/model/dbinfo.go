package model

// DatabaseInfo summarizes one cached package database, as listed by
// the CLI. Fields mirror what a read-only open can learn without
// touching package rows.
type DatabaseInfo struct {
	// Path is the absolute database file path.
	Path string `json:"path"`

	// Fingerprint identifies the locked flake the database was
	// scraped from.
	Fingerprint Fingerprint `json:"fingerprint"`

	// LockedRef is the flake reference recorded at creation.
	LockedRef LockedRef `json:"lockedRef"`

	// TablesVersion and ViewsVersion are the schema versions recorded
	// in DbVersions.
	TablesVersion int `json:"tablesVersion"`
	ViewsVersion  int `json:"viewsVersion"`

	// RulesHash is the scrape rules document hash the database was
	// built under.
	RulesHash string `json:"rulesHash"`
}
