package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name, looked up
// under the XDG config home.
const DefaultConfigFile = "pkgdb.yml"

// File mirrors the YAML configuration document. All fields are
// optional; zero values defer to the built-in defaults.
type File struct {
	// CacheDir overrides the database cache directory.
	CacheDir string `yaml:"cache_dir"`

	// PageSize overrides the scrape page size.
	PageSize int `yaml:"page_size"`

	// Systems restricts which platforms are scraped and queried.
	Systems []string `yaml:"systems"`

	// RulesFile points at a scrape rules document replacing the
	// built-in one.
	RulesFile string `yaml:"rules_file"`

	// EvalErrors is one of "default", "skip", or "abort".
	EvalErrors string `yaml:"eval_errors"`
}

// LoadConfigFile loads settings from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
// Callers should handle this error appropriately based on whether
// the config file path was explicitly specified by the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for pkgdb.yml in the current directory
// 3. Look for pkgdb.yml under the XDG config home (e.g. ~/.config/pkgdb/)
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	// If explicit path is provided, use it
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	// Check current directory
	cwd, err := os.Getwd()
	if err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	// Check the XDG config home
	xdgConfig := filepath.Join(xdg.ConfigHome, AppName, DefaultConfigFile)
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig
	}

	return ""
}

// Apply merges file settings into the config. Only non-zero file
// fields take effect, so CLI flags set after Apply win by overwriting.
func (c *Config) Apply(cf *File) {
	if cf == nil {
		return
	}
	if cf.CacheDir != "" {
		c.CacheDir = cf.CacheDir
	}
	if cf.PageSize != 0 {
		c.PageSize = cf.PageSize
	}
	if len(cf.Systems) != 0 {
		c.Systems = cf.Systems
	}
	if cf.RulesFile != "" {
		c.RulesFile = cf.RulesFile
	}
	switch cf.EvalErrors {
	case "skip":
		c.EvalErrors = EvalErrorPolicySkip
	case "abort":
		c.EvalErrors = EvalErrorPolicyAbort
	}
}
