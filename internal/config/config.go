// Package config loads the application configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds everything the app needs at startup.
type Config struct {
	// DataDir is where the metadata store and vault key live.
	DataDir string `yaml:"dataDir"`
	// VaultKeyFile is the path to the 32-byte vault key. Defaults to
	// <dataDir>/vault.key and is created on first run if absent.
	VaultKeyFile string `yaml:"vaultKeyFile"`
	// VaultPassphrase, when set, derives the vault key from this passphrase
	// and a salt persisted at <dataDir>/vault.salt instead of the key file.
	// Usually supplied via DBDECK_VAULT_PASSPHRASE rather than the file.
	VaultPassphrase string `yaml:"vaultPassphrase"`
	// SchemaRefreshCron schedules background schema refresh for active
	// connections. Empty disables the schedule; file watching still runs.
	SchemaRefreshCron string `yaml:"schemaRefreshCron"`
}

// Default returns the configuration used when no file exists. VaultKeyFile
// is left empty here; Load derives it from the final DataDir.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DataDir:           filepath.Join(home, ".dbdeck"),
		SchemaRefreshCron: "@every 10m",
	}
}

// Load reads the config file at path, falling back to defaults when the file
// does not exist. Environment variables override file values:
// DBDECK_DATA_DIR, DBDECK_VAULT_KEY_FILE, DBDECK_VAULT_PASSPHRASE,
// DBDECK_SCHEMA_REFRESH_CRON.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to defaults
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("DBDECK_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DBDECK_VAULT_KEY_FILE"); v != "" {
		cfg.VaultKeyFile = v
	}
	if v := os.Getenv("DBDECK_VAULT_PASSPHRASE"); v != "" {
		cfg.VaultPassphrase = v
	}
	if v := os.Getenv("DBDECK_SCHEMA_REFRESH_CRON"); v != "" {
		cfg.SchemaRefreshCron = v
	}

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("dataDir must not be empty")
	}
	if cfg.VaultKeyFile == "" {
		cfg.VaultKeyFile = filepath.Join(cfg.DataDir, "vault.key")
	}
	return cfg, nil
}

// MetaDBPath is the location of the metadata store inside DataDir.
func (c *Config) MetaDBPath() string {
	return filepath.Join(c.DataDir, "dbdeck.db")
}
