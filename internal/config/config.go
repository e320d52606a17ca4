// Package config reads mnemo's connection configuration from a TOML file,
// the format the teacher's schema parser (internal/parser/toml) also used,
// repurposed here for connection settings rather than a schema document.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level shape of a mnemo.toml file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
}

// DatabaseConfig holds the connection settings under [database].
type DatabaseConfig struct {
	DSN             string `toml:"dsn"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	DefaultDocEmpty string `toml:"default_doc"`
}

// Load opens the file at path and parses it as a mnemo TOML config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open file %q: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads TOML content from r and returns the corresponding Config.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode error: %w", err)
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("config: [database].dsn is required")
	}
	return &cfg, nil
}
