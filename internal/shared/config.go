package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

const (
	SourceXLSX   = "xlsx"
	SourceSheets = "sheets"

	MetadataJIT   = "jit"
	MetadataEager = "eager"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Source      SourceConfig      `toml:"source"`
	Sync        SyncConfig        `toml:"sync"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Google  GoogleConfig  `toml:"google"`
}

// SpotifyConfig contains Spotify API client credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// GoogleConfig points at a service account key for the Sheets API.
type GoogleConfig struct {
	CredentialsFile string `toml:"credentials_file"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// SourceConfig describes where the release spreadsheet is read from.
type SourceConfig struct {
	Kind           string `toml:"kind"`
	ExportURL      string `toml:"export_url"`
	SpreadsheetID  string `toml:"spreadsheet_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryMax       int    `toml:"retry_max"`
}

// SyncConfig tunes the synchronization engine.
type SyncConfig struct {
	ProgressInterval int     `toml:"progress_interval"`
	MetadataMode     string  `toml:"metadata_mode"`
	Schedule         string  `toml:"schedule"`
	LookupRate       float64 `toml:"lookup_rate"`
}

// Timeout returns the workbook fetch timeout, defaulting to 30 seconds.
func (s SourceConfig) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Addr returns the host:port pair the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceXLSX:
		if c.Source.ExportURL == "" {
			return fmt.Errorf("%w: source.export_url is required for kind %q", ErrInvalidConfig, c.Source.Kind)
		}
	case SourceSheets:
		if c.Source.SpreadsheetID == "" {
			return fmt.Errorf("%w: source.spreadsheet_id is required for kind %q", ErrInvalidConfig, c.Source.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown source.kind %q", ErrInvalidConfig, c.Source.Kind)
	}

	switch c.Sync.MetadataMode {
	case MetadataJIT, MetadataEager:
	default:
		return fmt.Errorf("%w: unknown sync.metadata_mode %q", ErrInvalidConfig, c.Sync.MetadataMode)
	}

	if c.Sync.ProgressInterval <= 0 {
		return fmt.Errorf("%w: sync.progress_interval must be positive", ErrInvalidConfig)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}

	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadOrDefault loads the config at path when it exists and falls back to defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}
