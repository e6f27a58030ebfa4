// Package config handles configuration loading from CLI flags, environment variables, and TOML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

// DefaultConfigPath is read when no --config flag is given. A missing
// file at the default path is not an error.
const DefaultConfigPath = "config/config.toml"

// Config holds all configuration settings for the supplies ledger.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Rules   RulesConfig   `toml:"rules"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects and locates the store slot.
type StorageConfig struct {
	Type  string `toml:"type"`  // "memory", "file", "sqlite", "postgresql"
	Path  string `toml:"path"`  // directory for file, database file for sqlite
	URL   string `toml:"url"`   // PostgreSQL connection URL
	Key   string `toml:"key"`   // slot key
	Watch bool   `toml:"watch"` // reload when the file slot changes on disk
}

// RulesConfig points at an optional Lua validation script.
type RulesConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `toml:"level"`     // "debug", "info", "warn", "error"
	Format    string `toml:"format"`    // "console" or "json"
	Verbosity int    `toml:"verbosity"` // >0 forces debug
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Storage: StorageConfig{
			Type: "file",
			Path: defaultDataDir(),
			Key:  "officeSupplyRecords",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// defaultDataDir returns the per-user data directory, falling back to
// a local directory when the home directory is unknown.
func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "supplies")
	}
	return "data"
}

// Overrides carries values given on the command line. Zero values mean
// "not set" and leave lower-priority sources in place.
type Overrides struct {
	ConfigPath  string
	Host        string
	Port        int
	Storage     string
	StoragePath string
	StorageURL  string
	StorageKey  string
	Watch       bool
	RulesPath   string
	LogLevel    string
	LogFormat   string
	Verbosity   int
}

// Register binds the override fields to a flag set.
func (o *Overrides) Register(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigPath, "config", "", "TOML config file (default "+DefaultConfigPath+")")
	fs.StringVar(&o.Host, "host", "", "HTTP listen address")
	fs.IntVar(&o.Port, "port", 0, "HTTP listen port")
	fs.StringVar(&o.Storage, "storage", "", "Storage type: memory, file, sqlite, postgresql")
	fs.StringVar(&o.StoragePath, "storage-path", "", "Data directory (file) or database file (sqlite)")
	fs.StringVar(&o.StorageURL, "storage-url", "", "PostgreSQL connection URL")
	fs.StringVar(&o.StorageKey, "storage-key", "", "Slot key holding the record collection")
	fs.BoolVar(&o.Watch, "watch", false, "Reload when the file slot changes on disk")
	fs.StringVar(&o.RulesPath, "rules", "", "Lua validation script")
	fs.StringVar(&o.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&o.LogFormat, "log-format", "", "Log format: console, json")
	fs.CountVarP(&o.Verbosity, "verbose", "v", "Verbosity level (use -v or -vv)")
}

// Load builds the configuration.
// Priority: CLI flags > env vars > TOML file > defaults
func Load(o Overrides) (*Config, error) {
	cfg := DefaultConfig()

	configPath := o.ConfigPath
	if configPath == "" {
		configPath = os.Getenv("SUPPLIES_CONFIG")
	}
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath
	}
	if err := cfg.loadTOML(configPath); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyOverrides(o)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadTOML loads configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() error {
	if v := os.Getenv("SUPPLIES_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SUPPLIES_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SUPPLIES_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("SUPPLIES_STORAGE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("SUPPLIES_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("SUPPLIES_STORAGE_URL"); v != "" {
		c.Storage.URL = v
	}
	if v := os.Getenv("SUPPLIES_STORAGE_KEY"); v != "" {
		c.Storage.Key = v
	}
	if v := os.Getenv("SUPPLIES_WATCH"); v != "" {
		c.Storage.Watch = v == "true" || v == "1"
	}
	if v := os.Getenv("SUPPLIES_RULES"); v != "" {
		c.Rules.Path = v
	}
	if v := os.Getenv("SUPPLIES_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SUPPLIES_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SUPPLIES_VERBOSITY"); v != "" {
		verbosity, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SUPPLIES_VERBOSITY: %w", err)
		}
		c.Logging.Verbosity = verbosity
	}
	return nil
}

func (c *Config) applyOverrides(o Overrides) {
	if o.Host != "" {
		c.Server.Host = o.Host
	}
	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	if o.Storage != "" {
		c.Storage.Type = o.Storage
	}
	if o.StoragePath != "" {
		c.Storage.Path = o.StoragePath
	}
	if o.StorageURL != "" {
		c.Storage.URL = o.StorageURL
	}
	if o.StorageKey != "" {
		c.Storage.Key = o.StorageKey
	}
	if o.Watch {
		c.Storage.Watch = true
	}
	if o.RulesPath != "" {
		c.Rules.Path = o.RulesPath
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Logging.Format = o.LogFormat
	}
	if o.Verbosity > 0 {
		c.Logging.Verbosity = o.Verbosity
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "memory", "file", "sqlite", "postgresql":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	if c.Storage.Key == "" {
		return fmt.Errorf("storage key must not be empty")
	}
	if c.Storage.Type == "postgresql" && c.Storage.URL == "" {
		return fmt.Errorf("storage type postgresql requires a url")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// Verbosity returns the configured verbosity level.
func (c *Config) Verbosity() int {
	return c.Logging.Verbosity
}
