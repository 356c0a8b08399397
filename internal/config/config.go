// Package config handles the global configuration file and the data
// directory layout.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matsen/lineage/internal/explore"
)

// Config represents configuration stored in ~/.config/lin/config.yml.
// Every field has a working default; the file only needs the overrides.
type Config struct {
	S2APIKey string `yaml:"s2_api_key,omitempty"`
	Model    string `yaml:"model,omitempty"` // oracle model name, empty = provider default

	// Criteria replaces the default lineage-definition rubric in every
	// oracle prompt when set.
	Criteria string `yaml:"criteria,omitempty"`

	// APIDelaySeconds overrides the minimum spacing between
	// bibliographic API calls. 0 keeps the client default.
	APIDelaySeconds float64 `yaml:"api_delay_seconds,omitempty"`

	MaxThreads         int   `yaml:"max_threads,omitempty"`
	MaxPapersPerThread int   `yaml:"max_papers_per_thread,omitempty"`
	MaxPerYear         int   `yaml:"max_per_year,omitempty"`
	BroadSearch        *bool `yaml:"broad_search,omitempty"`
	PoolEnabled        *bool `yaml:"pool_enabled,omitempty"`
	PoolMinSize        int   `yaml:"pool_min_size,omitempty"`
	PoolMaxThreads     int   `yaml:"pool_max_threads,omitempty"`
	CandidateCap       int   `yaml:"candidate_cap,omitempty"`

	CacheTTLDays int `yaml:"cache_ttl_days,omitempty"`
}

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME.
	ConfigDir = "lin"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"
	// DataDir is the directory name under XDG_DATA_HOME.
	DataDir = "lin"
	// DBFile is the run database file name.
	DBFile = "runs.db"
	// CacheDirName is the API response cache directory name.
	CacheDirName = "cache"

	defaultCacheTTLDays = 7
)

// Path returns the path to the global config file. Respects
// XDG_CONFIG_HOME, defaults to ~/.config/lin/config.yml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// DataPath returns the data directory. Respects XDG_DATA_HOME, defaults
// to ~/.local/share/lin.
func DataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, DataDir)
}

// DBPath returns the path to the run database.
func DBPath() string {
	return filepath.Join(DataPath(), DBFile)
}

// CachePath returns the path to the API response cache directory.
func CachePath() string {
	return filepath.Join(DataPath(), CacheDirName)
}

// Load reads the global config. A missing file is not an error: it
// yields an empty config, which resolves to all defaults.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom reads a config file from an explicit path.
func LoadFrom(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to the given path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate rejects values that would make a run misbehave.
func (c *Config) Validate() error {
	if c.MaxThreads < 0 {
		return fmt.Errorf("max_threads must not be negative: %d", c.MaxThreads)
	}
	if c.MaxPapersPerThread < 0 {
		return fmt.Errorf("max_papers_per_thread must not be negative: %d", c.MaxPapersPerThread)
	}
	if c.MaxPerYear < 0 {
		return fmt.Errorf("max_per_year must not be negative: %d", c.MaxPerYear)
	}
	if c.CacheTTLDays < 0 {
		return fmt.Errorf("cache_ttl_days must not be negative: %d", c.CacheTTLDays)
	}
	if c.APIDelaySeconds < 0 {
		return fmt.Errorf("api_delay_seconds must not be negative: %g", c.APIDelaySeconds)
	}
	return nil
}

// ExploreConfig resolves the exploration knobs: file overrides on top of
// the engine defaults.
func (c *Config) ExploreConfig() explore.Config {
	cfg := explore.DefaultConfig()
	if c.MaxThreads > 0 {
		cfg.MaxThreads = c.MaxThreads
	}
	if c.MaxPapersPerThread > 0 {
		cfg.MaxPapersPerThread = c.MaxPapersPerThread
	}
	if c.MaxPerYear > 0 {
		cfg.MaxPerYear = c.MaxPerYear
	}
	if c.BroadSearch != nil {
		cfg.BroadSearch = *c.BroadSearch
	}
	if c.PoolEnabled != nil {
		cfg.PoolEnabled = *c.PoolEnabled
	}
	if c.PoolMinSize > 0 {
		cfg.PoolMinSize = c.PoolMinSize
	}
	if c.PoolMaxThreads > 0 {
		cfg.PoolMaxThreads = c.PoolMaxThreads
	}
	if c.CandidateCap > 0 {
		cfg.CandidateCap = c.CandidateCap
	}
	return cfg
}

// CacheTTL resolves the cache TTL.
func (c *Config) CacheTTL() time.Duration {
	days := c.CacheTTLDays
	if days == 0 {
		days = defaultCacheTTLDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// APIDelay resolves the inter-call spacing override. 0 means keep the
// client default.
func (c *Config) APIDelay() time.Duration {
	return time.Duration(c.APIDelaySeconds * float64(time.Second))
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
