// Package config resolves pocket-kb settings from defaults, an optional YAML
// file and POCKET_KB_* environment variables. Command-line flags are applied
// on top by the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dpshade/pocket-kb/internal/validation"
)

// Environment variables read by applyEnvOverrides
const (
	EnvConfig        = "POCKET_KB_CONFIG"
	EnvContentDir    = "POCKET_KB_DIR"
	EnvPolicy        = "POCKET_KB_POLICY"
	EnvLogMode       = "POCKET_KB_LOG"
	EnvLogLevel      = "POCKET_KB_LOG_LEVEL"
	EnvWatchDebounce = "POCKET_KB_WATCH_DEBOUNCE"
)

// Config holds all pocket-kb configuration
type Config struct {
	// ContentDir is the canonical collection: a directory of markdown
	// records or a single YAML/JSON collection file
	ContentDir string `yaml:"content_dir" json:"content_dir"`

	// Policy decides whether invalid records are excluded or abort the build
	Policy string `yaml:"policy" json:"policy"`

	LogMode  string `yaml:"log_mode" json:"log_mode"`   // dev, prod
	LogLevel string `yaml:"log_level" json:"log_level"` // debug, info, warn, error

	WatchDebounce   string `yaml:"watch_debounce" json:"watch_debounce"`
	SearchLimit     int    `yaml:"search_limit" json:"search_limit"`
	LoadConcurrency int    `yaml:"load_concurrency" json:"load_concurrency"`
}

// baseDir is where pocket-kb keeps its config and default content
func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pocket-kb"
	}
	return filepath.Join(home, ".pocket-kb")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ContentDir:      filepath.Join(baseDir(), "content"),
		Policy:          string(validation.PolicyExclude),
		LogMode:         "dev",
		LogLevel:        "warn",
		WatchDebounce:   "500ms",
		SearchLimit:     0,
		LoadConcurrency: runtime.NumCPU(),
	}
}

// DefaultConfigPath returns $POCKET_KB_CONFIG or ~/.pocket-kb/config.yaml
func DefaultConfigPath() string {
	if path := os.Getenv(EnvConfig); path != "" {
		return path
	}
	return filepath.Join(baseDir(), "config.yaml")
}

// Load loads configuration from a YAML file. A missing file is not an
// error; defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv(EnvContentDir); dir != "" {
		c.ContentDir = dir
	}
	if policy := os.Getenv(EnvPolicy); policy != "" {
		c.Policy = policy
	}
	if mode := os.Getenv(EnvLogMode); mode != "" {
		c.LogMode = mode
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
	if debounce := os.Getenv(EnvWatchDebounce); debounce != "" {
		// Bare numbers are milliseconds
		if ms, err := strconv.Atoi(debounce); err == nil {
			debounce = fmt.Sprintf("%dms", ms)
		}
		c.WatchDebounce = debounce
	}
}

// GetPolicy returns the parsed validation policy
func (c *Config) GetPolicy() validation.Policy {
	policy, err := validation.ParsePolicy(c.Policy)
	if err != nil {
		return validation.PolicyExclude
	}
	return policy
}

// GetWatchDebounce returns the watcher debounce window
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ContentDir) == "" {
		return fmt.Errorf("content directory not configured (set %s or content_dir)", EnvContentDir)
	}
	if _, err := validation.ParsePolicy(c.Policy); err != nil {
		return err
	}
	switch strings.ToLower(c.LogMode) {
	case "dev", "development", "prod", "production":
	default:
		return fmt.Errorf("invalid log mode: %s (valid: dev, prod)", c.LogMode)
	}
	if d, err := time.ParseDuration(c.WatchDebounce); err != nil || d <= 0 {
		return fmt.Errorf("invalid watch debounce: %q", c.WatchDebounce)
	}
	if c.SearchLimit < 0 {
		return fmt.Errorf("search limit must not be negative: %d", c.SearchLimit)
	}
	if c.LoadConcurrency < 1 {
		return fmt.Errorf("load concurrency must be positive: %d", c.LoadConcurrency)
	}
	return nil
}
