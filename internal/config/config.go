// Package config loads the agent-index configuration file and applies
// environment overrides.
package config

//go:generate go run ../../tools/schema-generator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/jasperwreed/agent-index/internal/debuglog"
	"github.com/jasperwreed/agent-index/internal/pricing"
	"github.com/jasperwreed/agent-index/internal/storage"
)

// PathsConfig locates the transcripts and the index.
type PathsConfig struct {
	// ClaudeDir holds projects/, debug/, todos/ and history.jsonl. Default: ~/.claude.
	ClaudeDir string `yaml:"claude_dir,omitempty" json:"claude_dir,omitempty"`

	// Database is the SQLite index file. Default: ~/.config/agent-index/index.db.
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
}

// LogConfig controls diagnostic output on stderr.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty" jsonschema:"enum=trace,enum=debug,enum=info,enum=warn,enum=error"`
	Format string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"enum=text,enum=json"`
}

// StorageConfig tunes the SQLite connections.
type StorageConfig struct {
	// BusyTimeoutMS is how long a writer waits for another process's lock.
	BusyTimeoutMS int `yaml:"busy_timeout_ms,omitempty" json:"busy_timeout_ms,omitempty"`
}

// BillingConfig holds the defaults of the pricing command.
type BillingConfig struct {
	Subscription string `yaml:"subscription,omitempty" json:"subscription,omitempty"`
	BillingDay   int    `yaml:"billing_day,omitempty" json:"billing_day,omitempty" jsonschema:"minimum=1,maximum=31"`
}

// ErrorsConfig controls the debug log scan.
type ErrorsConfig struct {
	MaxResults int      `yaml:"max_results,omitempty" json:"max_results,omitempty"`
	Patterns   []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
}

// Config is the top-level configuration structure.
type Config struct {
	Paths   PathsConfig    `yaml:"paths,omitempty" json:"paths,omitempty"`
	Log     LogConfig      `yaml:"log,omitempty" json:"log,omitempty"`
	Storage StorageConfig  `yaml:"storage,omitempty" json:"storage,omitempty"`
	Billing BillingConfig  `yaml:"billing,omitempty" json:"billing,omitempty"`
	Errors  ErrorsConfig   `yaml:"errors,omitempty" json:"errors,omitempty"`
	Pricing *pricing.Table `yaml:"pricing,omitempty" json:"pricing,omitempty"`

	// Source is the file the configuration was read from, or "" for defaults.
	Source string `yaml:"-" json:"-"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			ClaudeDir: "~/.claude",
			Database:  "~/.config/agent-index/index.db",
		},
		Log:     LogConfig{Level: "warn", Format: "text"},
		Storage: StorageConfig{BusyTimeoutMS: int(storage.DefaultConfig().BusyTimeout / time.Millisecond)},
		Billing: BillingConfig{Subscription: "max20x", BillingDay: 1},
		Errors: ErrorsConfig{
			MaxResults: debuglog.DefaultMaxResults,
			Patterns:   []string{debuglog.DefaultPattern},
		},
		Pricing: pricing.Default(),
	}
}

// DefaultPath is ~/.config/agent-index/config.yaml.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}
	return filepath.Join(home, ".config", "agent-index", "config.yaml"), nil
}

// Load reads path over the defaults, then applies environment overrides and
// expands ~ in paths. An empty path loads the default location, which may be
// absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.merge(data); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		cfg.Source = path
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// merge decodes data over cfg. A pricing section only replaces the parts it
// sets.
func (c *Config) merge(data []byte) error {
	defaults := c.Pricing
	c.Pricing = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}

	if c.Pricing == nil {
		c.Pricing = defaults
		return nil
	}
	if c.Pricing.ReferenceModel == "" {
		c.Pricing.ReferenceModel = defaults.ReferenceModel
	}
	if len(c.Pricing.Models) == 0 {
		c.Pricing.Models = defaults.Models
		if len(c.Pricing.Families) == 0 {
			c.Pricing.Families = defaults.Families
		}
	}
	if c.Pricing.Default.Name == "" {
		c.Pricing.Default = defaults.Default
	}
	if len(c.Pricing.Subscriptions) == 0 {
		c.Pricing.Subscriptions = defaults.Subscriptions
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Paths.ClaudeDir = getEnvString("AGENT_INDEX_CLAUDE_DIR", c.Paths.ClaudeDir)
	c.Paths.Database = getEnvString("AGENT_INDEX_DB", c.Paths.Database)
	c.Log.Level = getEnvString("AGENT_INDEX_LOG_LEVEL", c.Log.Level)
	c.Storage.BusyTimeoutMS = getEnvInt("AGENT_INDEX_BUSY_TIMEOUT_MS", c.Storage.BusyTimeoutMS)
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Paths.ClaudeDir, &c.Paths.Database} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate rejects settings that would fail later in a less obvious way.
func (c *Config) Validate() error {
	if c.Storage.BusyTimeoutMS < 0 {
		return fmt.Errorf("storage.busy_timeout_ms must not be negative")
	}
	if c.Billing.BillingDay < 1 || c.Billing.BillingDay > 31 {
		return fmt.Errorf("billing.billing_day must be within 1..31, got %d", c.Billing.BillingDay)
	}
	if err := c.Pricing.Validate(); err != nil {
		return err
	}
	if _, err := c.Pricing.SubscriptionPrice(c.Billing.Subscription); err != nil {
		return fmt.Errorf("billing.subscription: %w", err)
	}
	return nil
}

// ProjectsDir is where transcripts live.
func (c *Config) ProjectsDir() string {
	return filepath.Join(c.Paths.ClaudeDir, "projects")
}

// HistoryPath is the prompt history that supplies session titles.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.ClaudeDir, "history.jsonl")
}

// TodosDir holds the per-session todo lists.
func (c *Config) TodosDir() string {
	return filepath.Join(c.Paths.ClaudeDir, "todos")
}

// StoreConfig builds the store settings.
func (c *Config) StoreConfig() *storage.Config {
	sc := storage.DefaultConfig()
	sc.Path = c.Paths.Database
	sc.BusyTimeout = time.Duration(c.Storage.BusyTimeoutMS) * time.Millisecond
	return sc
}

// Helper functions for environment variables
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
