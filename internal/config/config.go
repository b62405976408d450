package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Poller   PollerConfig   `yaml:"poller"`
	Provider ProviderConfig `yaml:"provider"`
	Store    StoreConfig    `yaml:"store"`
	Accounts []string       `yaml:"accounts"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type PollerConfig struct {
	Interval time.Duration `yaml:"interval"`
	StateDir string        `yaml:"state_dir"`
	LockFile string        `yaml:"lock_file"`
}

type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	// BearerToken authenticates against the provider API. When
	// BearerTokenFile is set it wins and the token is read from that
	// file at load time (the deployment keeps credentials out of the
	// config file).
	BearerToken         string        `yaml:"bearer_token"`
	BearerTokenFile     string        `yaml:"bearer_token_file"`
	UserCacheTTL        time.Duration `yaml:"user_cache_ttl"`
	SessionLinkTemplate string        `yaml:"session_link_template"`
}

type StoreConfig struct {
	Path string `yaml:"path"` // sqlite database file
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Poller: PollerConfig{
			Interval: 5 * time.Minute,
			StateDir: "data",
		},
		Provider: ProviderConfig{
			BaseURL:             "https://api.twitter.com",
			UserCacheTTL:        15 * time.Minute,
			SessionLinkTemplate: "https://twitter.com/i/spaces/%s",
		},
		Store: StoreConfig{
			Path: filepath.Join("data", "spacewatch.db"),
		},
	}
}

// Load reads the config file, overlaying it onto the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to the defaults when
// the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = defaultConfig()
		if err := cfg.finalize(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

// finalize fills derived fields and validates the result.
func (c *Config) finalize() error {
	if c.Poller.LockFile == "" {
		c.Poller.LockFile = filepath.Join(c.Poller.StateDir, "run.lock")
	}
	if c.Provider.BearerTokenFile != "" {
		data, err := os.ReadFile(c.Provider.BearerTokenFile)
		if err != nil {
			return fmt.Errorf("read bearer token file: %w", err)
		}
		c.Provider.BearerToken = strings.TrimSpace(string(data))
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive, got %s", c.Poller.Interval)
	}
	if c.Poller.StateDir == "" {
		return errors.New("poller.state_dir must not be empty")
	}
	if c.Provider.BaseURL == "" {
		return errors.New("provider.base_url must not be empty")
	}
	if !strings.Contains(c.Provider.SessionLinkTemplate, "%s") {
		return fmt.Errorf("provider.session_link_template must contain %%s, got %q", c.Provider.SessionLinkTemplate)
	}
	if c.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	for _, account := range c.Accounts {
		if strings.TrimSpace(account) == "" {
			return errors.New("accounts must not contain empty entries")
		}
	}
	return nil
}
