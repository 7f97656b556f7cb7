// Package config loads taskchat settings from {data_dir}/config.yaml and
// TASKCHAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. TASKCHAT_BASE_URL.
const EnvPrefix = "TASKCHAT"

// EnvDataDir selects the data directory.
const EnvDataDir = EnvPrefix + "_DATA"

const (
	fileName = "config.yaml"
	dbName   = "taskchat.db"
	logName  = "taskchat.log"
)

// Config holds runtime settings.
type Config struct {
	BaseURL  string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	LogLevel string        `yaml:"log_level" mapstructure:"log_level"`
	// CredentialKey, when set, encrypts stored tokens.
	CredentialKey string `yaml:"credential_key,omitempty" mapstructure:"credential_key"`

	// DataDir is where config, database and log live. It comes from
	// TASKCHAT_DATA and is never written to the file.
	DataDir string `yaml:"-" mapstructure:"-"`
}

// Default returns the built-in settings for dataDir.
func Default(dataDir string) *Config {
	return &Config{
		BaseURL:  "http://localhost:8000",
		Timeout:  30 * time.Second,
		LogLevel: "info",
		DataDir:  dataDir,
	}
}

// DataDir returns $TASKCHAT_DATA or ~/.taskchat.
func DataDir() string {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskchat"
	}
	return filepath.Join(home, ".taskchat")
}

// Path is the config file inside dataDir.
func Path(dataDir string) string { return filepath.Join(dataDir, fileName) }

// DBPath is the local state database.
func (c *Config) DBPath() string { return filepath.Join(c.DataDir, dbName) }

// LogPath is the log file.
func (c *Config) LogPath() string { return filepath.Join(c.DataDir, logName) }

// Load merges defaults, the config file (if present) and the environment.
// An empty dataDir means DataDir().
func Load(dataDir string) (*Config, error) {
	if dataDir == "" {
		dataDir = DataDir()
	}
	def := Default(dataDir)

	v := viper.New()
	v.SetDefault("base_url", def.BaseURL)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("credential_key", "")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := Path(dataDir)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DataDir = dataDir
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: base_url %q must be an http(s) URL", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: timeout must be positive, got %s", c.Timeout)
	}
	if c.CredentialKey != "" && len(c.CredentialKey) < 8 {
		return errors.New("config: credential_key must be at least 8 characters")
	}
	return nil
}

// Save writes c to Path(c.DataDir) with owner-only permissions.
func Save(c *Config) error {
	if c.DataDir == "" {
		return errors.New("config: data dir not set")
	}
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := Path(c.DataDir)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.CredentialKey != "" {
		out.CredentialKey = "********"
	}
	return &out
}
