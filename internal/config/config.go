// Package config resolves dagent settings from flags, environment and
// config.yaml through viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix = "DAGENT"

	DefaultServer  = "http://localhost:8081/api"
	DefaultTimeout = 10 * time.Second
	DefaultModel   = ""
)

// Keys read from viper.
const (
	KeyServer       = "server"
	KeyTimeout      = "timeout"
	KeyModel        = "model"
	KeyDataDir      = "data_dir"
	KeyLogLevel     = "log_level"
	KeyCacheEnabled = "cache.enabled"
)

// Config is the resolved client configuration.
type Config struct {
	Server       string
	Timeout      time.Duration
	Model        string
	DataDir      string
	LogLevel     slog.Level
	CacheEnabled bool
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyServer, DefaultServer)
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeyModel, DefaultModel)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyCacheEnabled, true)
}

// DataDir returns the dagent data directory path
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".dagent"), nil
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return FromViper(viper.GetViper())
}

// FromViper builds a Config from v and validates it.
func FromViper(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		Server:       strings.TrimRight(strings.TrimSpace(v.GetString(KeyServer)), "/"),
		Timeout:      v.GetDuration(KeyTimeout),
		Model:        v.GetString(KeyModel),
		DataDir:      v.GetString(KeyDataDir),
		CacheEnabled: v.GetBool(KeyCacheEnabled),
	}

	if cfg.DataDir == "" {
		dir, err := DataDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = dir
	}

	level, err := parseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the server URL and timeout are usable.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Server)
	switch {
	case c.Server == "":
		errs = append(errs, errors.New("server is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("invalid server URL: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("invalid server URL %q: scheme must be http or https", c.Server))
	case u.Host == "":
		errs = append(errs, fmt.Errorf("invalid server URL %q: missing host", c.Server))
	}

	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}

	return errors.Join(errs...)
}

// CachePath is the location of the local history database.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// LogPath is the location of the client log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "dagent.log")
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return level, nil
}
