package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/adamwoolhether/nativefetch/fetch/dirs"
	"github.com/adamwoolhether/nativefetch/fetch/throttle"
)

// Config is the YAML configuration of the CLI.
type Config struct {
	// App namespaces the default directories.
	App string `yaml:"app"`
	// CookieDB is the SQLite file cookies persist to. Empty keeps cookies
	// in memory for the lifetime of the process.
	CookieDB    string `yaml:"cookie_db"`
	SyncCookies bool   `yaml:"sync_cookies"`
	// CertDir holds <id>.cer files for certificate pinning.
	CertDir       string           `yaml:"cert_dir"`
	Verbose       bool             `yaml:"verbose"`
	UserAgent     string           `yaml:"user_agent"`
	MaxConcurrent int              `yaml:"max_concurrent"`
	Throttle      *throttle.Config `yaml:"throttle"`
	// Directories overrides named locations, e.g. documents: /srv/docs.
	Directories map[string]string `yaml:"directories"`

	Log LogConfig `yaml:"log"`
}

// LogConfig configures the JSON log output. Logs go to stderr unless File
// is set, in which case the file is rotated.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.App == "" {
		c.App = "nativefetch"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}

	return c
}

// Validate reports settings that can't be used.
func (c Config) Validate() error {
	var errs []error

	if c.Throttle != nil {
		if err := c.Throttle.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("throttle: %w", err))
		}
	}
	if c.MaxConcurrent < 0 {
		errs = append(errs, errors.New("max_concurrent must not be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// LoadConfig reads the YAML file at path. An empty path yields the
// defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// resolver overlays the configured directories on the XDG defaults.
func (c Config) resolver() dirs.Resolver {
	primary := make(dirs.Static, len(c.Directories))
	for k, v := range c.Directories {
		primary[dirs.Normalize(k)] = v
	}

	return dirs.Overlay{Primary: primary, Fallback: dirs.XDG{App: c.App}}
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}

	return lvl, nil
}

// newLogger returns a JSON logger writing to the rotated log file, or to
// stderr. The returned closer releases the file.
func newLogger(c LogConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	lvl, err := parseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}

	w := stderr
	var closer io.Closer = nopCloser{}

	if c.File != "" {
		lj := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   c.Compress,
		}
		w, closer = lj, lj
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
