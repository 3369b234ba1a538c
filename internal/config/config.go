// Package config loads AssistChat settings from defaults, an optional TOML
// file and ASSISTCHAT_* environment variables. Command-line flags are applied
// on top by the caller.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultEndpoint        = "http://localhost:8080/chat/send"
	DefaultTimeoutSecs     = 60
	DefaultFollowThreshold = 3 // terminal rows
	DefaultWordWrap        = 80
	DefaultGlamourStyle    = "auto"
	DefaultLogDir          = "logs"
	DefaultDBPath          = "assistchat.db"
)

// Config holds application configuration
type Config struct {
	Endpoint        string `toml:"endpoint"`
	TimeoutSecs     int    `toml:"timeout_secs"`
	FollowThreshold int    `toml:"follow_threshold"` // rows from the bottom that still count as "at bottom"
	WordWrap        int    `toml:"word_wrap"`
	GlamourStyle    string `toml:"glamour_style"` // auto, dark, light, notty, or a style file path
	LogDir          string `toml:"log_dir"`
	DBPath          string `toml:"db_path"`
	Journal         bool   `toml:"journal"`   // record exchange outcomes in SQLite
	Telemetry       bool   `toml:"telemetry"` // export OpenTelemetry traces and metrics
	Debug           bool   `toml:"debug"`
	Plain           bool   `toml:"plain"` // line-mode REPL instead of the full-screen UI
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Endpoint:        DefaultEndpoint,
		TimeoutSecs:     DefaultTimeoutSecs,
		FollowThreshold: DefaultFollowThreshold,
		WordWrap:        DefaultWordWrap,
		GlamourStyle:    DefaultGlamourStyle,
		LogDir:          DefaultLogDir,
		DBPath:          DefaultDBPath,
		Journal:         true,
	}
}

// DefaultPath returns ~/.assistchat/config.toml, or "" if the home
// directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".assistchat", "config.toml")
}

// Load builds a Config from defaults, the TOML file at path and the
// environment. A missing file at the default location is not an error; a
// missing file that was asked for explicitly is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to load config %s: %w", path, err)
			}
		}
	}

	// .env is optional
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("ASSISTCHAT_ENDPOINT", &c.Endpoint)
	envString("ASSISTCHAT_GLAMOUR_STYLE", &c.GlamourStyle)
	envString("ASSISTCHAT_LOG_DIR", &c.LogDir)
	envString("ASSISTCHAT_DB_PATH", &c.DBPath)

	for key, dst := range map[string]*int{
		"ASSISTCHAT_TIMEOUT_SECS":     &c.TimeoutSecs,
		"ASSISTCHAT_FOLLOW_THRESHOLD": &c.FollowThreshold,
		"ASSISTCHAT_WORD_WRAP":        &c.WordWrap,
	} {
		if err := envInt(key, dst); err != nil {
			return err
		}
	}

	for key, dst := range map[string]*bool{
		"ASSISTCHAT_JOURNAL":   &c.Journal,
		"ASSISTCHAT_TELEMETRY": &c.Telemetry,
		"ASSISTCHAT_DEBUG":     &c.Debug,
		"ASSISTCHAT_PLAIN":     &c.Plain,
	} {
		if err := envBool(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

// Timeout returns the per-request timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Validate checks that all settings are usable
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("endpoint scheme must be http, https, ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %q has no host", c.Endpoint)
	}
	if c.TimeoutSecs <= 0 {
		return fmt.Errorf("timeout_secs must be > 0, got %d", c.TimeoutSecs)
	}
	if c.FollowThreshold <= 0 {
		return fmt.Errorf("follow_threshold must be > 0, got %d", c.FollowThreshold)
	}
	if c.WordWrap <= 0 {
		return fmt.Errorf("word_wrap must be > 0, got %d", c.WordWrap)
	}
	if c.LogDir == "" {
		return fmt.Errorf("log_dir cannot be empty")
	}
	if c.Journal && c.DBPath == "" {
		return fmt.Errorf("db_path cannot be empty when the journal is enabled")
	}
	return nil
}
