package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"genrelay/internal/common/fsutil"
)

// ErrMissingCredential is returned by Validate when no provider API key is set.
var ErrMissingCredential = errors.New("missing upstream API key (set GROQ_API_KEY or api_key)")

// Config holds runtime parameters for the service. It is built once at startup
// and handed to the components that need it.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr"`
	UpstreamURL string `json:"upstream_url" yaml:"upstream_url" toml:"upstream_url"`
	APIKey      string `json:"api_key" yaml:"api_key" toml:"api_key"`

	ConnectTimeoutSeconds  int `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds" toml:"connect_timeout_seconds"`
	IdleTimeoutSeconds     int `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds" toml:"idle_timeout_seconds"`
	RequestTimeoutSeconds  int `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds" toml:"shutdown_timeout_seconds"`

	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSAllowedMethods []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSAllowedHeaders []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Addr:                   ":8000",
		UpstreamURL:            "https://api.groq.com/openai/v1/chat/completions",
		ConnectTimeoutSeconds:  10,
		IdleTimeoutSeconds:     60,
		RequestTimeoutSeconds:  120,
		ShutdownTimeoutSeconds: 5,
		MaxBodyBytes:           1 << 20,
		CORSAllowedOrigins:     []string{"*"},
		CORSAllowedMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		CORSAllowedHeaders:     []string{"*"},
		LogLevel:               "info",
		LogFormat:              "json",
	}
}

// Load reads a configuration file based on its extension on top of Defaults.
// Supports: .yaml/.yml, .json, .toml. Keys absent from the file keep their defaults.
// A leading ~ in path is expanded.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// DefaultPaths are searched, in order, when no config file is named.
var DefaultPaths = []string{
	"genrelay.yaml",
	"genrelay.yml",
	"genrelay.toml",
	"genrelay.json",
	"~/.config/genrelay/config.yaml",
}

// FindDefault returns the first existing file in DefaultPaths, or "".
func FindDefault() string { return fsutil.FirstExisting(DefaultPaths...) }

// ApplyEnv overrides fields from environment variables. lookup is usually
// os.LookupEnv; tests pass a map-backed function.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("GENRELAY_ADDR", &c.Addr)
	set("GENRELAY_UPSTREAM_URL", &c.UpstreamURL)
	set("GROQ_API_KEY", &c.APIKey)
	set("GENRELAY_LOG_LEVEL", &c.LogLevel)
	set("GENRELAY_LOG_FORMAT", &c.LogFormat)
}

// Validate fails fast on settings the service cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingCredential
	}
	u, err := url.Parse(c.UpstreamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid upstream_url %q", c.UpstreamURL)
	}
	if c.ConnectTimeoutSeconds < 0 || c.IdleTimeoutSeconds < 0 || c.RequestTimeoutSeconds < 0 || c.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "console":
	default:
		return fmt.Errorf("unsupported log_format %q (json|console)", c.LogFormat)
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// ConnectTimeout returns the dial timeout.
func (c Config) ConnectTimeout() time.Duration { return seconds(c.ConnectTimeoutSeconds) }

// IdleTimeout returns the upstream idle timeout (0 disables it).
func (c Config) IdleTimeout() time.Duration { return seconds(c.IdleTimeoutSeconds) }

// RequestTimeout returns the non-streaming call timeout (0 disables it).
func (c Config) RequestTimeout() time.Duration { return seconds(c.RequestTimeoutSeconds) }

// ShutdownTimeout returns the graceful shutdown budget.
func (c Config) ShutdownTimeout() time.Duration { return seconds(c.ShutdownTimeoutSeconds) }
