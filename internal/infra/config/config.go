// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Playback     PlaybackConfig     `yaml:"playback"`
	Store        StoreConfig        `yaml:"store"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	MediaSession MediaSessionConfig `yaml:"media_session"`
	Messages     MessagesConfig     `yaml:"messages"`
}

// ServerConfig represents HTTP control surface configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Token string      `yaml:"token"` // Required in X-Playdeck-Token when set
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents shell commands run on server lifecycle events.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	DefaultVolume  float64 `yaml:"default_volume" default:"0.7" validate:"gte=0,lte=1"`
	RecentCapacity int     `yaml:"recent_capacity" default:"10" validate:"gte=1,lte=100"`
	AutoAdvance    bool    `yaml:"auto_advance"`
	TickIntervalMs int     `yaml:"tick_interval_ms" default:"250" validate:"gte=10,lte=5000"`
	ProbeTimeoutMs int     `yaml:"probe_timeout_ms" default:"10000" validate:"gte=100,lte=120000"`
}

// StoreConfig represents the persistence backend configuration.
type StoreConfig struct {
	Type     string         `yaml:"type" default:"file" validate:"oneof=memory file redis sqlite"`
	Settings map[string]any `yaml:"settings"`
}

// CatalogConfig represents the catalog API client configuration.
type CatalogConfig struct {
	BaseURL    string `yaml:"base_url" validate:"omitempty,url"`
	TimeoutMs  int    `yaml:"timeout_ms" default:"10000" validate:"gte=100"`
	CacheSize  int    `yaml:"cache_size" default:"512" validate:"gte=1"`
	MaxRetries int    `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
}

// MediaSessionConfig represents OS media control integration configuration.
type MediaSessionConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	PlaybackFailed string `yaml:"playback_failed" default:"Cannot play \"%s\". Audio file not found or not reachable."`
	NotPlayable    string `yaml:"not_playable" default:"\"%s\" has no audio available."`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return finish(&cfg)
}

// Default returns a configuration with all defaults applied.
func Default() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("PLAYDECK_CATALOG_URL"); v != "" {
		c.Catalog.BaseURL = v
	}
	if v := os.Getenv("PLAYDECK_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PLAYDECK_SERVER_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("PLAYDECK_REDIS_PASSWORD"); v != "" && c.Store.Type == "redis" {
		if c.Store.Settings == nil {
			c.Store.Settings = make(map[string]any)
		}
		c.Store.Settings["password"] = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// TickInterval returns the engine progress interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Playback.TickIntervalMs) * time.Millisecond
}

// ProbeTimeout returns the engine resource probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Playback.ProbeTimeoutMs) * time.Millisecond
}

// CatalogTimeout returns the catalog HTTP timeout.
func (c *Config) CatalogTimeout() time.Duration {
	return time.Duration(c.Catalog.TimeoutMs) * time.Millisecond
}
