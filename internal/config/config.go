// Package config provides configuration management for hlsproxy using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jmylchreest/hlsproxy/pkg/bytesize"
)

// Default configuration values.
const (
	defaultListenAddr      = ":8080"
	defaultReadTimeout     = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultSizeLimit       = 512 * bytesize.MB
	defaultCacheExpire     = 30 * time.Second
	defaultDownloadThreads = 1
	defaultTrackExpire     = 60 * time.Second
	defaultTrackInterval   = 8 * time.Second
	defaultHTTPTimeout     = 30 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Track   TrackConfig   `mapstructure:"track" yaml:"track"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// ListenAddr is the bind address, e.g. ":8080" or "127.0.0.1:9000".
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// BaseURL is the public base URL clients reach this proxy on. Rewritten
	// playlist URLs point at it.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout defaults to 0 (disabled): stream responses block until the
	// cache entry has loaded, which has no fixed upper bound.
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// CacheConfig holds segment cache configuration.
type CacheConfig struct {
	// SizeLimit is the admission cap for populated cache bytes.
	// Supports human-readable values like "512MB".
	SizeLimit ByteSize `mapstructure:"size_limit" yaml:"size_limit"`

	// Expire is the idle TTL of a cache entry; each hit pushes it forward.
	Expire time.Duration `mapstructure:"expire" yaml:"expire"`

	// DownloadThreads is the default number of parallel range connections
	// per segment download. 1 disables ranged downloading.
	DownloadThreads int `mapstructure:"download_threads" yaml:"download_threads"`
}

// TrackConfig holds playlist tracking configuration.
type TrackConfig struct {
	// Expire is the idle TTL of a tracked playlist; each /media hit pushes
	// it forward.
	Expire time.Duration `mapstructure:"expire" yaml:"expire"`

	// Interval is the re-poll interval for tracked playlists.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// HTTPConfig holds outbound HTTP client configuration.
type HTTPConfig struct {
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// Proxy is a single outbound proxy URL applied to every host.
	Proxy string `mapstructure:"proxy" yaml:"proxy"`

	// Proxies maps hostname substrings to proxy URLs. The reserved key
	// "fallback" applies when no other entry matches.
	Proxies map[string]string `mapstructure:"proxies" yaml:"proxies"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	TimeFormat string `mapstructure:"time_format" yaml:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with HLSPROXY_, using underscores for nesting.
// Example: HLSPROXY_SERVER_LISTEN_ADDR=:9000.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hlsproxy")
		v.AddConfigPath("$HOME/.hlsproxy")
	}

	v.SetEnvPrefix("HLSPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Missing config file is fine, defaults and env vars apply.
	}

	cfg, err := Unmarshal(v)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Unmarshal decodes the viper state into a Config without validating it.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", defaultListenAddr)
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.read_timeout", defaultReadTimeout)
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.idle_timeout", defaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("cache.size_limit", int64(defaultSizeLimit))
	v.SetDefault("cache.expire", defaultCacheExpire)
	v.SetDefault("cache.download_threads", defaultDownloadThreads)

	v.SetDefault("track.expire", defaultTrackExpire)
	v.SetDefault("track.interval", defaultTrackInterval)

	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.timeout", defaultHTTPTimeout)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if _, err := url.Parse(c.Server.BaseURL); err != nil {
		return fmt.Errorf("server.base_url is not a valid URL: %w", err)
	}

	if c.Cache.SizeLimit <= 0 {
		return fmt.Errorf("cache.size_limit must be positive")
	}
	if c.Cache.Expire <= 0 {
		return fmt.Errorf("cache.expire must be positive")
	}
	if c.Cache.DownloadThreads < 1 {
		return fmt.Errorf("cache.download_threads must be at least 1")
	}

	if c.Track.Expire <= 0 {
		return fmt.Errorf("track.expire must be positive")
	}
	if c.Track.Interval <= 0 {
		return fmt.Errorf("track.interval must be positive")
	}

	for host, proxyURL := range c.HTTP.Proxies {
		if _, err := url.Parse(proxyURL); err != nil {
			return fmt.Errorf("http.proxies[%s] is not a valid URL: %w", host, err)
		}
	}
	if c.HTTP.Proxy != "" {
		if _, err := url.Parse(c.HTTP.Proxy); err != nil {
			return fmt.Errorf("http.proxy is not a valid URL: %w", err)
		}
	}

	return nil
}
