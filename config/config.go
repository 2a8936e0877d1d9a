package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/spf13/viper"
	"github.com/use-agent/siteprobe/retry"
)

// EnvPrefix prefixes every environment override, e.g.
// SITEPROBE_RETRY_MAX_ATTEMPTS or SITEPROBE_BROWSER_MAX_SESSIONS.
const EnvPrefix = "SITEPROBE"

// DefaultUserAgent identifies the plain HTTP fetcher.
const DefaultUserAgent = "WebsiteAnalyzer/1.0 (Business Intelligence Bot; +https://studioinnovativo.it)"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // "debug", "release", "test"
}

// RetryConfig is the backoff policy applied to every fetch attempt.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
}

// Policy converts the section into a validated retry.Policy.
func (r RetryConfig) Policy() (retry.Policy, error) {
	return retry.NewPolicy(r.MaxAttempts, r.InitialWait, r.Multiplier, r.MaxWait)
}

// FetchConfig controls the plain HTTP engine.
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxPageSize  int64         `mapstructure:"max_page_size"`
	MaxRedirects int           `mapstructure:"max_redirects"`
}

// BrowserConfig controls the headless browser and its session pool.
type BrowserConfig struct {
	Headless  bool   `mapstructure:"headless"`
	NoSandbox bool   `mapstructure:"no_sandbox"` // needed in Docker
	Bin       string `mapstructure:"bin"`
	Proxy     string `mapstructure:"proxy"`

	MinSessions  int           `mapstructure:"min_sessions"`
	MaxSessions  int           `mapstructure:"max_sessions"`
	MaxUses      int           `mapstructure:"max_uses"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	MemThreshold float64       `mapstructure:"mem_threshold"`

	SessionWaitTimeout time.Duration `mapstructure:"session_wait_timeout"`
	MarkerWaitTimeout  time.Duration `mapstructure:"marker_wait_timeout"`
	ConsentTimeout     time.Duration `mapstructure:"consent_timeout"`

	// BlockedResourceTypes lists rod resource types dropped while rendering,
	// unless a request asks for subresources.
	BlockedResourceTypes []string `mapstructure:"blocked_resource_types"`

	ChannelHost   string `mapstructure:"channel_host"`
	ChannelMarker string `mapstructure:"channel_marker"`
	SnapshotDir   string `mapstructure:"snapshot_dir"`
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// BatchConfig bounds batch fan-out.
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// WebhookConfig controls delivery of async batch results.
type WebhookConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Timeout     time.Duration `mapstructure:"timeout"` // per delivery attempt
	MaxAttempts int           `mapstructure:"max_attempts"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
}

// Policy is the retry policy for webhook deliveries.
func (w WebhookConfig) Policy() (retry.Policy, error) {
	return retry.NewPolicy(w.MaxAttempts, w.InitialWait, w.Multiplier, w.MaxWait)
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var defaults = map[string]any{
	"server.host": "0.0.0.0",
	"server.port": 8080,
	"server.mode": "release",

	"retry.max_attempts": 3,
	"retry.initial_wait": 2 * time.Second,
	"retry.multiplier":   1.5,
	"retry.max_wait":     10 * time.Second,

	"fetch.timeout":       30 * time.Second,
	"fetch.user_agent":    DefaultUserAgent,
	"fetch.max_page_size": int64(10 << 20),
	"fetch.max_redirects": 5,

	"browser.headless":               true,
	"browser.no_sandbox":             false,
	"browser.bin":                    "",
	"browser.proxy":                  "",
	"browser.min_sessions":           0,
	"browser.max_sessions":           4,
	"browser.max_uses":               50,
	"browser.max_age":                50 * time.Minute,
	"browser.mem_threshold":          0.9,
	"browser.session_wait_timeout":   15 * time.Second,
	"browser.marker_wait_timeout":    10 * time.Second,
	"browser.consent_timeout":        3 * time.Second,
	"browser.blocked_resource_types": []string{"Image", "Font", "Media"},
	"browser.channel_host":           "www.youtube.com",
	"browser.channel_marker":         "",
	"browser.snapshot_dir":           "",

	"auth.enabled":  false,
	"auth.api_keys": []string{},

	"rate_limit.requests_per_second": 5.0,
	"rate_limit.burst":               10,

	"batch.concurrency": 4,

	"webhook.enabled":      true,
	"webhook.timeout":      10 * time.Second,
	"webhook.max_attempts": 4,
	"webhook.initial_wait": time.Second,
	"webhook.multiplier":   5.0,
	"webhook.max_wait":     30 * time.Second,

	"log.level":  "info",
	"log.format": "json",

	"metrics.enabled": true,
}

// Load reads configuration from defaults, an optional siteprobe.yaml in
// any of paths (or the working directory), and SITEPROBE_* environment
// variables, in increasing order of precedence.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetConfigName("siteprobe")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Retry.Policy(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.Fetch.Timeout <= 0 {
		return errors.New("fetch.timeout must be positive")
	}
	if c.Fetch.MaxPageSize <= 0 {
		return errors.New("fetch.max_page_size must be positive")
	}
	if c.Browser.MaxSessions < 1 {
		return errors.New("browser.max_sessions must be at least 1")
	}
	if c.Browser.MinSessions < 0 || c.Browser.MinSessions > c.Browser.MaxSessions {
		return fmt.Errorf("browser.min_sessions must be within [0, %d]", c.Browser.MaxSessions)
	}
	if c.Browser.ChannelMarker != "" {
		if _, err := cascadia.ParseGroup(c.Browser.ChannelMarker); err != nil {
			return fmt.Errorf("browser.channel_marker: %w", err)
		}
	}
	if c.Batch.Concurrency < 1 {
		return errors.New("batch.concurrency must be at least 1")
	}
	if c.Webhook.Enabled {
		if _, err := c.Webhook.Policy(); err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return errors.New("auth.enabled requires at least one api key")
	}
	return nil
}
