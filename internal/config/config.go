package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"quotewatch/internal/logging"
	"quotewatch/internal/poller"
	"quotewatch/internal/yahoo"
)

// Config holds all configuration for the quote watcher.
type Config struct {
	// Endpoints (configurable for testing)
	CookieURL string `mapstructure:"cookie_url"`
	CrumbURL  string `mapstructure:"crumb_url"`
	QuoteURL  string `mapstructure:"quote_url"`

	Symbol         string        `mapstructure:"symbol"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// QueueCapacity bounds the observation feed; 0 is unbounded
	QueueCapacity int `mapstructure:"queue_capacity"`
	// InvalidateAfterFailures drops credentials after this many failed quote
	// cycles in a row; 0 never drops them
	InvalidateAfterFailures int `mapstructure:"invalidate_after_failures"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days"`

	// MetricsAddr enables the Prometheus endpoint when set, e.g. ":9090"
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Logging returns the logging section of the configuration
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
	}
}

// Gateway returns gateway options built from the configuration
func (c *Config) Gateway() yahoo.Options {
	return yahoo.Options{
		CookieURL: c.CookieURL,
		CrumbURL:  c.CrumbURL,
		QuoteURL:  c.QuoteURL,
		UserAgent: c.UserAgent,
		Timeout:   c.RequestTimeout,
	}
}

// Poller returns poller settings built from the configuration
func (c *Config) Poller() poller.Config {
	pc := poller.DefaultConfig()
	pc.Symbol = c.Symbol
	pc.InvalidateAfter = c.InvalidateAfterFailures
	return pc
}

// bindings maps configuration keys to environment variables
var bindings = map[string]string{
	"cookie_url":                "QUOTEWATCH_COOKIE_URL",
	"crumb_url":                 "QUOTEWATCH_CRUMB_URL",
	"quote_url":                 "QUOTEWATCH_QUOTE_URL",
	"symbol":                    "QUOTEWATCH_SYMBOL",
	"user_agent":                "QUOTEWATCH_USER_AGENT",
	"request_timeout":           "QUOTEWATCH_REQUEST_TIMEOUT",
	"queue_capacity":            "QUOTEWATCH_QUEUE_CAPACITY",
	"invalidate_after_failures": "QUOTEWATCH_INVALIDATE_AFTER_FAILURES",
	"log_level":                 "QUOTEWATCH_LOG_LEVEL",
	"log_format":                "QUOTEWATCH_LOG_FORMAT",
	"log_file":                  "QUOTEWATCH_LOG_FILE",
	"log_max_size_mb":           "QUOTEWATCH_LOG_MAX_SIZE_MB",
	"log_max_backups":           "QUOTEWATCH_LOG_MAX_BACKUPS",
	"log_max_age_days":          "QUOTEWATCH_LOG_MAX_AGE_DAYS",
	"metrics_addr":              "QUOTEWATCH_METRICS_ADDR",
}

// Load reads configuration from environment variables and optional config file.
// Environment variables take precedence over config file values. Every key
// has a default, so an empty environment yields a working configuration.
//
// Environment variables are the upper-cased key prefixed with QUOTEWATCH_,
// for example QUOTEWATCH_SYMBOL or QUOTEWATCH_LOG_LEVEL.
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("quotewatch")
	v.AutomaticEnv()

	v.SetDefault("cookie_url", yahoo.DefaultCookieURL)
	v.SetDefault("crumb_url", yahoo.DefaultCrumbURL)
	v.SetDefault("quote_url", yahoo.DefaultQuoteURL)
	v.SetDefault("symbol", poller.DefaultSymbol)
	v.SetDefault("user_agent", yahoo.DefaultUserAgent)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("queue_capacity", 0)
	v.SetDefault("invalidate_after_failures", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age_days", 28)
	v.SetDefault("metrics_addr", "")

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.quotewatch")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var problems []string

	for _, u := range []struct{ name, value string }{
		{"cookie_url", c.CookieURL},
		{"crumb_url", c.CrumbURL},
		{"quote_url", c.QuoteURL},
	} {
		if !absoluteURL(u.value) {
			problems = append(problems, fmt.Sprintf("%s must be an absolute URL, got %q", u.name, u.value))
		}
	}
	if strings.TrimSpace(c.Symbol) == "" {
		problems = append(problems, "symbol must not be empty")
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, "request_timeout must be positive")
	}
	if c.QueueCapacity < 0 {
		problems = append(problems, "queue_capacity must not be negative")
	}
	if c.InvalidateAfterFailures < 0 {
		problems = append(problems, "invalidate_after_failures must not be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format must be text or json, got %q", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func absoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs() && u.Host != ""
}
