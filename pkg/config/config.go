package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	errs "igharvest/pkg/errors"
)

// DateLayout is the layout of earliest_post_date
const DateLayout = "2006-01-02"

// Config holds all configuration options for a harvest run
type Config struct {
	// What to fetch and how hard to try
	Scrape ScrapeConfig `yaml:"scrape" json:"scrape"`

	// Backoff between retry attempts
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Instagram client settings
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ScrapeConfig is the engine's configuration surface
type ScrapeConfig struct {
	BatchSize        int      `yaml:"batchsize" json:"batchsize"`
	ConcurrencyLimit int      `yaml:"concurrency_limit" json:"concurrency_limit"`
	MaxRetries       int      `yaml:"max_retries" json:"max_retries"`
	MaxPages         int      `yaml:"max_pages" json:"max_pages"`
	EarliestPostDate string   `yaml:"earliest_post_date" json:"earliest_post_date"`
	Shortcodes       []string `yaml:"shortcodes" json:"shortcodes"`
	UserIDs          []string `yaml:"user_ids" json:"user_ids"`
}

// RetryConfig holds backoff configuration for failed fetch attempts
type RetryConfig struct {
	Strategy   string        `yaml:"strategy" json:"strategy"`
	BaseDelay  time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier float64       `yaml:"multiplier" json:"multiplier"`
	Jitter     float64       `yaml:"jitter" json:"jitter"`
	// TransientOnly stops retrying on auth, not_found, parsing and unknown
	// fetch errors
	TransientOnly bool `yaml:"transient_only" json:"transient_only"`
}

// InstagramConfig holds Instagram-specific configuration
type InstagramConfig struct {
	SessionID      string        `yaml:"session_id" json:"session_id"`
	CSRFToken      string        `yaml:"csrf_token" json:"csrf_token"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	AppID          string        `yaml:"app_id" json:"app_id"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	PageSize       int           `yaml:"page_size" json:"page_size"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute"`
	Strategy          string `yaml:"strategy" json:"strategy"`
}

// OutputConfig holds output configuration
type OutputConfig struct {
	ResultsFile string `yaml:"results_file" json:"results_file"`
	Resume      bool   `yaml:"resume" json:"resume"`
}

// MetricsConfig holds the Prometheus listener configuration
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address" json:"listen_address"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Scrape: ScrapeConfig{
			BatchSize:        10,
			ConcurrencyLimit: 10,
			MaxRetries:       3,
			MaxPages:         -1,
			EarliestPostDate: "2024-12-01",
			Shortcodes:       []string{},
			UserIDs:          []string{},
		},
		Retry: RetryConfig{
			Strategy:   "exponential",
			BaseDelay:  1 * time.Second,
			MaxDelay:   30 * time.Second,
			Multiplier: 2.0,
			Jitter:     0.1,
		},
		Instagram: InstagramConfig{
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			AppID:          "936619743392459",
			RequestTimeout: 30 * time.Second,
			PageSize:       24,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			Strategy:          "token_bucket",
		},
		Output: OutputConfig{
			ResultsFile: "./results.json",
			Resume:      false,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errList []error

	envInt := func(name string, target *int) {
		raw := os.Getenv(name)
		if raw == "" {
			return
		}
		val, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			errList = append(errList, errs.NewConfigError(name, raw, "not an integer"))
			return
		}
		*target = val
	}

	envList := func(name string, target *[]string) {
		raw := os.Getenv(name)
		if raw == "" {
			return
		}
		*target = splitList(raw)
	}

	// Engine surface
	envInt("IGHARVEST_BATCHSIZE", &c.Scrape.BatchSize)
	envInt("IGHARVEST_CONCURRENCY_LIMIT", &c.Scrape.ConcurrencyLimit)
	envInt("IGHARVEST_MAX_RETRIES", &c.Scrape.MaxRetries)
	envInt("IGHARVEST_MAX_PAGES", &c.Scrape.MaxPages)
	if date := os.Getenv("IGHARVEST_EARLIEST_POST_DATE"); date != "" {
		c.Scrape.EarliestPostDate = strings.TrimSpace(date)
	}
	envList("IGHARVEST_SHORTCODES", &c.Scrape.Shortcodes)
	envList("IGHARVEST_USER_IDS", &c.Scrape.UserIDs)

	// Instagram credentials
	if sessionID := os.Getenv("IGHARVEST_SESSION_ID"); sessionID != "" {
		c.Instagram.SessionID = sessionID
	}
	if csrfToken := os.Getenv("IGHARVEST_CSRF_TOKEN"); csrfToken != "" {
		c.Instagram.CSRFToken = csrfToken
	}
	if userAgent := os.Getenv("IGHARVEST_USER_AGENT"); userAgent != "" {
		c.Instagram.UserAgent = userAgent
	}

	// Rate limiting
	envInt("IGHARVEST_REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)

	// Output
	if resultsFile := os.Getenv("IGHARVEST_RESULTS_FILE"); resultsFile != "" {
		c.Output.ResultsFile = resultsFile
	}

	if addr := os.Getenv("IGHARVEST_METRICS_ADDRESS"); addr != "" {
		c.Metrics.ListenAddress = addr
	}

	// Logging level
	if logLevel := os.Getenv("IGHARVEST_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if len(errList) > 0 {
		return errors.Join(errList...)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".igharvest.yaml",
		".igharvest.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "igharvest", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "igharvest", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".igharvest.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks every option and returns all problems joined together.
// Each problem is a *errors.ConfigError.
func (c *Config) Validate() error {
	var errList []error
	add := func(field string, value interface{}, reason string) {
		errList = append(errList, errs.NewConfigError(field, value, reason))
	}

	// Engine surface
	if c.Scrape.BatchSize <= 0 {
		add("batchsize", c.Scrape.BatchSize, "must be positive")
	}
	if c.Scrape.ConcurrencyLimit <= 0 {
		add("concurrency_limit", c.Scrape.ConcurrencyLimit, "must be positive")
	}
	if c.Scrape.MaxRetries < 0 {
		add("max_retries", c.Scrape.MaxRetries, "cannot be negative")
	}
	if c.Scrape.MaxPages < -1 {
		add("max_pages", c.Scrape.MaxPages, "must be -1 (unlimited) or greater")
	}
	if _, err := ParseDate(c.Scrape.EarliestPostDate); err != nil {
		add("earliest_post_date", c.Scrape.EarliestPostDate, "must be a YYYY-MM-DD date")
	}

	// Retry backoff
	validStrategies := map[string]bool{"exponential": true, "linear": true, "constant": true}
	if !validStrategies[strings.ToLower(c.Retry.Strategy)] {
		add("retry.strategy", c.Retry.Strategy, "must be exponential, linear or constant")
	}
	if c.Retry.BaseDelay < 0 {
		add("retry.base_delay", c.Retry.BaseDelay, "cannot be negative")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		add("retry.max_delay", c.Retry.MaxDelay, "must not be below base_delay")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		add("retry.jitter", c.Retry.Jitter, "must be between 0 and 1")
	}

	// Instagram client
	if c.Instagram.RequestTimeout <= 0 {
		add("instagram.request_timeout", c.Instagram.RequestTimeout, "must be positive")
	}
	if c.Instagram.PageSize <= 0 {
		add("instagram.page_size", c.Instagram.PageSize, "must be positive")
	}

	// Rate limiting
	if c.RateLimit.RequestsPerMinute <= 0 {
		add("rate_limit.requests_per_minute", c.RateLimit.RequestsPerMinute, "must be positive")
	}
	validLimiters := map[string]bool{"token_bucket": true, "sliding_window": true}
	if !validLimiters[strings.ToLower(c.RateLimit.Strategy)] {
		add("rate_limit.strategy", c.RateLimit.Strategy, "must be token_bucket or sliding_window")
	}

	if c.Output.Resume && c.Output.ResultsFile == "" {
		add("output.results_file", c.Output.ResultsFile, "required when resume is enabled")
	}

	// Validate logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", c.Logging.Level, "must be debug, info, warn or error")
	}

	if len(errList) > 0 {
		return errors.Join(errList...)
	}

	return nil
}

// EarliestPostDate returns the parsed cutoff date (midnight UTC)
func (c *Config) EarliestPostDate() (time.Time, error) {
	return ParseDate(c.Scrape.EarliestPostDate)
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight UTC
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", value, err)
	}
	return t, nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["batchsize"].(int); ok {
		c.Scrape.BatchSize = v
	}
	if v, ok := flags["concurrency-limit"].(int); ok {
		c.Scrape.ConcurrencyLimit = v
	}
	if v, ok := flags["max-retries"].(int); ok {
		c.Scrape.MaxRetries = v
	}
	if v, ok := flags["max-pages"].(int); ok {
		c.Scrape.MaxPages = v
	}
	if v, ok := flags["earliest-post-date"].(string); ok && v != "" {
		c.Scrape.EarliestPostDate = v
	}
	if v, ok := flags["shortcodes"].([]string); ok && len(v) > 0 {
		c.Scrape.Shortcodes = v
	}
	if v, ok := flags["user-ids"].([]string); ok && len(v) > 0 {
		c.Scrape.UserIDs = v
	}
	if v, ok := flags["session-id"].(string); ok && v != "" {
		c.Instagram.SessionID = v
	}
	if v, ok := flags["csrf-token"].(string); ok && v != "" {
		c.Instagram.CSRFToken = v
	}
	if v, ok := flags["rate-limit"].(int); ok && v > 0 {
		c.RateLimit.RequestsPerMinute = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.ResultsFile = v
	}
	if v, ok := flags["resume"].(bool); ok {
		c.Output.Resume = v
	}
	if v, ok := flags["metrics-address"].(string); ok && v != "" {
		c.Metrics.ListenAddress = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igharvest.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// splitList splits a comma or whitespace separated list, dropping blanks
func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
