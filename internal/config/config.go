// Package config loads the server and CLI settings. Defaults are overlaid by
// an optional YAML file (USAGE_CONFIG_FILE) and then by USAGE_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/ZanzyTHEbar/usagepulse/internal/dataset"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "USAGE"

// ConfigFileEnv names the YAML file overlaid on the defaults.
const ConfigFileEnv = EnvPrefix + "_CONFIG_FILE"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Data      DataConfig      `yaml:"data" envconfig:"DATA"`
	Cache     CacheConfig     `yaml:"cache" envconfig:"CACHE"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	GinMode         string        `yaml:"gin_mode" envconfig:"GIN_MODE"`
}

// DataConfig names the dataset source and how to read it.
type DataConfig struct {
	Source string `yaml:"source" envconfig:"SOURCE"`
	// Delimiter is a single character, "tab", or empty to sniff it.
	Delimiter string `yaml:"delimiter" envconfig:"DELIMITER"`
	Sheet     string `yaml:"sheet" envconfig:"SHEET"`
	Table     string `yaml:"table" envconfig:"TABLE"`
}

// CacheConfig contains response cache configuration
type CacheConfig struct {
	ResponseTTL time.Duration `yaml:"response_ttl" envconfig:"RESPONSE_TTL"`
}

// RateLimitConfig contains per-IP rate limiting configuration
type RateLimitConfig struct {
	Enabled         bool   `yaml:"enabled" envconfig:"ENABLED"`
	PerMinute       int    `yaml:"per_minute" envconfig:"PER_MINUTE"`
	BurstMultiplier int    `yaml:"burst_multiplier" envconfig:"BURST_MULTIPLIER"`
	RedisAddr       string `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword   string `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB         int    `yaml:"redis_db" envconfig:"REDIS_DB"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableHSTS     bool     `yaml:"enable_hsts" envconfig:"ENABLE_HSTS"`
	MaxValueLength int      `yaml:"max_value_length" envconfig:"MAX_VALUE_LENGTH"`
	CSPReportURI   string   `yaml:"csp_report_uri" envconfig:"CSP_REPORT_URI"`
}

// TelemetryConfig selects the OpenTelemetry exporters.
type TelemetryConfig struct {
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			GinMode:         gin.ReleaseMode,
		},
		Data: DataConfig{
			Source: "data/user_behavior_dataset.csv",
		},
		Cache: CacheConfig{
			ResponseTTL: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			PerMinute:       120,
			BurstMultiplier: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			MaxValueLength: 100,
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by USAGE_CONFIG_FILE and the environment, in increasing precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// fields without a matching variable keep their current value
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile overlays the YAML file at path. Keys absent from the file leave
// the current values untouched.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges and normalizes enumerations to lower case.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server read and write timeouts must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server request timeout must be positive")
	}
	switch c.Server.GinMode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return fmt.Errorf("invalid gin mode %q", c.Server.GinMode)
	}

	if strings.TrimSpace(c.Data.Source) == "" {
		return fmt.Errorf("data source must be set")
	}
	if _, err := c.Data.delimiter(); err != nil {
		return err
	}

	if c.Cache.ResponseTTL < 0 {
		return fmt.Errorf("cache response ttl must not be negative")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.PerMinute <= 0 {
			return fmt.Errorf("rate limit per minute must be positive, got %d", c.RateLimit.PerMinute)
		}
		if c.RateLimit.BurstMultiplier <= 0 {
			return fmt.Errorf("rate limit burst multiplier must be positive, got %d", c.RateLimit.BurstMultiplier)
		}
	}

	c.Logging.Level = strings.ToLower(c.Logging.Level)
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}

	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}
	if c.Security.MaxValueLength <= 0 {
		return fmt.Errorf("security max value length must be positive")
	}

	c.Telemetry.TraceExporter = strings.ToLower(c.Telemetry.TraceExporter)
	if c.Telemetry.TraceExporter != "stdout" && c.Telemetry.TraceExporter != "none" {
		return fmt.Errorf("invalid trace exporter %q", c.Telemetry.TraceExporter)
	}
	c.Telemetry.MetricExporter = strings.ToLower(c.Telemetry.MetricExporter)
	if c.Telemetry.MetricExporter != "prometheus" && c.Telemetry.MetricExporter != "none" {
		return fmt.Errorf("invalid metric exporter %q", c.Telemetry.MetricExporter)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be within [0, 1], got %v", c.Telemetry.SampleRatio)
	}
	return nil
}

// LoaderOptions converts the data section into dataset loader options.
func (c *Config) LoaderOptions() dataset.Options {
	delim, _ := c.Data.delimiter()
	return dataset.Options{
		Delimiter: delim,
		Sheet:     c.Data.Sheet,
		Table:     c.Data.Table,
	}
}

func (d DataConfig) delimiter() (rune, error) {
	switch strings.ToLower(d.Delimiter) {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(d.Delimiter) != 1 {
		return 0, fmt.Errorf("data delimiter must be a single character, got %q", d.Delimiter)
	}
	r, _ := utf8.DecodeRuneInString(d.Delimiter)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("invalid data delimiter %q", d.Delimiter)
	}
	return r, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
