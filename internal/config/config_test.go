package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usagepulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "release", cfg.Server.GinMode)
	assert.Equal(t, "data/user_behavior_dataset.csv", cfg.Data.Source)
	assert.Equal(t, 5*time.Minute, cfg.Cache.ResponseTTL)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 120, cfg.RateLimit.PerMinute)
	assert.Empty(t, cfg.RateLimit.RedisAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
	assert.Equal(t, "prometheus", cfg.Telemetry.MetricExporter)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeYAML(t, `
server:
  port: 9000
  read_timeout: 5s
data:
  source: /srv/usage.xlsx
  sheet: Users
rate_limit:
  per_minute: 30
  redis_addr: localhost:6379
logging:
  level: DEBUG
security:
  allowed_origins: ["https://dash.example.com"]
`)
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("USAGE_SERVER_PORT", "9100")
	t.Setenv("USAGE_LOGGING_FORMAT", "text")
	t.Setenv("USAGE_SECURITY_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("USAGE_CACHE_RESPONSE_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "environment beats file")
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout, "file beats default")
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "default kept")
	assert.Equal(t, "/srv/usage.xlsx", cfg.Data.Source)
	assert.Equal(t, "Users", cfg.LoaderOptions().Sheet)
	assert.Equal(t, 30, cfg.RateLimit.PerMinute)
	assert.Equal(t, "localhost:6379", cfg.RateLimit.RedisAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, 90*time.Second, cfg.Cache.ResponseTTL)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		env    map[string]string
		noYAML bool
	}{
		{name: "missing file", noYAML: true},
		{name: "unknown key", file: "server:\n  prot: 80\n"},
		{name: "bad env value", env: map[string]string{"USAGE_SERVER_PORT": "eighty"}},
		{name: "invalid port", env: map[string]string{"USAGE_SERVER_PORT": "70000"}},
		{name: "invalid exporter", env: map[string]string{"USAGE_TELEMETRY_TRACE_EXPORTER": "jaeger"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			switch {
			case tt.noYAML:
				t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "absent.yaml"))
			case tt.file != "":
				t.Setenv(ConfigFileEnv, writeYAML(t, tt.file))
			default:
				t.Setenv(ConfigFileEnv, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero request timeout", mutate: func(c *Config) { c.Server.RequestTimeout = 0 }, wantErr: "request timeout"},
		{name: "gin mode", mutate: func(c *Config) { c.Server.GinMode = "prod" }, wantErr: "gin mode"},
		{name: "blank source", mutate: func(c *Config) { c.Data.Source = "  " }, wantErr: "data source"},
		{name: "long delimiter", mutate: func(c *Config) { c.Data.Delimiter = ";;" }, wantErr: "single character"},
		{name: "quote delimiter", mutate: func(c *Config) { c.Data.Delimiter = `"` }, wantErr: "invalid data delimiter"},
		{name: "negative ttl", mutate: func(c *Config) { c.Cache.ResponseTTL = -time.Second }, wantErr: "ttl"},
		{name: "rate limit zero", mutate: func(c *Config) { c.RateLimit.PerMinute = 0 }, wantErr: "per minute"},
		{name: "rate limit disabled ignores zero", mutate: func(c *Config) {
			c.RateLimit.Enabled = false
			c.RateLimit.PerMinute = 0
		}},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: "log level"},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "log format"},
		{name: "no origins", mutate: func(c *Config) { c.Security.AllowedOrigins = nil }, wantErr: "allowed origin"},
		{name: "sample ratio", mutate: func(c *Config) { c.Telemetry.SampleRatio = 1.5 }, wantErr: "sample ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoaderOptionsDelimiter(t *testing.T) {
	tests := []struct {
		in   string
		want rune
	}{
		{"", 0},
		{",", ','},
		{";", ';'},
		{"tab", '\t'},
		{`\t`, '\t'},
		{"|", '|'},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.Data.Delimiter = tt.in
		require.NoError(t, cfg.Validate(), tt.in)
		assert.Equal(t, tt.want, cfg.LoaderOptions().Delimiter, tt.in)
	}
}
