package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all sidecar configuration.
type Config struct {
	Server    ServerConfig
	Proxy     ProxyConfig
	Tracing   TracingConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// ProxyConfig holds upstream repository and local archive configuration.
type ProxyConfig struct {
	UpstreamURL string        `envconfig:"UPSTREAM_URL" default:"http://localhost:8081"`
	ArchiveDir  string        `envconfig:"ARCHIVE_DIR" default:"/tmp/sidecar-archive"`
	Timeout     time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s"`
	Retries     int           `envconfig:"UPSTREAM_RETRIES" default:"3"`
}

// TracingConfig holds trace instrumentation configuration.
//
// Functions maps request path prefixes to logical operation names used to
// label spans. The map can be supplied inline via TRACING_FUNCTIONS
// ("/api/content:download,/api/promote:promote") or from a YAML file via
// TRACING_FUNCTIONS_FILE; the file, when present, replaces the inline map.
type TracingConfig struct {
	Enabled       bool              `envconfig:"TRACING_ENABLED" default:"true"`
	ServiceName   string            `envconfig:"SERVICE_NAME" default:"sidecar-svc"`
	Functions     map[string]string `envconfig:"TRACING_FUNCTIONS" default:"/api/content:download,/api/promote:promote"`
	FunctionsFile string            `envconfig:"TRACING_FUNCTIONS_FILE" default:""`
	SpanBuffer    int               `envconfig:"TRACING_SPAN_BUFFER" default:"1000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Tracing.FunctionsFile != "" {
		if err := cfg.Tracing.loadFunctionsFile(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Proxy: ProxyConfig{
			UpstreamURL: "http://localhost:8081",
			ArchiveDir:  "/tmp/sidecar-archive",
			Timeout:     30 * time.Second,
			Retries:     3,
		},
		Tracing: TracingConfig{
			Enabled:     true,
			ServiceName: "sidecar-svc",
			Functions: map[string]string{
				"/api/content": "download",
				"/api/promote": "promote",
			},
			SpanBuffer: 1000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// IsEnabled reports whether trace instrumentation is turned on.
func (t *TracingConfig) IsEnabled() bool {
	return t.Enabled
}

// GetServiceName returns the service name attached to every span.
func (t *TracingConfig) GetServiceName() string {
	return t.ServiceName
}

// GetFunctionName resolves a request path to a logical operation name.
// The longest matching path prefix wins; paths with no mapping resolve
// to nothing and are not instrumented.
func (t *TracingConfig) GetFunctionName(path string) (string, bool) {
	var (
		name  string
		found bool
		best  int
	)
	for prefix, fn := range t.Functions {
		if strings.HasPrefix(path, prefix) && len(prefix) > best {
			name = fn
			found = true
			best = len(prefix)
		}
	}
	return name, found
}

// loadFunctionsFile replaces the function map with the contents of the
// configured YAML file.
func (t *TracingConfig) loadFunctionsFile() error {
	data, err := os.ReadFile(t.FunctionsFile)
	if err != nil {
		return fmt.Errorf("failed to read functions file: %w", err)
	}
	funcs := make(map[string]string)
	if err := yaml.Unmarshal(data, &funcs); err != nil {
		return fmt.Errorf("failed to parse functions file %s: %w", t.FunctionsFile, err)
	}
	t.Functions = funcs
	return nil
}
