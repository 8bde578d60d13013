package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"retailcli/internal/errors"
)

// EnvPrefix namespaces every environment variable, e.g. RETAIL_SOURCE_URL.
const EnvPrefix = "RETAIL"

// LegacySourceURLEnv is honored when RETAIL_SOURCE_URL is unset.
const LegacySourceURLEnv = "SHAREPOINT_URL"

// Config represents the complete application configuration. Environment
// variable names are derived from field names, e.g. Source.CacheTTL is
// RETAIL_SOURCE_CACHE_TTL.
type Config struct {
	Server    ServerConfig    `yaml:"server" split_words:"true"`
	Source    SourceConfig    `yaml:"source" split_words:"true"`
	Export    ExportConfig    `yaml:"export" split_words:"true"`
	Logging   LoggingConfig   `yaml:"logging" split_words:"true"`
	Security  SecurityConfig  `yaml:"security" split_words:"true"`
	Telemetry TelemetryConfig `yaml:"telemetry" split_words:"true"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" split_words:"true"`
	Port            int           `yaml:"port" split_words:"true"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true"`
	RequestTimeout  time.Duration `yaml:"request_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SourceConfig says where the workbook comes from.
type SourceConfig struct {
	URL          string        `yaml:"url" split_words:"true"`
	Path         string        `yaml:"path" split_words:"true"`
	DataDir      string        `yaml:"data_dir" split_words:"true"`
	PrimaryFile  string        `yaml:"primary_file" split_words:"true"`
	FallbackFile string        `yaml:"fallback_file" split_words:"true"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" split_words:"true"`
	CacheTTL     time.Duration `yaml:"cache_ttl" split_words:"true"`
	CacheEntries int           `yaml:"cache_entries" split_words:"true"`
}

// ExportConfig controls the CSV export and refresh.
type ExportConfig struct {
	OutputDir    string `yaml:"output_dir" split_words:"true"`
	BOM          bool   `yaml:"bom" split_words:"true"`
	KeepBackups  int    `yaml:"keep_backups" split_words:"true"`
	TopVendors   int    `yaml:"top_vendors" split_words:"true"`
	TopCustomers int    `yaml:"top_customers" split_words:"true"`

	// RefreshInterval makes the web server refresh the export periodically.
	// Zero disables it.
	RefreshInterval time.Duration `yaml:"refresh_interval" split_words:"true"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" split_words:"true"`
	Output   string `yaml:"output" split_words:"true"` // console, stdout, file or both
	FilePath string `yaml:"file_path" split_words:"true"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" split_words:"true"`
	EnableCORS     bool            `yaml:"enable_cors" split_words:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" split_words:"true"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" split_words:"true"`
	RPS     float64 `yaml:"rps" split_words:"true"`
	Burst   int     `yaml:"burst" split_words:"true"`
}

// TelemetryConfig toggles metrics and tracing.
type TelemetryConfig struct {
	Metrics       bool    `yaml:"metrics" split_words:"true"`
	Tracing       bool    `yaml:"tracing" split_words:"true"`
	TraceExporter string  `yaml:"trace_exporter" split_words:"true"`
	SampleRatio   float64 `yaml:"sample_ratio" split_words:"true"`
	Environment   string  `yaml:"environment" split_words:"true"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Source: SourceConfig{
			DataDir:      ".",
			PrimaryFile:  "RETAIL.dataMart V2.xlsx",
			FallbackFile: "retail_data.xlsx",
			FetchTimeout: 60 * time.Second,
			CacheTTL:     5 * time.Minute,
			CacheEntries: 4,
		},
		Export: ExportConfig{
			OutputDir:    "powerbi_data",
			KeepBackups:  1,
			TopVendors:   20,
			TopCustomers: 50,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/retail.log",
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   40,
			},
		},
		Telemetry: TelemetryConfig{
			Metrics:       true,
			TraceExporter: "stdout",
			SampleRatio:   1.0,
			Environment:   "development",
		},
	}
}

// Load builds the configuration from defaults, then the first config file
// found, then the environment. Environment variables win.
func Load() (*Config, error) {
	return LoadFrom(configFilePath())
}

// LoadFrom is Load with an explicit config file; an empty path skips the file.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewConfigError("read config file", err).WithContext("path", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewConfigError("parse config file", err).WithContext("path", path)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.NewConfigError("load config from env", err)
	}
	if cfg.Source.URL == "" {
		cfg.Source.URL = strings.TrimSpace(os.Getenv(LegacySourceURLEnv))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid server port: %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		problems = append(problems, "server timeouts must be positive")
	}
	if c.Source.FetchTimeout <= 0 {
		problems = append(problems, "source fetch timeout must be positive")
	}
	if c.Source.CacheTTL < 0 {
		problems = append(problems, "source cache ttl must not be negative")
	}
	if c.Export.OutputDir == "" {
		problems = append(problems, "export output dir is required")
	}
	if c.Export.RefreshInterval < 0 {
		problems = append(problems, "export refresh_interval must not be negative")
	}
	if c.Export.KeepBackups < 0 {
		problems = append(problems, "export keep_backups must not be negative")
	}
	if c.Export.TopVendors <= 0 || c.Export.TopCustomers <= 0 {
		problems = append(problems, "export top_vendors and top_customers must be positive")
	}
	switch strings.ToLower(c.Logging.Output) {
	case "console", "stdout", "file", "both":
	default:
		problems = append(problems, fmt.Sprintf("unknown logging output %q", c.Logging.Output))
	}
	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst <= 0) {
		problems = append(problems, "rate limit rps and burst must be positive")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		problems = append(problems, "telemetry sample_ratio must be within [0,1]")
	}

	if len(problems) > 0 {
		return errors.NewConfigError(strings.Join(problems, "; "), nil)
	}
	return nil
}

// configFilePath returns RETAIL_CONFIG or the first config.yaml found.
func configFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	for _, location := range []string{"config.yaml", "configs/config.yaml"} {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}
