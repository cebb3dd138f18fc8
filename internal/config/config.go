// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	API           APIConfig           `yaml:"api"`
	Session       SessionConfig       `yaml:"session"`
	Entity        EntityConfig        `yaml:"entity"`
	Transfer      TransferConfig      `yaml:"transfer"`
	Notifications NotificationConfig  `yaml:"notifications"`
	Definitions   DefinitionsConfig   `yaml:"definitions"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes the local BFF HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// APIConfig describes the school REST backend.
type APIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	Credentials string        `yaml:"credentials"`
	RefreshPath string        `yaml:"refresh_path"`
	LoginPath   string        `yaml:"login_path"`
	LogoutPath  string        `yaml:"logout_path"`
}

// SendCredentials reports whether cookies are passed through to the backend.
func (c APIConfig) SendCredentials() bool {
	return c.Credentials == "include" || c.Credentials == "same-origin"
}

// SessionConfig describes where the access token and cached profile live.
type SessionConfig struct {
	Store      string `yaml:"store"`
	FilePath   string `yaml:"file_path"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	KeyPrefix  string `yaml:"key_prefix"`
	LoginRoute string `yaml:"login_route"`
}

// EntityConfig describes list fetching behaviour.
type EntityConfig struct {
	SearchDebounce     time.Duration `yaml:"search_debounce"`
	DefaultRowsPerPage int           `yaml:"default_rows_per_page"`
	RowsPerPageOptions []int         `yaml:"rows_per_page_options"`
	ScopePattern       string        `yaml:"scope_pattern"`
	ScopeKey           string        `yaml:"scope_key"`
	ScopeRoot          string        `yaml:"scope_root"`
}

// TransferConfig describes import and export constraints.
type TransferConfig struct {
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
	AllowedExtensions []string      `yaml:"allowed_extensions"`
	MaxRowErrors      int           `yaml:"max_row_errors"`
	AutoCloseDelay    time.Duration `yaml:"auto_close_delay"`
	DownloadDir       string        `yaml:"download_dir"`
}

// NotificationConfig describes transient notifications.
type NotificationConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	MaxActive int           `yaml:"max_active"`
}

// DefinitionsConfig describes where to find entity page definitions.
type DefinitionsConfig struct {
	Directories []string `yaml:"directories"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"` // json or console
	Tracing   TracingConfig `yaml:"tracing"`
	Metrics   MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5173,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			HandlerTimeout:  45 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		API: APIConfig{
			BaseURL:     "http://localhost:5000/api",
			Timeout:     15 * time.Second,
			Credentials: "include",
			RefreshPath: "/auth/refresh",
			LoginPath:   "/auth/login",
			LogoutPath:  "/auth/logout",
		},
		Session: SessionConfig{
			Store:      "file",
			FilePath:   "session.json",
			KeyPrefix:  "sms:",
			LoginRoute: "/login",
		},
		Entity: EntityConfig{
			SearchDebounce:     500 * time.Millisecond,
			DefaultRowsPerPage: 10,
			RowsPerPageOptions: []int{5, 10, 25, 50},
			ScopePattern:       `^[0-9a-fA-F]{24}$`,
			ScopeKey:           "campus",
			ScopeRoot:          "campus",
		},
		Transfer: TransferConfig{
			MaxUploadBytes:    5 << 20,
			AllowedExtensions: []string{".csv", ".xlsx", ".xls"},
			MaxRowErrors:      50,
			AutoCloseDelay:    1500 * time.Millisecond,
			DownloadDir:       "downloads",
		},
		Notifications: NotificationConfig{
			TTL:       4 * time.Second,
			MaxActive: 5,
		},
		Definitions: DefinitionsConfig{
			Directories: []string{"definitions"},
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
			Tracing: TracingConfig{
				Exporter:     "stdout",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.API.BaseURL == "" {
		errs = append(errs, "api.base_url is required")
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "api.base_url must be an absolute URL")
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, "api.timeout must be positive")
	}
	switch c.Session.Store {
	case "file":
		if c.Session.FilePath == "" {
			errs = append(errs, "session.file_path is required for the file store")
		}
	case "redis":
		if c.Session.RedisAddr == "" {
			errs = append(errs, "session.redis_addr is required for the redis store")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("session.store %q is not supported (file, redis, memory)", c.Session.Store))
	}
	if c.Entity.DefaultRowsPerPage < 1 {
		errs = append(errs, "entity.default_rows_per_page must be positive")
	}
	if c.Entity.SearchDebounce < 0 {
		errs = append(errs, "entity.search_debounce must not be negative")
	}
	if _, err := regexp.Compile(c.Entity.ScopePattern); err != nil {
		errs = append(errs, "entity.scope_pattern is not a valid regular expression")
	}
	if c.Transfer.MaxUploadBytes <= 0 {
		errs = append(errs, "transfer.max_upload_bytes must be positive")
	}
	if len(c.Transfer.AllowedExtensions) == 0 {
		errs = append(errs, "transfer.allowed_extensions must not be empty")
	}
	switch c.Observability.LogFormat {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("observability.log_format %q is not supported (json, console)", c.Observability.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads SMS_* environment variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SMS_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SMS_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("SMS_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.Timeout = d
		}
	}
	if v := os.Getenv("SMS_SESSION_STORE"); v != "" {
		cfg.Session.Store = v
	}
	if v := os.Getenv("SMS_SESSION_REDIS_ADDR"); v != "" {
		cfg.Session.RedisAddr = v
	}
	if v := os.Getenv("SMS_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("SMS_OBSERVABILITY_LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
	if v := os.Getenv("SMS_TRANSFER_DOWNLOAD_DIR"); v != "" {
		cfg.Transfer.DownloadDir = v
	}
}
