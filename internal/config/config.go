// Package config loads admin console configuration from defaults, an optional
// YAML file and ADMC_-prefixed environment variables, in that order of precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AllowedPageSizes are the page sizes the audit-log endpoint accepts.
var AllowedPageSizes = []int{10, 25, 50, 100}

// Config holds all console configuration
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	History   HistoryConfig   `mapstructure:"history"`
	Export    ExportConfig    `mapstructure:"export"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	DevAPI    DevAPIConfig    `mapstructure:"dev_api"`
}

// APIConfig points the console at the admin backend
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`

	// Token is a static bearer token. TokenFile, when set, takes precedence and
	// is re-read whenever the file changes.
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token_file"`
}

// HistoryConfig holds audit-history view defaults
type HistoryConfig struct {
	PageSize        int           `mapstructure:"page_size"`
	AutoRefresh     bool          `mapstructure:"auto_refresh"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// ExportConfig selects where exported CSV files are written
type ExportConfig struct {
	Backend string             `mapstructure:"backend"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local"`
	S3      S3StorageConfig    `mapstructure:"s3"`
	Azure   AzureStorageConfig `mapstructure:"azure"`
	GCS     GCSStorageConfig   `mapstructure:"gcs"`
}

// LocalStorageConfig holds local filesystem export configuration
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// S3StorageConfig holds S3-compatible export configuration
type S3StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO etc.)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// Authentication method: "default", "static", "oidc", "assume_role"
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN              string `mapstructure:"role_arn"`
	RoleSessionName      string `mapstructure:"role_session_name"`
	ExternalID           string `mapstructure:"external_id"`
	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// AzureStorageConfig holds Azure Blob Storage export configuration
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
	// ServiceURL overrides https://<account>.blob.core.windows.net/ (Azurite).
	ServiceURL string `mapstructure:"service_url"`
}

// GCSStorageConfig holds Google Cloud Storage export configuration
type GCSStorageConfig struct {
	Bucket    string `mapstructure:"bucket"`
	ProjectID string `mapstructure:"project_id"`

	// Authentication method: "default", "service_account", "workload_identity"
	AuthMethod      string `mapstructure:"auth_method"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`

	// Endpoint is an optional custom endpoint (for GCS emulators)
	Endpoint string `mapstructure:"endpoint"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus side-server configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// DevAPIConfig configures the in-memory fake admin API
type DevAPIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Seed is the number of synthetic audit records generated at startup.
	Seed int `mapstructure:"seed"`
	// JWTSecret, when set, makes the fake verify HS256 bearer tokens.
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Address returns host:port for the fake API listener.
func (c *DevAPIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// bindEnvVars explicitly binds every nested key so AutomaticEnv works with Unmarshal.
// viper.BindEnv only errors when called with zero keys; every key here is non-empty,
// so an error indicates a programming mistake.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// API
		"api.base_url",
		"api.timeout",
		"api.token",
		"api.token_file",

		// History
		"history.page_size",
		"history.auto_refresh",
		"history.refresh_interval",

		// Export
		"export.backend",
		"export.prefix",
		"export.local.base_path",
		"export.s3.endpoint",
		"export.s3.region",
		"export.s3.bucket",
		"export.s3.auth_method",
		"export.s3.access_key_id",
		"export.s3.secret_access_key",
		"export.s3.role_arn",
		"export.s3.role_session_name",
		"export.s3.external_id",
		"export.s3.web_identity_token_file",
		"export.azure.account_name",
		"export.azure.account_key",
		"export.azure.container_name",
		"export.azure.service_url",
		"export.gcs.bucket",
		"export.gcs.project_id",
		"export.gcs.auth_method",
		"export.gcs.credentials_file",
		"export.gcs.credentials_json",
		"export.gcs.endpoint",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Dev API
		"dev_api.host",
		"dev_api.port",
		"dev_api.seed",
		"dev_api.jwt_secret",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var for config key %q: %w", key, err)
		}
	}
	return nil
}

// Load reads configuration from configPath (or the usual locations when empty),
// applies ADMC_ environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("admin-console")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/admin-console")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("ADMC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.API.Token = expandEnv(cfg.API.Token)
	cfg.Export.S3.AccessKeyID = expandEnv(cfg.Export.S3.AccessKeyID)
	cfg.Export.S3.SecretAccessKey = expandEnv(cfg.Export.S3.SecretAccessKey)
	cfg.Export.Azure.AccountKey = expandEnv(cfg.Export.Azure.AccountKey)
	cfg.Export.GCS.CredentialsJSON = expandEnv(cfg.Export.GCS.CredentialsJSON)
	cfg.DevAPI.JWTSecret = expandEnv(cfg.DevAPI.JWTSecret)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", "30s")

	v.SetDefault("history.page_size", 25)
	v.SetDefault("history.auto_refresh", false)
	v.SetDefault("history.refresh_interval", "10s")

	v.SetDefault("export.backend", "local")
	v.SetDefault("export.local.base_path", ".")
	v.SetDefault("export.s3.auth_method", "default")
	v.SetDefault("export.gcs.auth_method", "default")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("telemetry.metrics.enabled", false)
	v.SetDefault("telemetry.metrics.prometheus_port", 9091)

	v.SetDefault("dev_api.host", "127.0.0.1")
	v.SetDefault("dev_api.port", 8080)
	v.SetDefault("dev_api.seed", 120)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// ValidPageSize reports whether n is one of AllowedPageSizes.
func ValidPageSize(n int) bool {
	for _, size := range AllowedPageSizes {
		if n == size {
			return true
		}
	}
	return false
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL: %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}

	if !ValidPageSize(c.History.PageSize) {
		return fmt.Errorf("invalid history.page_size: %d (must be one of 10, 25, 50, 100)", c.History.PageSize)
	}
	if c.History.AutoRefresh && c.History.RefreshInterval < time.Second {
		return fmt.Errorf("history.refresh_interval must be at least 1s when auto_refresh is enabled")
	}

	validBackends := map[string]bool{"azure": true, "s3": true, "gcs": true, "local": true}
	if !validBackends[c.Export.Backend] {
		return fmt.Errorf("invalid export backend: %s (must be azure, s3, gcs, or local)", c.Export.Backend)
	}

	switch c.Export.Backend {
	case "azure":
		if c.Export.Azure.AccountName == "" {
			return fmt.Errorf("export.azure.account_name is required when using Azure backend")
		}
		if c.Export.Azure.AccountKey == "" {
			return fmt.Errorf("export.azure.account_key is required when using Azure backend")
		}
		if c.Export.Azure.ContainerName == "" {
			return fmt.Errorf("export.azure.container_name is required when using Azure backend")
		}
	case "s3":
		if c.Export.S3.Bucket == "" {
			return fmt.Errorf("export.s3.bucket is required when using S3 backend")
		}
		if c.Export.S3.Region == "" {
			return fmt.Errorf("export.s3.region is required when using S3 backend")
		}
	case "gcs":
		if c.Export.GCS.Bucket == "" {
			return fmt.Errorf("export.gcs.bucket is required when using GCS backend")
		}
	case "local":
		if c.Export.Local.BasePath == "" {
			return fmt.Errorf("export.local.base_path is required when using local backend")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.Telemetry.Metrics.Enabled {
		if p := c.Telemetry.Metrics.PrometheusPort; p < 1 || p > 65535 {
			return fmt.Errorf("invalid telemetry.metrics.prometheus_port: %d", p)
		}
	}

	if c.DevAPI.Port < 0 || c.DevAPI.Port > 65535 {
		return fmt.Errorf("invalid dev_api.port: %d", c.DevAPI.Port)
	}
	if c.DevAPI.Seed < 0 {
		return fmt.Errorf("dev_api.seed must not be negative")
	}

	return nil
}
