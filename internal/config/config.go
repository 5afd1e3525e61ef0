// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes all environment variables, e.g. MAPCORE_SERVER_PORT.
const EnvPrefix = "MAPCORE"

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Session    SessionConfig    `mapstructure:"session"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Import     ImportConfig     `mapstructure:"import"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Geocoder   GeocoderConfig   `mapstructure:"geocoder"`
	TLS        TLSConfig        `mapstructure:"tls"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string          `mapstructure:"host"`
	Port            int             `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64           `mapstructure:"max_upload_bytes"`
	FrontendEnabled bool            `mapstructure:"frontend_enabled"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	CORS            CORSConfig      `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Rate    float64 `mapstructure:"rate"`
	Burst   int     `mapstructure:"burst"`
}

// SessionConfig holds map session configuration.
type SessionConfig struct {
	CacheSize       int           `mapstructure:"cache_size"`
	JournalCapacity int           `mapstructure:"journal_capacity"`
	MinZoom         float64       `mapstructure:"min_zoom"`
	MaxZoom         float64       `mapstructure:"max_zoom"`
	AddressZoom     float64       `mapstructure:"address_zoom"`
	AnimationWindow time.Duration `mapstructure:"animation_window"`
}

// StorageConfig holds the session restore source. Type "none" disables
// session restore.
type StorageConfig struct {
	Type         string        `mapstructure:"type"` // none, local, s3, azure, http
	LocalPath    string        `mapstructure:"local_path"`
	SyncInterval time.Duration `mapstructure:"sync_interval"` // 0 disables periodic sync
	S3           S3Config      `mapstructure:"s3"`
	Azure        AzureConfig   `mapstructure:"azure"`
	HTTP         HTTPConfig    `mapstructure:"http"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// HTTPConfig holds HTTP download configuration.
type HTTPConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	IndexFile string        `mapstructure:"index_file"` // default: index.txt
	Timeout   time.Duration `mapstructure:"timeout"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
}

// ImportConfig holds the watched region import directory.
type ImportConfig struct {
	Path     string        `mapstructure:"path"` // empty disables the watcher
	Debounce time.Duration `mapstructure:"debounce"`
}

// ExtractionConfig holds the extraction pipeline client configuration.
type ExtractionConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
}

// GeocoderConfig holds Nominatim configuration.
type GeocoderConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Email     string        `mapstructure:"email"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	CacheSize int           `mapstructure:"cache_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// TLSConfig holds TLS/CertMagic configuration.
type TLSConfig struct {
	Enabled  bool      `mapstructure:"enabled"`
	Domains  []string  `mapstructure:"domains"`
	Email    string    `mapstructure:"email"`
	CacheDir string    `mapstructure:"cache_dir"`
	Staging  bool      `mapstructure:"staging"` // Use Let's Encrypt staging
	DNS      DNSConfig `mapstructure:"dns"`
}

// DNSConfig holds Azure DNS settings for DNS-01 challenges.
type DNSConfig struct {
	SubscriptionID    string `mapstructure:"subscription_id"`
	ResourceGroupName string `mapstructure:"resource_group_name"`
	ClientID          string `mapstructure:"client_id"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"` // empty disables tracing
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	Environment string  `mapstructure:"environment"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 90*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_upload_bytes", 32<<20)
	viper.SetDefault("server.frontend_enabled", true)
	viper.SetDefault("server.rate_limit.enabled", false)
	viper.SetDefault("server.rate_limit.rate", 100.0)
	viper.SetDefault("server.rate_limit.burst", 200)
	viper.SetDefault("server.cors.allowed_origins", []string{})

	// Session defaults
	viper.SetDefault("session.cache_size", 256)
	viper.SetDefault("session.journal_capacity", 4096)
	viper.SetDefault("session.min_zoom", 3.0)
	viper.SetDefault("session.max_zoom", 16.0)
	viper.SetDefault("session.address_zoom", 15.0)
	viper.SetDefault("session.animation_window", 1500*time.Millisecond)

	// Storage defaults
	viper.SetDefault("storage.type", "none")
	viper.SetDefault("storage.local_path", "./data")
	viper.SetDefault("storage.sync_interval", time.Duration(0))
	viper.SetDefault("storage.http.index_file", "index.txt")
	viper.SetDefault("storage.http.timeout", 5*time.Minute)

	// Import defaults
	viper.SetDefault("import.path", "")
	viper.SetDefault("import.debounce", 500*time.Millisecond)

	// Extraction defaults
	viper.SetDefault("extraction.base_url", "http://localhost:8000")
	viper.SetDefault("extraction.timeout", 60*time.Second)
	viper.SetDefault("extraction.rate_limit", 0.0)

	// Geocoder defaults
	viper.SetDefault("geocoder.enabled", true)
	viper.SetDefault("geocoder.base_url", "https://nominatim.openstreetmap.org")
	viper.SetDefault("geocoder.user_agent", "mapcore")
	viper.SetDefault("geocoder.rate_limit", 1.0)
	viper.SetDefault("geocoder.burst", 1)
	viper.SetDefault("geocoder.cache_size", 512)
	viper.SetDefault("geocoder.timeout", 10*time.Second)

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cache_dir", "./.certmagic")
	viper.SetDefault("tls.staging", false)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.path", "/metrics")

	// Tracing defaults
	viper.SetDefault("tracing.endpoint", "")
	viper.SetDefault("tracing.insecure", true)
	viper.SetDefault("tracing.sample_ratio", 1.0)
	viper.SetDefault("tracing.environment", "development")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/mapcore")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	if c.TLS.Enabled {
		if len(c.TLS.Domains) == 0 {
			return fmt.Errorf("TLS enabled but no domains specified")
		}
		if c.TLS.Email == "" {
			return fmt.Errorf("TLS enabled but no email specified")
		}
	}

	s := c.Session
	if s.MinZoom < 0 || s.MaxZoom > 24 || s.MinZoom > s.MaxZoom {
		return fmt.Errorf("invalid zoom bounds: [%g, %g]", s.MinZoom, s.MaxZoom)
	}
	if s.AddressZoom < s.MinZoom || s.AddressZoom > s.MaxZoom {
		return fmt.Errorf("address zoom %g outside [%g, %g]", s.AddressZoom, s.MinZoom, s.MaxZoom)
	}

	if c.Extraction.BaseURL == "" {
		return fmt.Errorf("extraction base URL is required")
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be between 0 and 1")
	}

	switch c.Storage.Type {
	case "none":
	case "local":
		if c.Storage.LocalPath == "" {
			return fmt.Errorf("local storage path is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("S3 region is required")
		}
	case "azure":
		if c.Storage.Azure.Container == "" {
			return fmt.Errorf("azure container is required")
		}
		if c.Storage.Azure.AccountName == "" && c.Storage.Azure.ConnectionString == "" {
			return fmt.Errorf("azure account name or connection string is required")
		}
	case "http":
		if c.Storage.HTTP.BaseURL == "" {
			return fmt.Errorf("HTTP base URL is required")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	if c.Storage.Type != "none" && c.Storage.Type != "local" && c.Storage.LocalPath == "" {
		return fmt.Errorf("local path is required to cache %s downloads", c.Storage.Type)
	}

	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsAddress returns the metrics listener address.
func (c *Config) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Metrics.Port)
}
