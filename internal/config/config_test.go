package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func validConfig() Config {
	return Config{
		Server:     ServerConfig{Host: "0.0.0.0", Port: 8080},
		Session:    SessionConfig{MinZoom: 3, MaxZoom: 16, AddressZoom: 15},
		Storage:    StorageConfig{Type: "none"},
		Extraction: ExtractionConfig{BaseURL: "http://extract"},
		Metrics:    MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		Tracing:    TracingConfig{SampleRatio: 1},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"bad metrics port", func(c *Config) { c.Metrics.Port = 70000 }, "metrics port"},
		{"metrics disabled ignores port", func(c *Config) { c.Metrics = MetricsConfig{} }, ""},
		{"tls without domains", func(c *Config) { c.TLS = TLSConfig{Enabled: true, Email: "a@b.c"} }, "no domains"},
		{"tls without email", func(c *Config) { c.TLS = TLSConfig{Enabled: true, Domains: []string{"x"}} }, "no email"},
		{"inverted zoom", func(c *Config) { c.Session.MinZoom = 17 }, "zoom bounds"},
		{"address zoom outside", func(c *Config) { c.Session.AddressZoom = 20 }, "address zoom"},
		{"missing extraction", func(c *Config) { c.Extraction.BaseURL = "" }, "extraction"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "sample ratio"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "ftp" }, "unknown storage"},
		{"local without path", func(c *Config) { c.Storage.Type = "local" }, "local storage path"},
		{"s3 without bucket", func(c *Config) { c.Storage = StorageConfig{Type: "s3", LocalPath: "/tmp"} }, "bucket"},
		{"s3 without region", func(c *Config) {
			c.Storage = StorageConfig{Type: "s3", LocalPath: "/tmp", S3: S3Config{Bucket: "b"}}
		}, "region"},
		{"s3 without cache path", func(c *Config) {
			c.Storage = StorageConfig{Type: "s3", S3: S3Config{Bucket: "b", Region: "eu-west-1"}}
		}, "local path"},
		{"azure without account", func(c *Config) {
			c.Storage = StorageConfig{Type: "azure", LocalPath: "/tmp", Azure: AzureConfig{Container: "c"}}
		}, "account"},
		{"http without url", func(c *Config) { c.Storage = StorageConfig{Type: "http", LocalPath: "/tmp"} }, "base URL"},
		{"http", func(c *Config) {
			c.Storage = StorageConfig{Type: "http", LocalPath: "/tmp", HTTP: HTTPConfig{BaseURL: "https://x"}}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "mapcore.yaml")
	content := "server:\n  port: 9000\nsession:\n  animation_window: 2s\nimport:\n  path: /srv/regions\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAPCORE_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Session.AnimationWindow != 2*time.Second {
		t.Errorf("AnimationWindow = %v, want 2s", cfg.Session.AnimationWindow)
	}
	if cfg.Import.Path != "/srv/regions" {
		t.Errorf("Import.Path = %q", cfg.Import.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug from environment", cfg.Logging.Level)
	}
	if cfg.Storage.Type != "none" || cfg.Session.MaxZoom != 16 {
		t.Errorf("defaults not applied: storage=%q max_zoom=%g", cfg.Storage.Type, cfg.Session.MaxZoom)
	}
	if got := cfg.Server.Address(); got != "0.0.0.0:9000" {
		t.Errorf("Address() = %q", got)
	}
}
