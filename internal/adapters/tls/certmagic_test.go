package tls

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"valid", Config{Enabled: true, Domains: []string{"map.example.com"}, Email: "ops@example.com"}, false},
		{"no domains", Config{Enabled: true, Email: "ops@example.com"}, true},
		{"no email", Config{Enabled: true, Domains: []string{"map.example.com"}}, true},
		{
			"dns without resource group",
			Config{Enabled: true, Domains: []string{"a"}, Email: "e", DNS: DNSConfig{SubscriptionID: "sub"}},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDNSConfigUsesDNS(t *testing.T) {
	if (DNSConfig{}).UsesDNS() {
		t.Error("empty DNS config should not use DNS-01")
	}
	if !(DNSConfig{SubscriptionID: "s", ResourceGroupName: "rg"}).UsesDNS() {
		t.Error("subscription and resource group should enable DNS-01")
	}
}

func TestNewServerDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewServer(Config{}, http.NotFoundHandler(), logger)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if s.TLSConfig() != nil {
		t.Error("TLSConfig() should be nil when TLS is disabled")
	}
	if err := s.ManageCertificates(context.Background()); err != nil {
		t.Errorf("ManageCertificates() error = %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewServerEnabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewServer(Config{
		Enabled:  true,
		Domains:  []string{"map.example.com"},
		Email:    "ops@example.com",
		CacheDir: t.TempDir(),
		Staging:  true,
	}, http.NotFoundHandler(), logger)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	cfg := s.TLSConfig()
	if cfg == nil || cfg.GetCertificate == nil {
		t.Fatal("TLSConfig() should serve certificates on demand")
	}
	if cfg.NextProtos[0] != "h2" {
		t.Errorf("NextProtos = %v, want h2 first", cfg.NextProtos)
	}
}

func TestNewServerInvalid(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewServer(Config{Enabled: true}, http.NotFoundHandler(), logger); err == nil {
		t.Error("NewServer() should reject TLS without domains")
	}
}
