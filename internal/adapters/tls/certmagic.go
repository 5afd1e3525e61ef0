// Package tls serves the map session over HTTPS with certificates managed
// by CertMagic.
package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/libdns/azure"
)

// Config holds TLS configuration.
type Config struct {
	Enabled  bool
	Domains  []string
	Email    string
	CacheDir string
	Staging  bool // Use Let's Encrypt staging environment
	DNS      DNSConfig
}

// DNSConfig holds Azure DNS provider configuration for DNS-01 challenges.
// Without a subscription the HTTP-01 and TLS-ALPN-01 challenges are used.
type DNSConfig struct {
	SubscriptionID    string
	ResourceGroupName string
	ClientID          string // User Assigned Managed Identity client ID (optional)
}

// UsesDNS reports whether a DNS-01 solver is configured.
func (c DNSConfig) UsesDNS() bool {
	return c.SubscriptionID != "" && c.ResourceGroupName != ""
}

// Validate checks the settings needed to obtain certificates.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Domains) == 0 {
		return errors.New("TLS enabled but no domains specified")
	}
	if c.Email == "" {
		return errors.New("TLS enabled but no email specified")
	}
	if c.DNS.SubscriptionID != "" && c.DNS.ResourceGroupName == "" {
		return errors.New("DNS-01 challenge requires a resource group")
	}
	return nil
}

// Server wraps an HTTP server with automatic TLS.
type Server struct {
	config Config
	magic  *certmagic.Config
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a server for handler. With TLS disabled it serves plain
// HTTP.
func NewServer(cfg Config, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config: cfg,
		logger: logger,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	if !cfg.Enabled {
		return s, nil
	}

	s.magic = newMagic(cfg)
	tlsConfig := s.magic.TLSConfig()
	tlsConfig.NextProtos = append([]string{"h2", "http/1.1"}, tlsConfig.NextProtos...)
	s.server.TLSConfig = tlsConfig
	return s, nil
}

// newMagic builds an isolated CertMagic config so that tests and multiple
// servers do not share the package defaults.
func newMagic(cfg Config) *certmagic.Config {
	var magic *certmagic.Config
	cache := certmagic.NewCache(certmagic.CacheOptions{
		GetConfigForCert: func(certmagic.Certificate) (*certmagic.Config, error) {
			return magic, nil
		},
	})

	template := certmagic.Config{}
	if cfg.CacheDir != "" {
		template.Storage = &certmagic.FileStorage{Path: cfg.CacheDir}
	}
	magic = certmagic.New(cache, template)

	issuer := certmagic.ACMEIssuer{
		CA:     certmagic.LetsEncryptProductionCA,
		Email:  cfg.Email,
		Agreed: true,
	}
	if cfg.Staging {
		issuer.CA = certmagic.LetsEncryptStagingCA
	}
	if cfg.DNS.UsesDNS() {
		issuer.DNS01Solver = &certmagic.DNS01Solver{
			DNSManager: certmagic.DNSManager{
				DNSProvider: &azure.Provider{
					SubscriptionId:    cfg.DNS.SubscriptionID,
					ResourceGroupName: cfg.DNS.ResourceGroupName,
					ClientId:          cfg.DNS.ClientID, // Empty = System Assigned Managed Identity
				},
			},
		}
	}
	magic.Issuers = []certmagic.Issuer{certmagic.NewACMEIssuer(magic, issuer)}
	return magic
}

// ManageCertificates obtains or renews certificates for the configured
// domains and keeps them renewed in the background.
func (s *Server) ManageCertificates(ctx context.Context) error {
	if s.magic == nil {
		return nil
	}
	s.logger.Info("obtaining certificates", "domains", s.config.Domains, "dns01", s.config.DNS.UsesDNS())
	if err := s.magic.ManageSync(ctx, s.config.Domains); err != nil {
		return fmt.Errorf("managing certificates: %w", err)
	}
	s.logger.Info("certificates obtained", "domains", s.config.Domains)
	return nil
}

// ListenAndServe blocks serving on addr. It returns nil after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr

	var err error
	if s.magic == nil {
		s.logger.Info("starting HTTP server (TLS disabled)", "address", addr)
		err = s.server.ListenAndServe()
	} else {
		s.logger.Info("starting HTTPS server", "address", addr, "domains", s.config.Domains)
		err = s.server.ListenAndServeTLS("", "")
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// TLSConfig returns the TLS configuration, nil when TLS is disabled.
func (s *Server) TLSConfig() *tls.Config {
	return s.server.TLSConfig
}
