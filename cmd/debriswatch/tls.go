package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/crypto/acme/autocert"
)

// newCertManager obtains certificates from Let's Encrypt for the configured domains
// only, answering TLS-ALPN challenges on the serving port.
func newCertManager(domains []string, cacheDir string, logger *slog.Logger) (*autocert.Manager, error) {
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating certificate cache %s: %w", cacheDir, err)
	}

	allowed := autocert.HostWhitelist(domains...)
	return &autocert.Manager{
		Cache:  autocert.DirCache(cacheDir),
		Prompt: autocert.AcceptTOS,
		HostPolicy: func(ctx context.Context, host string) error {
			if err := allowed(ctx, host); err != nil {
				logger.Warn("rejecting certificate request", "host", host)
				return err
			}
			return nil
		},
	}, nil
}

func tlsConfig(m *autocert.Manager) *tls.Config {
	cfg := m.TLSConfig()
	cfg.MinVersion = tls.VersionTLS12
	cfg.CurvePreferences = []tls.CurveID{tls.X25519, tls.CurveP256}
	return cfg
}
