// Package tlsconf builds crypto/tls configurations from profile SSL material.
package tlsconf

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/peternagy/tablemoins/internal/types"
)

// Build returns a tls.Config for ssl, or nil when SSL is disabled.
func Build(ssl types.SSLConfig, serverName string) (*tls.Config, error) {
	if !ssl.Enabled {
		return nil, nil
	}

	cfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: !ssl.RejectUnauthorized,
		MinVersion:         tls.VersionTLS12,
	}

	if ssl.CA != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(ssl.CA)) {
			return nil, errors.New("invalid CA certificate PEM")
		}
		cfg.RootCAs = pool
	}

	if ssl.Cert != "" || ssl.Key != "" {
		if ssl.Cert == "" || ssl.Key == "" {
			return nil, errors.New("client certificate and key must be provided together")
		}
		pair, err := tls.X509KeyPair([]byte(ssl.Cert), []byte(ssl.Key))
		if err != nil {
			return nil, fmt.Errorf("invalid client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{pair}
	}

	return cfg, nil
}
