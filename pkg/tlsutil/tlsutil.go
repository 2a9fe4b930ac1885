// Package tlsutil builds tls.Config values from the platform security
// settings, for both the HTTP surfaces and the Elasticsearch client.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"slices"

	"github.com/eijnar/es-daily-ingest-calculator/errors"
	"github.com/eijnar/es-daily-ingest-calculator/pkg/security"
)

// LoadServerTLSConfig builds the server-side tls.Config. Returns nil when
// TLS is disabled so callers can pass it straight to http.Server.
func LoadServerTLSConfig(cfg security.ServerTLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerTLSConfig", "load certificate")
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}, nil
}

// LoadClientTLSConfig builds the client-side tls.Config. The system CA
// bundle is always trusted; CAFiles add extra CAs on top, which covers
// clusters fronted by an internal CA.
func LoadClientTLSConfig(cfg security.ClientTLSConfig) (*tls.Config, error) {
	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		// no system pool on this platform; trust only the configured CAs
		rootCAs = x509.NewCertPool()
	}
	if err := appendCAsFromFiles(rootCAs, cfg.CAFiles, "LoadClientTLSConfig", "CA"); err != nil {
		return nil, err
	}

	return &tls.Config{
		RootCAs:            rootCAs,
		MinVersion:         parseTLSVersion(cfg.MinVersion),
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}, nil
}

// LoadServerTLSConfigWithMTLS extends the server config with client
// certificate verification when mTLS is enabled.
func LoadServerTLSConfigWithMTLS(cfg security.ServerTLSConfig, mtlsCfg security.ServerMTLSConfig) (*tls.Config, error) {
	tlsConfig, err := LoadServerTLSConfig(cfg)
	if err != nil || !mtlsCfg.Enabled {
		return tlsConfig, err
	}
	if err := applyMTLSConfig(tlsConfig, mtlsCfg); err != nil {
		return nil, err
	}
	return tlsConfig, nil
}

// LoadClientTLSConfigWithMTLS adds the client certificate to the base
// client config when mTLS is enabled.
func LoadClientTLSConfigWithMTLS(cfg security.ClientTLSConfig, mtlsCfg security.ClientMTLSConfig) (*tls.Config, error) {
	tlsConfig, err := LoadClientTLSConfig(cfg)
	if err != nil || !mtlsCfg.Enabled {
		return tlsConfig, err
	}

	clientCert, err := tls.LoadX509KeyPair(mtlsCfg.CertFile, mtlsCfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfigWithMTLS", "load client certificate")
	}
	tlsConfig.Certificates = []tls.Certificate{clientCert}
	return tlsConfig, nil
}

// parseTLSVersion maps a version string to its crypto/tls constant.
// Anything other than "1.3" falls back to TLS 1.2.
func parseTLSVersion(version string) uint16 {
	if version == "1.3" {
		return tls.VersionTLS13
	}
	return tls.VersionTLS12
}

// appendCAsFromFiles loads each PEM file into the pool. The kind label
// only shapes the error message ("CA" or "client CA").
func appendCAsFromFiles(pool *x509.CertPool, files []string, method, kind string) error {
	for _, caFile := range files {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return errors.WrapFatal(err, "tlsutil", method, fmt.Sprintf("read %s file %s", kind, caFile))
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return errors.WrapFatal(fmt.Errorf("invalid PEM data"), "tlsutil", method,
				fmt.Sprintf("parse %s certificate from %s", kind, caFile))
		}
	}
	return nil
}

// applyMTLSConfig wires client CAs, the client-auth policy, and the
// optional CN allowlist into an existing tls.Config.
func applyMTLSConfig(tlsConfig *tls.Config, mtlsCfg security.ServerMTLSConfig) error {
	clientCAs := x509.NewCertPool()
	if err := appendCAsFromFiles(clientCAs, mtlsCfg.ClientCAFiles, "applyMTLSConfig", "client CA"); err != nil {
		return err
	}
	tlsConfig.ClientCAs = clientCAs

	tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	if mtlsCfg.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	if len(mtlsCfg.AllowedClientCNs) > 0 {
		tlsConfig.VerifyPeerCertificate = func(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
			return verifyAllowedClientCN(verifiedChains, mtlsCfg.AllowedClientCNs)
		}
	}
	return nil
}

// verifyAllowedClientCN accepts only leaf certificates whose CN is in the
// allowlist.
func verifyAllowedClientCN(chains [][]*x509.Certificate, allowedCNs []string) error {
	if len(chains) == 0 {
		return fmt.Errorf("no verified certificate chains")
	}
	cn := chains[0][0].Subject.CommonName
	if slices.Contains(allowedCNs, cn) {
		return nil
	}
	return fmt.Errorf("client certificate CN '%s' not in allowed list", cn)
}
