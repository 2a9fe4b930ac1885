package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eijnar/es-daily-ingest-calculator/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedCert generates a throwaway certificate with the given CN,
// usable for both server and client auth.
func selfSignedCert(t *testing.T, cn string) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   cn,
			Organization: []string{"Acme Platform Ops"},
		},
		NotBefore: now,
		NotAfter:  now.Add(24 * time.Hour),

		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})

	return certPEM, keyPEM
}

// writeCertFiles drops a cert, key, and CA file into a temp dir. The CA is
// the cert itself, which is enough for these config-shape tests.
func writeCertFiles(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()

	tmpDir := t.TempDir()

	certPEM, keyPEM := selfSignedCert(t, "esdic.internal")

	certFile = filepath.Join(tmpDir, "cert.pem")
	keyFile = filepath.Join(tmpDir, "key.pem")
	caFile = filepath.Join(tmpDir, "ca.pem")

	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0644))

	return certFile, keyFile, caFile
}

func TestLoadServerTLSConfig(t *testing.T) {
	certFile, keyFile, _ := writeCertFiles(t)

	tests := map[string]struct {
		cfg     security.ServerTLSConfig
		wantNil bool
		wantErr bool
	}{
		"disabled": {
			cfg:     security.ServerTLSConfig{Enabled: false},
			wantNil: true,
		},
		"enabled with TLS 1.3": {
			cfg: security.ServerTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.3"},
		},
		"enabled with TLS 1.2": {
			cfg: security.ServerTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.2"},
		},
		"missing cert file": {
			cfg:     security.ServerTLSConfig{Enabled: true, CertFile: "/nonexistent/cert.pem", KeyFile: keyFile},
			wantNil: true,
			wantErr: true,
		},
		"missing key file": {
			cfg:     security.ServerTLSConfig{Enabled: true, CertFile: certFile, KeyFile: "/nonexistent/key.pem"},
			wantNil: true,
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := LoadServerTLSConfig(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got, "disabled TLS yields a nil config")
				return
			}
			require.NotNil(t, got)
			assert.NotEmpty(t, got.Certificates)
			assert.Equal(t, parseTLSVersion(tt.cfg.MinVersion), got.MinVersion)
		})
	}
}

func TestLoadClientTLSConfig(t *testing.T) {
	_, _, caFile := writeCertFiles(t)

	tests := map[string]struct {
		cfg     security.ClientTLSConfig
		wantErr bool
		check   func(*testing.T, *tls.Config)
	}{
		"defaults": {
			cfg: security.ClientTLSConfig{},
			check: func(t *testing.T, tlsCfg *tls.Config) {
				assert.NotNil(t, tlsCfg.RootCAs, "system pool is always loaded")
				assert.Equal(t, uint16(tls.VersionTLS12), tlsCfg.MinVersion)
				assert.False(t, tlsCfg.InsecureSkipVerify)
			},
		},
		"additional internal CA": {
			cfg: security.ClientTLSConfig{CAFiles: []string{caFile}},
			check: func(t *testing.T, tlsCfg *tls.Config) {
				assert.NotNil(t, tlsCfg.RootCAs)
			},
		},
		"TLS 1.3 floor": {
			cfg: security.ClientTLSConfig{MinVersion: "1.3"},
			check: func(t *testing.T, tlsCfg *tls.Config) {
				assert.Equal(t, uint16(tls.VersionTLS13), tlsCfg.MinVersion)
			},
		},
		"insecure skip verify": {
			cfg: security.ClientTLSConfig{InsecureSkipVerify: true},
			check: func(t *testing.T, tlsCfg *tls.Config) {
				assert.True(t, tlsCfg.InsecureSkipVerify)
			},
		},
		"missing CA file": {
			cfg:     security.ClientTLSConfig{CAFiles: []string{"/nonexistent/ca.pem"}},
			wantErr: true,
		},
		"same CA listed twice": {
			cfg: security.ClientTLSConfig{CAFiles: []string{caFile, caFile}},
			check: func(t *testing.T, tlsCfg *tls.Config) {
				assert.NotNil(t, tlsCfg.RootCAs)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := LoadClientTLSConfig(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got)
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestParseTLSVersion(t *testing.T) {
	want := map[string]uint16{
		"1.3":     tls.VersionTLS13,
		"1.2":     tls.VersionTLS12,
		"":        tls.VersionTLS12,
		"invalid": tls.VersionTLS12,
		"1.1":     tls.VersionTLS12,
	}

	for version, expected := range want {
		t.Run(version, func(t *testing.T) {
			assert.Equal(t, expected, parseTLSVersion(version))
		})
	}
}

func TestLoadServerTLSConfigWithMTLS(t *testing.T) {
	certFile, keyFile, caFile := writeCertFiles(t)

	serverCfg := security.ServerTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile}

	t.Run("mtls disabled", func(t *testing.T) {
		tlsCfg, err := LoadServerTLSConfigWithMTLS(serverCfg, security.ServerMTLSConfig{})
		require.NoError(t, err)
		require.NotNil(t, tlsCfg)

		assert.Equal(t, tls.NoClientCert, tlsCfg.ClientAuth)
		assert.Nil(t, tlsCfg.ClientCAs)
	})

	t.Run("client cert required", func(t *testing.T) {
		mtlsCfg := security.ServerMTLSConfig{Enabled: true, ClientCAFiles: []string{caFile}, RequireClientCert: true}

		tlsCfg, err := LoadServerTLSConfigWithMTLS(serverCfg, mtlsCfg)
		require.NoError(t, err)

		assert.Equal(t, tls.RequireAndVerifyClientCert, tlsCfg.ClientAuth)
		assert.NotNil(t, tlsCfg.ClientCAs)
	})

	t.Run("client cert optional", func(t *testing.T) {
		mtlsCfg := security.ServerMTLSConfig{Enabled: true, ClientCAFiles: []string{caFile}, RequireClientCert: false}

		tlsCfg, err := LoadServerTLSConfigWithMTLS(serverCfg, mtlsCfg)
		require.NoError(t, err)

		assert.Equal(t, tls.VerifyClientCertIfGiven, tlsCfg.ClientAuth)
		assert.NotNil(t, tlsCfg.ClientCAs)
	})

	t.Run("CN allowlist installs a peer verifier", func(t *testing.T) {
		mtlsCfg := security.ServerMTLSConfig{
			Enabled: true, ClientCAFiles: []string{caFile}, RequireClientCert: true,
			AllowedClientCNs: []string{"esdic-admin", "esdic-exporter"},
		}

		tlsCfg, err := LoadServerTLSConfigWithMTLS(serverCfg, mtlsCfg)
		require.NoError(t, err)
		assert.NotNil(t, tlsCfg.VerifyPeerCertificate)
	})

	t.Run("missing client CA", func(t *testing.T) {
		mtlsCfg := security.ServerMTLSConfig{
			Enabled: true, ClientCAFiles: []string{"/nonexistent/ca.pem"}, RequireClientCert: true,
		}

		_, err := LoadServerTLSConfigWithMTLS(serverCfg, mtlsCfg)
		require.Error(t, err)
	})
}

func TestVerifyAllowedClientCN(t *testing.T) {
	parse := func(t *testing.T, cn string) *x509.Certificate {
		t.Helper()
		certPEM, _ := selfSignedCert(t, cn)
		block, _ := pem.Decode(certPEM)
		require.NotNil(t, block)
		cert, err := x509.ParseCertificate(block.Bytes)
		require.NoError(t, err)
		return cert
	}

	allowed := []string{"esdic-admin", "esdic-exporter"}

	t.Run("allowed CN", func(t *testing.T) {
		chains := [][]*x509.Certificate{{parse(t, "esdic-admin")}}
		assert.NoError(t, verifyAllowedClientCN(chains, allowed))
	})

	t.Run("unknown CN", func(t *testing.T) {
		chains := [][]*x509.Certificate{{parse(t, "rogue-client")}}
		err := verifyAllowedClientCN(chains, allowed)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not in allowed list")
	})

	t.Run("no verified chains", func(t *testing.T) {
		err := verifyAllowedClientCN(nil, allowed)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no verified certificate chains")
	})
}

func TestLoadClientTLSConfigWithMTLS(t *testing.T) {
	certFile, keyFile, caFile := writeCertFiles(t)

	clientCfg := security.ClientTLSConfig{CAFiles: []string{caFile}}

	t.Run("mtls disabled", func(t *testing.T) {
		tlsCfg, err := LoadClientTLSConfigWithMTLS(clientCfg, security.ClientMTLSConfig{})
		require.NoError(t, err)
		require.NotNil(t, tlsCfg)
		assert.Empty(t, tlsCfg.Certificates)
	})

	t.Run("mtls enabled", func(t *testing.T) {
		mtlsCfg := security.ClientMTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile}

		tlsCfg, err := LoadClientTLSConfigWithMTLS(clientCfg, mtlsCfg)
		require.NoError(t, err)

		require.Len(t, tlsCfg.Certificates, 1)
		assert.NotEmpty(t, tlsCfg.Certificates[0].Certificate)
	})

	t.Run("missing cert", func(t *testing.T) {
		mtlsCfg := security.ClientMTLSConfig{Enabled: true, CertFile: "/nonexistent/cert.pem", KeyFile: keyFile}

		_, err := LoadClientTLSConfigWithMTLS(clientCfg, mtlsCfg)
		require.Error(t, err)
	})

	t.Run("missing key", func(t *testing.T) {
		mtlsCfg := security.ClientMTLSConfig{Enabled: true, CertFile: certFile, KeyFile: "/nonexistent/key.pem"}

		_, err := LoadClientTLSConfigWithMTLS(clientCfg, mtlsCfg)
		require.Error(t, err)
	})
}
