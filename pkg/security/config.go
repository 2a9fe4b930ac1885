// Package security holds the TLS and mTLS configuration types shared by
// the metrics endpoint and the Elasticsearch client.
package security

// Config is the deployment-wide security block.
type Config struct {
	TLS TLSConfig `json:"tls,omitempty"`
}

// TLSConfig groups the server and client sides. The server side covers
// the scrape endpoint; the client side covers outbound cluster calls.
type TLSConfig struct {
	Server ServerTLSConfig `json:"server,omitempty"`
	Client ClientTLSConfig `json:"client,omitempty"`
}

// ServerTLSConfig configures the TLS listener.
type ServerTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
	// MinVersion accepts "1.2" or "1.3"; anything else falls back to 1.2.
	MinVersion string `json:"min_version,omitempty"`

	MTLS ServerMTLSConfig `json:"mtls,omitempty"`
}

// ServerMTLSConfig turns on client certificate validation.
type ServerMTLSConfig struct {
	Enabled bool `json:"enabled"`
	// ClientCAFiles are the CAs trusted to sign client certificates.
	ClientCAFiles []string `json:"client_ca_files,omitempty"`
	// RequireClientCert rejects connections without a certificate;
	// when false a presented certificate is verified but not demanded.
	RequireClientCert bool `json:"require_client_cert,omitempty"`
	// AllowedClientCNs, when set, restricts clients to these common names.
	AllowedClientCNs []string `json:"allowed_client_cns,omitempty"`
}

// ClientTLSConfig configures outbound TLS. The system CA bundle is
// always trusted; CAFiles add internal CAs on top of it.
type ClientTLSConfig struct {
	CAFiles    []string `json:"ca_files,omitempty"`
	MinVersion string   `json:"min_version,omitempty"`
	// InsecureSkipVerify disables certificate checks. Dev and test only.
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`

	MTLS ClientMTLSConfig `json:"mtls,omitempty"`
}

// ClientMTLSConfig makes the client present its own certificate.
type ClientMTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}
