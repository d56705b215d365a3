package network

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/cockroachdb/errors"
)

// TLSConfig holds a listener's TLS settings; cmd/telemqd copies the
// certificate paths decoded by internal/config into DefaultTLSConfig()'s
// result before calling Build to get a *tls.Config ready for tls.Listen.
type TLSConfig struct {
	CertFile   string
	KeyFile    string
	CAFile     string
	ClientAuth tls.ClientAuthType
	MinVersion uint16
}

func DefaultTLSConfig() *TLSConfig {
	return &TLSConfig{
		ClientAuth: tls.NoClientCert,
		MinVersion: tls.VersionTLS12,
	}
}

func (tc *TLSConfig) Build() (*tls.Config, error) {
	if tc.CertFile == "" || tc.KeyFile == "" {
		return nil, ErrInvalidTLSConfig
	}

	cert, err := tls.LoadX509KeyPair(tc.CertFile, tc.KeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "load certificate")
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tc.ClientAuth,
		MinVersion:   tc.MinVersion,
	}

	if tc.CAFile != "" {
		caCert, err := os.ReadFile(tc.CAFile)
		if err != nil {
			return nil, errors.Wrap(err, "read CA file")
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("network: failed to parse CA certificate")
		}

		config.ClientCAs = pool
		if tc.ClientAuth == tls.NoClientCert {
			config.ClientAuth = tls.RequireAndVerifyClientCert
		}
	}

	return config, nil
}

// GetPeerCommonName returns the CN of the client certificate presented on
// a mutually-authenticated TLS connection, used by an authenticator that
// wants to fold certificate identity into spec.md §4.6's ConnectRequest.
func GetPeerCommonName(conn *Connection) (string, bool) {
	if !conn.IsTLS() {
		return "", false
	}
	state, ok := conn.TLSConnectionState()
	if !ok || len(state.PeerCertificates) == 0 {
		return "", false
	}
	return state.PeerCertificates[0].Subject.CommonName, true
}
