package ws

import (
	"crypto/tls"

	"github.com/luciancaetano/netmon/internal/tlsconfig"
)

// SelfSignedTLS generates a throwaway certificate for hosts and returns the
// server configuration using it together with a client trust store that
// accepts it. With no hosts the certificate covers localhost and loopback.
func SelfSignedTLS(hosts ...string) (server *tls.Config, trust *tls.Config, err error) {
	certPEM, keyPEM, err := tlsconfig.GenerateSelfSigned(hosts...)
	if err != nil {
		return nil, nil, err
	}
	if server, err = tlsconfig.ServerConfigFromPEM(certPEM, keyPEM); err != nil {
		return nil, nil, err
	}
	if trust, err = tlsconfig.TrustStoreFromPEM(certPEM); err != nil {
		return nil, nil, err
	}
	return server, trust, nil
}
