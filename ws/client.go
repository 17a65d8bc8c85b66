package ws

import (
	"crypto/tls"

	"github.com/luciancaetano/netmon"
	"github.com/luciancaetano/netmon/internal/tlsconfig"
	"github.com/luciancaetano/netmon/internal/websocket"
)

// ClientConfig describes the remote endpoint and optional collaborators of a
// client.
type ClientConfig = websocket.ClientConfig

// NewClient creates an asynchronous WebSocket client. It performs no I/O until
// Connect is called.
//
// Example:
//
//	trust, err := ws.LoadTrustStore("cacert.pem")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := ws.NewClient(ws.NewClientConfig("ltnm.learncppthroughprojects.com", "/echo", "443", trust))
func NewClient(cfg *ClientConfig) netmon.WebSocketClient {
	return websocket.NewClient(cfg)
}

// NewClientConfig returns a client configuration for wss://host:port/path
// verified against trust. Optional collaborators can be set on the result.
func NewClientConfig(host, path, port string, trust *tls.Config) *ClientConfig {
	return websocket.DefaultClientConfig(host, path, port, trust)
}

// LoadTrustStore builds a TLS client configuration trusting the certificates
// in the PEM bundle at caFile.
func LoadTrustStore(caFile string) (*tls.Config, error) {
	return tlsconfig.LoadTrustStore(caFile)
}
