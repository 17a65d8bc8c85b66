package e2e_test

import (
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/luciancaetano/netmon"
	"github.com/luciancaetano/netmon/internal/tlsconfig"
	"github.com/luciancaetano/netmon/ws"
)

const waitTimeout = 5 * time.Second

// startServer runs a local endpoint on a random port and returns it with a
// trust store for its certificate.
func startServer(t *testing.T, credentials map[string]string) (netmon.WebsocketServer, *tls.Config) {
	t.Helper()

	certPEM, keyPEM, err := tlsconfig.GenerateSelfSigned()
	if err != nil {
		t.Fatalf("Failed to generate certificate: %v", err)
	}
	serverTLS, err := tlsconfig.ServerConfigFromPEM(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("Failed to load certificate: %v", err)
	}
	trust, err := tlsconfig.TrustStoreFromPEM(certPEM)
	if err != nil {
		t.Fatalf("Failed to build trust store: %v", err)
	}

	cfg := ws.NewServerConfig("127.0.0.1:0", serverTLS, ws.DefaultRateLimitConfig(), ws.AllOrigins())
	cfg.Credentials = credentials

	server := ws.NewServer(cfg)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		server.Stop(stopCtx)
	})
	return server, trust
}

// newClient returns a client for path on server verified against trust.
func newClient(t *testing.T, server netmon.WebsocketServer, path string, trust *tls.Config) netmon.WebSocketClient {
	t.Helper()

	host, port, err := net.SplitHostPort(server.Addr())
	if err != nil {
		t.Fatalf("Bad server address %q: %v", server.Addr(), err)
	}
	return ws.NewClient(ws.NewClientConfig(host, path, port, trust))
}

// session records the outcome of a connect, send, receive, close exchange.
type session struct {
	connected    bool
	sent         bool
	received     bool
	disconnected bool
	connectErr   error
	reply        string
}

// exchange connects, sends message, waits for the first reply and closes.
func exchange(t *testing.T, client netmon.WebSocketClient, message string) session {
	t.Helper()

	var s session
	connected := make(chan error, 1)
	sent := make(chan error, 1)
	replies := make(chan string, 1)
	closed := make(chan error, 1)

	client.Connect(func(err error) {
		connected <- err
		if err == nil {
			client.Send(message, func(err error) { sent <- err })
		}
	}, func(err error, msg string) {
		if err != nil {
			return
		}
		select {
		case replies <- msg:
		default:
		}
	})

	select {
	case s.connectErr = <-connected:
		s.connected = s.connectErr == nil
	case <-time.After(waitTimeout):
		t.Fatal("Timeout waiting for connect")
	}

	if s.connected {
		select {
		case err := <-sent:
			s.sent = err == nil
		case <-time.After(waitTimeout):
			t.Fatal("Timeout waiting for send")
		}
	}

	if s.sent {
		select {
		case s.reply = <-replies:
			s.received = true
		case <-time.After(waitTimeout):
			t.Fatal("Timeout waiting for reply")
		}
	}

	client.Close(func(err error) { closed <- err })
	select {
	case err := <-closed:
		s.disconnected = err == nil
	case <-time.After(waitTimeout):
		t.Fatal("Timeout waiting for close")
	}
	return s
}
