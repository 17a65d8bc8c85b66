package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"syscall"

	"go.uber.org/multierr"
)

// SecureSession performs client-side TLS handshakes with a fixed trust
// configuration.
type SecureSession struct {
	config *tls.Config
}

// NewSecureSession returns a SecureSession verifying peers against config.
// A nil config verifies against the system roots.
func NewSecureSession(config *tls.Config) *SecureSession {
	if config == nil {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &SecureSession{config: config}
}

// Handshake wraps conn in a TLS client session and completes the handshake.
// serverName is used for SNI and certificate verification unless the trust
// configuration pins its own ServerName. On failure conn is left open; the
// caller owns it.
func (s *SecureSession) Handshake(ctx context.Context, conn net.Conn, serverName string) (net.Conn, error) {
	cfg := s.config.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

// Shutdown closes a secure session and its TCP connection, in that order.
//
// For a TLS connection a close_notify alert is sent first; the TCP connection
// is closed even if that fails. Either argument may be nil. Errors caused by a
// layer that was already closed, locally or by the peer, are ignored.
func Shutdown(secure, tcp net.Conn) error {
	var err error

	if tlsConn, ok := secure.(*tls.Conn); ok {
		err = multierr.Append(err, IgnoreClosed(tlsConn.CloseWrite()))
	}
	if tcp != nil {
		err = multierr.Append(err, IgnoreClosed(tcp.Close()))
	} else if secure != nil {
		err = multierr.Append(err, IgnoreClosed(secure.Close()))
	}
	return err
}

// IgnoreClosed drops errors reporting that a connection was already closed,
// locally or by the peer.
func IgnoreClosed(err error) error {
	switch {
	case errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET):
		return nil
	}
	return err
}
