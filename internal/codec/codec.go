package codec

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"
)

// DefaultMaxMessageSize caps the size of a single received message.
const DefaultMaxMessageSize = 1 << 20 // 1 MiB

// closeTimeout bounds writing the close frame when ctx carries no deadline.
const closeTimeout = time.Second

// Conn is an established WebSocket session exchanging text messages.
//
// WriteText must not be called concurrently with itself, nor ReadText with
// itself; Close may be called concurrently with either.
type Conn interface {
	// WriteText frames payload as a single text message and writes it.
	WriteText(ctx context.Context, payload string) error

	// ReadText blocks until the next complete data message arrives.
	ReadText(ctx context.Context) (string, error)

	// Close sends a normal-closure close frame. It does not close the
	// underlying secure session.
	Close(ctx context.Context) error
}

// Handshaker performs the WebSocket upgrade over an already secured connection.
type Handshaker interface {
	Handshake(ctx context.Context, conn net.Conn, host, path string) (Conn, error)
}

// Options configure a Handshaker.
type Options struct {
	// MaxMessageSize caps received messages; 0 uses DefaultMaxMessageSize.
	MaxMessageSize int64
	// Subprotocols are offered in the upgrade request.
	Subprotocols []string
}

// Names lists the codecs accepted by ByName.
var Names = []string{"gorilla", "coder"}

// ByName returns the codec registered under name. An empty name selects gorilla.
func ByName(name string, opts Options) (Handshaker, error) {
	switch name {
	case "", "gorilla":
		return NewGorilla(opts), nil
	case "coder":
		return NewCoder(opts), nil
	default:
		return nil, fmt.Errorf("unknown codec %q (want one of %v)", name, Names)
	}
}

// upgradeURL builds the wss:// URL of the upgrade request.
func upgradeURL(host, path string) string {
	if path == "" {
		path = "/"
	}
	u := url.URL{Scheme: "wss", Host: host, Path: path}
	return u.String()
}

// onceConn hands out a pre-established connection to a dial function exactly
// once, so HTTP-based upgraders never open a connection of their own.
type onceConn struct {
	conn net.Conn
}

func (o *onceConn) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	if o.conn == nil {
		return nil, fmt.Errorf("connection to %s already consumed", addr)
	}
	c := o.conn
	o.conn = nil
	return c, nil
}

func closeDeadline(ctx context.Context) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(closeTimeout)
}
