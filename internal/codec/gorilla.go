package codec

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// Gorilla is a Handshaker backed by github.com/gorilla/websocket.
type Gorilla struct {
	opts Options
}

// NewGorilla returns a gorilla-backed Handshaker.
func NewGorilla(opts Options) *Gorilla {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Gorilla{opts: opts}
}

// Handshake sends the upgrade request over conn and validates the response.
func (g *Gorilla) Handshake(ctx context.Context, conn net.Conn, host, path string) (Conn, error) {
	once := &onceConn{conn: conn}

	// The TLS handshake is already done, so the dialer only hands conn over.
	dialer := websocket.Dialer{
		Proxy:             nil,
		NetDialTLSContext: once.dial,
		Subprotocols:      g.opts.Subprotocols,
	}

	ws, resp, err := dialer.DialContext(ctx, upgradeURL(host, path), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("upgrade rejected (status %d): %w", resp.StatusCode, err)
		}
		return nil, err
	}
	ws.SetReadLimit(g.opts.MaxMessageSize)

	return &gorillaConn{ws: ws}, nil
}

type gorillaConn struct {
	ws *websocket.Conn
}

func (c *gorillaConn) WriteText(ctx context.Context, payload string) error {
	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetWriteDeadline(deadline)
		defer c.ws.SetWriteDeadline(time.Time{})
	}
	return c.ws.WriteMessage(websocket.TextMessage, []byte(payload))
}

func (c *gorillaConn) ReadText(ctx context.Context) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetReadDeadline(deadline)
		defer c.ws.SetReadDeadline(time.Time{})
	}

	// Control frames are handled inside ReadMessage; binary messages are
	// delivered as-is.
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *gorillaConn) Close(ctx context.Context) error {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := c.ws.WriteControl(websocket.CloseMessage, message, closeDeadline(ctx))
	if err == websocket.ErrCloseSent {
		return nil
	}
	return err
}
