package codec

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/coder/websocket"
)

// Coder is a Handshaker backed by github.com/coder/websocket.
type Coder struct {
	opts Options
}

// NewCoder returns a coder-backed Handshaker.
func NewCoder(opts Options) *Coder {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Coder{opts: opts}
}

// Handshake runs the upgrade request through an http.Transport that reuses
// conn instead of dialing.
func (c *Coder) Handshake(ctx context.Context, conn net.Conn, host, path string) (Conn, error) {
	once := &onceConn{conn: conn}

	tr := &http.Transport{
		Proxy:             nil,
		DialTLSContext:    once.dial,
		ForceAttemptHTTP2: false,
	}
	opts := &websocket.DialOptions{
		HTTPClient:      &http.Client{Transport: tr},
		Subprotocols:    c.opts.Subprotocols,
		CompressionMode: websocket.CompressionDisabled,
	}

	ws, resp, err := websocket.Dial(ctx, upgradeURL(host, path), opts)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("upgrade rejected (status %d): %w", resp.StatusCode, err)
		}
		return nil, err
	}
	ws.SetReadLimit(c.opts.MaxMessageSize)

	return &coderConn{ws: ws}, nil
}

type coderConn struct {
	ws *websocket.Conn
}

func (c *coderConn) WriteText(ctx context.Context, payload string) error {
	return c.ws.Write(ctx, websocket.MessageText, []byte(payload))
}

func (c *coderConn) ReadText(ctx context.Context) (string, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Close runs the close handshake. coder/websocket closes the underlying
// connection once the handshake ends.
func (c *coderConn) Close(ctx context.Context) error {
	err := c.ws.Close(websocket.StatusNormalClosure, "")
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
