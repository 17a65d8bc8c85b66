package netmon

import "errors"

// Connection errors. Stage failures wrap one of these together with the cause,
// so callers match them with errors.Is.
var (
	ErrResolution        = errors.New("host resolution failed")
	ErrConnect           = errors.New("tcp connect failed")
	ErrTLSHandshake      = errors.New("tls handshake failed")
	ErrProtocolHandshake = errors.New("websocket handshake failed")
	ErrSend              = errors.New("send failed")
	ErrReceive           = errors.New("receive failed")
	ErrAlreadyConnected  = errors.New("already connected")
	ErrNotConnected      = errors.New("not connected")
	ErrClose             = errors.New("close failed")
	ErrAlreadyClosed     = errors.New("already closed")

	// ErrOperationAborted completes operations cancelled by Close.
	ErrOperationAborted = errors.New("operation aborted")
)

// Local endpoint error messages
const (
	ErrInvalidFrame         = "invalid stomp frame"
	ErrAuthenticationFailed = "authentication failed"
	ErrRateLimited          = "rate limit exceeded"
	ErrConnectionClosed     = "peer connection is closed"
	ErrContextCancelled     = "peer context cancelled"
	ErrServerAlreadyRunning = "server already running"
)
