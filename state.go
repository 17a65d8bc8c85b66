package netmon

// ConnectionState is the lifecycle position of a WebSocketClient.
//
// States only move forward. Any connecting stage may jump to StateFailed, and
// Close moves every state to StateClosed, through StateClosing when there is a
// live session to shut down.
type ConnectionState uint8

const (
	StateDisconnected ConnectionState = iota
	StateResolving
	StateTCPConnecting
	StateTLSHandshaking
	StateWSHandshaking
	StateConnected
	StateClosing
	StateClosed
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateResolving:
		return "resolving"
	case StateTCPConnecting:
		return "tcp_connecting"
	case StateTLSHandshaking:
		return "tls_handshaking"
	case StateWSHandshaking:
		return "ws_handshaking"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Connecting reports whether s is one of the handshake stages.
func (s ConnectionState) Connecting() bool {
	return s >= StateResolving && s <= StateWSHandshaking
}
