package netmon

import "context"

// ConnectHandler receives the outcome of the whole handshake chain started by
// WebSocketClient.Connect. It is invoked exactly once.
type ConnectHandler = func(err error)

// MessageHandler receives every text message read from the connection.
//
// It is persistent: it is invoked once per received message until the receive
// loop terminates, at which point it is invoked a final time with a non-nil
// error and an empty message.
type MessageHandler = func(err error, message string)

// SendHandler receives the outcome of a single Send. It is invoked exactly once.
type SendHandler = func(err error)

// CloseHandler receives the outcome of Close. It is invoked exactly once.
type CloseHandler = func(err error)

// WebSocketClient defines an asynchronous, TLS-secured WebSocket client bound to a
// single remote endpoint.
//
// None of the methods block and none of them invoke the supplied handler before
// returning. Handlers run on the client's execution context, one at a time, and
// must not block.
//
// Example usage:
//
//	import "github.com/luciancaetano/netmon/ws"
//
//	trust, _ := ws.LoadTrustStore("cacert.pem")
//	client := ws.NewClient(ws.NewClientConfig("ltnm.learncppthroughprojects.com", "/echo", "443", trust))
//
//	client.Connect(func(err error) {
//	    if err != nil {
//	        log.Printf("connect failed: %v", err)
//	        return
//	    }
//	    client.Send("Hello WebSocket", func(err error) {})
//	}, func(err error, msg string) {
//	    log.Printf("received %q", msg)
//	})
type WebSocketClient interface {
	// ID returns the unique identifier of this client instance.
	//
	// The ID is generated at construction and is attached to every log entry
	// produced by the client.
	ID() string

	// State returns the current position of the connection in its lifecycle.
	State() ConnectionState

	// Connect resolves the configured host, opens a TCP connection, performs the
	// TLS handshake and then the WebSocket upgrade.
	//
	// onConnect is invoked once with the outcome. On success the client starts a
	// persistent receive loop that invokes onReceive for every message.
	//
	// A client connects at most once. Calling Connect again reports
	// ErrAlreadyConnected to the new onConnect, or ErrAlreadyClosed once Close
	// has started, without touching the network.
	Connect(onConnect ConnectHandler, onReceive MessageHandler)

	// Send queues a text message for delivery.
	//
	// Messages are written one at a time in the order Send was called. onSent is
	// invoked once the message has been handed to the secure session, or with
	// ErrNotConnected if the client is not connected.
	Send(message string, onSent SendHandler)

	// Close shuts the connection down in reverse order of establishment
	// (WebSocket close frame, TLS close_notify, TCP close).
	//
	// Close is valid in every state and always leaves the client in StateClosed.
	// Calling it again reports ErrAlreadyClosed.
	Close(onClosed CloseHandler)
}

// WebsocketServer defines the local TLS WebSocket endpoint used to exercise the
// client: an echo route and a STOMP authentication route.
//
// Example usage:
//
//	server := ws.NewServer(ws.NewServerConfig("127.0.0.1:8443", tlsConfig, ws.DefaultRateLimitConfig(), nil))
//	server.Start(ctx)
//	defer server.Stop(ctx)
type WebsocketServer interface {
	// Start binds the listening address and begins accepting connections.
	//
	// Returns an error if the server is already running or if there's a problem
	// binding to the network address.
	Start(ctx context.Context) error

	// Stop gracefully stops the server and closes all peer connections.
	Stop(ctx context.Context) error

	// Addr returns the bound listening address. It is empty until Start succeeds.
	Addr() string
}

// Peer represents a connection accepted by a WebsocketServer.
type Peer interface {
	// ID returns a unique identifier for the connected peer.
	ID() string

	// RemoteAddr returns the peer's remote network address.
	RemoteAddr() string

	// Context returns the peer's lifecycle context. It is cancelled when the
	// connection closes.
	Context() context.Context

	// Send queues a text message for the peer.
	Send(ctx context.Context, message string) error

	// Close closes the peer connection with a normal closure code.
	Close(ctx context.Context) error

	// IsAlive returns true if the connection is still active.
	IsAlive() bool
}
