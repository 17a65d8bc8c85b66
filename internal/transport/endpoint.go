package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrNoAddresses is returned when a host resolves to nothing or Connect is
// called with an empty address list.
var ErrNoAddresses = errors.New("no addresses")

// Endpoint resolves hosts and opens TCP connections.
type Endpoint struct {
	Resolver *net.Resolver
	Dialer   *net.Dialer
}

// NewEndpoint returns an Endpoint using the system resolver and a dialer with
// TCP keep-alive enabled.
func NewEndpoint() *Endpoint {
	return &Endpoint{
		Resolver: net.DefaultResolver,
		Dialer: &net.Dialer{
			KeepAlive: 30 * time.Second,
		},
	}
}

// Resolve looks up host and returns one "ip:port" address per result, in the
// order the resolver returned them. port may be numeric or a service name.
func (e *Endpoint) Resolve(ctx context.Context, host, port string) ([]string, error) {
	portNum, err := e.Resolver.LookupPort(ctx, "tcp", port)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", port, err)
	}

	ips, err := e.Resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w for host %q", ErrNoAddresses, host)
	}

	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, net.JoinHostPort(ip, fmt.Sprint(portNum)))
	}
	return addrs, nil
}

// Connect dials addrs in order and returns the first established connection.
// If every attempt fails, the last error is returned.
func (e *Endpoint) Connect(ctx context.Context, addrs []string) (net.Conn, error) {
	if len(addrs) == 0 {
		return nil, ErrNoAddresses
	}

	var lastErr error
	for _, addr := range addrs {
		conn, err := e.Dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}
