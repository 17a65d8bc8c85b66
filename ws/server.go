package ws

import (
	"crypto/tls"
	"net/http"

	"github.com/luciancaetano/netmon"
	"github.com/luciancaetano/netmon/internal/websocket"
)

type RateLimitConfig = websocket.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type OnConnectFn = websocket.OnConnectFn
type OnDisconnectFn = websocket.OnClientDisconnectFn

// ServerConfig configures the local TLS endpoint.
type ServerConfig = websocket.ServerConfig

// Routes served by the local endpoint.
const (
	EchoPath  = websocket.EchoPath
	StompPath = websocket.StompPath
)

// NewServer creates the local TLS endpoint serving EchoPath and StompPath.
//
// Example:
//
//	cfg := ws.NewServerConfig("127.0.0.1:8443", tlsConfig, ws.DefaultRateLimitConfig(), ws.AllOrigins())
//	cfg.Credentials = map[string]string{"guest": "guest"}
//	server := ws.NewServer(cfg)
func NewServer(cfg *ServerConfig) netmon.WebsocketServer {
	return websocket.NewServer(cfg)
}

// NewServerConfig returns a server configuration. Hooks, credentials and the
// logger can be set on the result.
func NewServerConfig(addr string, tlsConfig *tls.Config, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn) *ServerConfig {
	return &websocket.ServerConfig{
		Addr:            addr,
		TLSConfig:       tlsConfig,
		RateLimitConfig: rateLimitConfig,
		CheckOrigin:     checkOrigin,
	}
}

// AllOrigins returns the default checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
