package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/netmon"
	"github.com/luciancaetano/netmon/internal/stomp"
)

// Routes served by Server.
const (
	EchoPath  = "/echo"
	StompPath = "/stomp"
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
// It receives the HTTP request and returns true if the origin is allowed, false otherwise.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called when a new peer connects, after the WebSocket
// handshake completes and before its read loop starts.
//
// Note: This function is called synchronously during connection setup.
// Avoid long-running operations that could block the peer.
type OnConnectFn = func(peer netmon.Peer)

// OnClientDisconnectFn is invoked when a peer disconnects. voluntary is true
// when the peer closed the connection itself, and false for unexpected or
// server-initiated disconnects.
type OnClientDisconnectFn = func(peer netmon.Peer, voluntary bool)

// ServerConfig configures the local TLS endpoint.
type ServerConfig struct {
	Addr      string
	TLSConfig *tls.Config

	RateLimitConfig    *RateLimitConfig
	CheckOrigin        CheckOriginFn
	OnConnect          OnConnectFn
	OnClientDisconnect OnClientDisconnectFn

	// Credentials maps STOMP logins to passcodes. An empty map rejects
	// every login.
	Credentials map[string]string

	MaxMessageSize int64
	Logger         *zap.Logger
}

// RateLimitConfig defines rate limiting configuration for peers
type RateLimitConfig struct {
	// MessagesPerSecond defines how many messages a peer can send per second
	MessagesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// routeHandler processes one text message received on a route.
type routeHandler func(p *peer, message string)

// Server implements the netmon.WebsocketServer interface
type Server struct {
	cfg      *ServerConfig
	server   *http.Server
	listener net.Listener
	peers    sync.Map // map[string]*peer
	routes   map[string]routeHandler
	logger   *zap.Logger

	rateLimitConfig *RateLimitConfig

	mu           sync.RWMutex
	running      bool
	upgrader     websocket.Upgrader
	onConnect    OnConnectFn
	onDisconnect OnClientDisconnectFn
}

// NewServer creates a new local endpoint with the specified configuration.
//
// A nil RateLimitConfig uses DefaultRateLimitConfig(). A nil CheckOrigin
// applies gorilla's same-origin check.
func NewServer(cfg *ServerConfig) *Server {
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = DefaultRateLimitConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		cfg:             cfg,
		logger:          cfg.Logger,
		rateLimitConfig: cfg.RateLimitConfig,
		onConnect:       cfg.OnConnect,
		onDisconnect:    cfg.OnClientDisconnect,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
	s.routes = map[string]routeHandler{
		EchoPath:  s.handleEcho,
		StompPath: s.handleStomp,
	}
	return s
}

// Start binds the TLS listener and starts serving in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New(netmon.ErrServerAlreadyRunning)
	}
	if s.cfg.TLSConfig == nil {
		return errors.New("server requires a TLS configuration")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = tls.NewListener(ln, s.cfg.TLSConfig)

	mux := http.NewServeMux()
	for path := range s.routes {
		mux.HandleFunc(path, s.handleWebSocket)
	}

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	go func(srv *http.Server, ln net.Listener) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", zap.Error(err))
		}
	}(s.server, s.listener)

	s.running = true
	s.logger.Info("listening", zap.String("addr", s.listener.Addr().String()))
	return nil
}

// Stop closes every peer and shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.server
	s.mu.Unlock()

	s.peers.Range(func(key, value interface{}) bool {
		if p, ok := value.(*peer); ok {
			p.CloseWithCode(ctx, websocket.CloseGoingAway, "server shutting down")
		}
		return true
	})

	return srv.Shutdown(ctx)
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Peer returns a connected peer by ID
func (s *Server) Peer(id string) (netmon.Peer, bool) {
	if p, ok := s.peers.Load(id); ok {
		return p.(*peer), true
	}
	return nil, false
}

// handleWebSocket upgrades the request and starts the peer's read loop
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	route, ok := s.routes[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.logger.Debug("upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	if s.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageSize)
	}

	p := newPeer(conn, r.RemoteAddr, s.rateLimitConfig)
	s.peers.Store(p.ID(), p)

	go s.handlePeer(p, route)
}

// handlePeer reads messages from p and hands them to route
func (s *Server) handlePeer(p *peer, route routeHandler) {
	logger := s.logger.With(zap.String("peer_id", p.ID()), zap.String("remote_addr", p.RemoteAddr()))

	defer func() {
		voluntary := p.Context().Err() == nil

		if s.onDisconnect != nil {
			s.onDisconnect(p, voluntary)
		}
		s.peers.Delete(p.ID())
		p.Close(context.Background())
		logger.Debug("peer disconnected", zap.Bool("voluntary", voluntary))
	}()

	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if s.onConnect != nil {
		s.onConnect(p)
	}
	logger.Debug("peer connected")

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("unexpected close", zap.Error(err))
			}
			return
		}

		p.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !p.allow() {
			logger.Warn("rate limit exceeded")
			p.CloseWithCode(context.Background(), websocket.ClosePolicyViolation, netmon.ErrRateLimited)
			return
		}

		route(p, string(data))
	}
}

func (s *Server) handleEcho(p *peer, message string) {
	p.Send(p.Context(), message)
}

// handleStomp answers CONNECT/STOMP frames according to the configured
// credentials. Other frames are only accepted after a successful login.
func (s *Server) handleStomp(p *peer, message string) {
	frame, err := stomp.Decode(message)
	if err != nil {
		s.sendFrame(p, stomp.NewError(netmon.ErrInvalidFrame, err.Error()))
		return
	}

	switch frame.Command {
	case stomp.CmdConnect, stomp.CmdStomp:
		login, _ := frame.Get(stomp.HdrLogin)
		passcode, _ := frame.Get(stomp.HdrPasscode)

		want, ok := s.cfg.Credentials[login]
		if !ok || want != passcode {
			s.logger.Info("stomp login rejected", zap.String("peer_id", p.ID()), zap.String("login", login))
			s.sendFrame(p, stomp.NewError(netmon.ErrAuthenticationFailed, "invalid login or passcode"))
			return
		}

		p.authenticated = true
		s.sendFrame(p, &stomp.Frame{
			Command: stomp.CmdConnected,
			Headers: []stomp.Header{
				{Key: stomp.HdrVersion, Value: stomp.Version},
				{Key: "session", Value: p.ID()},
			},
		})

	default:
		if !p.authenticated {
			s.sendFrame(p, stomp.NewError(netmon.ErrNotConnected.Error(), fmt.Sprintf("%s before CONNECT", frame.Command)))
			return
		}
		if receipt, ok := frame.Get("receipt"); ok {
			s.sendFrame(p, &stomp.Frame{
				Command: stomp.CmdReceipt,
				Headers: []stomp.Header{{Key: "receipt-id", Value: receipt}},
			})
		}
	}
}

func (s *Server) sendFrame(p *peer, frame *stomp.Frame) {
	data, err := stomp.Encode(frame)
	if err != nil {
		s.logger.Error("failed to encode stomp frame", zap.Error(err))
		return
	}
	if err := p.Send(p.Context(), data); err != nil {
		s.logger.Debug("failed to send stomp frame", zap.String("peer_id", p.ID()), zap.Error(err))
	}
}
