package websocket

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luciancaetano/netmon"
	"github.com/luciancaetano/netmon/internal/codec"
	"github.com/luciancaetano/netmon/internal/executor"
	"github.com/luciancaetano/netmon/internal/transport"
)

// DefaultCloseTimeout bounds the shutdown sequence started by Close.
const DefaultCloseTimeout = 5 * time.Second

// Endpoint resolves the remote host and opens the TCP connection.
type Endpoint interface {
	Resolve(ctx context.Context, host, port string) ([]string, error)
	Connect(ctx context.Context, addrs []string) (net.Conn, error)
}

// SecureSession runs the client side of the TLS handshake over conn.
type SecureSession interface {
	Handshake(ctx context.Context, conn net.Conn, serverName string) (net.Conn, error)
}

// ClientConfig identifies the remote endpoint and the collaborators a Client
// uses to reach it. Only Host, Path, Port and TrustStore are required.
type ClientConfig struct {
	Host       string
	Path       string
	Port       string
	TrustStore *tls.Config

	// Executor runs the client's handlers. Defaults to executor.Default().
	Executor *executor.Executor
	Logger   *zap.Logger

	// Codec performs the upgrade and frames messages. Defaults to gorilla.
	Codec    codec.Handshaker
	Endpoint Endpoint
	Session  SecureSession

	// HandshakeTimeout aborts Connect if the whole chain has not completed in
	// time. Zero disables it.
	HandshakeTimeout time.Duration
	// MaxMessageSize is the read limit of the default codec.
	MaxMessageSize int64
	CloseTimeout   time.Duration
}

// DefaultClientConfig returns a configuration for host:port/path verified
// against trust.
func DefaultClientConfig(host, path, port string, trust *tls.Config) *ClientConfig {
	return &ClientConfig{
		Host:           host,
		Path:           path,
		Port:           port,
		TrustStore:     trust,
		MaxMessageSize: codec.DefaultMaxMessageSize,
		CloseTimeout:   DefaultCloseTimeout,
	}
}

// pendingSend is a queued Send waiting for its turn on the codec.
type pendingSend struct {
	message string
	onSent  netmon.SendHandler
}

// stageResult carries the outcome of one handshake stage back to the strand.
type stageResult struct {
	stage netmon.ConnectionState
	addrs []string
	conn  net.Conn
	ws    codec.Conn
	err   error
}

// release closes whatever a discarded stage result opened.
func (r stageResult) release() {
	if r.ws != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		r.ws.Close(ctx)
		cancel()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}

var stageErrors = map[netmon.ConnectionState]error{
	netmon.StateResolving:      netmon.ErrResolution,
	netmon.StateTCPConnecting:  netmon.ErrConnect,
	netmon.StateTLSHandshaking: netmon.ErrTLSHandshake,
	netmon.StateWSHandshaking:  netmon.ErrProtocolHandshake,
}

// Client implements the netmon.WebSocketClient interface.
//
// Every field below the strand is owned by it: it is only read or written from
// handlers running on the strand, so no lock guards it. Blocking work runs on
// separate goroutines that hand their results back through the strand.
type Client struct {
	id       string
	cfg      ClientConfig
	logger   *zap.Logger
	orphaned sync.Mutex
	strand   *executor.Strand
	endpoint Endpoint
	session  SecureSession
	codec    codec.Handshaker

	state atomic.Uint32

	current   netmon.ConnectionState
	onConnect netmon.ConnectHandler
	onReceive netmon.MessageHandler

	hsCtx    context.Context
	hsCancel context.CancelFunc
	ioCtx    context.Context
	ioCancel context.CancelFunc
	timer    *time.Timer
	timedOut bool

	addrs  []string
	tcp    net.Conn
	secure net.Conn
	ws     codec.Conn

	sends   *queue.Queue
	writing *pendingSend

	onClosed     netmon.CloseHandler
	closeWaiters []netmon.CloseHandler
}

// NewClient creates a client for the endpoint described by cfg. It performs no
// I/O; the client starts in StateDisconnected.
func NewClient(config *ClientConfig) *Client {
	cfg := *config
	if cfg.Executor == nil {
		cfg.Executor = executor.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	if cfg.Endpoint == nil {
		cfg.Endpoint = transport.NewEndpoint()
	}
	if cfg.Session == nil {
		cfg.Session = transport.NewSecureSession(cfg.TrustStore)
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.NewGorilla(codec.Options{MaxMessageSize: cfg.MaxMessageSize})
	}

	id := uuid.New().String()
	hsCtx, hsCancel := context.WithCancel(context.Background())
	ioCtx, ioCancel := context.WithCancel(context.Background())

	return &Client{
		id:       id,
		cfg:      cfg,
		logger:   cfg.Logger.With(zap.String("conn_id", id), zap.String("host", cfg.Host)),
		strand:   executor.NewStrand(cfg.Executor),
		endpoint: cfg.Endpoint,
		session:  cfg.Session,
		codec:    cfg.Codec,
		current:  netmon.StateDisconnected,
		hsCtx:    hsCtx,
		hsCancel: hsCancel,
		ioCtx:    ioCtx,
		ioCancel: ioCancel,
		sends:    queue.New(),
	}
}

// ID returns the unique identifier of the client
func (c *Client) ID() string {
	return c.id
}

// State returns the current connection state
func (c *Client) State() netmon.ConnectionState {
	return netmon.ConnectionState(c.state.Load())
}

// Connect starts the handshake chain. See netmon.WebSocketClient.
func (c *Client) Connect(onConnect netmon.ConnectHandler, onReceive netmon.MessageHandler) {
	if onConnect == nil {
		onConnect = func(error) {}
	}
	if onReceive == nil {
		onReceive = func(error, string) {}
	}

	c.post(func() { c.connect(onConnect, onReceive) }, func(err error) { onConnect(err) })
}

// Send queues message for writing. See netmon.WebSocketClient.
func (c *Client) Send(message string, onSent netmon.SendHandler) {
	if onSent == nil {
		onSent = func(error) {}
	}

	c.post(func() { c.send(&pendingSend{message: message, onSent: onSent}) }, func(err error) { onSent(err) })
}

// Close shuts the connection down. See netmon.WebSocketClient.
func (c *Client) Close(onClosed netmon.CloseHandler) {
	if onClosed == nil {
		onClosed = func(error) {}
	}

	c.post(func() { c.close(onClosed) }, func(err error) { onClosed(err) })
}

// post runs fn on the strand. If the executor no longer accepts work, fallback
// receives the error on a new goroutine so the caller still gets an answer.
func (c *Client) post(fn func(), fallback func(error)) {
	if err := c.strand.Post(fn); err != nil {
		c.logger.Error("execution context rejected handler", zap.Error(err))
		go fallback(fmt.Errorf("%w: %w", netmon.ErrOperationAborted, err))
	}
}

// postResult hands a completion back to the strand from an I/O goroutine.
//
// A rejected post means the executor is closed and the strand will never run
// again, so fn runs on the calling goroutine instead. Such late completions are
// serialized by orphaned and still see strand-owned state one at a time.
func (c *Client) postResult(fn func()) {
	if err := c.strand.Post(fn); err != nil {
		c.logger.Warn("execution context rejected completion, running it inline", zap.Error(err))

		c.orphaned.Lock()
		defer c.orphaned.Unlock()
		fn()
	}
}

func (c *Client) setState(state netmon.ConnectionState) {
	c.logger.Debug("state transition",
		zap.Stringer("from", c.current),
		zap.Stringer("to", state))
	c.current = state
	c.state.Store(uint32(state))
}

func (c *Client) connect(onConnect netmon.ConnectHandler, onReceive netmon.MessageHandler) {
	switch c.current {
	case netmon.StateDisconnected:
	case netmon.StateClosing, netmon.StateClosed:
		onConnect(netmon.ErrAlreadyClosed)
		return
	default:
		onConnect(netmon.ErrAlreadyConnected)
		return
	}

	c.onConnect = onConnect
	c.onReceive = onReceive

	if c.cfg.HandshakeTimeout > 0 {
		c.timer = time.AfterFunc(c.cfg.HandshakeTimeout, func() {
			c.postResult(c.handshakeExpired)
		})
	}

	c.setState(netmon.StateResolving)
	c.step()
}

// step starts the blocking operation of the current handshake stage.
func (c *Client) step() {
	host, port, path := c.cfg.Host, c.cfg.Port, c.cfg.Path

	switch c.current {
	case netmon.StateResolving:
		c.runStage(func(ctx context.Context) stageResult {
			addrs, err := c.endpoint.Resolve(ctx, host, port)
			return stageResult{addrs: addrs, err: err}
		})

	case netmon.StateTCPConnecting:
		addrs := c.addrs
		c.runStage(func(ctx context.Context) stageResult {
			conn, err := c.endpoint.Connect(ctx, addrs)
			return stageResult{conn: conn, err: err}
		})

	case netmon.StateTLSHandshaking:
		tcp := c.tcp
		c.runStage(func(ctx context.Context) stageResult {
			conn, err := c.session.Handshake(ctx, tcp, host)
			return stageResult{conn: conn, err: err}
		})

	case netmon.StateWSHandshaking:
		secure := c.secure
		c.runStage(func(ctx context.Context) stageResult {
			ws, err := c.codec.Handshake(ctx, secure, hostHeader(host, port), path)
			return stageResult{ws: ws, err: err}
		})
	}
}

func (c *Client) runStage(fn func(ctx context.Context) stageResult) {
	stage, ctx := c.current, c.hsCtx

	go func() {
		res := fn(ctx)
		res.stage = stage
		c.postResult(func() { c.onStage(res) })
	}()
}

// onStage is the single dispatcher of the handshake chain: it either advances
// to the next stage or fails the whole chain.
func (c *Client) onStage(res stageResult) {
	if res.stage != c.current {
		// Close overtook this stage.
		go res.release()
		return
	}

	if res.err != nil {
		c.fail(res.stage, res.err)
		return
	}

	switch res.stage {
	case netmon.StateResolving:
		c.addrs = res.addrs
		c.setState(netmon.StateTCPConnecting)
	case netmon.StateTCPConnecting:
		c.tcp = res.conn
		c.setState(netmon.StateTLSHandshaking)
	case netmon.StateTLSHandshaking:
		c.secure = res.conn
		c.setState(netmon.StateWSHandshaking)
	case netmon.StateWSHandshaking:
		c.ws = res.ws
		c.connected()
		return
	}
	c.step()
}

func (c *Client) fail(stage netmon.ConnectionState, cause error) {
	if c.timedOut {
		cause = fmt.Errorf("%w (%v)", context.DeadlineExceeded, cause)
	}
	err := fmt.Errorf("%w: %w", stageErrors[stage], cause)

	c.logger.Warn("connect failed", zap.Stringer("stage", stage), zap.Error(err))

	c.stopTimer()
	c.hsCancel()
	c.setState(netmon.StateFailed)

	secure, tcp := c.secure, c.tcp
	c.secure, c.tcp = nil, nil
	go transport.Shutdown(secure, tcp)

	c.onReceive = nil
	c.deliverConnect(err)
}

func (c *Client) handshakeExpired() {
	if !c.current.Connecting() {
		return
	}

	c.logger.Warn("handshake deadline exceeded", zap.Stringer("stage", c.current))
	c.timedOut = true
	c.hsCancel()

	// Not every stage honors cancellation; closing the connection unblocks it.
	tcp := c.tcp
	if tcp != nil {
		go tcp.Close()
	}
}

func (c *Client) connected() {
	c.stopTimer()
	c.setState(netmon.StateConnected)
	c.logger.Info("connected", zap.String("path", c.cfg.Path))

	// The first read result is posted behind this handler, so arming it
	// before onConnect runs cannot reorder deliveries.
	c.armRead()
	c.deliverConnect(nil)
}

func (c *Client) deliverConnect(err error) {
	h := c.onConnect
	c.onConnect = nil
	if h != nil {
		h(err)
	}
}

func (c *Client) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// armRead issues the next read of the receive loop.
func (c *Client) armRead() {
	ws, ctx := c.ws, c.ioCtx

	go func() {
		msg, err := ws.ReadText(ctx)
		c.postResult(func() { c.onRead(msg, err) })
	}()
}

func (c *Client) onRead(msg string, err error) {
	if c.onReceive == nil || c.current != netmon.StateConnected {
		return
	}

	if err != nil {
		c.logger.Debug("receive loop terminated", zap.Error(err))
		h := c.onReceive
		c.onReceive = nil
		h(fmt.Errorf("%w: %w", netmon.ErrReceive, err), "")
		return
	}

	c.onReceive(nil, msg)

	if c.onReceive != nil && c.current == netmon.StateConnected {
		c.armRead()
	}
}

func (c *Client) send(p *pendingSend) {
	if c.current != netmon.StateConnected {
		p.onSent(netmon.ErrNotConnected)
		return
	}

	c.sends.Add(p)
	c.flush()
}

// flush starts writing the oldest queued message unless a write is already
// outstanding. Writes never overlap on the codec.
func (c *Client) flush() {
	if c.writing != nil || c.sends.Length() == 0 {
		return
	}

	p := c.sends.Remove().(*pendingSend)
	c.writing = p
	ws, ctx := c.ws, c.ioCtx

	go func() {
		err := ws.WriteText(ctx, p.message)
		c.postResult(func() { c.onWritten(p, err) })
	}()
}

func (c *Client) onWritten(p *pendingSend, err error) {
	if c.writing != p {
		// Already completed by Close.
		return
	}
	c.writing = nil

	if err != nil {
		c.logger.Debug("send failed", zap.Error(err))
		err = fmt.Errorf("%w: %w", netmon.ErrSend, err)
	}
	p.onSent(err)

	if c.current == netmon.StateConnected {
		c.flush()
	}
}

// abortSends completes the in-flight and every queued send with
// ErrOperationAborted.
func (c *Client) abortSends() {
	if p := c.writing; p != nil {
		c.writing = nil
		p.onSent(netmon.ErrOperationAborted)
	}
	for c.sends.Length() > 0 {
		p := c.sends.Remove().(*pendingSend)
		p.onSent(netmon.ErrOperationAborted)
	}
}

func (c *Client) close(onClosed netmon.CloseHandler) {
	switch {
	case c.current == netmon.StateClosed:
		onClosed(netmon.ErrAlreadyClosed)

	case c.current == netmon.StateClosing:
		c.closeWaiters = append(c.closeWaiters, onClosed)

	case c.current == netmon.StateDisconnected, c.current == netmon.StateFailed:
		c.hsCancel()
		c.ioCancel()
		c.setState(netmon.StateClosed)
		onClosed(nil)

	case c.current.Connecting():
		c.setState(netmon.StateClosing)
		c.onClosed = onClosed
		c.stopTimer()
		c.hsCancel()
		c.onReceive = nil
		c.deliverConnect(netmon.ErrOperationAborted)
		c.shutdown()

	case c.current == netmon.StateConnected:
		c.setState(netmon.StateClosing)
		c.onClosed = onClosed
		c.abortSends()
		if h := c.onReceive; h != nil {
			c.onReceive = nil
			h(netmon.ErrOperationAborted, "")
		}
		c.shutdown()
	}
}

// shutdown tears the layers down in reverse order of establishment, attempting
// every layer even when an earlier one fails.
func (c *Client) shutdown() {
	ws, secure, tcp := c.ws, c.secure, c.tcp
	c.ws, c.secure, c.tcp = nil, nil, nil
	timeout := c.cfg.CloseTimeout

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var err error
		if ws != nil {
			err = multierr.Append(err, transport.IgnoreClosed(ws.Close(ctx)))
		}
		err = multierr.Append(err, transport.Shutdown(secure, tcp))

		c.postResult(func() { c.closed(err) })
	}()
}

func (c *Client) closed(err error) {
	c.ioCancel()
	c.setState(netmon.StateClosed)

	if err != nil {
		err = fmt.Errorf("%w: %w", netmon.ErrClose, err)
		c.logger.Warn("closed with errors", zap.Error(err))
	} else {
		c.logger.Info("closed")
	}

	h := c.onClosed
	c.onClosed = nil
	if h != nil {
		h(err)
	}

	waiters := c.closeWaiters
	c.closeWaiters = nil
	for _, w := range waiters {
		w(netmon.ErrAlreadyClosed)
	}
}

// hostHeader is the authority sent in the upgrade request. The port is left
// out when it is the wss default.
func hostHeader(host, port string) string {
	if port == "" || port == "443" || port == "https" {
		return host
	}
	return net.JoinHostPort(host, port)
}
