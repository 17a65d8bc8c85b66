package websocket

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/netmon"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var (
	errPeerClosed    = errors.New(netmon.ErrConnectionClosed)
	errPeerCancelled = errors.New(netmon.ErrContextCancelled)
)

// peer implements the netmon.Peer interface for a connection accepted by
// Server.
type peer struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan string
	mu          sync.RWMutex
	closed      bool
	rateLimiter *rate.Limiter // Rate limiter for incoming messages

	// authenticated is only touched by the peer's read loop.
	authenticated bool
}

// newPeer wraps an upgraded connection and starts its write pump.
func newPeer(conn *websocket.Conn, remoteAddr string, rateLimitConfig *RateLimitConfig) *peer {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if rateLimitConfig != nil && rateLimitConfig.Enabled {
		limiter = rate.NewLimiter(rateLimitConfig.MessagesPerSecond, rateLimitConfig.Burst)
	}

	p := &peer{
		id:          uuid.New().String(),
		conn:        conn,
		remoteAddr:  remoteAddr,
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan string, 256),
		rateLimiter: limiter,
	}

	go p.writePump()

	return p
}

func (p *peer) ID() string {
	return p.id
}

func (p *peer) RemoteAddr() string {
	return p.remoteAddr
}

func (p *peer) Context() context.Context {
	return p.ctx
}

// Send queues a text message for the write pump
func (p *peer) Send(ctx context.Context, message string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errPeerClosed
	}

	// The read lock is held while queueing so Close cannot close sendCh under us.
	select {
	case p.sendCh <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return errPeerCancelled
	}
}

// Close closes the peer connection with a normal closure code
func (p *peer) Close(ctx context.Context) error {
	return p.CloseWithCode(ctx, websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the connection with a close code and optional reason
func (p *peer) CloseWithCode(ctx context.Context, code int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.cancel()

	message := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	p.conn.WriteControl(websocket.CloseMessage, message, deadline)

	close(p.sendCh)

	// The write pump may have closed the connection already.
	if err := p.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (p *peer) IsAlive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}

// allow reports whether the peer is still within its inbound rate limit.
func (p *peer) allow() bool {
	if p.rateLimiter == nil {
		return true
	}
	return p.rateLimiter.Allow()
}

// writePump drains sendCh to the connection and keeps it alive with pings.
func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.sendCh:
			if !ok {
				return
			}

			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-p.ctx.Done():
			return
		}
	}
}
