package main

import (
	"crypto/tls"
	"errors"
	"time"

	"github.com/luciancaetano/netmon"
	"github.com/luciancaetano/netmon/ws"
)

// probeResult records how far a request/reply session got.
type probeResult struct {
	connected    bool
	sent         bool
	received     bool
	matches      bool
	disconnected bool
	reply        string
	err          error
}

// probe connects, sends message, waits for the first reply and closes. It
// blocks the calling goroutine on the client's callbacks, which is fine for a
// one-shot command.
func probe(client netmon.WebSocketClient, message string, timeout time.Duration) probeResult {
	var res probeResult

	connected := make(chan error, 1)
	sent := make(chan error, 1)
	replies := make(chan string, 1)
	recvErr := make(chan error, 1)
	closed := make(chan error, 1)

	client.Connect(func(err error) {
		connected <- err
		if err != nil {
			return
		}
		client.Send(message, func(err error) { sent <- err })
	}, func(err error, msg string) {
		if err != nil {
			select {
			case recvErr <- err:
			default:
			}
			return
		}
		select {
		case replies <- msg:
		default:
		}
	})

	deadline := time.After(timeout)

	select {
	case res.err = <-connected:
		res.connected = res.err == nil
	case <-deadline:
		res.err = errTimeout
	}

	if res.connected {
		select {
		case res.err = <-sent:
			res.sent = res.err == nil
		case <-deadline:
			res.err = errTimeout
		}
	}

	if res.sent {
		select {
		case res.reply = <-replies:
			res.received = true
			res.matches = res.reply == message
		case res.err = <-recvErr:
		case <-deadline:
			res.err = errTimeout
		}
	}

	client.Close(func(err error) { closed <- err })
	select {
	case err := <-closed:
		res.disconnected = err == nil
		if res.err == nil {
			res.err = err
		}
	case <-time.After(timeout):
		if res.err == nil {
			res.err = errTimeout
		}
	}
	return res
}

// trustStore loads the configured CA bundle. Without one the system roots are
// used.
func trustStore() (*tls.Config, error) {
	if cfg.Client.CAFile == "" {
		return nil, nil
	}
	return ws.LoadTrustStore(cfg.Client.CAFile)
}

var errTimeout = errors.New("timed out waiting for the server")
