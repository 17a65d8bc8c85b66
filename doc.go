// Package netmon provides an asynchronous, TLS-secured WebSocket client for
// long-lived connections carrying text protocols such as STOMP.
//
// The client is driven entirely by completion handlers. Connect, Send and Close
// return immediately; their outcomes are delivered later on a shared execution
// context, never from within the call itself.
//
// # Architecture
//
// A connection is established by a chain of layered handshakes:
//
//	resolve -> TCP connect -> TLS handshake -> WebSocket upgrade
//
// Each stage runs its blocking primitive on its own goroutine and posts the
// result back to the connection's strand, an ordered queue guaranteeing that the
// client's handlers never run concurrently even when several worker goroutines
// service the execution context. A single dispatcher keyed on the current
// ConnectionState either advances to the next stage or fails the chain.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/netmon/ws"
//	)
//
//	trust, err := ws.LoadTrustStore("cacert.pem")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client := ws.NewClient(ws.NewClientConfig("ltnm.learncppthroughprojects.com", "/echo", "443", trust))
//
//	client.Connect(func(err error) {
//	    if err != nil {
//	        log.Printf("connect: %v", err)
//	        return
//	    }
//	    client.Send("Hello WebSocket", func(err error) {
//	        if err != nil {
//	            log.Printf("send: %v", err)
//	        }
//	    })
//	}, func(err error, msg string) {
//	    if err != nil {
//	        // the receive loop has stopped; the connection is no longer usable
//	        client.Close(func(error) {})
//	        return
//	    }
//	    log.Printf("received: %s", msg)
//	})
//
// # Errors
//
// Every failure is delivered to the single handler of the operation that
// produced it. Stage failures wrap a sentinel (ErrResolution, ErrConnect,
// ErrTLSHandshake, ErrProtocolHandshake, ...) together with the underlying
// cause; use errors.Is to classify them. The client never retries.
//
// # Concurrency
//
//   - Sends are queued and written one at a time in call order
//   - Received messages are delivered in arrival order
//   - Close cancels outstanding operations; they complete with ErrOperationAborted
//   - Handlers must not block: they run on the connection's strand
//
// # Important
//
//   - A client connects at most once; create a new client to reconnect
//   - The trust store is the only source of certificate verification; keep the CA bundle current
package netmon
