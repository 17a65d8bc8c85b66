package stress_test

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luciancaetano/netmon"
	"github.com/luciancaetano/netmon/ws"
)

// startTestServer starts an echo endpoint on a random loopback port
func startTestServer(t *testing.T) (netmon.WebsocketServer, *tls.Config) {
	t.Helper()

	serverTLS, trust, err := ws.SelfSignedTLS()
	if err != nil {
		t.Fatalf("Failed to generate certificate: %v", err)
	}

	server := ws.NewServer(ws.NewServerConfig("127.0.0.1:0", serverTLS, ws.NoRateLimit(), ws.AllOrigins()))
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Stop(ctx)
	})
	return server, trust
}

// echoSession connects one client, queues every message at once and checks
// that the echoes come back complete and in order.
func echoSession(server netmon.WebsocketServer, trust *tls.Config, clientID, messages int, timeout time.Duration) error {
	host, port, err := net.SplitHostPort(server.Addr())
	if err != nil {
		return err
	}
	client := ws.NewClient(ws.NewClientConfig(host, ws.EchoPath, port, trust))

	connected := make(chan error, 1)
	done := make(chan error, 1)
	var received []string

	client.Connect(func(err error) {
		connected <- err
	}, func(err error, msg string) {
		if err != nil {
			return
		}
		received = append(received, msg)
		if len(received) == messages {
			done <- nil
		}
	})

	select {
	case err := <-connected:
		if err != nil {
			return err
		}
	case <-time.After(timeout):
		return fmt.Errorf("client %d: connect timed out", clientID)
	}

	var sendErrs int64
	for j := 0; j < messages; j++ {
		client.Send(fmt.Sprintf("client %d message %d", clientID, j), func(err error) {
			if err != nil {
				atomic.AddInt64(&sendErrs, 1)
			}
		})
	}

	var result error
	select {
	case <-done:
	case <-time.After(timeout):
		result = fmt.Errorf("client %d: timed out waiting for echoes", clientID)
	}

	closed := make(chan error, 1)
	client.Close(func(err error) { closed <- err })
	if err := <-closed; err != nil && result == nil {
		result = err
	}
	if result != nil {
		return result
	}

	if n := atomic.LoadInt64(&sendErrs); n > 0 {
		return fmt.Errorf("client %d: %d sends failed", clientID, n)
	}
	// received is only written on the client's strand, which is idle once
	// Close has completed.
	for j, msg := range received {
		if want := fmt.Sprintf("client %d message %d", clientID, j); msg != want {
			return fmt.Errorf("client %d: echo %d = %q, want %q", clientID, j, msg, want)
		}
	}
	return nil
}

// TestStressManyClients tests many simultaneous TLS sessions
func TestStressManyClients(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	server, trust := startTestServer(t)

	const numClients = 500
	const messagesPerClient = 5

	var (
		succeeded int64
		failed    int64
		wg        sync.WaitGroup
		firstErr  sync.Once
	)

	startTime := time.Now()

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()

			if err := echoSession(server, trust, clientID, messagesPerClient, 30*time.Second); err != nil {
				atomic.AddInt64(&failed, 1)
				firstErr.Do(func() { t.Logf("First failure: %v", err) })
				return
			}
			atomic.AddInt64(&succeeded, 1)
		}(i)

		// Stagger connection attempts
		if i%100 == 0 && i > 0 {
			time.Sleep(100 * time.Millisecond)
		}
	}

	wg.Wait()
	duration := time.Since(startTime)

	successRate := float64(succeeded) / float64(numClients) * 100

	log.Printf("\n=== Stress Test Results ===")
	log.Printf("Duration: %v", duration)
	log.Printf("Target Clients: %d", numClients)
	log.Printf("Successful Sessions: %d (%.2f%%)", succeeded, successRate)
	log.Printf("Failed Sessions: %d", failed)
	log.Printf("Sessions/sec: %.2f", float64(succeeded)/duration.Seconds())

	if succeeded < int64(numClients*0.95) {
		t.Errorf("Too many failed sessions: %d/%d (%.2f%% success rate)", succeeded, numClients, successRate)
	}
}

// TestStressConcurrentMessaging tests deep send queues on a few clients
func TestStressConcurrentMessaging(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	server, trust := startTestServer(t)

	const numClients = 20
	const messagesPerClient = 1000

	var wg sync.WaitGroup
	errs := make(chan error, numClients)

	startTime := time.Now()

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			if err := echoSession(server, trust, clientID, messagesPerClient, time.Minute); err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	duration := time.Since(startTime)
	total := numClients * messagesPerClient

	log.Printf("\n=== Concurrent Messaging Results ===")
	log.Printf("Duration: %v", duration)
	log.Printf("Messages echoed: %d", total)
	log.Printf("Messages/sec: %.2f", float64(total)/duration.Seconds())

	for err := range errs {
		t.Error(err)
	}
}
