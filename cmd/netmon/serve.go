package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/netmon"
	"github.com/luciancaetano/netmon/internal/tlsconfig"
	"github.com/luciancaetano/netmon/ws"
)

var serveFlags struct {
	addr  string
	caOut string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a local TLS WebSocket endpoint with echo and STOMP routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveFlags.addr
		}

		tlsConfig, err := serverTLS()
		if err != nil {
			return err
		}

		rl := &ws.RateLimitConfig{
			MessagesPerSecond: rate.Limit(cfg.Server.RateLimit.MessagesPerSecond),
			Burst:             cfg.Server.RateLimit.Burst,
			Enabled:           !cfg.Server.RateLimit.Disabled,
		}

		serverCfg := ws.NewServerConfig(cfg.Server.Addr, tlsConfig, rl, ws.AllOrigins())
		serverCfg.Credentials = cfg.Server.Credentials
		serverCfg.Logger = logger
		serverCfg.OnConnect = func(p netmon.Peer) {
			logger.Info("peer connected", zap.String("peer_id", p.ID()), zap.String("remote_addr", p.RemoteAddr()))
		}
		serverCfg.OnClientDisconnect = func(p netmon.Peer, voluntary bool) {
			logger.Info("peer disconnected", zap.String("peer_id", p.ID()), zap.Bool("voluntary", voluntary))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server := ws.NewServer(serverCfg)
		if err := server.Start(ctx); err != nil {
			return err
		}
		cmd.Printf("serving wss://%s%s and wss://%s%s\n", server.Addr(), ws.EchoPath, server.Addr(), ws.StompPath)

		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Stop(stopCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveFlags.caOut, "ca-out", "netmon-ca.pem", "where to write the generated certificate when none is configured")
}

// serverTLS loads the configured key pair or generates a self-signed one and
// writes its certificate to --ca-out for clients to trust.
func serverTLS() (*tls.Config, error) {
	if cfg.Server.CertFile != "" {
		return tlsconfig.LoadServerConfig(cfg.Server.CertFile, cfg.Server.KeyFile)
	}

	certPEM, keyPEM, err := tlsconfig.GenerateSelfSigned()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(serveFlags.caOut, certPEM, 0o644); err != nil {
		return nil, err
	}
	logger.Info("generated self-signed certificate", zap.String("ca_file", serveFlags.caOut))

	return tlsconfig.ServerConfigFromPEM(certPEM, keyPEM)
}
