package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/netmon"
	"github.com/luciancaetano/netmon/internal/codec"
	"github.com/luciancaetano/netmon/internal/executor"
	"github.com/luciancaetano/netmon/internal/stomp"
	"github.com/luciancaetano/netmon/ws"
)

var clientFlags struct {
	host     string
	port     string
	caFile   string
	codec    string
	message  string
	login    string
	passcode string
	timeout  time.Duration
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Send a message to an echo endpoint and check the reply",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyClientFlags(cmd)

		client, closeExec, err := newClient(cfg.Client.Path)
		if err != nil {
			return err
		}
		defer closeExec()

		result := probe(client, clientFlags.message, clientFlags.timeout)
		fmt.Fprintf(cmd.OutOrStdout(),
			"connected=%t messageSent=%t messageReceived=%t messageMatches=%t disconnected=%t\n",
			result.connected, result.sent, result.received, result.matches, result.disconnected)

		if result.err != nil {
			return result.err
		}
		if !result.matches {
			return errors.New("echo did not match")
		}
		return nil
	},
}

var stompCmd = &cobra.Command{
	Use:   "stomp",
	Short: "Attempt a STOMP login over WebSocket and print the server's answer",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyClientFlags(cmd)

		client, closeExec, err := newClient(cfg.Stomp.Path)
		if err != nil {
			return err
		}
		defer closeExec()

		request, err := stomp.Encode(stomp.NewConnect(cfg.Stomp.VirtualHost, cfg.Stomp.Login, cfg.Stomp.Passcode))
		if err != nil {
			return err
		}

		result := probe(client, request, clientFlags.timeout)
		if result.err != nil {
			return result.err
		}

		frame, err := stomp.Decode(result.reply)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", frame.Command)
		for _, h := range frame.Headers {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", h.Key, h.Value)
		}
		if frame.Body != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", frame.Body)
		}

		if frame.Command == stomp.CmdError {
			msg, _ := frame.Get(stomp.HdrMessage)
			return fmt.Errorf("stomp login refused: %s", msg)
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{probeCmd, stompCmd} {
		f := cmd.Flags()
		f.StringVar(&clientFlags.host, "host", "", "remote host")
		f.StringVar(&clientFlags.port, "port", "", "remote port")
		f.StringVar(&clientFlags.caFile, "ca", "", "CA bundle (PEM) used to verify the server")
		f.StringVar(&clientFlags.codec, "codec", "", fmt.Sprintf("frame codec %v", codec.Names))
		f.DurationVar(&clientFlags.timeout, "timeout", 10*time.Second, "overall deadline")
	}
	probeCmd.Flags().StringVar(&clientFlags.message, "message", "Hello WebSocket", "message to echo")
	stompCmd.Flags().StringVar(&clientFlags.login, "login", "", "STOMP login")
	stompCmd.Flags().StringVar(&clientFlags.passcode, "passcode", "", "STOMP passcode")
}

func applyClientFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Client.Host = clientFlags.host
		cfg.Stomp.VirtualHost = clientFlags.host
	}
	if f.Changed("port") {
		cfg.Client.Port = clientFlags.port
	}
	if f.Changed("ca") {
		cfg.Client.CAFile = clientFlags.caFile
	}
	if f.Changed("codec") {
		cfg.Client.Codec = clientFlags.codec
	}
	if f.Changed("login") {
		cfg.Stomp.Login = clientFlags.login
	}
	if f.Changed("passcode") {
		cfg.Stomp.Passcode = clientFlags.passcode
	}
}

// newClient builds a client for path on the configured host. The returned
// function releases the client's execution context.
func newClient(path string) (netmon.WebSocketClient, func(), error) {
	if cfg.Client.Host == "" {
		return nil, nil, errors.New("no host configured (use --host or client.host)")
	}

	trust, err := trustStore()
	if err != nil {
		return nil, nil, err
	}

	handshaker, err := codec.ByName(cfg.Client.Codec, codec.Options{MaxMessageSize: cfg.Client.MaxMessageSize})
	if err != nil {
		return nil, nil, err
	}

	exec := executor.New(cfg.Client.Workers, logger)

	clientCfg := ws.NewClientConfig(cfg.Client.Host, path, cfg.Client.Port, trust)
	clientCfg.Executor = exec
	clientCfg.Logger = logger
	clientCfg.Codec = handshaker
	clientCfg.HandshakeTimeout = cfg.Client.HandshakeTimeout
	clientCfg.CloseTimeout = cfg.Client.CloseTimeout
	clientCfg.MaxMessageSize = cfg.Client.MaxMessageSize

	return ws.NewClient(clientCfg), exec.Close, nil
}
