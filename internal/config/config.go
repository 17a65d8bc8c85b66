package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luciancaetano/netmon/internal/codec"
)

// Config is the netmon configuration file.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Client ClientConfig `yaml:"client"`
	Stomp  StompConfig  `yaml:"stomp"`
	Server ServerConfig `yaml:"server"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// ClientConfig describes the remote endpoint probed by the client.
type ClientConfig struct {
	Host   string `yaml:"host"`
	Path   string `yaml:"path"`
	Port   string `yaml:"port"`
	CAFile string `yaml:"ca_file"`
	Codec  string `yaml:"codec"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	CloseTimeout     time.Duration `yaml:"close_timeout"`
	MaxMessageSize   int64         `yaml:"max_message_size"`

	// Workers sizes the execution context; 0 uses one worker per CPU.
	Workers int `yaml:"workers"`
}

type StompConfig struct {
	Path        string `yaml:"path"`
	VirtualHost string `yaml:"virtual_host"`
	Login       string `yaml:"login"`
	Passcode    string `yaml:"passcode"`
}

// ServerConfig describes the local TLS endpoint. Without certificate files a
// self-signed certificate is generated at startup.
type ServerConfig struct {
	Addr        string            `yaml:"addr"`
	CertFile    string            `yaml:"cert_file"`
	KeyFile     string            `yaml:"key_file"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Credentials map[string]string `yaml:"credentials"`
}

type RateLimitConfig struct {
	Disabled          bool    `yaml:"disabled"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the YAML file at path, fills in defaults and validates the
// result. An empty path returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML configuration data, fills in defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Client.Path == "" {
		c.Client.Path = "/echo"
	}
	if c.Client.Port == "" {
		c.Client.Port = "443"
	}
	if c.Client.Codec == "" {
		c.Client.Codec = "gorilla"
	}
	if c.Client.HandshakeTimeout == 0 {
		c.Client.HandshakeTimeout = 10 * time.Second
	}
	if c.Client.CloseTimeout == 0 {
		c.Client.CloseTimeout = 5 * time.Second
	}
	if c.Client.MaxMessageSize == 0 {
		c.Client.MaxMessageSize = codec.DefaultMaxMessageSize
	}
	if c.Stomp.Path == "" {
		c.Stomp.Path = "/stomp"
	}
	if c.Stomp.VirtualHost == "" {
		c.Stomp.VirtualHost = c.Client.Host
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8443"
	}
	if c.Server.RateLimit.MessagesPerSecond == 0 {
		c.Server.RateLimit.MessagesPerSecond = 100
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 200
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Client.Port); err == nil && (port <= 0 || port > 65535) {
		return fmt.Errorf("invalid client port: %d", port)
	}
	if c.Client.Path[0] != '/' {
		return fmt.Errorf("client path must start with '/': %q", c.Client.Path)
	}
	if _, err := codec.ByName(c.Client.Codec, codec.Options{}); err != nil {
		return err
	}
	if c.Client.HandshakeTimeout < 0 || c.Client.CloseTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Client.MaxMessageSize < 0 {
		return fmt.Errorf("invalid max message size: %d", c.Client.MaxMessageSize)
	}
	if c.Client.Workers < 0 {
		return fmt.Errorf("invalid worker count: %d", c.Client.Workers)
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return errors.New("server cert_file and key_file must be set together")
	}
	if c.Server.RateLimit.MessagesPerSecond < 0 || c.Server.RateLimit.Burst < 0 {
		return errors.New("rate limit values must not be negative")
	}
	return nil
}
