package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/busybox42/aegis-pm/pkg/types"
)

// Config is the on-disk sidecar configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LogLevel  string          `yaml:"logLevel"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Keys      []string        `yaml:"keys"`
	Resend    ResendConfig    `yaml:"resend"`
	Tor       TorConfig       `yaml:"tor"`
}

type ServerConfig struct {
	// Address is the local listen address, host:port.
	Address string `yaml:"address"`
	// URL is how other peers reach this node.
	URL string `yaml:"url"`
}

type DiscoveryConfig struct {
	Mode  DiscoveryMode `yaml:"mode"`
	Peers []string      `yaml:"peers"`
}

type ResendConfig struct {
	OnStartup       bool          `yaml:"onStartup"`
	MaxAttempts     int           `yaml:"maxAttempts"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
	Concurrency     int           `yaml:"concurrency"`
}

type TorConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a configuration for a single open node on localhost.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "127.0.0.1:9001",
			URL:     "http://127.0.0.1:9001",
		},
		LogLevel:  "info",
		Discovery: DiscoveryConfig{Mode: ModeOpen},
		Resend: ResendConfig{
			MaxAttempts: 5,
			Concurrency: 1,
		},
	}
}

// Load reads a YAML config file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("logLevel: %w", err))
	}
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if _, err := types.ParseNodeUri(c.Server.URL); err != nil {
		errs = append(errs, fmt.Errorf("server.url: %w", err))
	}
	if c.Resend.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("resend.maxAttempts must be at least 1, got %d", c.Resend.MaxAttempts))
	}
	if c.Resend.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("resend.concurrency must be at least 1, got %d", c.Resend.Concurrency))
	}
	if c.Resend.InitialInterval < 0 || c.Resend.MaxInterval < 0 {
		errs = append(errs, errors.New("resend intervals must not be negative"))
	}
	for i, k := range c.Keys {
		if _, err := types.PublicKeyFromBase64(k); err != nil {
			errs = append(errs, fmt.Errorf("keys[%d]: %w", i, err))
		}
	}
	if _, err := c.RuntimeContext(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// PublicKeys decodes the configured local keys.
func (c *Config) PublicKeys() ([]types.PublicKey, error) {
	keys := make([]types.PublicKey, 0, len(c.Keys))
	for i, k := range c.Keys {
		key, err := types.PublicKeyFromBase64(k)
		if err != nil {
			return nil, fmt.Errorf("keys[%d]: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Peers parses discovery.peers.
func (c *Config) Peers() ([]types.NodeUri, error) {
	peers := make([]types.NodeUri, 0, len(c.Discovery.Peers))
	for _, raw := range c.Discovery.Peers {
		uri, err := types.ParseNodeUri(raw)
		if err != nil {
			return nil, fmt.Errorf("discovery.peers: %w", err)
		}
		peers = append(peers, uri)
	}
	return peers, nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
