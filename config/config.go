package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/unigate/errors"
)

// Config holds the engine settings for a gateway process. Route documents
// are not configured here; they live in the configuration store and are
// loaded through the registry.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Pool   PoolConfig   `yaml:"pool"`
	NATS   NATSConfig   `yaml:"nats"`
	Store  StoreConfig  `yaml:"store"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	MaxRequestSize  int64         `yaml:"max_request_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// PoolConfig sizes the shared fan-out worker pool
type PoolConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// NATSConfig holds the connection settings for the messaging and
// key-value collaborators
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// StoreConfig selects where route documents are loaded from
type StoreConfig struct {
	// Bucket is the key-value bucket holding route documents
	Bucket string `yaml:"bucket"`
}

// Default returns a config with every default applied
func Default() *Config {
	cfg := &Config{}
	_ = cfg.Validate()
	return cfg
}

// Load reads and validates a YAML settings file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Config", "Load", "read settings file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "parse settings file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies defaults and rejects out-of-range values
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.MaxRequestSize == 0 {
		c.Server.MaxRequestSize = 4 * 1024 * 1024
	}
	if c.Server.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size must be positive")
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Pool.Workers == 0 {
		c.Pool.Workers = 8
	}
	if c.Pool.Workers < 0 || c.Pool.Workers > 1024 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("pool workers %d out of range 1-1024", c.Pool.Workers))
	}
	if c.Pool.QueueSize == 0 {
		c.Pool.QueueSize = 256
	}
	if c.Pool.QueueSize < 0 || c.Pool.QueueSize > 65536 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("pool queue size %d out of range 1-65536", c.Pool.QueueSize))
	}

	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.NATS.Name == "" {
		c.NATS.Name = "unigate"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = 2 * time.Second
	}

	if c.Store.Bucket == "" {
		c.Store.Bucket = "unigate_routes"
	}

	return nil
}
