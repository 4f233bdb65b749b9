package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
)

type Config struct {
	StoreAddr string `toml:"store-addr"`
	LogLevel  string `toml:"log-level"`

	// Directory to store the data in. Should exist and be writable.
	DBPath string `toml:"db-path"`

	// DefaultLockTtl is used when a request carries no TTL for the locks it
	// creates, in milliseconds.
	DefaultLockTtl uint64 `toml:"default-lock-ttl"`

	// MaxCommandWriteBytes bounds the byte cost (keys + values) of a single
	// write command's batch. Oversized batches are rejected before execution.
	MaxCommandWriteBytes int `toml:"max-command-write-bytes"`

	// EnableOldValueCapture makes write commands record the value visible
	// immediately before each write, for change-data-capture consumers.
	EnableOldValueCapture bool `toml:"enable-old-value-capture"`
}

func NewDefaultConfig() *Config {
	return &Config{
		StoreAddr:            "127.0.0.1:20160",
		LogLevel:             "info",
		DefaultLockTtl:       3000,
		MaxCommandWriteBytes: 256 * 1024 * 1024,
		DBPath:               "/tmp/badger",
	}
}

// FromFile loads a config from a TOML file, starting from the defaults.
func FromFile(path string) (*Config, error) {
	conf := NewDefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "read config %s", path)
	}
	if err := toml.Unmarshal(data, conf); err != nil {
		return nil, errors.Annotatef(err, "parse config %s", path)
	}
	return conf, nil
}

func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db-path must not be empty")
	}

	if c.MaxCommandWriteBytes <= 0 {
		return fmt.Errorf("max-command-write-bytes must be greater than 0")
	}

	return nil
}
