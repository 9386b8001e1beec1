package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Auth    AuthConfig    `yaml:"auth" json:"auth"`
	Session SessionConfig `yaml:"session" json:"session"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

type StorageConfig struct {
	// DataDir is the root for everything the server keeps on disk:
	// the key-value store, the file backend, backups.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// RemoteDSN points at the relational backend. Empty means the
	// server runs local-only.
	RemoteDSN string `yaml:"remote_dsn" json:"remote_dsn"`

	// SkipBootstrap leaves the remote schema alone and relies on the
	// capability probe instead.
	SkipBootstrap bool `yaml:"skip_bootstrap" json:"skip_bootstrap"`

	RefCacheTTL   time.Duration `yaml:"ref_cache_ttl" json:"ref_cache_ttl"`
	OpLogCapacity int           `yaml:"op_log_capacity" json:"op_log_capacity"`
}

type AuthConfig struct {
	IdentityTTL time.Duration `yaml:"identity_ttl" json:"identity_ttl"`
}

type SessionConfig struct {
	// PersistMode is "optimistic" or "pessimistic".
	PersistMode string `yaml:"persist_mode" json:"persist_mode"`
}

func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.RefCacheTTL == 0 {
		c.Storage.RefCacheTTL = 5 * time.Minute
	}
	if c.Storage.OpLogCapacity == 0 {
		c.Storage.OpLogCapacity = 200
	}
	if c.Auth.IdentityTTL == 0 {
		c.Auth.IdentityTTL = 30 * time.Minute
	}
	if c.Session.PersistMode == "" {
		c.Session.PersistMode = "optimistic"
	}
}

func (c *Config) Validate() error {
	switch c.Session.PersistMode {
	case "optimistic", "pessimistic":
	default:
		return fmt.Errorf("config: unknown persist_mode %q", c.Session.PersistMode)
	}
	if c.Storage.RefCacheTTL < 0 {
		return fmt.Errorf("config: ref_cache_ttl must not be negative")
	}
	if c.Auth.IdentityTTL < 0 {
		return fmt.Errorf("config: identity_ttl must not be negative")
	}
	if c.Storage.OpLogCapacity < 0 {
		return fmt.Errorf("config: op_log_capacity must not be negative")
	}
	return nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
