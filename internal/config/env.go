package config

import (
	"os"
	"strconv"
	"time"
)

// ApplyEnv overrides config values from environment variables.
// Falls back to the existing value when a variable is unset or
// malformed.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("WORKLOG_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("WORKLOG_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("WORKLOG_REMOTE_DSN"); v != "" {
		c.Storage.RemoteDSN = v
	}
	if v := getEnvBool("WORKLOG_SKIP_BOOTSTRAP"); v != nil {
		c.Storage.SkipBootstrap = *v
	}
	if v := getEnvDuration("WORKLOG_REF_CACHE_TTL"); v > 0 {
		c.Storage.RefCacheTTL = v
	}
	if v := getEnvInt("WORKLOG_OP_LOG_CAPACITY"); v > 0 {
		c.Storage.OpLogCapacity = v
	}
	if v := getEnvDuration("WORKLOG_IDENTITY_TTL"); v > 0 {
		c.Auth.IdentityTTL = v
	}
	if v := os.Getenv("WORKLOG_PERSIST_MODE"); v != "" {
		c.Session.PersistMode = v
	}
}

func getEnvInt(key string) int {
	val := os.Getenv(key)
	if val == "" {
		return 0
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return num
}

func getEnvBool(key string) *bool {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil
	}
	return &b
}

func getEnvDuration(key string) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return 0
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0
	}
	return d
}
