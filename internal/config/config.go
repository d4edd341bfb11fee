package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the explorer backend. Values come from
// EXPLORER_-prefixed environment variables.
type Config struct {
	// Chain node
	NodeURL   string
	NodeWSURL string // optional; enables the head listener
	RPCRPS    int
	RPCBurst  int

	// PostgreSQL
	PostgresURL string

	// Indexer
	PollInterval   time.Duration
	ResyncInterval time.Duration
	ResyncDepth    uint64

	// Redis event publishing (optional; enabled when RedisURL is set)
	RedisURL    string
	BlocksTopic string

	// HTTP API
	HTTPAddr    string
	AdminToken  string
	PageSize    int
	MaxPageSize int

	// Logging
	LogLevel string
}

const envPrefix = "EXPLORER_"

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		RPCRPS:         20,
		RPCBurst:       40,
		PollInterval:   2 * time.Second,
		ResyncInterval: 5 * time.Minute,
		ResyncDepth:    10,
		BlocksTopic:    "block-events",
		HTTPAddr:       ":3001",
		PageSize:       25,
		MaxPageSize:    100,
		LogLevel:       "info",
	}

	// Required
	cfg.NodeURL = os.Getenv(envPrefix + "NODE_URL")
	if cfg.NodeURL == "" {
		return nil, fmt.Errorf("%sNODE_URL is required", envPrefix)
	}

	cfg.PostgresURL = os.Getenv(envPrefix + "POSTGRES_URL")
	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("%sPOSTGRES_URL is required", envPrefix)
	}

	// Optional overrides
	cfg.NodeWSURL = os.Getenv(envPrefix + "NODE_WS_URL")
	cfg.RedisURL = os.Getenv(envPrefix + "REDIS_URL")

	if v := os.Getenv(envPrefix + "RPC_RPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RPCRPS = n
		}
	}

	if v := os.Getenv(envPrefix + "RPC_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RPCBurst = n
		}
	}

	if v := os.Getenv(envPrefix + "POLL_INTERVAL"); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return nil, fmt.Errorf("%sPOLL_INTERVAL: %w", envPrefix, err)
		}
		cfg.PollInterval = d
	}

	if v := os.Getenv(envPrefix + "RESYNC_INTERVAL"); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return nil, fmt.Errorf("%sRESYNC_INTERVAL: %w", envPrefix, err)
		}
		cfg.ResyncInterval = d
	}

	if v := os.Getenv(envPrefix + "RESYNC_DEPTH"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			cfg.ResyncDepth = n
		}
	}

	if v := os.Getenv(envPrefix + "BLOCKS_TOPIC"); v != "" {
		cfg.BlocksTopic = v
	}

	if v := os.Getenv(envPrefix + "HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}

	cfg.AdminToken = os.Getenv(envPrefix + "ADMIN_TOKEN")

	if v := os.Getenv(envPrefix + "PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PageSize = n
		}
	}

	if v := os.Getenv(envPrefix + "MAX_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxPageSize = n
		}
	}

	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// parseInterval accepts either a Go duration ("90s", "5m") or a bare number
// of seconds.
func parseInterval(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("must be positive, got %d", n)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}
